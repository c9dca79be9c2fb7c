// Package splitwise is the upstream fetch boundary: a thin HTTP client for a
// Splitwise-compatible API. The session credential is supplied per call and is
// never stored here; callers own it for the lifetime of a request.
package splitwise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"splitdash/internal/core"
)

const (
	// DefaultBaseURL is the hosted upstream API root.
	DefaultBaseURL = "https://secure.splitwise.com/api/v3.0"

	// CredentialCookie is the upstream session-cookie name the opaque
	// credential maps onto.
	CredentialCookie = "user_credentials"
)

var (
	// ErrUnauthorized means the upstream rejected the session credential.
	ErrUnauthorized = errors.New("splitwise: upstream rejected credential")

	// ErrUpstream covers any other non-2xx upstream response.
	ErrUpstream = errors.New("splitwise: upstream request failed")
)

// Client calls the upstream shared-expense API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// MainData is the login-time payload: the authenticated user plus the groups
// they belong to, each with its member roster.
type MainData struct {
	User   core.User
	Groups []core.Group
}

// NewClient returns a client for the given API root. An empty baseURL selects
// the hosted upstream.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// MainData fetches the current user and their groups. It doubles as the
// credential check for the session endpoint: an invalid cookie surfaces as
// ErrUnauthorized.
func (c *Client) MainData(ctx context.Context, credential string) (MainData, error) {
	q := url.Values{}
	q.Set("no_expenses", "1")
	q.Set("limit", "3")

	var raw mainDataResponse
	if err := c.get(ctx, credential, "/get_main_data", q, &raw); err != nil {
		return MainData{}, fmt.Errorf("get main data: %w", err)
	}

	md := MainData{
		User:   raw.User.toCore(),
		Groups: make([]core.Group, 0, len(raw.Groups)),
	}
	for _, g := range raw.Groups {
		md.Groups = append(md.Groups, g.toCore())
	}
	return md, nil
}

// GroupExpenses fetches one group's expense batch and normalizes it. The
// batch comes back in whatever order the upstream chose; the aggregator sorts.
func (c *Client) GroupExpenses(ctx context.Context, credential string, groupID int64, limit int) ([]core.ExpenseRecord, error) {
	q := url.Values{}
	q.Set("visible", "true")
	q.Set("group_id", strconv.FormatInt(groupID, 10))
	q.Set("limit", strconv.Itoa(limit))

	var raw []core.RawExpense
	if err := c.get(ctx, credential, "/get_expenses", q, &raw); err != nil {
		return nil, fmt.Errorf("get expenses for group %d: %w", groupID, err)
	}

	slog.DebugContext(ctx, "fetched expense batch", "group_id", groupID, "count", len(raw))
	return core.NormalizeExpenses(raw), nil
}

func (c *Client) get(ctx context.Context, credential, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", CredentialCookie+"="+credential)
	req.Header.Set("Accept", "application/json")
	// The upstream expects same-origin-looking requests.
	req.Header.Set("Origin", "https://secure.splitwise.com")
	req.Header.Set("Referer", "https://secure.splitwise.com/")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
