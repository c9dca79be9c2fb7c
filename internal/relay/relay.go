// Package relay forwards raw API calls to the upstream shared-expense service
// while rewriting the client's custom credential header into the session
// cookie the upstream expects. It is a pure transport: bodies pass through
// untouched in both directions.
package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/cors"

	"splitdash/internal/splitwise"
)

// CredentialHeader is the custom request header carrying the opaque session
// token. It is consumed here and never forwarded upstream.
const CredentialHeader = "X-Splitwise-Cookie"

// Relay is a reverse proxy to the upstream API root.
type Relay struct {
	upstream *url.URL
	proxy    *httputil.ReverseProxy
}

// New builds a relay for the given upstream API root, e.g.
// "https://secure.splitwise.com/api/v3.0".
func New(upstreamBaseURL string) (*Relay, error) {
	u, err := url.Parse(upstreamBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported upstream scheme %q", u.Scheme)
	}

	r := &Relay{upstream: u}
	r.proxy = &httputil.ReverseProxy{
		Director: r.direct,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			slog.ErrorContext(req.Context(), "relay upstream error", "path", req.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"failed to proxy request"}`))
		},
	}
	return r, nil
}

// direct rewrites one outgoing request: target URL, credential cookie and the
// origin headers the upstream expects from a browser session.
func (r *Relay) direct(req *http.Request) {
	req.URL.Scheme = r.upstream.Scheme
	req.URL.Host = r.upstream.Host
	req.URL.Path = singleJoin(r.upstream.Path, req.URL.Path)
	req.Host = r.upstream.Host

	if credential := req.Header.Get(CredentialHeader); credential != "" {
		req.Header.Set("Cookie", splitwise.CredentialCookie+"="+credential)
		req.Header.Del(CredentialHeader)
	}

	origin := r.upstream.Scheme + "://" + r.upstream.Host
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
}

// Handler returns the relay wrapped with the CORS policy the SPA needs: the
// custom credential header must be allowed on preflight.
func (r *Relay) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", CredentialHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler(r.proxy)
}

// ServeHTTP proxies one request without the CORS wrapper, for callers that
// mount the relay behind their own middleware chain.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.proxy.ServeHTTP(w, req)
}

func singleJoin(base, tail string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(tail, "/"):
		return base + tail[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(tail, "/"):
		return base + "/" + tail
	}
	return base + tail
}
