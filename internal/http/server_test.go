package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"splitdash/internal/relay"
	"splitdash/internal/splitwise"
)

const testCredential = "abc123token"

// upstreamStub fakes the two upstream endpoints the server consumes and
// counts how many calls reach each one.
type upstreamStub struct {
	mainDataCalls atomic.Int64
	expensesCalls atomic.Int64
}

func (u *upstreamStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/get_main_data", func(w http.ResponseWriter, r *http.Request) {
		u.mainDataCalls.Add(1)
		if c, err := r.Cookie("user_credentials"); err != nil || c.Value != testCredential {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"user": {"id": 1, "first_name": "Ada", "last_name": "Osei", "email": "ada@example.com"},
			"groups": [
				{"id": 42, "name": "Flat 3B", "members": [
					{"id": 1, "first_name": "Ada", "last_name": "Osei"},
					{"id": 2, "first_name": "Ben", "last_name": "Iker"}
				]}
			]
		}`))
	})
	mux.HandleFunc("/get_expenses", func(w http.ResponseWriter, r *http.Request) {
		u.expensesCalls.Add(1)
		if c, err := r.Cookie("user_credentials"); err != nil || c.Value != testCredential {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("group_id") != "42" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[]`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": 100, "description": "Groceries", "cost": "30.00",
				"date": "2026-03-01T12:00:00Z", "payment": false,
				"category": {"id": 5, "name": "Food"},
				"users": [
					{"user_id": 1, "paid_share": "30.00", "owed_share": "15.00", "net_balance": "15.00"},
					{"user_id": 2, "paid_share": "0.00", "owed_share": "15.00", "net_balance": "-15.00"}
				],
				"repayments": [{"from": 2, "to": 1, "amount": "15.00"}]
			}
		]`))
	})
	return mux
}

func newTestServer(t *testing.T, upstreamURL string) (*Server, *httptest.Server) {
	t.Helper()
	rly, err := relay.New(upstreamURL)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	srv := NewServer(Options{
		Client:            splitwise.NewClient(upstreamURL, 5*time.Second),
		Relay:             rly,
		AllowedOrigins:    []string{"http://localhost:5173"},
		ExpenseFetchLimit: 25,
		CacheTTL:          time.Minute,
		CacheMaxEntries:   16,
		RequestsPerMinute: 1000,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ts
}

func get(t *testing.T, url string, withCredential bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if withCredential {
		req.Header.Set(relay.CredentialHeader, testCredential)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessionMissingCredential(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/session", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionReturnsUser(t *testing.T) {
	stub := &upstreamStub{}
	upstream := httptest.NewServer(stub.handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/session", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != 1 || body.User.FirstName != "Ada" || body.User.Email != "ada@example.com" {
		t.Errorf("user = %+v", body.User)
	}

	// Second call rides the session cache.
	get(t, ts.URL+"/api/session", true)
	if got := stub.mainDataCalls.Load(); got != 1 {
		t.Errorf("upstream main data calls = %d, want 1", got)
	}
}

func TestSessionRejectedCredential(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/session", true)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestGroups(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/groups", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body groupsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(body.Groups))
	}
	if body.Groups[0].Name != "Flat 3B" || len(body.Groups[0].Members) != 2 {
		t.Errorf("group = %+v", body.Groups[0])
	}
}

func TestDashboardAggregates(t *testing.T) {
	stub := &upstreamStub{}
	upstream := httptest.NewServer(stub.handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/groups/42/dashboard?observer_id=1", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.GroupID != 42 || body.ObserverID != 1 {
		t.Fatalf("ids = %d/%d", body.GroupID, body.ObserverID)
	}
	if len(body.BalanceHistory) != 1 {
		t.Fatalf("balance history = %d points, want 1", len(body.BalanceHistory))
	}
	if got := body.BalanceHistory[0].RunningBalance; got != 15 {
		t.Errorf("running balance = %v, want 15", got)
	}
	if len(body.UserDebts) != 1 || body.UserDebts[0].Name != "Ben Iker" {
		t.Fatalf("debts = %+v", body.UserDebts)
	}
	if got := body.UserDebts[0].TheyOwe; got != 15 {
		t.Errorf("theyOwe = %v, want 15", got)
	}
	if len(body.CategoryDistribution) != 1 || body.CategoryDistribution[0].Name != "Food" {
		t.Errorf("categories = %+v", body.CategoryDistribution)
	}

	// Repeat request hits both caches.
	get(t, ts.URL+"/api/groups/42/dashboard?observer_id=1", true)
	if got := stub.expensesCalls.Load(); got != 1 {
		t.Errorf("upstream expense calls = %d, want 1", got)
	}
	if got := stub.mainDataCalls.Load(); got != 1 {
		t.Errorf("upstream main data calls = %d, want 1", got)
	}
}

func TestDashboardWithoutObserver(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/groups/42/dashboard", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ObserverID != 0 {
		t.Errorf("observerId = %d, want 0", body.ObserverID)
	}
	// Views are present and empty, not null.
	if body.BalanceHistory == nil || len(body.BalanceHistory) != 0 {
		t.Errorf("balanceHistory = %v, want empty slice", body.BalanceHistory)
	}
	if body.RecentTransactions == nil || len(body.RecentTransactions) != 0 {
		t.Errorf("recentTransactions = %v, want empty slice", body.RecentTransactions)
	}
}

func TestDashboardUnknownGroup(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/groups/99/dashboard?observer_id=1", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDashboardInvalidGroupID(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/api/groups/nope/dashboard", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestUpstreamRelayMount(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_current_user" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if c, err := r.Cookie("user_credentials"); err != nil || c.Value != testCredential {
			t.Errorf("credential cookie missing or wrong")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	resp := get(t, ts.URL+"/upstream/get_current_user", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHealthEndpoints(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()
	_, ts := newTestServer(t, upstream.URL)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := get(t, ts.URL+path, false)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestRateLimit(t *testing.T) {
	upstream := httptest.NewServer((&upstreamStub{}).handler(t))
	defer upstream.Close()

	rly, err := relay.New(upstream.URL)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	srv := NewServer(Options{
		Client:            splitwise.NewClient(upstream.URL, 5*time.Second),
		Relay:             rly,
		RequestsPerMinute: 2,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	var last int
	for i := 0; i < 3; i++ {
		resp := get(t, ts.URL+"/api/session", true)
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want %d", last, http.StatusTooManyRequests)
	}
}
