// Package http is the API surface: a JSON server exposing the session check,
// the group roster, and the per-group dashboard, plus a pass-through mount for
// the upstream relay. Handlers never see the raw credential beyond forwarding
// it; caches are keyed on a digest of it.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"splitdash/internal/cache"
	"splitdash/internal/core"
	applog "splitdash/internal/log"
	"splitdash/internal/middleware/ratelimit"
	"splitdash/internal/middleware/trace"
	"splitdash/internal/relay"
	"splitdash/internal/splitwise"
)

const cacheJanitorInterval = 10 * time.Minute

// Options carries the wiring NewServer needs. Zero values fall back to
// conservative defaults so tests can construct servers tersely.
type Options struct {
	Addr              string
	Client            *splitwise.Client
	Relay             *relay.Relay
	AllowedOrigins    []string
	ExpenseFetchLimit int
	CacheTTL          time.Duration
	CacheMaxEntries   int
	RequestsPerMinute int
	Logger            *applog.Logger
}

// Server owns the router, the per-credential caches, and the rate limiter.
type Server struct {
	http.Server

	client       *splitwise.Client
	relay        *relay.Relay
	limiter      *ratelimit.Limiter
	logger       *applog.Logger
	expenseLimit int

	sessionCache *cache.TTLCache[splitwise.MainData]
	expenseCache *cache.TTLCache[[]core.ExpenseRecord]

	shutdownOnce sync.Once
}

// NewServer builds the server and its router. Callers run ListenAndServe (or
// hand s.Handler to a test server) and must call Shutdown to stop the cache
// janitors and the rate limiter.
func NewServer(opts Options) *Server {
	if opts.ExpenseFetchLimit <= 0 {
		opts.ExpenseFetchLimit = 25
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Minute
	}
	if opts.CacheMaxEntries <= 0 {
		opts.CacheMaxEntries = 200
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	s := &Server{
		client:       opts.Client,
		relay:        opts.Relay,
		logger:       opts.Logger,
		expenseLimit: opts.ExpenseFetchLimit,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
		sessionCache: cache.New[splitwise.MainData](opts.CacheMaxEntries, opts.CacheTTL),
		expenseCache: cache.New[[]core.ExpenseRecord](opts.CacheMaxEntries, opts.CacheTTL),
	}
	s.sessionCache.StartJanitor(cacheJanitorInterval)
	s.expenseCache.StartJanitor(cacheJanitorInterval)

	s.Addr = opts.Addr
	s.Handler = s.routes(opts.AllowedOrigins)
	s.ReadHeaderTimeout = 10 * time.Second
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(trace.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", relay.CredentialHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(c.Handler)
		api.Use(s.withRateLimit)
		api.Get("/session", s.handleSession)
		api.Get("/groups", s.handleGroups)
		api.Get("/groups/{groupID}/dashboard", s.handleDashboard)
	})

	if s.relay != nil {
		r.Mount("/upstream", http.StripPrefix("/upstream", s.relay.Handler(allowedOrigins)))
	}

	return r
}

// securityHeaders sets the response headers that matter for a JSON API that
// serves per-session financial data: no sniffing, no framing, no caching.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := trace.ClientIP(r)
		if !s.limiter.Allow(ip) {
			s.logger.WarnContext(r.Context(), "rate limit exceeded",
				applog.FieldClientIP, ip,
				applog.FieldPath, r.URL.Path,
			)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the server can serve dashboards, which only
// needs the upstream client to be wired.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.client == nil {
		writeError(w, http.StatusServiceUnavailable, "upstream client not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops the HTTP listener, the cache janitors, and the rate limiter.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.sessionCache.StopJanitor()
		s.expenseCache.StopJanitor()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
