package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"splitdash/internal/config"
	apphttp "splitdash/internal/http"
	applog "splitdash/internal/log"
	"splitdash/internal/relay"
	"splitdash/internal/splitwise"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{Level: cfg.LogLevel, Component: applog.ComponentApp})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}

	client := splitwise.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)

	rly, err := relay.New(cfg.UpstreamBaseURL)
	if err != nil {
		logger.Error("relay setup failed", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Client:            client,
		Relay:             rly,
		AllowedOrigins:    cfg.AllowedOrigins,
		ExpenseFetchLimit: cfg.ExpenseFetchLimit,
		CacheTTL:          cfg.CacheTTL,
		CacheMaxEntries:   cfg.CacheMaxEntries,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger.WithComponent(applog.ComponentHTTP),
	})

	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	// Serve h2c so plaintext HTTP/2 works behind TLS-terminating proxies.
	srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("starting splitdash server",
		"port", cfg.Port,
		"upstream", cfg.UpstreamBaseURL,
		"cache_ttl", cfg.CacheTTL.String(),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
