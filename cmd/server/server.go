package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kuitang/notekeeper/internal/api"
	"github.com/kuitang/notekeeper/internal/config"
	"github.com/kuitang/notekeeper/internal/crypto"
	"github.com/kuitang/notekeeper/internal/db"
	"github.com/kuitang/notekeeper/internal/export"
	"github.com/kuitang/notekeeper/internal/mcp"
	"github.com/kuitang/notekeeper/internal/memstore"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/obs"
	"github.com/kuitang/notekeeper/internal/ratelimit"
	"github.com/kuitang/notekeeper/internal/s3client"
)

const exportBucket = "notekeeper-exports"

// app is the fully wired server: the shared notes service, its HTTP surface and
// everything that must be released on shutdown.
type app struct {
	provider *notes.Provider
	handler  http.Handler
	closers  []func() error
}

// newApp wires every component described by cfg. The durable store is opened before
// newApp returns so the startup log names the backend that is serving.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	logger := obs.Pkg("server")

	var durable *db.NotesDB
	a.provider = notes.NewProvider(func() *notes.Service {
		durable = openDurable(cfg)
		if durable == nil {
			return notes.NewService(nil, newVolatileStore)
		}
		return notes.NewService(durable, newVolatileStore)
	})
	a.closers = append(a.closers, func() error {
		if durable != nil {
			return durable.Close()
		}
		return nil
	})

	exporter, err := a.newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	api.NewHandler(a.provider, exporter).RegisterRoutes(mux)
	mux.Handle("GET /metrics", obs.MetricsHandler())
	if cfg.MCPEnabled {
		mountMCPRoute(mux, "/mcp", mcp.NewServer(a.provider))
	}

	var handler http.Handler = api.NewRouter(mux)
	if cfg.RateLimitConfig.Enabled() {
		limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
		a.closers = append(a.closers, func() error {
			limiter.Stop()
			return nil
		})
		handler = ratelimit.RateLimitMiddleware(limiter, ratelimit.ClientIP, api.RateLimited)(handler)
	}
	handler = api.CORSMiddleware(cfg.CORSOrigins, handler)
	handler = obs.AccessLogMiddleware("http", handler)
	handler = obs.RequestContextMiddleware(handler)
	a.handler = api.RecoverMiddleware(handler)

	// First call to Service opens the durable store, or falls back to volatile.
	logger.Info("notes_service_ready", "storage", a.provider.Service().Backend())
	return a, nil
}

func (a *app) newExporter(ctx context.Context, cfg *config.Config) (*export.Exporter, error) {
	switch {
	case cfg.NoS3:
		mem, err := s3client.NewInMemory(ctx, exportBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to start in-memory object storage: %w", err)
		}
		a.closers = append(a.closers, mem.Close)
		return export.New(mem.Client), nil
	case cfg.S3Configured():
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return export.New(client), nil
	default:
		return nil, nil
	}
}

// close releases everything newApp acquired, in reverse order. Later calls are no-ops.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openDurable opens the configured SQLite store. Any failure is logged and reported as nil,
// which starts the notes service on the volatile store.
func openDurable(cfg *config.Config) *db.NotesDB {
	logger := obs.Pkg("server")
	path, err := db.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		logger.Warn("durable_store_unavailable", "error", err)
		return nil
	}
	var key []byte
	if master := cfg.DatabaseKeyBytes(); master != nil {
		key, err = crypto.DeriveStoreKey(master, "notes", crypto.CurrentKeyVersion)
		if err != nil {
			logger.Warn("durable_store_unavailable", "error", err)
			return nil
		}
	}
	store, err := db.Open(path, key)
	if err != nil {
		logger.Warn("durable_store_unavailable", "path", path, "error", err)
		return nil
	}
	return store
}

func newVolatileStore() notes.Store {
	return memstore.New()
}

// mountMCPRoute registers every method the streamable HTTP transport uses.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}

// serve runs the HTTP server until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := obs.Pkg("server")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("shutdown_cleanup_failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
