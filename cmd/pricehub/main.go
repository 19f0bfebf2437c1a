package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dondelocompro/pricehub/internal/config"
	"github.com/dondelocompro/pricehub/internal/db"
	dbRedis "github.com/dondelocompro/pricehub/internal/db/redis"
	"github.com/dondelocompro/pricehub/internal/domain"
	logpkg "github.com/dondelocompro/pricehub/internal/logger"
	"github.com/dondelocompro/pricehub/internal/metrics"
	"github.com/dondelocompro/pricehub/internal/registry"
	"github.com/dondelocompro/pricehub/internal/repository/vendorcache"
	chiTransport "github.com/dondelocompro/pricehub/internal/transport/chi"
	"github.com/dondelocompro/pricehub/internal/transport/vendorhttp"
	searchuc "github.com/dondelocompro/pricehub/internal/usecase/search"
	"github.com/dondelocompro/pricehub/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pricehub API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("vendors", len(cfg.Vendors)),
	)

	// The vendor result cache is optional: without a store every search
	// hits the vendors live.
	var store db.Store
	if cfg.Cache.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(context.Background(), 30*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	reg := registry.New()
	for _, vc := range cfg.Vendors {
		adapter := buildAdapter(vc, cfg.Cache, store, logger)
		vendor := domain.Vendor{
			ID:       vc.ID,
			Name:     vc.Name,
			BaseURL:  vc.BaseURL,
			Country:  vc.Country,
			Currency: vc.Currency,
			Active:   vc.IsActive(),
		}
		if err := reg.Register(vendor, adapter); err != nil {
			logger.Fatal("Failed to register vendor", zap.String("vendor", vc.ID), zap.Error(err))
		}
	}
	logger.Info("Vendors registered",
		zap.Strings("active", reg.ActiveVendorIDs()),
		zap.Int("total", len(reg.VendorIDs())),
	)

	searchSvc := searchuc.New(reg, logger).
		WithVendorTimeout(time.Duration(cfg.Search.VendorTimeoutSec) * time.Second).
		WithRetention(time.Duration(cfg.Search.RetentionSec) * time.Second).
		WithSubscriberBuffer(cfg.Search.SubscriberBuffer)

	server := chiTransport.NewServer(searchSvc, reg, logger).
		WithLimits(cfg.Search.DefaultMaxResults, cfg.Search.MaxMaxResults).
		WithHeartbeat(time.Duration(cfg.Search.HeartbeatSec) * time.Second)
	if store != nil {
		server = server.WithPinger(store)
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// No WriteTimeout: SSE connections stay open for the search lifetime.
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	searchSvc.Shutdown()

	logger.Info("Server stopped gracefully")
}

// buildAdapter assembles the adapter chain for one vendor: HTTP -> Cached.
func buildAdapter(
	vc config.VendorConfig,
	cacheCfg config.CacheConfig,
	store db.Store,
	logger *zap.Logger,
) domain.Adapter {
	base := vendorhttp.New(&vendorhttp.Config{
		VendorID:  vc.ID,
		SearchURL: vc.SearchURL,
		Currency:  vc.Currency,
		Logger:    logger,
	})

	if store == nil {
		return base
	}
	return vendorcache.New(
		vc.ID, base, store,
		cacheCfg.KeyPrefix,
		time.Duration(cacheCfg.TTLSec)*time.Second,
		metrics.VendorCacheTotal,
		logger,
	)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
