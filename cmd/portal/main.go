// ==============================================================================
// CARDHUB PORTAL - cmd/portal/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/checkout"
	"cardhub/internal/dashboard"
	"cardhub/internal/handler"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	"cardhub/pkg/cache"
	"cardhub/pkg/config"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"

	"github.com/redis/go-redis/v9"
)

// backends groups the stores that live in Redis when it is available and
// in process memory otherwise.
type backends struct {
	redis       *redis.Client
	sessions    session.Store
	revoker     session.Revoker
	viewCache   dashboard.Cache
	counter     middleware.WindowCounter
	idempotency middleware.IdempotencyStore
	memStore    *session.MemoryStore
	memRevoker  *session.MemoryRevoker
}

func setupBackends(cfg *config.Config, log logger.Logger) *backends {
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err == nil {
			client := rc.Client()
			log.Info("Using Redis backends", map[string]interface{}{"addr": cfg.Redis.URL})
			return &backends{
				redis:       client,
				sessions:    session.NewRedisStore(rc),
				revoker:     session.NewRedisRevoker(client),
				viewCache:   cache.FromClient(client, "cardhub:"),
				counter:     middleware.NewRedisCounter(client),
				idempotency: middleware.NewRedisIdempotencyStore(client),
			}
		}
		log.Warn("Redis unavailable, falling back to in-memory stores", map[string]interface{}{
			"addr":  cfg.Redis.URL,
			"error": err.Error(),
		})
	}

	mem := session.NewMemoryStore()
	revoker := session.NewMemoryRevoker()
	return &backends{
		sessions:    mem,
		revoker:     revoker,
		viewCache:   cache.NewMemoryCache(1000),
		counter:     middleware.NewMemoryCounter(),
		idempotency: middleware.NewMemoryIdempotencyStore(),
		memStore:    mem,
		memRevoker:  revoker,
	}
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	cfg := config.Load()
	log := logger.NewWithWriter("cardhub-portal", os.Stdout, logger.ParseLevel(cfg.LogLevel))

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		log.Warn("CORS_ALLOWED_ORIGINS is empty; cross-origin browser calls are refused", nil)
	}

	log.Info("Starting CardHub portal", map[string]interface{}{
		"port":     cfg.Server.Port,
		"upstream": cfg.Upstream.BaseURL,
	})

	b := setupBackends(cfg, log)
	if b.redis != nil {
		defer b.redis.Close()
	}

	client := apiclient.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout,
		apiclient.WithRetry(cfg.Upstream.MaxRetries, cfg.Upstream.RetryDelay),
		apiclient.WithLogger(log.With(map[string]interface{}{"component": "apiclient"})),
	)
	val := validator.New()

	sessions := session.NewManager(client, b.sessions, b.revoker, cfg.Session.TTL, log)
	dash := dashboard.NewService(client, b.viewCache, dashboard.Policy{
		PageSize:        cfg.Stats.PageSize,
		MaxPages:        cfg.Stats.MaxPages,
		DisplayPageSize: cfg.Stats.DisplayPageSize,
		CacheTTL:        cfg.Stats.CacheTTL,
	}, log)
	shop := checkout.NewService(client, dash, log)

	h := handler.NewRouter(handler.RouterConfig{
		Auth: handler.NewAuthHandler(sessions, client, val, handler.CookieSettings{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.SecureCookie,
		}, log),
		Dashboard: handler.NewDashboardHandler(dash, sessions, cfg.Stats.StreamInterval, cfg.Server.CORSOrigins, log),
		Cards:     handler.NewCardHandler(dash, sessions, val, log),
		Checkout:  handler.NewCheckoutHandler(shop, sessions, val, log),
		Profile:   handler.NewProfileHandler(sessions, dash, val, log),
		Admin:     handler.NewAdminHandler(dash, sessions, val, log),
		System:    handler.NewSystemHandler(client, b.redis, log),

		Sessions:    middleware.NewAuthMiddleware(sessions, cfg.Session.CookieName, log),
		RateLimiter: middleware.NewRateLimiter(b.counter, cfg.RateLimit.Requests, cfg.RateLimit.Window),
		Idempotency: middleware.NewIdempotencyMiddleware(b.idempotency, 24*time.Hour, log),
		Audit:       middleware.NewAuditMiddleware(middleware.NewLogAuditSink(log), log),

		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if b.memStore != nil {
		go sweepSessions(ctx, b.memStore, b.memRevoker, time.Minute, log)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("CardHub portal started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down CardHub portal...", nil)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("CardHub portal forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("CardHub portal stopped gracefully", nil)
}

// sweepSessions drops expired in-memory sessions and revoked tokens until
// ctx ends.
func sweepSessions(ctx context.Context, store *session.MemoryStore, revoker *session.MemoryRevoker, every time.Duration, log logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				log.Debug("Expired sessions swept", map[string]interface{}{"count": n})
			}
			if n := revoker.Sweep(); n > 0 {
				log.Debug("Expired revocations swept", map[string]interface{}{"count": n})
			}
		}
	}
}
