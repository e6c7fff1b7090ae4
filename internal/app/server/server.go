package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/audit"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/settlement"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/cache"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/config"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/crypto"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/db"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/jobs"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/metrics"
	audithandler "github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/handlers/audit"
	obligationhandler "github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/handlers/obligation"
	settlementhandler "github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/handlers/settlement"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/transport/http/middleware"
)

// Handlers are the API surfaces mounted under /api/v1.
type Handlers struct {
	Settlements settlementhandler.SettlementService
	Obligations obligationhandler.ObligationService
	Audit       audithandler.AuditReader
	Idempotency settlementhandler.IdempotencyStore
	Metrics     *metrics.Collector
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// Run wires the service from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}
	if cfg.SeedDemoData {
		if err := db.Seed(ctx, pool); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	cipher, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	collector := metrics.New()
	auditService := audit.New(pool)
	jobService := jobs.New(pool, collector)
	jobService.Start(ctx)

	deps := settlement.Deps{
		Store:   settlement.NewStore(pool),
		Audit:   auditService,
		Metrics: collector,
		Jobs:    jobService,
		Cipher:  cipher,
	}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		deps.Drafts = settlement.NewRedisDrafts(redisClient)
		deps.Locker = settlement.NewRedisLocker(redisClient)
	} else {
		slog.Warn("REDIS_ADDR not set; drafts and payee locks are process-local")
	}

	settlements := settlement.NewService(deps, settlement.Options{
		Policy:            policyFromConfig(cfg),
		DraftTTL:          cfg.DraftTTL,
		LockTTL:           cfg.LockTTL,
		CommitMaxAttempts: cfg.CommitMaxAttempts,
		StatementDir:      cfg.StatementDir,
	})
	jobService.Every(ctx, cfg.StatementBackfill, settlement.JobStatementBackfill, settlements.BackfillStatements)

	router := NewRouter(cfg, Handlers{
		Settlements: settlements,
		Obligations: ledger.NewService(ledger.NewStore(pool), auditService, collector),
		Audit:       auditService,
		Idempotency: middleware.NewIdempotencyStore(pool),
		Metrics:     collector,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctx).Err()
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("settlement server listening", "addr", cfg.Addr, "env", cfg.Environment)
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

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func NewRouter(cfg config.Config, h Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Logger(h.Metrics))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if h.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.Ready(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && h.Metrics != nil {
		router.Handle("/metrics", h.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		settlementhandler.NewHandler(h.Settlements, h.Idempotency).RegisterRoutes(r)
		obligationhandler.NewHandler(h.Obligations).RegisterRoutes(r)
		audithandler.NewHandler(h.Audit).RegisterRoutes(r)
	})

	return router
}

func policyFromConfig(cfg config.Config) settlement.Policy {
	policy := settlement.Policy{
		ExclusiveWithholding: cfg.ExclusiveWithholding,
		CarryDebtForward:     cfg.CarryDebtForward,
	}
	for _, w := range cfg.Withholding {
		policy.Withholding = append(policy.Withholding, settlement.WithholdingComponent{Name: w.Name, Rate: w.Rate})
	}
	return policy
}

func setupLogger(cfg config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
