package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/amm"
	"github.com/lqx/pool-engine/internal/config"
	"github.com/lqx/pool-engine/internal/metrics"
	"github.com/lqx/pool-engine/internal/ratelimit"
	"github.com/lqx/pool-engine/internal/rebalance"
	"github.com/lqx/pool-engine/internal/service"
	"github.com/lqx/pool-engine/internal/store"
	"github.com/lqx/pool-engine/internal/treasury"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Pool ledger ---
	pool, err := amm.New(amm.Config{
		SymbolA:      cfg.SymbolA,
		SymbolB:      cfg.SymbolB,
		SwapFeeRate:  cfg.SwapFeeRate(),
		FlashFeeRate: cfg.FlashFeeRate(),
		MaxLoanRatio: cfg.MaxLoanRatio,
		TargetRatio:  cfg.TargetRatio,
		MinDebtRatio: cfg.MinDebtRatio,
		MaxDebtRatio: cfg.MaxDebtRatio,
		SeedReserveA: cfg.SeedReserveA,
		SeedReserveB: cfg.SeedReserveB,
		OraclePrice:  cfg.OraclePrice,
	})
	if err != nil {
		slog.Error("pool construction failed", "err", err)
		os.Exit(1)
	}

	state := pool.State()
	slog.Info("pool seeded",
		"pair", cfg.SymbolA+"/"+cfg.SymbolB,
		"reserve_a", cfg.SeedReserveA.String(),
		"reserve_b", cfg.SeedReserveB.String(),
		"debt_ratio", state.DebtRatio.String(),
		"leverage", state.Multiplier.String(),
	)

	// --- Event journal ---
	var journal store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pgpool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgpool.Close)
		journal = store.NewPostgresStore(pgpool)
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			journal = store.NewCachedStore(journal, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (history will not persist)")
		journal = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Treasury backing flash loans ---
	partner := treasury.NewMemory(map[string]decimal.Decimal{
		cfg.SymbolB: cfg.TreasuryCapitalB,
	})

	// --- WebSocket hub ---
	wsHub := service.NewWSHub()
	go wsHub.Run()

	// --- Service ---
	limiter := ratelimit.New(cfg.RateLimitPerMinute)
	svc := service.NewService(pool, journal, limiter, wsHub,
		cfg.TargetRatio, cfg.RebalanceTolerance, cfg.PriceTolerance())

	// --- Rebalance worker (optional example bot) ---
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if os.Getenv("REBALANCE_ENABLED") == "true" {
		worker := rebalance.NewWorker(pool, partner, journal,
			cfg.TargetRatio, cfg.RebalanceTolerance, cfg.PollInterval)
		go worker.Run(ctx)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pool-engine"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("pool-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down pool-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("pool-engine stopped")
}
