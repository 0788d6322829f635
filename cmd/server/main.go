package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/oddsboard/market-engine/internal/config"
	"github.com/oddsboard/market-engine/internal/limits"
	"github.com/oddsboard/market-engine/internal/metrics"
	"github.com/oddsboard/market-engine/internal/odds"
	"github.com/oddsboard/market-engine/internal/pricing"
	"github.com/oddsboard/market-engine/internal/store"
	"github.com/oddsboard/market-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store initialization failed", "store", cfg.StoreKind(), "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Pricing ---
	updater, err := pricing.New(cfg.PricingStrategy, cfg.LMSRLiquidity)
	if err != nil {
		slog.Error("pricing strategy", "err", err)
		os.Exit(1)
	}
	pricingInfo := pricing.Describe(updater)
	if pricingInfo.MaxLoss != nil {
		metrics.MarketMakerMaxLoss.Set(pricingInfo.MaxLoss.InexactFloat64())
		slog.Info("pricing configured",
			"strategy", pricingInfo.Strategy,
			"liquidity", pricingInfo.Liquidity.String(),
			"max_loss_per_market", pricingInfo.MaxLoss.String(),
		)
	} else {
		slog.Info("pricing configured", "strategy", pricingInfo.Strategy)
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run(ctx)

	// --- Trade service ---
	tradeSvc := trade.NewService(st, odds.NewEngine(updater), trade.Options{
		StartingBalance: cfg.StartingBalance,
		Limiter:         limits.NewPositionLimiter(cfg.MaxPerMarket, cfg.MaxTotal),
		Hub:             wsHub,
	})
	if err := tradeSvc.SyncMetrics(ctx); err != nil {
		slog.Warn("could not initialise market gauges", "err", err)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"service": "market-engine",
			"store":   cfg.StoreKind(),
			"pricing": pricingInfo,
		})
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", trade.NewHandler(tradeSvc, wsHub).Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", cfg.Port, "store", cfg.StoreKind())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}

// openStore selects PostgreSQL (optionally behind Redis), SQLite, or the
// in-memory store from cfg. The returned funcs release resources.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, []func(), error) {
	var cleanup []func()

	switch cfg.StoreKind() {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		var st store.Store = pg
		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
		return st, cleanup, nil

	case "sqlite":
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { s.Close() })
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
		return s, cleanup, nil
	}

	slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
	return store.NewMemoryStore(), cleanup, nil
}
