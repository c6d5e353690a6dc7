package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"crossarb/internal/arbitrage"
	"crossarb/internal/cache"
	"crossarb/internal/config"
	"crossarb/internal/database"
	"crossarb/internal/exchange"
	"crossarb/internal/retry"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// an interrupt lets the current cycle finish and still prints the final portfolio
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, &cfg); err != nil {
		logger.Error("crossarb stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	names := cfg.EnabledExchanges()
	if len(names) < 2 {
		return fmt.Errorf("need at least two enabled exchanges, have %v", names)
	}
	clients := make([]exchange.ExchangeClient, 0, len(names))
	for _, name := range names {
		c, err := exchange.NewClient(name, logger, cfg.Exchanges[name])
		if err != nil {
			return err
		}
		clients = append(clients, c)
	}

	var repo database.Repository = database.NopRepository{}
	if cfg.Database.Enabled {
		pg, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		repo = pg
	}

	var rates cache.RateCache = cache.NewMemoryRateCache()
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisRateCache(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.RateTTL)
		if err != nil {
			return err
		}
		defer rc.Close()
		rates = rc
	}
	rateSource := arbitrage.NewRateSource(logger, rateClients(clients, cfg.Portfolio.RateVenue), rates)

	pairs, err := arbitrage.DiscoverPairs(ctx, logger, clients, cfg.Arbitrage.Pairs, cfg.Arbitrage.ExcludedCurrencies)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return errors.New("no pair is listed on two or more enabled exchanges")
	}
	for _, pv := range pairs {
		logger.Debug("arbitrable pair", "pair", pv.Pair.String(), "venues", pv.Venues)
	}

	engine := arbitrage.NewArbitrageEngine(logger, repo, cfg, clients, rateSource)
	tracker := arbitrage.NewPortfolioTracker(logger, clients,
		retry.Fixed(cfg.Arbitrage.BalanceAttempts, cfg.Arbitrage.BalanceRetryDelay), rateSource)
	scheduler := arbitrage.NewScheduler(logger, engine, tracker, cfg, pairs)

	logger.Info("starting", "exchanges", names, "pairs", len(pairs), "cycles", cfg.Arbitrage.Cycles,
		"execution_enabled", cfg.Arbitrage.Enabled)
	scheduler.Run(ctx)
	return nil
}

// rateClients puts the configured rate venue first.
func rateClients(clients []exchange.ExchangeClient, preferred string) []exchange.ExchangeClient {
	if preferred == "" {
		return clients
	}
	out := make([]exchange.ExchangeClient, 0, len(clients))
	for _, c := range clients {
		if c.GetName() == preferred {
			out = append(out, c)
		}
	}
	for _, c := range clients {
		if c.GetName() != preferred {
			out = append(out, c)
		}
	}
	return out
}
