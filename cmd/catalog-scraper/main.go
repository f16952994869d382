package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/catalog-scraper/internal/api"
	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/events"
	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/pipeline"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/session"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/maltedev/catalog-scraper/internal/verify"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Setup context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("run interrupted")
			return
		}
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	rl, err := runlog.New(cfg.Output.BaseDir, logger)
	if err != nil {
		return err
	}
	logger.Info("run started", "run_id", rl.ID, "timestamp", rl.Timestamp)

	m := metrics.New()

	// Browser session
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.PageLoadTimeout = cfg.Browser.PageLoadTimeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	if cfg.Browser.UserAgent != "" {
		opts.UserAgent = cfg.Browser.UserAgent
	}
	sessions := session.NewManager(session.PlaywrightLauncher{}, *opts, cfg.Browser.RecycleSettle, logger)
	sessions.KeepImagesOnRecycle(!cfg.Browser.RecycleDisableImages)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	// Sinks
	excel := storage.NewExcelSink(cfg.Output.Path, logger)
	agg := storage.NewAggregator(excel, m, logger)

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database, continuing without it", "error", err)
		} else {
			defer db.Close()
			store := database.NewRecordStore(db, rl.ID, logger)
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Error("failed to prepare database schema, continuing without it", "error", err)
			} else {
				agg.AddSink(store)
			}
		}
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis, continuing without it", "error", err)
		} else {
			agg.AddSink(events.NewPublisher(redisClient, cfg.Redis.Stream, rl.ID, logger))
		}
	}

	// Scrapers
	sel := scraper.DefaultSelectors()
	scrOpts := scraper.Options{
		WaitTimeout:   cfg.Scraper.WaitTimeout,
		PollInterval:  cfg.Scraper.PollInterval,
		SettleDelay:   cfg.Scraper.SettleDelay,
		LoadMorePause: cfg.Scraper.LoadMorePause,
		StarThreshold: cfg.Scraper.StarThreshold,
		OriginMarker:  cfg.Scraper.OriginMarker,
	}
	listing := scraper.NewListingPaginator(rl, sel, scrOpts, m, logger)
	extractor := scraper.NewProductExtractor(rl, sel, scrOpts, m, logger)
	verifier := verify.NewEngine(rl, verify.Options{
		Threshold:   cfg.Scraper.FuzzyThreshold,
		Settle:      cfg.Scraper.SettleDelay,
		WaitTimeout: cfg.Scraper.WaitTimeout,
	}, logger)

	runner := pipeline.New(rl, sessions, verifier, listing, extractor, agg, pipeline.Options{
		EntryURL:         cfg.Catalog.EntryURL,
		CategoryURL:      cfg.Catalog.CategoryURL,
		MenuSelector:     cfg.Catalog.MenuSelector,
		CategorySelector: cfg.Catalog.CategorySelector,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		WaitTimeout:      cfg.Scraper.WaitTimeout,
		RecycleEvery:     cfg.Scraper.RecycleEvery,
		OutputPath:       cfg.Output.Path,
	}, m, logger)
	if cfg.Scraper.PaceMax > 0 {
		runner.SetPacer(ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.PaceMin, cfg.Scraper.PaceMax))
	}

	// Optional status server
	if cfg.Server.Addr != "" {
		handlers := api.NewHandlers(runner, m.Handler(), logger)
		server := api.NewServer(cfg.Server.Addr, handlers.Router(), cfg.Server.ShutdownTimeout, logger)

		serverCtx, cancelServer := context.WithCancel(context.Background())
		defer cancelServer()
		go func() {
			if err := server.ListenAndServe(serverCtx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	err = runner.Run(ctx)

	stats := runner.Snapshot()
	logger.Info("run finished",
		"run_id", stats.RunID,
		"links", stats.Links,
		"records", stats.Records,
		"dropped", stats.Dropped,
		"navigation_failures", stats.NavigationFailures,
		"recycles", stats.Recycles)

	return err
}
