// Package main wires together the news crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/api"
	"github.com/newsclip/newscrawler/internal/cache"
	"github.com/newsclip/newscrawler/internal/clock/system"
	"github.com/newsclip/newscrawler/internal/config"
	collyfetcher "github.com/newsclip/newscrawler/internal/fetcher/colly"
	"github.com/newsclip/newscrawler/internal/id/uuid"
	"github.com/newsclip/newscrawler/internal/logging"
	"github.com/newsclip/newscrawler/internal/runner"
	"github.com/newsclip/newscrawler/internal/site"
	"github.com/newsclip/newscrawler/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single crawl and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, once bool) error {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	source, err := site.New(site.Config{
		Name:            cfg.Site.Name,
		BaseURL:         cfg.Site.BaseURL,
		ThinBodyRetries: cfg.Detail.ThinBodyRetries,
		RetryBaseDelay:  cfg.RetryBaseDelay(),
	}, fetcher, clock, logger)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	crawlRunner := runner.New(runner.Config{
		Categories:        cfg.Site.Categories,
		CategoryCap:       cfg.Crawl.CategoryCap,
		CategoryDelay:     cfg.CategoryDelay(),
		DetailConcurrency: cfg.Detail.Concurrency,
		BackfillLimit:     cfg.Backfill.Limit,
		BackfillDelay:     cfg.BackfillDelay(),
	}, source, store, cache.NewTTL(cfg.CacheTTL(), clock), clock, uuid.NewGenerator(), logger)

	if once {
		result, err := crawlRunner.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("crawl finished", zap.Int("item_count", result.ItemCount))
		return nil
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(crawlRunner, store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go schedule(ctx, crawlRunner, cfg.CrawlInterval(), logger)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// schedule triggers a run immediately and then on every tick. A tick landing
// while a run is still in flight is skipped.
func schedule(ctx context.Context, r *runner.Runner, interval time.Duration, logger *zap.Logger) {
	runOnce := func() {
		result, err := r.Run(ctx)
		switch {
		case errors.Is(err, runner.ErrAlreadyRunning):
			logger.Info("scheduled run skipped, previous run still in flight")
		case errors.Is(err, context.Canceled):
		case err != nil:
			logger.Error("scheduled run failed", zap.Error(err))
		default:
			logger.Info("scheduled run finished", zap.Int("item_count", result.ItemCount))
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
