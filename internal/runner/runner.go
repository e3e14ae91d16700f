// Package runner drives crawl runs: category listing fetches, dedup,
// persistence, concurrent detail tasks, and the backfill sweep.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/metrics"
	"github.com/newsclip/newscrawler/internal/news"
)

// ErrAlreadyRunning is returned when a trigger fires while a run is still in
// flight. Overlapping runs are skipped rather than queued.
var ErrAlreadyRunning = errors.New("crawl run already in progress")

// Config tunes one Runner.
type Config struct {
	Categories        []news.Category
	CategoryCap       int
	CategoryDelay     time.Duration
	DetailConcurrency int
	BackfillLimit     int
	BackfillDelay     time.Duration
}

// Runner is the crawl run orchestrator. One run at a time: idle -> running ->
// success | error.
type Runner struct {
	cfg     Config
	source  news.Source
	store   news.Store
	cache   news.DetailCache
	clock   news.Clock
	idGen   news.IDGenerator
	logger  *zap.Logger
	running atomic.Bool
}

// New wires a Runner from its collaborators.
func New(
	cfg Config,
	source news.Source,
	store news.Store,
	cache news.DetailCache,
	clock news.Clock,
	idGen news.IDGenerator,
	logger *zap.Logger,
) *Runner {
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 4
	}
	if cfg.CategoryCap <= 0 {
		cfg.CategoryCap = 25
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = 20
	}
	return &Runner{
		cfg:    cfg,
		source: source,
		store:  store,
		cache:  cache,
		clock:  clock,
		idGen:  idGen,
		logger: logger,
	}
}

// Run executes one crawl run to completion. Per-category and per-detail
// failures are contained; only structural failures (the store itself
// failing) abort the run, and those are recorded in the crawl log before
// being returned.
func (r *Runner) Run(ctx context.Context) (news.RunResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return news.RunResult{}, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	runID, err := r.idGen.NewID()
	if err != nil {
		return news.RunResult{}, fmt.Errorf("generate run id: %w", err)
	}

	startedAt := r.clock.Now()
	if err := r.store.CreateCrawlLog(ctx, news.CrawlLog{
		ID:        runID,
		Status:    news.RunStatusStarted,
		StartedAt: startedAt,
	}); err != nil {
		metrics.ObserveRun(string(news.RunStatusError))
		return news.RunResult{}, fmt.Errorf("create crawl log: %w", err)
	}

	r.logger.Info("crawl run started",
		zap.String("run_id", runID),
		zap.Int("categories", len(r.cfg.Categories)),
	)

	itemCount, err := r.crawl(ctx)
	if err != nil {
		return news.RunResult{}, r.fail(ctx, runID, itemCount, err)
	}

	if err := r.store.UpdateCrawlLog(ctx, runID, news.RunStatusSuccess, "", itemCount, r.clock.Now()); err != nil {
		return news.RunResult{}, r.fail(ctx, runID, itemCount, fmt.Errorf("close crawl log: %w", err))
	}

	metrics.ObserveRun(string(news.RunStatusSuccess))
	r.logger.Info("crawl run finished",
		zap.String("run_id", runID),
		zap.Int("item_count", itemCount),
		zap.Duration("elapsed", r.clock.Now().Sub(startedAt)),
	)
	return news.RunResult{Success: true, ItemCount: itemCount}, nil
}

// crawl performs the category sweep, dedup, persistence, detail fan-out, and
// backfill. It returns the number of newly persisted articles.
func (r *Runner) crawl(ctx context.Context) (int, error) {
	items := r.collectListings(ctx)
	fresh := r.dedup(ctx, items)

	articles, err := r.persistArticles(ctx, fresh)
	if err != nil {
		return len(articles), err
	}
	metrics.AddArticles(len(articles))

	r.runDetailTasks(ctx, articles)
	r.Backfill(ctx)

	return len(articles), nil
}

// collectListings walks the configured categories in order with the
// mandatory inter-category delay. A failing category is logged and skipped;
// it never aborts the run.
func (r *Runner) collectListings(ctx context.Context) []news.ListingItem {
	var items []news.ListingItem
	for i, category := range r.cfg.Categories {
		if i > 0 {
			if err := pause(ctx, r.cfg.CategoryDelay); err != nil {
				return items
			}
		}
		collected, err := r.source.FetchListing(ctx, category, r.cfg.CategoryCap)
		if err != nil {
			metrics.IncCategoryFailure()
			r.logger.Warn("category crawl failed, skipping",
				zap.String("category", category.Name),
				zap.Error(err),
			)
			continue
		}
		items = append(items, collected...)
	}
	return items
}

// dedup drops items whose URL is already stored, using one batched existence
// query for the whole run. A store failure yields an empty known-set: every
// candidate is treated as new and the URL uniqueness constraint backstops
// the writes.
func (r *Runner) dedup(ctx context.Context, items []news.ListingItem) []news.ListingItem {
	if len(items) == 0 {
		return nil
	}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.URL)
	}

	existing, err := r.store.FindExistingURLs(ctx, urls)
	if err != nil {
		r.logger.Warn("existence query failed, relying on uniqueness constraint", zap.Error(err))
		existing = nil
	}

	known := make(map[string]struct{}, len(existing))
	for _, url := range existing {
		known[url] = struct{}{}
	}

	fresh := items[:0]
	for _, item := range items {
		if _, ok := known[item.URL]; ok {
			continue
		}
		known[item.URL] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}

// persistArticles writes the main records. A duplicate URL (race with a
// concurrent writer) comes back as nil and is skipped; any other store error
// is structural and aborts the run.
func (r *Runner) persistArticles(ctx context.Context, items []news.ListingItem) ([]news.Article, error) {
	crawledAt := r.clock.Now()
	articles := make([]news.Article, 0, len(items))
	for _, item := range items {
		article, err := r.store.CreateArticle(ctx, item, crawledAt)
		if err != nil {
			return articles, fmt.Errorf("persist article %s: %w", item.URL, err)
		}
		if article == nil {
			r.logger.Debug("article already exists, skipping", zap.String("url", item.URL))
			continue
		}
		articles = append(articles, *article)
	}
	return articles, nil
}

// runDetailTasks fans the persisted articles out to a bounded pool and waits
// for every task to reach a terminal state. Task failures are collected as
// values and logged; none of them fails the run or cancels siblings.
func (r *Runner) runDetailTasks(ctx context.Context, articles []news.Article) {
	if len(articles) == 0 {
		return
	}

	type taskResult struct {
		url string
		err error
	}

	sem := make(chan struct{}, r.cfg.DetailConcurrency)
	results := make(chan taskResult, len(articles))
	var wg sync.WaitGroup

	for _, article := range articles {
		wg.Add(1)
		go func(a news.Article) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.DetailWorkerStarted()
			defer metrics.DetailWorkerFinished()

			results <- taskResult{url: a.URL, err: r.fetchAndPersistDetail(ctx, a)}
		}(article)
	}

	wg.Wait()
	close(results)

	failed := 0
	for res := range results {
		if res.err != nil {
			failed++
			r.logger.Warn("detail task failed", zap.String("url", res.url), zap.Error(res.err))
		}
	}
	if failed > 0 {
		r.logger.Info("detail tasks finished with failures",
			zap.Int("failed", failed),
			zap.Int("total", len(articles)),
		)
	}
}

func (r *Runner) fail(ctx context.Context, runID string, itemCount int, cause error) error {
	metrics.ObserveRun(string(news.RunStatusError))
	if err := r.store.UpdateCrawlLog(ctx, runID, news.RunStatusError, cause.Error(), itemCount, r.clock.Now()); err != nil {
		r.logger.Error("record run failure", zap.String("run_id", runID), zap.Error(err))
	}
	r.logger.Error("crawl run failed", zap.String("run_id", runID), zap.Error(cause))
	return cause
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
