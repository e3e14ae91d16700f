package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/metrics"
	"github.com/newsclip/newscrawler/internal/news"
)

// fetchAndPersistDetail runs one detail task: cache lookup, fetch + extract
// on a miss, then an idempotent persist. A duplicate detail row is success.
func (r *Runner) fetchAndPersistDetail(ctx context.Context, article news.Article) error {
	detail, hit := r.cache.Get(article.URL)
	if hit {
		metrics.ObserveDetailCache("hit")
		r.logger.Debug("detail cache hit", zap.String("url", article.URL))
	} else {
		metrics.ObserveDetailCache("miss")
		fetched, err := r.source.FetchDetail(ctx, article.URL)
		if err != nil {
			return err
		}
		detail = fetched
		r.cache.Put(article.URL, detail)
	}

	if _, err := r.store.CreateDetail(ctx, article.ID, detail); err != nil {
		return err
	}
	metrics.IncDetailPersisted()
	return nil
}

// Backfill sweeps articles that were persisted without a detail record and
// retries them serially with a short delay. Detail fetches during the main
// run are fire-and-forget; this sweep is their retry mechanism, run once per
// crawl cycle.
func (r *Runner) Backfill(ctx context.Context) {
	articles, err := r.store.FindArticlesMissingDetail(ctx, r.cfg.BackfillLimit)
	if err != nil {
		r.logger.Warn("backfill query failed", zap.Error(err))
		return
	}
	if len(articles) == 0 {
		return
	}

	r.logger.Info("backfill sweep started", zap.Int("candidates", len(articles)))
	for i, article := range articles {
		if article.URL == "" {
			continue
		}
		if i > 0 {
			if err := pause(ctx, r.cfg.BackfillDelay); err != nil {
				return
			}
		}
		if err := r.fetchAndPersistDetail(ctx, article); err != nil {
			metrics.ObserveBackfillItem("error")
			r.logger.Warn("backfill item failed",
				zap.Int64("article_id", article.ID),
				zap.String("url", article.URL),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveBackfillItem("ok")
	}
}
