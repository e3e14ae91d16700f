// Package postgres provides the Postgres-backed persistence store for
// articles, details, and crawl logs.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsclip/newscrawler/internal/news"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements news.Store on a pgx pool. Uniqueness constraints on
// articles.url and article_details.article_id back every write against
// concurrent writers.
type Store struct {
	pool pgxPool
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindExistingURLs resolves which of the candidate urls are already stored,
// with a single batched query.
func (s *Store) FindExistingURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT url FROM articles WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan existing url: %w", err)
		}
		existing = append(existing, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing urls: %w", err)
	}
	return existing, nil
}

// CreateArticle inserts a new article row. A concurrent writer landing the
// same URL first yields (nil, nil) instead of an error.
func (s *Store) CreateArticle(ctx context.Context, item news.ListingItem, crawledAt time.Time) (*news.Article, error) {
	const q = `
INSERT INTO articles (title, url, image_url, summary, category, published_at, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO NOTHING
RETURNING id`

	article := news.Article{
		Title:       item.Title,
		URL:         item.URL,
		ImageURL:    item.ImageURL,
		Summary:     item.Summary,
		Category:    item.Category,
		PublishedAt: item.PublishedAt,
		CrawledAt:   crawledAt,
	}
	err := s.pool.QueryRow(ctx, q,
		item.Title, item.URL, item.ImageURL, item.Summary, item.Category, item.PublishedAt, crawledAt,
	).Scan(&article.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}
	return &article, nil
}

// CreateDetail inserts the detail row for an article. Idempotent: when the
// row already exists the stored one is returned.
func (s *Store) CreateDetail(ctx context.Context, articleID int64, detail news.Detail) (*news.Detail, error) {
	const insert = `
INSERT INTO article_details (article_id, content, author, source, tags, view_count, like_count, comment_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (article_id) DO NOTHING
RETURNING id`

	detail.ArticleID = articleID
	err := s.pool.QueryRow(ctx, insert,
		articleID, detail.Content, detail.Author, detail.Source, detail.Tags,
		detail.ViewCount, detail.LikeCount, detail.CommentCount,
	).Scan(&detail.ID)
	if err == nil {
		return &detail, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert detail: %w", err)
	}

	// Lost the race (or the row predates us): return the existing record.
	const query = `
SELECT id, article_id, content, author, source, tags, view_count, like_count, comment_count
FROM article_details WHERE article_id = $1`

	var existing news.Detail
	err = s.pool.QueryRow(ctx, query, articleID).Scan(
		&existing.ID, &existing.ArticleID, &existing.Content, &existing.Author, &existing.Source,
		&existing.Tags, &existing.ViewCount, &existing.LikeCount, &existing.CommentCount,
	)
	if err != nil {
		return nil, fmt.Errorf("select existing detail: %w", err)
	}
	return &existing, nil
}

// FindArticlesMissingDetail lists articles without a detail row, most
// recently published first.
func (s *Store) FindArticlesMissingDetail(ctx context.Context, limit int) ([]news.Article, error) {
	const q = `
SELECT a.id, a.title, a.url, a.image_url, a.summary, a.category, a.published_at, a.crawled_at
FROM articles a
LEFT JOIN article_details d ON d.article_id = a.id
WHERE d.id IS NULL
ORDER BY a.published_at DESC
LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query articles missing detail: %w", err)
	}
	defer rows.Close()

	var articles []news.Article
	for rows.Next() {
		var a news.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.ImageURL, &a.Summary, &a.Category, &a.PublishedAt, &a.CrawledAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// CreateCrawlLog records the start of a run.
func (s *Store) CreateCrawlLog(ctx context.Context, log news.CrawlLog) error {
	const q = `
INSERT INTO crawl_logs (id, status, message, item_count, started_at)
VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, log.ID, string(log.Status), log.Message, log.ItemCount, log.StartedAt); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}
	return nil
}

// UpdateCrawlLog applies the single terminal update for a run. Duration is
// derived from the stored started_at so the two timestamps cannot drift.
func (s *Store) UpdateCrawlLog(ctx context.Context, id string, status news.RunStatus, message string, itemCount int, finishedAt time.Time) error {
	const q = `
UPDATE crawl_logs
SET status = $2,
    message = $3,
    item_count = $4,
    finished_at = $5,
    duration_ms = (EXTRACT(EPOCH FROM ($5::timestamptz - started_at)) * 1000)::bigint
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status), message, itemCount, finishedAt)
	if err != nil {
		return fmt.Errorf("update crawl log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crawl log %s not found", id)
	}
	return nil
}

// LastCrawlLog returns the most recently started run, or nil when none exist.
func (s *Store) LastCrawlLog(ctx context.Context) (*news.CrawlLog, error) {
	const q = `
SELECT id, status, message, item_count, started_at, finished_at, COALESCE(duration_ms, 0)
FROM crawl_logs
ORDER BY started_at DESC
LIMIT 1`

	var (
		log    news.CrawlLog
		status string
	)
	err := s.pool.QueryRow(ctx, q).Scan(
		&log.ID, &status, &log.Message, &log.ItemCount, &log.StartedAt, &log.FinishedAt, &log.DurationMs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last crawl log: %w", err)
	}
	log.Status = news.RunStatus(status)
	return &log, nil
}
