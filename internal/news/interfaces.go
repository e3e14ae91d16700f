package news

import (
	"context"
	"time"
)

// Store persists articles, details, and crawl logs.
//
// The store's uniqueness constraints on article URL and detail article_id are
// the authority for write races; callers never assume exclusive access.
type Store interface {
	// FindExistingURLs returns the subset of urls already stored, resolved
	// with a single batched query.
	FindExistingURLs(ctx context.Context, urls []string) ([]string, error)

	// CreateArticle inserts a new article. A duplicate URL yields (nil, nil)
	// rather than an error.
	CreateArticle(ctx context.Context, item ListingItem, crawledAt time.Time) (*Article, error)

	// CreateDetail inserts the detail row for an article. Idempotent: a
	// duplicate insert returns the existing row.
	CreateDetail(ctx context.Context, articleID int64, detail Detail) (*Detail, error)

	// FindArticlesMissingDetail lists articles without a detail row, most
	// recently published first.
	FindArticlesMissingDetail(ctx context.Context, limit int) ([]Article, error)

	CreateCrawlLog(ctx context.Context, log CrawlLog) error
	UpdateCrawlLog(ctx context.Context, id string, status RunStatus, message string, itemCount int, finishedAt time.Time) error
	LastCrawlLog(ctx context.Context) (*CrawlLog, error)
}

// Fetcher retrieves the raw HTML of a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source exposes the per-site crawl capabilities. New sources add an
// implementation; the orchestrator composes them via injection.
type Source interface {
	// Name identifies the source in logs and as the default outlet.
	Name() string

	// FetchListing returns up to cap listing items for one category.
	FetchListing(ctx context.Context, category Category, cap int) ([]ListingItem, error)

	// FetchDetail fetches and parses one article's detail page.
	FetchDetail(ctx context.Context, url string) (Detail, error)
}

// DetailCache holds recently extracted details keyed by URL. A miss always
// falls back to a real fetch; the cache is not a correctness mechanism.
type DetailCache interface {
	Get(url string) (Detail, bool)
	Put(url string, detail Detail)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
