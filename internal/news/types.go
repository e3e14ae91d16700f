// Package news defines core types shared across subsystems.
package news

import "time"

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the crawl log.
const (
	RunStatusStarted RunStatus = "started"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// ListingItem is an article candidate extracted from a category listing page.
// It is ephemeral: items only become Articles after passing the dedup filter.
type ListingItem struct {
	Title       string
	URL         string
	ImageURL    string
	Summary     string
	Category    string
	PublishedAt time.Time
}

// Article is the persisted main record. Identity is the URL, which carries a
// uniqueness constraint in the store.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Summary     string    `json:"summary"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// Detail is the persisted full-text record, at most one per Article.
// Engagement counters are zero when the origin site does not expose them;
// they are never synthesized.
type Detail struct {
	ID           int64    `json:"id"`
	ArticleID    int64    `json:"article_id"`
	Content      string   `json:"content"`
	Author       string   `json:"author"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags,omitempty"`
	ViewCount    int      `json:"view_count"`
	LikeCount    int      `json:"like_count"`
	CommentCount int      `json:"comment_count"`
}

// CrawlLog brackets one crawl run with a started/terminal status pair.
type CrawlLog struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Message    string     `json:"message,omitempty"`
	ItemCount  int        `json:"item_count"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// RunResult is returned to the caller of a crawl run.
type RunResult struct {
	Success   bool `json:"success"`
	ItemCount int  `json:"item_count"`
}

// Category names one listing feed to crawl.
type Category struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}
