// Package site implements news.Source for an aggregator site: it pairs the
// page fetcher with the extraction heuristics for listing and detail pages.
package site

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/extract"
	"github.com/newsclip/newscrawler/internal/metrics"
	"github.com/newsclip/newscrawler/internal/news"
)

// Config identifies the site and tunes the thin-body retry.
type Config struct {
	Name            string
	BaseURL         string
	ThinBodyRetries int
	RetryBaseDelay  time.Duration
}

// Site crawls one aggregator. Other sources implement news.Source the same
// way and plug into the orchestrator unchanged.
type Site struct {
	cfg     Config
	fetcher news.Fetcher
	clock   news.Clock
	listing *extract.ListingParser
	detail  *extract.DetailParser
	logger  *zap.Logger
}

// New wires a Site from its collaborators.
func New(cfg Config, fetcher news.Fetcher, clock news.Clock, logger *zap.Logger) (*Site, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("site base url is required")
	}
	listing, err := extract.NewListingParser(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("listing parser: %w", err)
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Site{
		cfg:     cfg,
		fetcher: fetcher,
		clock:   clock,
		listing: listing,
		detail:  extract.NewDetailParser(cfg.Name),
		logger:  logger,
	}, nil
}

// Name identifies the source in logs and as the default outlet.
func (s *Site) Name() string {
	return s.cfg.Name
}

// FetchListing retrieves one category page and extracts up to cap items.
func (s *Site) FetchListing(ctx context.Context, category news.Category, cap int) ([]news.ListingItem, error) {
	start := time.Now()
	body, err := s.fetcher.Fetch(ctx, category.URL)
	metrics.ObserveFetch("listing", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", category.Name, err)
	}

	items := s.listing.Parse(body, category.Name, cap, s.clock.Now())
	s.logger.Debug("listing parsed",
		zap.String("category", category.Name),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// FetchDetail retrieves one article page and runs the detail pipeline.
// Implausibly short bodies are refetched with an increasing backoff before
// parsing; parse failures degrade into the placeholder shape inside the
// extractor, so only fetch failures surface as errors.
func (s *Site) FetchDetail(ctx context.Context, url string) (news.Detail, error) {
	var body []byte
	attempts := s.cfg.ThinBodyRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.logger.Debug("thin detail body, refetching",
				zap.String("url", url),
				zap.Int("attempt", attempt),
			)
			if err := pause(ctx, time.Duration(attempt)*s.cfg.RetryBaseDelay); err != nil {
				return news.Detail{}, err
			}
		}

		start := time.Now()
		fetched, err := s.fetcher.Fetch(ctx, url)
		metrics.ObserveFetch("detail", time.Since(start))
		if err != nil {
			// Keep an earlier thin body over a failed refetch.
			if body != nil {
				break
			}
			if attempt+1 < attempts {
				continue
			}
			return news.Detail{}, fmt.Errorf("fetch detail %s: %w", url, err)
		}

		body = fetched
		if extract.VisibleTextLength(body) >= extract.ThinBodyThreshold {
			break
		}
	}

	if body == nil {
		return news.Detail{}, fmt.Errorf("fetch detail %s: no usable body", url)
	}
	return s.detail.Parse(body, url), nil
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
