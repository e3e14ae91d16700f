// Package extract turns raw aggregator HTML into structured article records.
// All functions are pure: they never perform I/O and never panic past the
// package boundary.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsclip/newscrawler/internal/news"
)

const (
	// MinTitleLength discards items whose normalized title is shorter.
	MinTitleLength = 5

	// secondaryPassFloor triggers the broader selector pass when the primary
	// pass yields fewer items.
	secondaryPassFloor = 10
)

var articlePath = regexp.MustCompile(`/article/\d+`)

// Anchor texts that are UI chrome rather than headlines.
var listingDenyList = []string{
	"더보기",
	"더 보기",
	"로그인",
	"전체보기",
	"목록",
}

// ListingParser extracts article candidates from category listing pages.
type ListingParser struct {
	base *url.URL
}

// NewListingParser builds a parser that resolves relative links against
// baseURL.
func NewListingParser(baseURL string) (*ListingParser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &ListingParser{base: base}, nil
}

// Parse extracts up to cap listing items from one category page. Output
// contains no duplicate URLs and is sorted by publish date descending with
// discovery order preserved among ties. Malformed or empty HTML yields an
// empty slice, never an error.
func (p *ListingParser) Parse(html []byte, category string, cap int, now time.Time) []news.ListingItem {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	items := p.primaryPass(doc, category, seen, now)
	if len(items) < secondaryPassFloor {
		items = append(items, p.secondaryPass(doc, category, seen, now)...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	if cap > 0 && len(items) > cap {
		items = items[:cap]
	}
	return items
}

func (p *ListingParser) primaryPass(doc *goquery.Document, category string, seen map[string]struct{}, now time.Time) []news.ListingItem {
	var items []news.ListingItem
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := p.resolveArticleURL(href)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}

		text := CollapseWhitespace(a.Text())
		if text == "" || isChrome(text) {
			return
		}

		publishedAt := ParseDateToken(text, now)
		title := NormalizeTitle(text)
		if titleLength(title) < MinTitleLength {
			return
		}

		seen[link] = struct{}{}
		items = append(items, news.ListingItem{
			Title:       title,
			URL:         link,
			ImageURL:    nearbyImage(a, p.base),
			Summary:     title,
			Category:    category,
			PublishedAt: publishedAt,
		})
	})
	return items
}

// secondaryPass widens the search to anchors nested in article and section
// containers, with lighter normalization. Runs only when the primary pass
// comes up short.
func (p *ListingParser) secondaryPass(doc *goquery.Document, category string, seen map[string]struct{}, now time.Time) []news.ListingItem {
	var items []news.ListingItem
	doc.Find("article a[href], section a[href], li a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := p.resolveArticleURL(href)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}

		title := CollapseWhitespace(a.Text())
		if titleLength(title) < MinTitleLength || isChrome(title) {
			return
		}

		seen[link] = struct{}{}
		items = append(items, news.ListingItem{
			Title:       title,
			URL:         link,
			Summary:     title,
			Category:    category,
			PublishedAt: ParseDateToken(title, now),
		})
	})
	return items
}

// resolveArticleURL returns the absolute form of href when it points at an
// article page, and "" otherwise.
func (p *ListingParser) resolveArticleURL(href string) string {
	if href == "" || !articlePath.MatchString(href) {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := p.base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func isChrome(text string) bool {
	for _, deny := range listingDenyList {
		if text == deny || strings.HasSuffix(text, " "+deny) {
			return true
		}
	}
	return false
}

// titleLength counts runes, not bytes; Korean headlines are multi-byte.
func titleLength(title string) int {
	return len([]rune(title))
}

func nearbyImage(a *goquery.Selection, base *url.URL) string {
	src, ok := a.Find("img").First().Attr("src")
	if !ok {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
