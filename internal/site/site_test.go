package site

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/news"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][][]byte
	err    error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string][][]byte{}, calls: map[string]int{}}
}

// Fetch pops queued bodies per URL; the last body repeats.
func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.err != nil {
		return nil, f.err
	}
	queue := f.bodies[url]
	if len(queue) == 0 {
		return nil, errors.New("no body queued")
	}
	body := queue[0]
	if len(queue) > 1 {
		f.bodies[url] = queue[1:]
	}
	return body, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestSite(t *testing.T, fetcher news.Fetcher) *Site {
	t.Helper()
	s, err := New(Config{
		Name:            "뉴스클립",
		BaseURL:         "https://news.example.co.kr",
		ThinBodyRetries: 2,
		RetryBaseDelay:  time.Millisecond,
	}, fetcher, fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func thickArticle(text string) []byte {
	return []byte(`<html><body><div id="articleBody"><p>` + strings.Repeat(text+" ", 30) + `</p></div></body></html>`)
}

func TestSite_FetchListing(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["https://news.example.co.kr/economy"] = [][]byte{[]byte(`
		<html><body><a href="/article/1">금리 동결 전망 우세</a></body></html>`)}

	s := newTestSite(t, fetcher)

	items, err := s.FetchListing(context.Background(), news.Category{Name: "economy", URL: "https://news.example.co.kr/economy"}, 25)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://news.example.co.kr/article/1", items[0].URL)
}

func TestSite_FetchListing_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.err = errors.New("boom")

	s := newTestSite(t, fetcher)
	_, err := s.FetchListing(context.Background(), news.Category{Name: "economy", URL: "https://news.example.co.kr/economy"}, 25)
	require.Error(t, err)
}

func TestSite_FetchDetail_RetriesThinBody(t *testing.T) {
	t.Parallel()

	const url = "https://news.example.co.kr/article/1"
	fetcher := newFakeFetcher()
	fetcher.bodies[url] = [][]byte{
		[]byte(`<html><body><p>짧음</p></body></html>`),
		thickArticle("충분히 긴 기사 본문 문단이 이어진다."),
	}

	s := newTestSite(t, fetcher)
	detail, err := s.FetchDetail(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.callCount(url))
	require.Contains(t, detail.Content, "충분히 긴 기사 본문")
}

func TestSite_FetchDetail_ProceedsWithThinBodyWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	const url = "https://news.example.co.kr/article/2"
	fetcher := newFakeFetcher()
	fetcher.bodies[url] = [][]byte{[]byte(`<html><body><p>끝까지 짧은 본문입니다.</p></body></html>`)}

	s := newTestSite(t, fetcher)
	detail, err := s.FetchDetail(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.callCount(url))
	require.NotEmpty(t, detail.Content)
	require.NotEmpty(t, detail.Author)
	require.NotEmpty(t, detail.Source)
}

func TestSite_FetchDetail_FetchFailureSurfaces(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.err = errors.New("connection refused")

	s := newTestSite(t, fetcher)
	_, err := s.FetchDetail(context.Background(), "https://news.example.co.kr/article/3")
	require.Error(t, err)
}
