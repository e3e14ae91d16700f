package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsclip/newscrawler/internal/cache"
	"github.com/newsclip/newscrawler/internal/news"
)

type fakeSource struct {
	mu          sync.Mutex
	listings    map[string][]news.ListingItem
	listingErrs map[string]error
	details     map[string]news.Detail
	detailErrs  map[string]error
	detailCalls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings:    map[string][]news.ListingItem{},
		listingErrs: map[string]error{},
		details:     map[string]news.Detail{},
		detailErrs:  map[string]error{},
		detailCalls: map[string]int{},
	}
}

func (s *fakeSource) Name() string { return "뉴스클립" }

func (s *fakeSource) FetchListing(_ context.Context, category news.Category, _ int) ([]news.ListingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listingErrs[category.Name]; err != nil {
		return nil, err
	}
	return s.listings[category.Name], nil
}

func (s *fakeSource) FetchDetail(_ context.Context, url string) (news.Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls[url]++
	if err := s.detailErrs[url]; err != nil {
		return news.Detail{}, err
	}
	if d, ok := s.details[url]; ok {
		return d, nil
	}
	return news.Detail{Content: "본문 " + url, Author: "편집부", Source: "뉴스클립"}, nil
}

func (s *fakeSource) detailCallCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailCalls[url]
}

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	articles  map[string]news.Article // by url
	details   map[int64]news.Detail   // by article id
	logs      map[string]news.CrawlLog
	logOrder  []string
	existErr  error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles: map[string]news.Article{},
		details:  map[int64]news.Detail{},
		logs:     map[string]news.CrawlLog{},
	}
}

func (s *fakeStore) FindExistingURLs(_ context.Context, urls []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existErr != nil {
		return nil, s.existErr
	}
	var existing []string
	for _, url := range urls {
		if _, ok := s.articles[url]; ok {
			existing = append(existing, url)
		}
	}
	return existing, nil
}

func (s *fakeStore) CreateArticle(_ context.Context, item news.ListingItem, crawledAt time.Time) (*news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if _, ok := s.articles[item.URL]; ok {
		return nil, nil
	}
	s.nextID++
	article := news.Article{
		ID:          s.nextID,
		Title:       item.Title,
		URL:         item.URL,
		Summary:     item.Summary,
		Category:    item.Category,
		PublishedAt: item.PublishedAt,
		CrawledAt:   crawledAt,
	}
	s.articles[item.URL] = article
	return &article, nil
}

func (s *fakeStore) CreateDetail(_ context.Context, articleID int64, detail news.Detail) (*news.Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.details[articleID]; ok {
		return &existing, nil
	}
	s.nextID++
	detail.ID = s.nextID
	detail.ArticleID = articleID
	s.details[articleID] = detail
	return &detail, nil
}

func (s *fakeStore) FindArticlesMissingDetail(_ context.Context, limit int) ([]news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []news.Article
	for _, a := range s.articles {
		if _, ok := s.details[a.ID]; !ok {
			missing = append(missing, a)
		}
		if len(missing) == limit {
			break
		}
	}
	return missing, nil
}

func (s *fakeStore) CreateCrawlLog(_ context.Context, log news.CrawlLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.ID] = log
	s.logOrder = append(s.logOrder, log.ID)
	return nil
}

func (s *fakeStore) UpdateCrawlLog(_ context.Context, id string, status news.RunStatus, message string, itemCount int, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("log %s not found", id)
	}
	log.Status = status
	log.Message = message
	log.ItemCount = itemCount
	log.FinishedAt = &finishedAt
	log.DurationMs = finishedAt.Sub(log.StartedAt).Milliseconds()
	s.logs[id] = log
	return nil
}

func (s *fakeStore) LastCrawlLog(_ context.Context) (*news.CrawlLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logOrder) == 0 {
		return nil, nil
	}
	log := s.logs[s.logOrder[len(s.logOrder)-1]]
	return &log, nil
}

func (s *fakeStore) lastLog() news.CrawlLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[s.logOrder[len(s.logOrder)-1]]
}

func (s *fakeStore) detailCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.details)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

func item(url, title, category string) news.ListingItem {
	return news.ListingItem{Title: title, URL: url, Summary: title, Category: category, PublishedAt: time.Unix(1700000000, 0).UTC()}
}

func newTestRunner(cfg Config, source news.Source, store news.Store) *Runner {
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	return New(cfg, source, store, cache.NewTTL(time.Minute, clock), clock, &seqIDGen{}, zap.NewNop())
}

func TestRunner_Run_SuccessFlow(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listings["economy"] = []news.ListingItem{
		item("https://n/article/1", "금리 동결 전망 우세", "economy"),
		item("https://n/article/2", "반도체 수출 회복세", "economy"),
	}
	source.listings["politics"] = []news.ListingItem{
		item("https://n/article/3", "국회 본회의 처리 법안", "politics"),
	}

	store := newFakeStore()
	r := newTestRunner(Config{
		Categories: []news.Category{{Name: "economy"}, {Name: "politics"}},
	}, source, store)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, result.ItemCount)

	log := store.lastLog()
	require.Equal(t, news.RunStatusSuccess, log.Status)
	require.Equal(t, 3, log.ItemCount)
	require.NotNil(t, log.FinishedAt)

	// Every persisted article got a detail record.
	require.Equal(t, 3, store.detailCount())
}

func TestRunner_Run_DedupSkipsKnownURLs(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listings["economy"] = []news.ListingItem{
		item("https://n/article/1", "이미 저장된 기사 제목", "economy"),
		item("https://n/article/2", "이미 저장된 다른 기사", "economy"),
		item("https://n/article/3", "새로 발견된 기사 제목", "economy"),
	}

	store := newFakeStore()
	a1, err := store.CreateArticle(context.Background(), item("https://n/article/1", "이미 저장된 기사 제목", "economy"), time.Now())
	require.NoError(t, err)
	a2, err := store.CreateArticle(context.Background(), item("https://n/article/2", "이미 저장된 다른 기사", "economy"), time.Now())
	require.NoError(t, err)

	// Known articles already carry details so the backfill leaves them alone.
	_, err = store.CreateDetail(context.Background(), a1.ID, news.Detail{Content: "본문"})
	require.NoError(t, err)
	_, err = store.CreateDetail(context.Background(), a2.ID, news.Detail{Content: "본문"})
	require.NoError(t, err)

	r := newTestRunner(Config{Categories: []news.Category{{Name: "economy"}}}, source, store)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ItemCount)
	require.Equal(t, 1, source.detailCallCount("https://n/article/3"))
	require.Zero(t, source.detailCallCount("https://n/article/1"))
}

func TestRunner_Run_CategoryFailureIsContained(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listingErrs["economy"] = errors.New("listing fetch failed")
	source.listings["politics"] = []news.ListingItem{
		item("https://n/article/1", "국회 본회의 처리 법안", "politics"),
	}

	store := newFakeStore()
	r := newTestRunner(Config{
		Categories: []news.Category{{Name: "economy"}, {Name: "politics"}},
	}, source, store)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.ItemCount)
	require.Equal(t, news.RunStatusSuccess, store.lastLog().Status)
}

func TestRunner_Run_DetailFailureIsIsolated(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listings["economy"] = []news.ListingItem{
		item("https://n/article/1", "상세 수집이 실패할 기사", "economy"),
		item("https://n/article/2", "정상 수집되는 기사 제목", "economy"),
	}
	source.detailErrs["https://n/article/1"] = errors.New("detail fetch failed")

	store := newFakeStore()
	r := newTestRunner(Config{Categories: []news.Category{{Name: "economy"}}}, source, store)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.ItemCount)

	// Only the healthy article has a detail; the failed one is left for the
	// next run's backfill. (The in-run backfill already retried it once and
	// failed again here.)
	require.Equal(t, 1, store.detailCount())
}

func TestRunner_Run_StructuralFailureAbortsWithErrorStatus(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listings["economy"] = []news.ListingItem{
		item("https://n/article/1", "저장이 실패할 기사 제목", "economy"),
	}

	store := newFakeStore()
	store.createErr = errors.New("store unreachable")

	r := newTestRunner(Config{Categories: []news.Category{{Name: "economy"}}}, source, store)

	_, err := r.Run(context.Background())
	require.Error(t, err)

	log := store.lastLog()
	require.Equal(t, news.RunStatusError, log.Status)
	require.Contains(t, log.Message, "store unreachable")
}

func TestRunner_Run_SkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	r := newTestRunner(Config{Categories: []news.Category{{Name: "economy"}}}, source, store)

	r.running.Store(true)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	r.running.Store(false)
	_, err = r.Run(context.Background())
	require.NoError(t, err)
}

func TestRunner_Run_ExistenceQueryFailureFallsBackToConstraint(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.listings["economy"] = []news.ListingItem{
		item("https://n/article/1", "이미 저장된 기사 제목", "economy"),
		item("https://n/article/2", "새로 발견된 기사 제목", "economy"),
	}

	store := newFakeStore()
	_, err := store.CreateArticle(context.Background(), item("https://n/article/1", "이미 저장된 기사 제목", "economy"), time.Now())
	require.NoError(t, err)
	store.existErr = errors.New("query failed")

	r := newTestRunner(Config{Categories: []news.Category{{Name: "economy"}}}, source, store)

	// All candidates are treated as new; the duplicate insert is a no-op at
	// the store, so only the genuinely new article counts.
	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ItemCount)
}

func TestRunner_Backfill_CreatesMissingDetailsOnce(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()

	article, err := store.CreateArticle(context.Background(), item("https://n/article/9", "상세가 없는 기사 제목", "economy"), time.Now())
	require.NoError(t, err)
	require.NotNil(t, article)

	r := newTestRunner(Config{Categories: nil, BackfillLimit: 10}, source, store)

	r.Backfill(context.Background())
	require.Equal(t, 1, store.detailCount())

	// A second sweep finds nothing missing and creates no duplicates.
	r.Backfill(context.Background())
	require.Equal(t, 1, store.detailCount())
	require.Equal(t, 1, source.detailCallCount("https://n/article/9"))
}

func TestRunner_DetailCache_AvoidsSecondFetchWithinTTL(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	r := newTestRunner(Config{}, source, store)

	a1, err := store.CreateArticle(context.Background(), item("https://n/article/5", "같은 주소를 공유하는 기사", "economy"), time.Now())
	require.NoError(t, err)

	require.NoError(t, r.fetchAndPersistDetail(context.Background(), *a1))
	require.NoError(t, r.fetchAndPersistDetail(context.Background(), *a1))

	require.Equal(t, 1, source.detailCallCount("https://n/article/5"))
	require.Equal(t, 1, store.detailCount())
}
