package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumia-tools/phone-scraper/internal/models"
	"github.com/jumia-tools/phone-scraper/internal/parser"
	"github.com/jumia-tools/phone-scraper/internal/queue"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{
		pages:   pages,
		fetched: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetched[url]++
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected status 404 for %s", url)
	}
	return body, nil
}

type fakeStore struct {
	mu        sync.Mutex
	saved     []*models.Product
	failLinks map[string]bool
}

func (s *fakeStore) UpsertProduct(ctx context.Context, p *models.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLinks[p.Link] {
		return 0, fmt.Errorf("failed to persist %s: connection reset", p.Link)
	}
	s.saved = append(s.saved, p)
	return int64(len(s.saved)), nil
}

func (s *fakeStore) savedLinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := make([]string, 0, len(s.saved))
	for _, p := range s.saved {
		links = append(links, p.Link)
	}
	return links
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func productPage(title string) string {
	return fmt.Sprintf(`<html><body>
		<h1 class="-fs20">%s</h1>
		<div class="prc">KSh 10,000</div>
	</body></html>`, title)
}

func newTestEngine(t *testing.T, pages map[string]string, store Store) (*Engine, *fakeFetcher) {
	t.Helper()

	fetch := newFakeFetcher(pages)
	logger := discardLogger()
	engine := New(Config{
		StartURL:      "https://example.com/smartphones/",
		AllowedDomain: "example.com",
		Workers:       2,
	}, fetch, parser.NewJumiaParser(logger), store, queue.NewInMemoryQueue(), logger)

	return engine, fetch
}

func TestEngineTraversal(t *testing.T) {
	pages := map[string]string{
		"https://example.com/smartphones/": `<html><body>
			<article class="prd"><a class="core" href="/phone-a/"></a></article>
			<article class="prd"><a class="core" href="/phone-b/"></a></article>
			<article class="prd"><a class="core" href="https://other.com/phone-x/"></a></article>
			<a class="pg" aria-label="Next" href="/smartphones/?page=2"></a>
		</body></html>`,
		"https://example.com/smartphones/?page=2": `<html><body>
			<article class="prd"><a class="core" href="/phone-c/"></a></article>
			<article class="prd"><a class="core" href="/phone-a/"></a></article>
			<article class="prd"><a class="core" href="/phone-d/"></a></article>
		</body></html>`,
		"https://example.com/phone-a/": productPage("Phone A 4GB RAM 64GB ROM 4G"),
		"https://example.com/phone-b/": `<html><body><div class="prc">KSh 5,000</div></body></html>`,
		"https://example.com/phone-c/": productPage("Phone C 8GB RAM 128GB ROM 5G"),
		// phone-d is missing from the fixture map and fetches with an error
	}

	store := &fakeStore{failLinks: map[string]bool{
		"https://example.com/phone-c/": true,
	}}

	engine, fetch := newTestEngine(t, pages, store)
	require.NoError(t, engine.Run(context.Background()))

	// phone-a saved; phone-b dropped on validation; phone-c dropped on
	// persistence failure; phone-d failed to fetch; phone-x off-domain.
	assert.Equal(t, []string{"https://example.com/phone-a/"}, store.savedLinks())

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.ProductsSaved)
	assert.Equal(t, int64(2), stats.ItemsDropped)
	assert.Equal(t, int64(1), stats.FetchErrors)
	assert.Equal(t, int64(5), stats.PagesCrawled)

	fetch.mu.Lock()
	defer fetch.mu.Unlock()
	assert.Equal(t, 1, fetch.fetched["https://example.com/phone-a/"], "duplicate link fetched once")
	assert.Zero(t, fetch.fetched["https://other.com/phone-x/"], "off-domain link never fetched")
}

func TestEnginePersistenceFailureDoesNotStopCrawl(t *testing.T) {
	pages := map[string]string{
		"https://example.com/smartphones/": `<html><body>
			<article class="prd"><a class="core" href="/phone-a/"></a></article>
			<article class="prd"><a class="core" href="/phone-b/"></a></article>
		</body></html>`,
		"https://example.com/phone-a/": productPage("Phone A"),
		"https://example.com/phone-b/": productPage("Phone B"),
	}

	store := &fakeStore{failLinks: map[string]bool{
		"https://example.com/phone-a/": true,
	}}

	engine, _ := newTestEngine(t, pages, store)
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, []string{"https://example.com/phone-b/"}, store.savedLinks())
}

func TestEngineSubdomainAllowed(t *testing.T) {
	pages := map[string]string{
		"https://example.com/smartphones/": `<html><body>
			<article class="prd"><a class="core" href="https://www.example.com/phone-a/"></a></article>
		</body></html>`,
		"https://www.example.com/phone-a/": productPage("Phone A"),
	}

	store := &fakeStore{}
	engine, _ := newTestEngine(t, pages, store)
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, []string{"https://www.example.com/phone-a/"}, store.savedLinks())
}

func TestEngineCancelledContext(t *testing.T) {
	pages := map[string]string{
		"https://example.com/smartphones/": `<html><body></body></html>`,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, _ := newTestEngine(t, pages, &fakeStore{})
	err := engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineOffDomainStartURL(t *testing.T) {
	engine, fetch := newTestEngine(t, map[string]string{}, &fakeStore{})
	engine.cfg.StartURL = "https://other.com/smartphones/"

	require.NoError(t, engine.Run(context.Background()))

	fetch.mu.Lock()
	defer fetch.mu.Unlock()
	assert.Empty(t, fetch.fetched)
}
