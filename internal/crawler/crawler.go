package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jumia-tools/phone-scraper/internal/fetcher"
	"github.com/jumia-tools/phone-scraper/internal/models"
	"github.com/jumia-tools/phone-scraper/internal/parser"
	"github.com/jumia-tools/phone-scraper/internal/queue"
)

// Store is the persistence gateway the engine hands valid records to.
type Store interface {
	UpsertProduct(ctx context.Context, p *models.Product) (int64, error)
}

type Config struct {
	StartURL      string
	AllowedDomain string
	Workers       int
}

// Stats counts per-item outcomes of one crawl run.
type Stats struct {
	PagesCrawled  int64 `json:"pages_crawled"`
	ProductsSaved int64 `json:"products_saved"`
	ItemsDropped  int64 `json:"items_dropped"`
	FetchErrors   int64 `json:"fetch_errors"`
}

// Engine drives the listing -> product -> next-page traversal over a frontier
// queue. The frontier owns all crawl state: discovered URLs are deduplicated
// here because the transport fetches whatever it is given.
type Engine struct {
	cfg      Config
	fetcher  fetcher.Fetcher
	parser   parser.Parser
	store    Store
	frontier queue.Queue
	logger   *slog.Logger

	mu      sync.Mutex
	seen    map[string]bool
	pending atomic.Int64

	pagesCrawled  atomic.Int64
	productsSaved atomic.Int64
	itemsDropped  atomic.Int64
	fetchErrors   atomic.Int64
}

func New(cfg Config, f fetcher.Fetcher, p parser.Parser, store Store, frontier queue.Queue, logger *slog.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  f,
		parser:   p,
		store:    store,
		frontier: frontier,
		logger:   logger.With("component", "crawler"),
		seen:     make(map[string]bool),
	}
}

// Run crawls from the configured start URL until the frontier drains or the
// context is cancelled. Item-level failures never stop the run.
func (e *Engine) Run(ctx context.Context) error {
	e.enqueue(e.cfg.StartURL, queue.KindListing)
	if e.pending.Load() == 0 {
		e.frontier.Close()
	}

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}
	wg.Wait()

	stats := e.Stats()
	e.logger.Info("crawl finished",
		"pages", stats.PagesCrawled,
		"saved", stats.ProductsSaved,
		"dropped", stats.ItemsDropped,
		"fetch_errors", stats.FetchErrors)

	return ctx.Err()
}

func (e *Engine) Stats() Stats {
	return Stats{
		PagesCrawled:  e.pagesCrawled.Load(),
		ProductsSaved: e.productsSaved.Load(),
		ItemsDropped:  e.itemsDropped.Load(),
		FetchErrors:   e.fetchErrors.Load(),
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		task, err := e.frontier.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				e.logger.Error("frontier pop failed", "error", err)
			}
			return
		}

		e.process(ctx, task)

		if e.pending.Add(-1) == 0 {
			e.frontier.Close()
		}
	}
}

func (e *Engine) process(ctx context.Context, task *queue.Task) {
	body, err := e.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		e.fetchErrors.Add(1)
		e.logger.Warn("fetch failed", "url", task.URL, "error", err)
		return
	}
	e.pagesCrawled.Add(1)

	switch task.Kind {
	case queue.KindListing:
		e.processListing(task.URL, body)
	case queue.KindProduct:
		e.processProduct(ctx, task.URL, body)
	default:
		e.logger.Warn("unknown task kind", "kind", task.Kind, "url", task.URL)
	}
}

func (e *Engine) processListing(pageURL, body string) {
	listing, err := e.parser.ParseListing(pageURL, body)
	if err != nil {
		e.logger.Warn("failed to parse listing", "url", pageURL, "error", err)
		return
	}

	for _, link := range listing.ProductLinks {
		e.enqueue(link, queue.KindProduct)
	}
	if listing.NextPage != "" {
		e.enqueue(listing.NextPage, queue.KindListing)
	}

	e.logger.Info("listing crawled",
		"url", pageURL,
		"products", len(listing.ProductLinks),
		"has_next", listing.NextPage != "")
}

func (e *Engine) processProduct(ctx context.Context, pageURL, body string) {
	product, err := e.parser.ParseProduct(pageURL, body)
	if err != nil {
		e.itemsDropped.Add(1)
		e.logger.Warn("failed to parse product", "url", pageURL, "error", err)
		return
	}

	if err := product.Validate(); err != nil {
		e.itemsDropped.Add(1)
		e.logger.Warn("dropping invalid product", "url", pageURL, "error", err)
		return
	}

	id, err := e.store.UpsertProduct(ctx, product)
	if err != nil {
		e.itemsDropped.Add(1)
		e.logger.Error("failed to persist product", "url", pageURL, "error", err)
		return
	}

	e.productsSaved.Add(1)
	e.logger.Info("product saved", "id", id, "title", truncate(product.Title, 50))
}

// enqueue adds a URL to the frontier unless it is off-domain or already seen.
func (e *Engine) enqueue(rawURL string, kind queue.Kind) {
	if !e.inDomain(rawURL) {
		e.logger.Debug("skipping off-domain link", "url", rawURL)
		return
	}

	e.mu.Lock()
	if e.seen[rawURL] {
		e.mu.Unlock()
		return
	}
	e.seen[rawURL] = true
	e.mu.Unlock()

	e.pending.Add(1)
	if err := e.frontier.Push(queue.NewTask(rawURL, kind)); err != nil {
		e.pending.Add(-1)
		e.logger.Warn("failed to enqueue", "url", rawURL, "error", err)
	}
}

func (e *Engine) inDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(e.cfg.AllowedDomain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
