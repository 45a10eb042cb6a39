package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
)

// fakeSource implements Source in memory and counts outbound calls.
type fakeSource struct {
	mu              sync.Mutex
	searchCalls     int
	pageCalls       int
	contentCalls    int
	lastSearchLimit int

	results    []grokipedia.SearchResult
	totalCount int
	searchErr  error

	pages    map[string]*grokipedia.PageDetail
	contents map[string]*grokipedia.ContentBody
	// failSlugs makes Content fail for specific slugs.
	failSlugs map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:     make(map[string]*grokipedia.PageDetail),
		contents:  make(map[string]*grokipedia.ContentBody),
		failSlugs: make(map[string]error),
	}
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]grokipedia.SearchResult, int, error) {
	f.mu.Lock()
	f.searchCalls++
	f.lastSearchLimit = limit
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.results, f.totalCount, nil
}

func (f *fakeSource) Page(ctx context.Context, slug string) (*grokipedia.PageDetail, error) {
	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()
	if p, ok := f.pages[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("page %q: %w", slug, grokipedia.ErrNotFound)
}

func (f *fakeSource) Content(ctx context.Context, slug string) (*grokipedia.ContentBody, error) {
	f.mu.Lock()
	f.contentCalls++
	f.mu.Unlock()
	if err, ok := f.failSlugs[slug]; ok {
		return nil, err
	}
	if c, ok := f.contents[slug]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("content %q: %w", slug, grokipedia.ErrNotFound)
}

func (f *fakeSource) calls() (search, page, content int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls, f.pageCalls, f.contentCalls
}

// seedResults fills the fake with n search results and matching content.
func (f *fakeSource) seedResults(n int) {
	for i := 0; i < n; i++ {
		slug := fmt.Sprintf("Page_%d", i)
		f.results = append(f.results, grokipedia.SearchResult{
			Slug:           slug,
			Title:          fmt.Sprintf("Page %d", i),
			Snippet:        fmt.Sprintf("snippet %d", i),
			RelevanceScore: 1.0 - float64(i)/10,
		})
		f.contents[slug] = &grokipedia.ContentBody{
			Slug: slug,
			Text: fmt.Sprintf("full text of page %d", i),
		}
	}
	f.totalCount = n
}

func newTestDispatcher(src Source, opts ...Option) *Dispatcher {
	logger := log.New(io.Discard, "", 0)
	return New(src, logger, opts...)
}

func TestQuery_InvalidMode(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(src)

	_, err := d.Query(context.Background(), Request{Query: "x", Mode: "browse"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if s, p, c := src.calls(); s+p+c != 0 {
		t.Errorf("expected zero outbound calls, got search=%d page=%d content=%d", s, p, c)
	}
}

func TestQuery_MissingSlug(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(src)

	for _, mode := range []Mode{ModePage, ModeContent} {
		_, err := d.Query(context.Background(), Request{Mode: mode})
		if !errors.Is(err, ErrMissingSlug) {
			t.Errorf("mode %s: expected ErrMissingSlug, got %v", mode, err)
		}
	}
	if s, p, c := src.calls(); s+p+c != 0 {
		t.Errorf("expected zero outbound calls, got search=%d page=%d content=%d", s, p, c)
	}
}

func TestQuery_MissingQuery(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(src)

	for _, mode := range []Mode{ModeSmart, ModeSearch} {
		_, err := d.Query(context.Background(), Request{Mode: mode})
		if !errors.Is(err, ErrMissingQuery) {
			t.Errorf("mode %s: expected ErrMissingQuery, got %v", mode, err)
		}
	}
	if s, _, _ := src.calls(); s != 0 {
		t.Errorf("expected zero search calls, got %d", s)
	}
}

func TestQuery_EmptyModeDefaultsToSmart(t *testing.T) {
	src := newFakeSource()
	src.seedResults(3)
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Query: "Albert Einstein"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Mode != ModeSmart {
		t.Errorf("expected smart mode, got %s", resp.Mode)
	}
	if len(resp.Combined) != DefaultLimit {
		t.Errorf("expected %d combined items, got %d", DefaultLimit, len(resp.Combined))
	}
	for i, item := range resp.Combined {
		if item.Content == nil || item.Content.Text == "" {
			t.Errorf("item %d: expected non-empty content text", i)
		}
	}
}

func TestQuery_SearchTruncatesToLimit(t *testing.T) {
	src := newFakeSource()
	src.seedResults(5)
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch, Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	for i, r := range resp.Results {
		want := fmt.Sprintf("Page_%d", i)
		if r.Slug != want {
			t.Errorf("result %d: expected %s, got %s (order not preserved)", i, want, r.Slug)
		}
	}
	if resp.TotalCount != 5 {
		t.Errorf("expected totalCount 5, got %d", resp.TotalCount)
	}
}

func TestQuery_SearchUpstreamError(t *testing.T) {
	src := newFakeSource()
	src.searchErr = fmt.Errorf("search: %w", grokipedia.ErrUnavailable)
	d := newTestDispatcher(src)

	_, err := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch})
	if !errors.Is(err, grokipedia.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestQuery_Page(t *testing.T) {
	src := newFakeSource()
	src.pages["Albert_Einstein"] = &grokipedia.PageDetail{
		Slug:      "Albert_Einstein",
		Title:     "Albert Einstein",
		Metadata:  map[string]string{"title": "Albert Einstein"},
		Citations: []grokipedia.Citation{{ID: "1", Title: "ref", URL: "u"}},
	}
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Mode: ModePage, Slug: "Albert_Einstein"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Page == nil {
		t.Fatal("expected page detail")
	}
	if resp.Page.Metadata["title"] == "" {
		t.Error("expected metadata title")
	}
	if len(resp.Page.Citations) == 0 {
		t.Error("expected citations")
	}
	if s, p, c := src.calls(); s != 0 || p != 1 || c != 0 {
		t.Errorf("expected exactly one page call, got search=%d page=%d content=%d", s, p, c)
	}
}

func TestQuery_PageNotFound(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(src)

	_, err := d.Query(context.Background(), Request{Mode: ModePage, Slug: "No_Such"})
	if !errors.Is(err, grokipedia.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuery_Content(t *testing.T) {
	src := newFakeSource()
	src.contents["A"] = &grokipedia.ContentBody{Slug: "A", Text: "plain text"}
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Mode: ModeContent, Slug: "A"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Content == nil || resp.Content.Text != "plain text" {
		t.Errorf("unexpected content %+v", resp.Content)
	}
}

func TestQuery_SmartFanOut(t *testing.T) {
	src := newFakeSource()
	src.seedResults(5)
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Query: "x", Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	s, _, c := src.calls()
	if s != 1 {
		t.Errorf("expected exactly 1 search call, got %d", s)
	}
	if c != 3 {
		t.Errorf("expected exactly 3 content calls, got %d", c)
	}
	if len(resp.Combined) != 3 {
		t.Fatalf("expected 3 combined items, got %d", len(resp.Combined))
	}
	for i, item := range resp.Combined {
		want := fmt.Sprintf("Page_%d", i)
		if item.Slug != want {
			t.Errorf("item %d: expected %s, got %s (search order not preserved)", i, want, item.Slug)
		}
	}
	if resp.Showing != 3 || resp.TotalCount != 5 {
		t.Errorf("expected showing=3 totalCount=5, got showing=%d totalCount=%d", resp.Showing, resp.TotalCount)
	}
}

func TestQuery_SmartPartialFailure(t *testing.T) {
	src := newFakeSource()
	src.seedResults(3)
	src.failSlugs["Page_1"] = fmt.Errorf("content: %w", grokipedia.ErrRateLimited)
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Query: "x", Limit: 3})
	if err != nil {
		t.Fatalf("expected partial success, got error %v", err)
	}
	if len(resp.Combined) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Combined))
	}

	// The failed item keeps its search result and carries an error marker.
	failed := resp.Combined[1]
	if failed.Content != nil {
		t.Error("failed item should have no content")
	}
	if failed.Err == "" {
		t.Error("failed item should carry an error marker")
	}
	if failed.Title != "Page 1" || failed.Snippet == "" {
		t.Errorf("failed item lost its search result: %+v", failed.SearchResult)
	}

	// The neighbors are unaffected.
	if resp.Combined[0].Content == nil || resp.Combined[2].Content == nil {
		t.Error("successful items should have content")
	}
}

func TestQuery_SmartNoResults(t *testing.T) {
	src := newFakeSource()
	d := newTestDispatcher(src)

	resp, err := d.Query(context.Background(), Request{Query: "nothing matches this"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Combined) != 0 {
		t.Errorf("expected no items, got %d", len(resp.Combined))
	}
	if _, _, c := src.calls(); c != 0 {
		t.Errorf("expected no content calls for empty search, got %d", c)
	}
}

func TestQuery_LimitClamping(t *testing.T) {
	src := newFakeSource()
	src.seedResults(MaxLimit + 5)
	d := newTestDispatcher(src)

	// Above max: clamped down.
	resp, err := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch, Limit: 50})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Results) != MaxLimit {
		t.Errorf("expected clamp to %d, got %d", MaxLimit, len(resp.Results))
	}

	// Non-positive: falls back to the default.
	resp, err = d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch, Limit: -1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Results) != DefaultLimit {
		t.Errorf("expected default %d, got %d", DefaultLimit, len(resp.Results))
	}
}

func TestQuery_NilLoggerNoPanic(t *testing.T) {
	src := newFakeSource()
	src.seedResults(2)
	src.failSlugs["Page_1"] = fmt.Errorf("content: %w", grokipedia.ErrUnavailable)
	d := New(src, nil)

	// The per-item failure path logs; a nil logger must not panic.
	resp, err := d.Query(context.Background(), Request{Query: "x", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Combined[1].Err == "" {
		t.Error("failed item should carry an error marker")
	}
}

func TestQuery_FetchCoversConfiguredLimit(t *testing.T) {
	src := newFakeSource()
	src.seedResults(20)
	d := newTestDispatcher(src, WithLimits(2, 20))

	resp, err := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch, Limit: 15})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Results) != 15 {
		t.Errorf("expected 15 results, got %d", len(resp.Results))
	}
	src.mu.Lock()
	fetched := src.lastSearchLimit
	src.mu.Unlock()
	if fetched < 15 {
		t.Errorf("search fetch %d cannot serve a limit of 15", fetched)
	}

	// Small limits keep the wider fetch so totalCount stays meaningful.
	if _, err := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch, Limit: 2}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	src.mu.Lock()
	fetched = src.lastSearchLimit
	src.mu.Unlock()
	if fetched != 11 {
		t.Errorf("expected minimum fetch of 11, got %d", fetched)
	}
}

func TestQuery_LimitFunc(t *testing.T) {
	src := newFakeSource()
	src.seedResults(8)

	def, max := 1, 2
	d := newTestDispatcher(src, WithLimitFunc(func() (int, int) { return def, max }))

	resp, _ := d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch})
	if len(resp.Results) != 1 {
		t.Errorf("expected 1 result with def=1, got %d", len(resp.Results))
	}

	// Swap limits at runtime, as the config watcher does.
	def, max = 4, 6
	resp, _ = d.Query(context.Background(), Request{Query: "x", Mode: ModeSearch})
	if len(resp.Results) != 4 {
		t.Errorf("expected 4 results after limit swap, got %d", len(resp.Results))
	}
}
