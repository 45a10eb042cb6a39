package cache

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
)

// countingSource is a minimal dispatch.Source that counts calls.
type countingSource struct {
	searchCalls  int
	pageCalls    int
	contentCalls int
}

func (c *countingSource) Search(ctx context.Context, query string, limit int) ([]grokipedia.SearchResult, int, error) {
	c.searchCalls++
	return []grokipedia.SearchResult{{Slug: "A", Title: "A", Snippet: "s"}}, 1, nil
}

func (c *countingSource) Page(ctx context.Context, slug string) (*grokipedia.PageDetail, error) {
	c.pageCalls++
	return &grokipedia.PageDetail{Slug: slug, Title: "T", Metadata: map[string]string{"title": "T"}}, nil
}

func (c *countingSource) Content(ctx context.Context, slug string) (*grokipedia.ContentBody, error) {
	c.contentCalls++
	return &grokipedia.ContentBody{Slug: slug, Text: "text"}, nil
}

func newTestSource(t *testing.T) (*Source, *countingSource) {
	t.Helper()
	store := tempStore(t, time.Minute)
	inner := &countingSource{}
	return NewSource(inner, store, log.New(io.Discard, "", 0)), inner
}

func TestSource_SearchHitSkipsUpstream(t *testing.T) {
	src, inner := newTestSource(t)
	ctx := context.Background()

	results, total, err := src.Search(ctx, "einstein", 11)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || total != 1 {
		t.Fatalf("unexpected first response: %v %d", results, total)
	}

	results, total, err = src.Search(ctx, "einstein", 11)
	if err != nil {
		t.Fatalf("Search (cached): %v", err)
	}
	if len(results) != 1 || total != 1 {
		t.Fatalf("unexpected cached response: %v %d", results, total)
	}
	if inner.searchCalls != 1 {
		t.Errorf("expected 1 upstream call, got %d", inner.searchCalls)
	}
}

func TestSource_DistinctKeysMiss(t *testing.T) {
	src, inner := newTestSource(t)
	ctx := context.Background()

	src.Search(ctx, "einstein", 11)
	src.Search(ctx, "einstein", 5) // different limit, different key
	src.Search(ctx, "bohr", 11)

	if inner.searchCalls != 3 {
		t.Errorf("expected 3 upstream calls for distinct keys, got %d", inner.searchCalls)
	}
}

func TestSource_PageAndContentCached(t *testing.T) {
	src, inner := newTestSource(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := src.Page(ctx, "A"); err != nil {
			t.Fatalf("Page: %v", err)
		}
		if _, err := src.Content(ctx, "A"); err != nil {
			t.Fatalf("Content: %v", err)
		}
	}
	if inner.pageCalls != 1 || inner.contentCalls != 1 {
		t.Errorf("expected 1 call each, got page=%d content=%d", inner.pageCalls, inner.contentCalls)
	}

	body, err := src.Content(ctx, "A")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if body.Text != "text" {
		t.Errorf("cached body corrupted: %q", body.Text)
	}
}

func TestSource_CorruptEntryIsMiss(t *testing.T) {
	store := tempStore(t, time.Minute)
	inner := &countingSource{}
	src := NewSource(inner, store, log.New(io.Discard, "", 0))

	store.Put("content:A", []byte("not json"))

	body, err := src.Content(context.Background(), "A")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if body.Text != "text" {
		t.Errorf("expected upstream fallback, got %q", body.Text)
	}
	if inner.contentCalls != 1 {
		t.Errorf("expected upstream call on corrupt entry, got %d", inner.contentCalls)
	}
}

func TestSource_OpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nested", "cache.db"), time.Minute)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Put("k", []byte("v")); err != nil {
		t.Errorf("Put: %v", err)
	}
}
