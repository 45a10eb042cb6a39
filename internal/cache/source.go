package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/atharv/grokipedia-mcp/internal/dispatch"
	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
)

// Source wraps a dispatch.Source with the read-through cache. Only
// successful responses are stored; errors (including not-found) always go
// back to upstream on the next call.
type Source struct {
	inner  dispatch.Source
	store  *Store
	logger *log.Logger
}

var _ dispatch.Source = (*Source)(nil)

// NewSource wraps inner with the given store.
func NewSource(inner dispatch.Source, store *Store, logger *log.Logger) *Source {
	return &Source{inner: inner, store: store, logger: logger}
}

// searchEntry is the cached form of a search response.
type searchEntry struct {
	Results    []grokipedia.SearchResult `json:"results"`
	TotalCount int                       `json:"totalCount"`
}

func (s *Source) Search(ctx context.Context, query string, limit int) ([]grokipedia.SearchResult, int, error) {
	key := "search:" + strconv.Itoa(limit) + ":" + query
	var entry searchEntry
	if s.lookup(key, &entry) {
		return entry.Results, entry.TotalCount, nil
	}

	results, total, err := s.inner.Search(ctx, query, limit)
	if err != nil {
		return nil, 0, err
	}
	s.save(key, searchEntry{Results: results, TotalCount: total})
	return results, total, nil
}

func (s *Source) Page(ctx context.Context, slug string) (*grokipedia.PageDetail, error) {
	key := "page:" + slug
	var detail grokipedia.PageDetail
	if s.lookup(key, &detail) {
		return &detail, nil
	}

	fresh, err := s.inner.Page(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.save(key, fresh)
	return fresh, nil
}

func (s *Source) Content(ctx context.Context, slug string) (*grokipedia.ContentBody, error) {
	key := "content:" + slug
	var body grokipedia.ContentBody
	if s.lookup(key, &body) {
		return &body, nil
	}

	fresh, err := s.inner.Content(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.save(key, fresh)
	return fresh, nil
}

// lookup fetches and decodes a cache entry into out. A corrupt entry is
// treated as a miss.
func (s *Source) lookup(key string, out any) bool {
	body, ok := s.store.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.logger.Printf("Cache: corrupt entry %q dropped: %v", key, err)
		return false
	}
	return true
}

// save encodes v and stores it under key. Failures are logged, not returned.
func (s *Source) save(key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("Cache: encode %q: %v", key, err)
		return
	}
	if err := s.store.Put(key, body); err != nil {
		s.logger.Printf("Cache: %v", fmt.Errorf("store %q: %w", key, err))
	}
}
