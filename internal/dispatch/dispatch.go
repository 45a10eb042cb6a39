// Package dispatch routes a single knowledge-base query to one of four
// behaviors: search, page detail, content fetch, or the combined
// search-then-fetch "smart" mode. The dispatcher is stateless; every call
// owns its own set of outbound requests and nothing is shared across calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
)

// Mode selects how a query is processed.
type Mode string

const (
	ModeSmart   Mode = "smart"
	ModeSearch  Mode = "search"
	ModePage    Mode = "page"
	ModeContent Mode = "content"
)

// Local validation errors. These are rejected before any outbound call.
var (
	ErrInvalidMode  = errors.New("invalid action")
	ErrMissingSlug  = errors.New("slug is required for this action")
	ErrMissingQuery = errors.New("query text is required for this action")
)

// Source is the capability set the dispatcher needs from the knowledge base.
// *grokipedia.Client satisfies it; tests substitute a fake.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]grokipedia.SearchResult, int, error)
	Page(ctx context.Context, slug string) (*grokipedia.PageDetail, error)
	Content(ctx context.Context, slug string) (*grokipedia.ContentBody, error)
}

// Request is one tool invocation. Limit <= 0 means "use the default".
type Request struct {
	Query string
	Mode  Mode
	Slug  string
	Limit int
}

// CombinedItem pairs a search result with its fetched content in smart mode.
// When the per-item fetch failed, Content is nil and Err carries the reason;
// the search result fields still describe the match (partial success).
type CombinedItem struct {
	grokipedia.SearchResult
	Content *grokipedia.ContentBody `json:"content,omitempty"`
	Err     string                  `json:"error,omitempty"`
}

// Response is the result of a dispatched query. Exactly one of Results,
// Page, Content, or Combined is populated, matching the mode.
type Response struct {
	Mode       Mode                      `json:"action"`
	Query      string                    `json:"query,omitempty"`
	Results    []grokipedia.SearchResult `json:"results,omitempty"`
	Page       *grokipedia.PageDetail    `json:"page,omitempty"`
	Content    *grokipedia.ContentBody   `json:"content,omitempty"`
	Combined   []CombinedItem            `json:"combined,omitempty"`
	TotalCount int                       `json:"totalCount,omitempty"`
	Showing    int                       `json:"showing,omitempty"`
}

const (
	// DefaultLimit is how many search results smart mode expands when the
	// caller does not say otherwise.
	DefaultLimit = 2
	// MaxLimit caps the expansion fan-out.
	MaxLimit = 10

	// searchFetchLimit is the minimum number of matches requested from the
	// search endpoint, so totalCount and ordering stay stable while
	// truncation happens locally. When a configured limit exceeds it, the
	// fetch grows to match.
	searchFetchLimit = 11
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimits overrides the default and maximum expansion limits.
func WithLimits(def, max int) Option {
	return func(d *Dispatcher) {
		if def > 0 {
			d.defaultLimit = def
		}
		if max > 0 {
			d.maxLimit = max
		}
	}
}

// WithLimitFunc resolves the limits on every call instead of at
// construction, so a config hot-reload takes effect immediately.
func WithLimitFunc(fn func() (def, max int)) Option {
	return func(d *Dispatcher) { d.limitFn = fn }
}

// Dispatcher executes queries against a Source. It holds no per-request
// state and is safe for concurrent use.
type Dispatcher struct {
	src          Source
	logger       *log.Logger
	defaultLimit int
	maxLimit     int
	limitFn      func() (def, max int)
}

// New creates a Dispatcher over the given source. A nil logger discards.
func New(src Source, logger *log.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	d := &Dispatcher{
		src:          src,
		logger:       logger,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query validates the request and routes it to the mode handler. Validation
// failures return before any outbound call is made.
func (d *Dispatcher) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Mode == "" {
		req.Mode = ModeSmart
	}
	switch req.Mode {
	case ModeSmart, ModeSearch:
		if req.Query == "" {
			return nil, fmt.Errorf("%w: %q", ErrMissingQuery, req.Mode)
		}
	case ModePage, ModeContent:
		if req.Slug == "" {
			return nil, fmt.Errorf("%w: %q", ErrMissingSlug, req.Mode)
		}
	default:
		return nil, fmt.Errorf("%w: %q (expected smart, search, page, or content)", ErrInvalidMode, req.Mode)
	}

	def, max := d.defaultLimit, d.maxLimit
	if d.limitFn != nil {
		def, max = d.limitFn()
	}
	limit := req.Limit
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}

	switch req.Mode {
	case ModeSearch:
		return d.search(ctx, req.Query, limit)
	case ModePage:
		return d.page(ctx, req.Slug)
	case ModeContent:
		return d.content(ctx, req.Slug)
	default:
		return d.smart(ctx, req.Query, limit)
	}
}

// fetchSize returns how many matches to request so that limit can be served.
func fetchSize(limit int) int {
	if limit > searchFetchLimit {
		return limit
	}
	return searchFetchLimit
}

func (d *Dispatcher) search(ctx context.Context, query string, limit int) (*Response, error) {
	results, total, err := d.src.Search(ctx, query, fetchSize(limit))
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return &Response{
		Mode:       ModeSearch,
		Query:      query,
		Results:    results,
		TotalCount: total,
		Showing:    len(results),
	}, nil
}

func (d *Dispatcher) page(ctx context.Context, slug string) (*Response, error) {
	detail, err := d.src.Page(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &Response{Mode: ModePage, Page: detail}, nil
}

func (d *Dispatcher) content(ctx context.Context, slug string) (*Response, error) {
	body, err := d.src.Content(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &Response{Mode: ModeContent, Content: body}, nil
}

// smart searches, then fetches content for the top limit matches
// concurrently. The per-item fetches are independent, so a failure degrades
// that item to its bare search result with an error marker instead of
// failing the whole response. Search order is preserved.
func (d *Dispatcher) smart(ctx context.Context, query string, limit int) (*Response, error) {
	results, total, err := d.src.Search(ctx, query, fetchSize(limit))
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}

	items := make([]CombinedItem, len(results))
	var wg sync.WaitGroup
	for i, r := range results {
		items[i].SearchResult = r
		wg.Add(1)
		go func(i int, slug string) {
			defer wg.Done()
			body, err := d.src.Content(ctx, slug)
			if err != nil {
				d.logger.Printf("smart: content fetch for %q failed: %v", slug, err)
				items[i].Err = err.Error()
				return
			}
			items[i].Content = body
		}(i, r.Slug)
	}
	wg.Wait()

	return &Response{
		Mode:       ModeSmart,
		Query:      query,
		Combined:   items,
		TotalCount: total,
		Showing:    len(items),
	}, nil
}
