package grokipedia

// SearchResult is one match from the full-text search endpoint. The snippet
// has highlight markup already stripped.
type SearchResult struct {
	Slug           string  `json:"slug"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// Citation is a single source reference attached to a page.
type Citation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PageDetail holds the structured metadata for a page as returned by the
// page-detail endpoint. Citations preserve upstream order and are capped at
// maxCitations. Metadata always carries at least a "title" key.
type PageDetail struct {
	Slug       string            `json:"slug"`
	Title      string            `json:"title"`
	Metadata   map[string]string `json:"metadata"`
	Categories []string          `json:"categories"`
	Stats      map[string]any    `json:"stats,omitempty"`
	Citations  []Citation        `json:"citations"`
}

// ContentBody is the full article text for a page, with HTML markup stripped.
type ContentBody struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Text      string `json:"content_text"`
	WordCount int    `json:"word_count,omitempty"`
	CharCount int    `json:"char_count,omitempty"`
}
