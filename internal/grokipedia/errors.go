package grokipedia

import "errors"

// Sentinel errors for the upstream failure taxonomy. Call sites wrap these
// with %w so callers can classify failures with errors.Is while keeping the
// endpoint context in the message.
var (
	// ErrUnavailable means the upstream API could not be reached or did not
	// answer in time (connection refused, DNS failure, timeout, 5xx).
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrSchema means the upstream answered but the response did not match
	// the expected shape (malformed JSON, missing fields).
	ErrSchema = errors.New("unexpected upstream response")

	// ErrNotFound means the request was valid but no page exists for the
	// given slug (HTTP 404 or found=false in the page envelope).
	ErrNotFound = errors.New("page not found")

	// ErrRateLimited means the upstream rejected the call with HTTP 429.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
)
