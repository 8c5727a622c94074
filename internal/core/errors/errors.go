// Package errors provides centralized error definitions for the application.
// Errors are organized by pipeline stage to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Normalization outcomes. These are expected and never logged above debug.
var (
	// ErrParseRejected indicates a title does not look like a goal update.
	ErrParseRejected = errors.New("title rejected")

	// ErrUnknownTeam indicates fewer than two known teams were found in a title.
	ErrUnknownTeam = errors.New("unknown team")
)

// Deduplication outcomes.
var (
	// ErrDuplicate indicates an event was suppressed as a repeat.
	ErrDuplicate = errors.New("duplicate event")
)

// Resolution errors.
var (
	// ErrUnsupportedHost indicates no enabled strategy handles the URL host.
	ErrUnsupportedHost = errors.New("unsupported host")

	// ErrTransientExtraction indicates a retryable failure extracting a clip link.
	ErrTransientExtraction = errors.New("transient extraction failure")

	// ErrExtractionExhausted indicates the retry budget was spent without a clip.
	ErrExtractionExhausted = errors.New("extraction exhausted")

	// ErrNoClipFound indicates a page was fetched but carried no playable link.
	ErrNoClipFound = errors.New("no clip found")
)

// History store errors.
var (
	// ErrHistoryStoreUnavailable indicates the history store cannot be read or written.
	ErrHistoryStoreUnavailable = errors.New("history store unavailable")

	// ErrUnknownBackend indicates a history backend name is not recognized.
	ErrUnknownBackend = errors.New("unknown history backend")
)

// HTTP transport errors.
var (
	// ErrHTTPStatusNotOK indicates a non-2xx response.
	ErrHTTPStatusNotOK = errors.New("unexpected HTTP status")

	// ErrNotVideo indicates a link did not serve video content.
	ErrNotVideo = errors.New("content is not video")

	// ErrRateLimited indicates rate limiting was triggered.
	ErrRateLimited = errors.New("rate limited")

	// ErrTooManyRedirects indicates the redirect limit was exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClientDisabled indicates a client or feature is disabled.
	ErrClientDisabled = errors.New("client disabled")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
