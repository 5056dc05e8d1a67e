package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy for the ingestion and reporting paths. Handlers map these
// onto HTTP statuses; everything else surfaces as an internal error.
var (
	// ErrConsentRequired is terminal for the event: the same payload must
	// not be retried.
	ErrConsentRequired = errors.New("tracking consent not given")

	// ErrRateLimited is transient; callers should back off.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBannerNotFound means the referenced banner does not exist.
	ErrBannerNotFound = errors.New("banner not found")
)

// ValidationError reports every field violation of a tracking request at
// once, not just the first one found.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) add(field, msg string) {
	e.Fields[field] = msg
}

func (e *ValidationError) ok() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", f, e.Fields[f])
	}
	return b.String()
}

// PersistenceError wraps a store failure. Analytics writes are best-effort,
// so callers treat it as transient and safe to drop.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
