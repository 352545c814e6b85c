package source

import (
	"errors"
	"fmt"
	"time"

	"digestd/internal/digest"
)

// Category classifies collector failures for retry decisions and reporting.
type Category string

const (
	// CategoryAuth: credentials invalid, missing, or expired. Never retried.
	CategoryAuth Category = "auth"
	// CategoryConfig: the source is misconfigured (bad host, missing token).
	// Never retried; a retry cannot fix configuration.
	CategoryConfig Category = "config"
	// CategoryTransient: connectivity or timeout. Retried with backoff.
	CategoryTransient Category = "transient"
	// CategoryRateLimit: the provider signaled throttling. Retried with the
	// provider-supplied hint when present, else a fixed delay.
	CategoryRateLimit Category = "rate_limit"
	// CategoryMalformed: a raw item could not be mapped to a valid Message.
	// Collectors skip such items one by one; a whole-call malformed error
	// is not retried.
	CategoryMalformed Category = "malformed"
)

// Retryable reports whether the fetch wrapper may attempt the category again.
func (c Category) Retryable() bool {
	return c == CategoryTransient || c == CategoryRateLimit
}

// Error is a categorized collector failure. Collectors return *Error for
// every caller-recoverable condition; anything else is treated as transient.
type Error struct {
	Source   digest.SourceID
	Category Category
	// RetryAfter carries a provider-supplied backoff hint (rate limits only).
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s failure", e.Source, e.Category)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Source, e.Category, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(id digest.SourceID, cat Category, cause error) *Error {
	return &Error{Source: id, Category: cat, Cause: cause}
}

func AuthError(id digest.SourceID, cause error) *Error {
	return newError(id, CategoryAuth, cause)
}

func ConfigError(id digest.SourceID, cause error) *Error {
	return newError(id, CategoryConfig, cause)
}

func TransientError(id digest.SourceID, cause error) *Error {
	return newError(id, CategoryTransient, cause)
}

// RateLimitError carries the provider's retry hint; pass 0 when the provider
// gave none.
func RateLimitError(id digest.SourceID, retryAfter time.Duration, cause error) *Error {
	return &Error{Source: id, Category: CategoryRateLimit, RetryAfter: retryAfter, Cause: cause}
}

// CategoryOf extracts the failure category from err. Errors without a
// category are treated as transient: unknown failures get the bounded-retry
// treatment rather than being dropped on first sight.
func CategoryOf(err error) Category {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryTransient
}

// RetryHint returns the provider-supplied backoff hint, if any.
func RetryHint(err error) (time.Duration, bool) {
	var se *Error
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter, true
	}
	return 0, false
}
