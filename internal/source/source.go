// Package source defines the collector capability contract, the resilient
// fetch wrapper, and the collection orchestrator.
//
// Everything below the orchestrator is isolated: no error from one
// collector crosses into another collector's run or into digest rendering.
// Conditions become data (Failure records or empty groups) past the
// orchestrator boundary.
package source

import (
	"context"
	"time"

	"digestd/internal/digest"
)

// Collector is the capability contract every source integration satisfies.
// New sources are added by implementing these two operations, never by
// modifying existing collectors.
type Collector interface {
	// Collect returns the unread messages currently available from the
	// source. No new items is ([]digest.Message{}, nil), not an error.
	// Recoverable conditions come back as a categorized *Error.
	// Collect may mark remote items seen; that side effect is
	// adapter-specific and not guaranteed idempotent across retries.
	Collect(ctx context.Context) ([]digest.Message, error)

	// ID returns the stable identifier used to tag every Message this
	// collector produces and to key the digest groups.
	ID() digest.SourceID
}

// SinceFunc reports the oldest instant a collector should fetch from.
// The app wires it to the source's stored checkpoint, falling back to the
// configured window when no checkpoint exists.
type SinceFunc func(ctx context.Context) time.Time

// Failure records one source's terminal failure for a run.
type Failure struct {
	Source   digest.SourceID `json:"source"`
	Category Category        `json:"category"`
	Cause    string          `json:"cause"`
	Attempts int             `json:"attempts"`
}

// Result is the outcome of one collector invocation through the fetch
// wrapper: either messages or a failure record, never both, never neither.
type Result struct {
	Source   digest.SourceID
	Messages []digest.Message
	Failure  *Failure
}

func (r Result) OK() bool { return r.Failure == nil }
