package storage

import (
	"errors"
	"time"
)

// ErrDisabled is returned by store methods when storage is not configured.
var ErrDisabled = errors.New("storage disabled")

// Config selects and tunes the persistence backend.
type Config struct {
	// Driver: "none" (default), "file", or "sqlite".
	Driver string
	Path   string
	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration
}

// RunRecord is one collection-and-delivery cycle in the audit trail.
type RunRecord struct {
	At        time.Time `json:"at"`
	Sources   int       `json:"sources"`
	Collected int       `json:"collected"`
	Failed    int       `json:"failed"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
