// Package storage persists the small amount of operational state digestd
// keeps between runs: per-source collection checkpoints and a run audit
// trail. Digest content itself is never stored.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	// Checkpoint returns the last successful collection instant for a
	// source. ok is false when the source has never completed a run.
	Checkpoint(ctx context.Context, id digest.SourceID) (t time.Time, ok bool, err error)
	// SetCheckpoint records a source's new collection high-water mark.
	SetCheckpoint(ctx context.Context, id digest.SourceID, t time.Time) error
	// AppendRun appends one cycle to the audit trail.
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
