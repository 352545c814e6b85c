package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl        (append-only JSON Lines audit trail)
//   - <prefix>.checkpoints.json  (snapshot, rewritten on every update)
//
// The checkpoint map is tiny (one entry per source), so rewriting the whole
// snapshot on update is cheaper than journaling.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile    *os.File
	checkpoints map[digest.SourceID]time.Time
	snapPath    string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".checkpoints.json"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	cps := map[digest.SourceID]time.Time{}
	if err := loadCheckpoints(snapPath, cps); err != nil {
		log.Warn("checkpoint snapshot unreadable; starting empty",
			logx.String("path", snapPath), logx.Err(err))
	}

	log.Info("file store opened",
		logx.String("runs", runsPath), logx.Int("checkpoints", len(cps)))
	return &fileStore{
		log:         log,
		runsFile:    rf,
		checkpoints: cps,
		snapPath:    snapPath,
	}, nil
}

func loadCheckpoints(path string, into map[digest.SourceID]time.Time) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	raw := map[string]time.Time{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		into[digest.SourceID(k)] = v
	}
	return nil
}

func (s *fileStore) Checkpoint(ctx context.Context, id digest.SourceID) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.checkpoints[id]
	return t, ok, nil
}

func (s *fileStore) SetCheckpoint(ctx context.Context, id digest.SourceID, t time.Time) error {
	if id == "" || t.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[id] = t.UTC()
	return s.writeSnapshotLocked()
}

// writeSnapshotLocked rewrites the snapshot atomically (temp file + rename).
func (s *fileStore) writeSnapshotLocked() error {
	raw := make(map[string]time.Time, len(s.checkpoints))
	for k, v := range s.checkpoints {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.snapPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapPath)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.runsFile.Write(append(b, '\n')); err != nil {
		return err
	}
	return s.runsFile.Sync()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}
