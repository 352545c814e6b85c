package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("Open accepted an unknown driver")
	}
}

func TestFileStoreCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "digestd.db")}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	if _, ok, err := st.Checkpoint(ctx, digest.SourceSlack); err != nil || ok {
		t.Fatalf("fresh store checkpoint: ok=%v err=%v", ok, err)
	}

	at := time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)
	if err := st.SetCheckpoint(ctx, digest.SourceSlack, at); err != nil {
		t.Fatalf("SetCheckpoint: %v", err)
	}
	got, ok, err := st.Checkpoint(ctx, digest.SourceSlack)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("Checkpoint = %v/%v/%v, want %v", got, ok, err, at)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// checkpoints survive a reopen
	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, ok, err = st.Checkpoint(ctx, digest.SourceSlack)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("after reopen = %v/%v/%v, want %v", got, ok, err, at)
	}
}

func TestFileStoreAppendRun(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "digestd.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	recs := []RunRecord{
		{At: time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC), Sources: 2, Collected: 7, Delivered: true, TookMS: 1200},
		{At: time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC), Sources: 2, Collected: 0, Failed: 1, Error: "mail: auth failure", TookMS: 300},
	}
	for _, r := range recs {
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "digestd.runs.jsonl"))
	if err != nil {
		t.Fatalf("opening audit file: %v", err)
	}
	defer f.Close()

	var got []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad audit line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("audit lines = %d, want 2", len(got))
	}
	if got[0].Collected != 7 || !got[0].Delivered {
		t.Fatalf("first record = %+v", got[0])
	}
	if got[1].Failed != 1 || got[1].Error == "" {
		t.Fatalf("second record = %+v", got[1])
	}
}

func TestFileStoreRequiresPath(t *testing.T) {
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver accepted an empty path")
	}
}

func TestFileStoreIgnoresEmptyCheckpoint(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "digestd.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.SetCheckpoint(ctx, "", time.Now()); err != nil {
		t.Fatalf("empty source: %v", err)
	}
	if err := st.SetCheckpoint(ctx, digest.SourceMail, time.Time{}); err != nil {
		t.Fatalf("zero time: %v", err)
	}
	if _, ok, _ := st.Checkpoint(ctx, digest.SourceMail); ok {
		t.Fatal("zero-time checkpoint was stored")
	}
}
