package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
)

const fileFormatVersion = 1

type fileRecord struct {
	Key       string    `json:"key"`
	SourceURL string    `json:"source_url,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

type fileDocument struct {
	Version int          `json:"version"`
	Records []fileRecord `json:"records"`
}

// FileBackend keeps history in a single JSON document. Every write replaces
// the file atomically via a temp file and rename.
type FileBackend struct {
	path string

	mu      sync.Mutex
	records []fileRecord
}

// NewFileBackend returns a backend writing to path. The file and its
// directory are created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Load(_ context.Context) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.records = nil
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	if len(data) == 0 {
		f.records = nil
		return nil, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	out := make([]domain.HistoryRecord, 0, len(doc.Records))
	kept := doc.Records[:0]

	for _, r := range doc.Records {
		key, err := domain.ParseDedupKey(r.Key)
		if err != nil {
			continue
		}

		kept = append(kept, r)
		out = append(out, domain.HistoryRecord{Key: key, SourceURL: r.SourceURL, EmittedAt: r.EmittedAt})
	}

	f.records = kept

	return out, nil
}

func (f *FileBackend) Append(_ context.Context, rec domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := append(f.records[:len(f.records):len(f.records)], fileRecord{
		Key:       rec.Key.String(),
		SourceURL: rec.SourceURL,
		EmittedAt: rec.EmittedAt.UTC(),
	})

	if err := f.writeLocked(next); err != nil {
		return err
	}

	f.records = next

	return nil
}

func (f *FileBackend) Prune(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make([]fileRecord, 0, len(f.records))

	for _, r := range f.records {
		if !r.EmittedAt.Before(before) {
			next = append(next, r)
		}
	}

	removed := len(f.records) - len(next)
	if removed == 0 {
		return 0, nil
	}

	if err := f.writeLocked(next); err != nil {
		return 0, err
	}

	f.records = next

	return removed, nil
}

// Ping checks that the history directory is writable.
func (f *FileBackend) Ping(_ context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, historyDirPerm); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".history-ping-*")
	if err != nil {
		return fmt.Errorf("probe %s: %w", dir, err)
	}

	name := tmp.Name()
	_ = tmp.Close()

	return os.Remove(name)
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) writeLocked(records []fileRecord) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, historyDirPerm); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.Marshal(fileDocument{Version: fileFormatVersion, Records: records})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, historyFilePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", f.path, err)
	}

	return nil
}
