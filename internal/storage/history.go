// Package storage provides the history store: an in-memory index of emitted
// events backed by a durable Backend (JSON file, SQLite, PostgreSQL or Redis).
//
// The index is loaded once at startup. Record writes to the backend before
// updating the index, so an emission is durable when Record returns nil.
// Reads never touch the backend.
package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
)

// Backend is the durable medium behind a HistoryStore.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]domain.HistoryRecord, error)
	Append(ctx context.Context, rec domain.HistoryRecord) error
	Prune(ctx context.Context, before time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// HistoryStore answers "was this emitted recently" from memory and persists
// every emission through its Backend.
type HistoryStore struct {
	backend  Backend
	failOpen bool
	logger   *zerolog.Logger

	mu    sync.RWMutex
	byKey map[domain.DedupKey]time.Time
	byURL map[string]time.Time

	unavailable atomic.Bool
}

// NewHistoryStore wraps a backend. failurePolicy is config.FailClosed or config.FailOpen.
func NewHistoryStore(backend Backend, failurePolicy string, logger *zerolog.Logger) *HistoryStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &HistoryStore{
		backend:  backend,
		failOpen: failurePolicy == config.FailOpen,
		logger:   logger,
		byKey:    make(map[domain.DedupKey]time.Time),
		byURL:    make(map[string]time.Time),
	}
}

// Load reads every persisted record into memory and returns them. A missing
// or empty store is a cold start, not an error.
func (h *HistoryStore) Load(ctx context.Context) ([]domain.HistoryRecord, error) {
	records, err := h.backend.Load(ctx)
	if err != nil {
		h.markUnavailable(err)
		return nil, fmt.Errorf("%w: load %s: %w", errors.ErrHistoryStoreUnavailable, h.backend.Name(), err)
	}

	h.mu.Lock()
	for _, rec := range records {
		h.indexLocked(rec)
	}
	size := len(h.byKey)
	h.mu.Unlock()

	h.unavailable.Store(false)
	observability.HistorySize.Set(float64(size))

	h.logger.Info().Str(logFieldBackend, h.backend.Name()).Int("records", len(records)).Msg("history loaded")

	return records, nil
}

// WasRecentlyEmitted reports whether key was emitted within window of now.
// While the backend is unavailable under the fail-open policy every key is
// reported as emitted and ErrHistoryStoreUnavailable is returned.
func (h *HistoryStore) WasRecentlyEmitted(key domain.DedupKey, window time.Duration, now time.Time) (bool, error) {
	if h.failOpen && h.unavailable.Load() {
		return true, errors.ErrHistoryStoreUnavailable
	}

	h.mu.RLock()
	at, ok := h.byKey[key]
	h.mu.RUnlock()

	return ok && now.Sub(at) <= window, nil
}

// HasURL reports whether a post with this source URL was already emitted.
func (h *HistoryStore) HasURL(url string) bool {
	if url == "" {
		return false
	}

	h.mu.RLock()
	_, ok := h.byURL[url]
	h.mu.RUnlock()

	return ok
}

// Record persists an emission. The in-memory index is updated even when the
// backend write fails so that this process keeps suppressing the key; the
// failure is returned wrapped in ErrHistoryStoreUnavailable.
func (h *HistoryStore) Record(ctx context.Context, key domain.DedupKey, url string, now time.Time) error {
	rec := domain.HistoryRecord{Key: key, SourceURL: url, EmittedAt: now}

	err := h.backend.Append(ctx, rec)

	h.mu.Lock()
	h.indexLocked(rec)
	size := len(h.byKey)
	h.mu.Unlock()

	observability.HistorySize.Set(float64(size))

	if err != nil {
		h.markUnavailable(err)
		return fmt.Errorf("%w: append %s: %w", errors.ErrHistoryStoreUnavailable, h.backend.Name(), err)
	}

	return nil
}

// Prune drops records older than retention from memory and the backend.
func (h *HistoryStore) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	before := now.Add(-retention)

	h.mu.Lock()
	for k, at := range h.byKey {
		if at.Before(before) {
			delete(h.byKey, k)
		}
	}

	for u, at := range h.byURL {
		if at.Before(before) {
			delete(h.byURL, u)
		}
	}
	size := len(h.byKey)
	h.mu.Unlock()

	observability.HistorySize.Set(float64(size))

	n, err := h.backend.Prune(ctx, before)
	if err != nil {
		h.markUnavailable(err)
		return 0, fmt.Errorf("%w: prune %s: %w", errors.ErrHistoryStoreUnavailable, h.backend.Name(), err)
	}

	return n, nil
}

// Recover probes the backend and clears the unavailable flag when it answers.
func (h *HistoryStore) Recover(ctx context.Context) error {
	if !h.unavailable.Load() {
		return nil
	}

	if err := h.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping %s: %w", errors.ErrHistoryStoreUnavailable, h.backend.Name(), err)
	}

	h.unavailable.Store(false)
	h.logger.Info().Str(logFieldBackend, h.backend.Name()).Msg("history store recovered")

	return nil
}

// Available reports whether the last backend operation succeeded.
func (h *HistoryStore) Available() bool {
	return !h.unavailable.Load()
}

// Len returns the number of keys held in memory.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.byKey)
}

// Close releases the backend.
func (h *HistoryStore) Close() error {
	return h.backend.Close()
}

func (h *HistoryStore) indexLocked(rec domain.HistoryRecord) {
	if prev, ok := h.byKey[rec.Key]; !ok || rec.EmittedAt.After(prev) {
		h.byKey[rec.Key] = rec.EmittedAt
	}

	if rec.SourceURL != "" {
		if prev, ok := h.byURL[rec.SourceURL]; !ok || rec.EmittedAt.After(prev) {
			h.byURL[rec.SourceURL] = rec.EmittedAt
		}
	}
}

func (h *HistoryStore) markUnavailable(err error) {
	if !h.unavailable.Swap(true) {
		h.logger.Error().Err(err).Str(logFieldBackend, h.backend.Name()).Bool("fail_open", h.failOpen).
			Msg("history store unavailable")
	}

	observability.HistoryErrors.WithLabelValues(h.backend.Name()).Inc()
}
