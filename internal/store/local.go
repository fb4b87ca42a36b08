// Package store persists loggers. LocalStore keeps them in memory with an
// optional compressed snapshot on disk; PostgresStore keeps JSONB documents
// in PostgreSQL; Fallback combines the two.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

var (
	// ErrNotFound is returned when no logger is stored under an id.
	ErrNotFound = errors.New("logger not stored")
)

// LocalStore is a concurrency-safe in-memory logger store. With a snapshot
// path every change is written to a zstd-compressed JSON file.
type LocalStore struct {
	mu sync.RWMutex

	// key: logger id
	data map[string]dglogger.Logger

	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
}

// NewLocalStore creates a LocalStore. An empty path keeps data in memory
// only; otherwise an existing snapshot is loaded.
func NewLocalStore(path string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LocalStore{
		data:   make(map[string]dglogger.Logger),
		path:   path,
		logger: logger.With("component", "local_store"),
	}
	if path == "" {
		return s, nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	s.encoder, s.decoder = enc, dec

	if err := s.readSnapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadLoggers returns all stored loggers ordered by creation time.
func (s *LocalStore) LoadLoggers(_ context.Context) ([]dglogger.Logger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

// Get returns one stored logger.
func (s *LocalStore) Get(id string) (dglogger.Logger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.data[id]
	if !ok {
		return dglogger.Logger{}, ErrNotFound
	}
	return l.Clone(), nil
}

// SaveLogger inserts or replaces a logger.
func (s *LocalStore) SaveLogger(_ context.Context, l dglogger.Logger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[l.ID] = l.Clone()
	return s.writeSnapshotLocked()
}

// DeleteLogger removes a logger.
func (s *LocalStore) DeleteLogger(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	return s.writeSnapshotLocked()
}

// Replace swaps the whole content, used to mirror the primary store.
func (s *LocalStore) Replace(loggers []dglogger.Logger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]dglogger.Logger, len(loggers))
	for _, l := range loggers {
		s.data[l.ID] = l.Clone()
	}
	return s.writeSnapshotLocked()
}

// Len returns the number of stored loggers.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close releases the compression state.
func (s *LocalStore) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}

func (s *LocalStore) sortedLocked() []dglogger.Logger {
	out := make([]dglogger.Logger, 0, len(s.data))
	for _, l := range s.data {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *LocalStore) readSnapshot() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", s.path, err)
	}

	plain, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot %s: %w", s.path, err)
	}
	var loggers []dglogger.Logger
	if err := json.Unmarshal(plain, &loggers); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	for _, l := range loggers {
		s.data[l.ID] = l
	}
	s.logger.Info("snapshot loaded", "path", s.path, "loggers", len(loggers))
	return nil
}

// writeSnapshotLocked writes to a temp file and renames it over the
// snapshot so a crash never leaves a truncated file.
func (s *LocalStore) writeSnapshotLocked() error {
	if s.path == "" {
		return nil
	}
	plain, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, s.encoder.EncodeAll(plain, nil), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
