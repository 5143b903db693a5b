// Package storage provides the string key-value port the history persists
// through, with in-memory and SQLite backends.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/logger"
)

// ErrQuotaExceeded is returned when a write would exceed the storage quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Storage is a flat string key-value store.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Close releases the backend. The store must not be used afterwards.
	Close() error
}

// Open builds the backend selected by cfg. A durable store that cannot be
// opened degrades to memory so the widget stays usable.
func Open(cfg config.StorageConfig) Storage {
	var s Storage
	switch cfg.Scope {
	case config.ScopeDurable:
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			logger.L.Warn("sqlite open failed; using in-memory history", "path", cfg.Path, "error", err)
			s = NewMemory()
		} else {
			logger.L.Info("sqlite history storage initialized", "path", cfg.Path)
			s = db
		}
	default:
		s = NewMemory()
	}
	return WithQuota(s, cfg.QuotaBytes)
}

// Memory keeps values for the lifetime of the process.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Close is a no-op; the values stay readable.
func (m *Memory) Close() error { return nil }

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

type quota struct {
	Storage
	limit int
}

// WithQuota rejects writes whose key plus value exceed limit bytes, the way a
// browser rejects oversized localStorage writes. A limit <= 0 disables it.
func WithQuota(s Storage, limit int) Storage {
	if limit <= 0 {
		return s
	}
	return &quota{Storage: s, limit: limit}
}

func (q *quota) Set(key, value string) error {
	if size := len(key) + len(value); size > q.limit {
		return fmt.Errorf("%w: %d bytes over limit of %d", ErrQuotaExceeded, size-q.limit, q.limit)
	}
	return q.Storage.Set(key, value)
}
