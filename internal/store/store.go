// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package store provides the durable key-value store behind the client
// caches. Cache tables, validation timestamps, color assignments and image
// metadata each live under their own key as a JSON document.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/logging"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store: closed")

// Store is the persistence surface used by the caches.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Config configures a BadgerStore.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// KeyPrefix namespaces every key, so several installs can share a DB.
	KeyPrefix string
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	prefix string
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: path is required unless in-memory")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Cache store opened")

	return &BadgerStore{db: db, prefix: cfg.KeyPrefix, ownsDB: true}, nil
}

// NewBadgerStoreFromDB wraps an already-open database. The caller keeps
// ownership of db; Close on the returned store does not close it.
func NewBadgerStoreFromDB(db *badger.DB, keyPrefix string) *BadgerStore {
	return &BadgerStore{db: db, prefix: keyPrefix}
}

func (s *BadgerStore) key(k string) []byte {
	return []byte(s.prefix + k)
}

func (s *BadgerStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns a copy of the value stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key, replacing any previous value.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(s.key(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(s.key(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// Keys lists the keys that start with prefix, sorted.
func (s *BadgerStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		full := s.key(prefix)
		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), s.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying database for maintenance tasks such as value log GC.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// LoadJSON decodes the JSON document stored under key into v.
// It returns ErrNotFound if the key is missing.
func LoadJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
