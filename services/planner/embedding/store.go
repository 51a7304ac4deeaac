// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

// =============================================================================
// Catalog Vector Persistence
// =============================================================================
//
// Example embeddings are expensive to compute (one provider call per example,
// a few hundred examples for a full catalog) but change only when the catalog
// file or the embedding model changes. This store persists them in BadgerDB
// between process restarts.
//
// Design choices:
//
//	1. BadgerDB, not a vector database: the catalog holds a few hundred
//	   pre-computed vectors that are looked up in bulk by a single key, not
//	   searched by similarity. An embedded store has no network call and no
//	   availability dependency.
//
//	2. Corpus hash as cache key: SHA256 of intent ids, example texts, and
//	   model name (computed by the catalog package). Any catalog or model
//	   change produces a different hash and therefore a cache miss. No
//	   explicit invalidation API exists; stale entries expire via TTL.
//
//	3. TTL is enforced by BadgerDB's native GC. Expired keys return
//	   ErrKeyNotFound, which the store treats as a cache miss.
//
// Storage layout:
//
//	catalog/emb/v1/{corpusHash}  →  gob-encoded map[string][]float32
//	                                 ("{intentID}/{exampleIdx}" → unit vector)

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/casegraph/casegraph/services/planner/storage/badgerdb"
)

// storeDefaultTTL is the default lifetime of a cached vector entry.
const storeDefaultTTL = 7 * 24 * time.Hour

// storeKeyPrefix is prepended to the corpus hash to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const storeKeyPrefix = "catalog/emb/v1/"

// errCacheMiss distinguishes "key not found" from a genuine storage error.
var errCacheMiss = errors.New("cache miss")

// Store persists unit-normalized example embedding vectors across restarts.
//
// # Description
//
// Keyed by corpus hash. Both methods are nil-receiver-tolerant at the call
// sites: the catalog checks for a nil Store and skips persistence, operating
// in in-memory-only mode — correct for tests.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// LoadVectors retrieves the cached vectors for the given corpus hash.
	// Returns (nil, nil) on cache miss and (nil, error) on storage failure.
	LoadVectors(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveVectors persists vectors under the given corpus hash with a TTL.
	// Persistence failure is non-fatal for callers: vectors are already in
	// RAM and will be recomputed after the next restart.
	SaveVectors(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// BadgerStore implements Store backed by a BadgerDB instance. The DB is
// opened by the caller (typically in main) and owned by the caller; this
// store never closes it.
type BadgerStore struct {
	db     *badgerdb.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerStore creates a BadgerStore.
//
// # Inputs
//
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - ttl: Lifetime of each entry. Zero or negative uses the default (7 days).
//   - logger: Logger for hit/miss diagnostics. May be nil.
func NewBadgerStore(db *badgerdb.DB, ttl time.Duration, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = storeDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, ttl: ttl, logger: logger}
}

// LoadVectors retrieves cached vectors for the corpus hash.
func (s *BadgerStore) LoadVectors(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := storeKey(corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("vector store: miss", slog.String("hash", ShortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector store load: %w", err)
	}

	vectors, err := gobDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("vector store decode: %w", err)
	}

	s.logger.Debug("vector store: hit",
		slog.String("hash", ShortHash(corpusHash)),
		slog.Int("vector_count", len(vectors)),
	)
	return vectors, nil
}

// SaveVectors persists vectors under the corpus hash with the configured TTL.
func (s *BadgerStore) SaveVectors(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	raw, err := gobEncode(vectors)
	if err != nil {
		return fmt.Errorf("vector store encode: %w", err)
	}

	key := storeKey(corpusHash)
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, raw).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("vector store save: %w", err)
	}

	s.logger.Debug("vector store: saved",
		slog.String("hash", ShortHash(corpusHash)),
		slog.Int("vector_count", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// ShortHash returns the first 8 characters of a hash for log display.
func ShortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

func storeKey(corpusHash string) []byte {
	return []byte(storeKeyPrefix + corpusHash)
}

func gobEncode(vectors map[string][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return vectors, nil
}
