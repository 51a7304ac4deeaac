// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerdb wraps a BadgerDB instance with context-aware transaction
// helpers. It exists so callers never touch badger.DB directly: every access
// goes through WithTxn/WithReadTxn, which check for context cancellation
// before opening a transaction.
package badgerdb

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// DB is a thin wrapper around an opened BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type DB struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) a BadgerDB database at dir.
//
// # Description
//
// An empty dir opens an in-memory database — correct for tests and for
// deployments that do not configure a cache directory (nothing survives a
// restart, which is safe: cached vectors are recomputed on demand).
//
// # Inputs
//
//   - dir: Filesystem path for the database. Empty enables in-memory mode.
//   - logger: Logger for open diagnostics. May be nil.
//
// # Outputs
//
//   - *DB: Opened database. Call Close when done.
//   - error: Non-nil if the directory cannot be opened.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's own logger is chatty at INFO; route nothing through it and
	// rely on slog at the call sites instead.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}

	logger.Debug("badgerdb: opened",
		slog.String("dir", dir),
		slog.Bool("in_memory", dir == ""),
	)
	return &DB{db: db, logger: logger}, nil
}

// WithTxn runs fn inside a read-write transaction and commits it.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// Close flushes and closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
