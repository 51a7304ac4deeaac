// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/casegraph/casegraph/services/planner/embedding"
)

// warmConcurrency is the number of parallel embedding calls during warm-up.
// 10 concurrent requests saturates a local Ollama without overwhelming it.
const warmConcurrency = 10

// Embedder is the embedding provider contract needed by Warm. Satisfied by
// *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Warm computes and caches one embedding per example of every intent.
//
// # Description
//
// This is the ONLY point where the embedding provider is invoked for catalog
// data; live queries embed only the query text. Vectors are unit-normalized
// so cosine similarity reduces to a dot product at classification time.
//
// When store is non-nil, Warm first checks BadgerDB under the catalog's
// corpus hash (intent ids + example texts + model name) and skips the
// provider entirely on a complete hit. Newly computed vectors are persisted
// after warm-up; persistence failure is logged and ignored — the vectors
// are already in RAM.
//
// Unlike a degradable cache, a catalog that fails to warm is unusable: the
// classifier has no fallback scoring path. Any embedding failure therefore
// aborts Warm with an error, and the caller should treat it as fatal at
// startup.
//
// # Inputs
//
//   - ctx: Context for the warm-up calls. Cancellation aborts all pending embeds.
//   - embedder: Embedding provider. Must not be nil.
//   - store: Optional vector persistence. Nil disables it (in-memory-only mode).
//   - logger: Logger for progress output. May be nil.
//
// # Outputs
//
//   - error: Non-nil if any example fails to embed or produces a zero vector.
//
// # Thread Safety
//
// Not safe to call concurrently. Call once at startup, before the catalog
// is shared.
func (c *Catalog) Warm(ctx context.Context, embedder Embedder, store embedding.Store, logger *slog.Logger) error {
	if embedder == nil {
		return fmt.Errorf("catalog warm: embedder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	hash := c.corpusHash(embedder.Model())

	if store != nil {
		cached, err := store.LoadVectors(ctx, hash)
		if err != nil {
			logger.Warn("catalog warm: vector store load failed, recomputing",
				slog.String("error", err.Error()),
			)
		} else if cached != nil && c.applyVectors(cached) {
			c.warmed = true
			c.model = embedder.Model()
			logger.Info("catalog warm: loaded vectors from store",
				slog.Int("intent_count", c.Len()),
				slog.String("corpus_hash", embedding.ShortHash(hash)),
			)
			return nil
		}
	}

	logger.Info("catalog warm: computing example embeddings",
		slog.Int("intent_count", c.Len()),
		slog.String("model", embedder.Model()),
	)

	type job struct {
		intent *Intent
		idx    int
	}

	jobs := make([]job, 0, c.Len()*2)
	for _, in := range c.intents {
		in.exampleVectors = make([][]float32, len(in.Examples))
		for i := range in.Examples {
			jobs = append(jobs, job{intent: in, idx: i})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, j.intent.Examples[j.idx])
			if err != nil {
				return fmt.Errorf("embed example %d of intent %q: %w", j.idx, j.intent.ID, err)
			}
			unit := embedding.Unit(vec)
			if unit == nil {
				return fmt.Errorf("example %d of intent %q embedded to a zero vector", j.idx, j.intent.ID)
			}
			// Each goroutine writes a distinct slot; no lock needed.
			j.intent.exampleVectors[j.idx] = unit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("catalog warm: %w", err)
	}

	c.warmed = true
	c.model = embedder.Model()

	logger.Info("catalog warm: complete",
		slog.Int("intent_count", c.Len()),
		slog.Int("example_count", len(jobs)),
	)

	if store != nil {
		if err := store.SaveVectors(ctx, hash, c.collectVectors()); err != nil {
			logger.Warn("catalog warm: failed to persist vectors",
				slog.String("error", err.Error()),
				slog.String("corpus_hash", embedding.ShortHash(hash)),
			)
		}
	}

	return nil
}

// corpusHash computes a deterministic SHA256 digest of everything that
// determines the shape of the example vectors: intent ids, example texts
// (in order — order changes re-embed nothing but keys shift), and the
// embedding model name.
func (c *Catalog) corpusHash(model string) string {
	h := sha256.New()
	for _, in := range c.intents {
		fmt.Fprintf(h, "%s\t%s\n", in.ID, strings.Join(in.Examples, "\x1f"))
	}
	fmt.Fprintf(h, "model=%s\n", model)
	return hex.EncodeToString(h.Sum(nil))
}

// vectorKey is the persistence key for one example vector.
func vectorKey(intentID string, exampleIdx int) string {
	return fmt.Sprintf("%s/%d", intentID, exampleIdx)
}

// applyVectors installs cached vectors onto the intents. Returns false if
// coverage is incomplete (any example missing), leaving the catalog unwarmed.
func (c *Catalog) applyVectors(cached map[string][]float32) bool {
	for _, in := range c.intents {
		vecs := make([][]float32, len(in.Examples))
		for i := range in.Examples {
			vec, ok := cached[vectorKey(in.ID, i)]
			if !ok || len(vec) == 0 {
				return false
			}
			vecs[i] = vec
		}
		in.exampleVectors = vecs
	}
	return true
}

// collectVectors flattens all example vectors into the persistence layout.
func (c *Catalog) collectVectors() map[string][]float32 {
	out := make(map[string][]float32)
	for _, in := range c.intents {
		for i, vec := range in.exampleVectors {
			out[vectorKey(in.ID, i)] = vec
		}
	}
	return out
}
