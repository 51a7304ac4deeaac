// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify scores a user query against every intent in the catalog
// by cosine similarity and returns a ranked candidate list.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/casegraph/casegraph/services/planner/catalog"
	"github.com/casegraph/casegraph/services/planner/embedding"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	classifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "casegraph",
		Subsystem: "classify",
		Name:      "latency_seconds",
		Help:      "Intent classification latency (embedding call included)",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 3.0},
	})

	classifyBestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "casegraph",
		Subsystem: "classify",
		Name:      "best_score",
		Help:      "Cosine similarity of the top-ranked intent per query",
		Buckets:   []float64{0.0, 0.2, 0.4, 0.55, 0.7, 0.85, 1.0},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("casegraph.planner.classify")

// =============================================================================
// Classifier
// =============================================================================

// DefaultTopK is the number of candidates returned when not overridden.
const DefaultTopK = 5

// Candidate is one ranked classification result.
type Candidate struct {
	IntentID string
	Score    float64 // cosine similarity in [-1, 1]
}

// Embedder is the single-call embedding contract the classifier needs.
// Satisfied by *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier ranks catalog intents against a query by cosine similarity.
//
// # Description
//
// An intent's score is the MAXIMUM similarity over its example embeddings —
// the best-matching example wins, never an average. One well-phrased example
// is enough to match a paraphrase; averaging would dilute it with the
// intent's weaker phrasings.
//
// The ranking is a pure function of (query, catalog) given a deterministic
// embedder: the sort is stable, so exact score ties preserve catalog
// insertion order, making repeated calls byte-for-byte reproducible.
//
// # Thread Safety
//
// Safe for concurrent use. The catalog is read-only after warm-up and the
// classifier holds no mutable state.
type Classifier struct {
	cat      *catalog.Catalog
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTopK overrides the number of candidates returned.
func WithTopK(k int) Option {
	return func(c *Classifier) {
		if k > 0 {
			c.topK = k
		}
	}
}

// New creates a Classifier over a warmed catalog.
//
// # Inputs
//
//   - cat: Warmed intent catalog. Must not be nil.
//   - embedder: Embedding provider for live queries. Must be the same model
//     the catalog was warmed with, or scores are incomparable.
//   - logger: Logger. May be nil.
//   - opts: Optional overrides.
//
// # Outputs
//
//   - *Classifier: Ready classifier.
//   - error: Non-nil if cat is nil, unwarmed, or embedder is nil.
func New(cat *catalog.Catalog, embedder Embedder, logger *slog.Logger, opts ...Option) (*Classifier, error) {
	if cat == nil {
		return nil, fmt.Errorf("classifier: catalog must not be nil")
	}
	if !cat.Warmed() {
		return nil, fmt.Errorf("classifier: catalog is not warmed")
	}
	if embedder == nil {
		return nil, fmt.Errorf("classifier: embedder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Classifier{
		cat:      cat,
		embedder: embedder,
		topK:     DefaultTopK,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify embeds the query and returns the top-k intents ranked by score.
//
// # Description
//
// Returns at most topK candidates sorted non-increasing by score; ties keep
// catalog insertion order. An empty query still produces a (likely low)
// embedding and a full ranked list — applying thresholds is the caller's
// job, not the classifier's.
//
// # Inputs
//
//   - ctx: Context for the embedding call.
//   - query: Raw user query text.
//
// # Outputs
//
//   - []Candidate: Ranked candidates, length ≤ topK. Never nil on success.
//   - error: Non-nil only if the embedding call fails.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, query string) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "Classifier.Classify")
	defer span.End()
	span.SetAttributes(
		attribute.Int("catalog.size", c.cat.Len()),
		attribute.String("query_preview", truncate(query, 80)),
	)

	timer := prometheus.NewTimer(classifyLatency)
	defer timer.ObserveDuration()

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return nil, fmt.Errorf("classify: embed query: %w", err)
	}

	queryUnit := embedding.Unit(queryVec)
	if queryUnit == nil {
		// A zero query vector has no direction; every intent scores 0 and
		// catalog order decides the ranking.
		queryUnit = make([]float32, len(queryVec))
	}

	intents := c.cat.All()
	candidates := make([]Candidate, 0, len(intents))
	for _, in := range intents {
		best := -1.0
		for _, ev := range in.ExampleVectors() {
			// Both vectors are unit-normalized: dot product is the cosine.
			if sim := embedding.Dot(queryUnit, ev); sim > best {
				best = sim
			}
		}
		candidates = append(candidates, Candidate{IntentID: in.ID, Score: clamp(best)})
	}

	// Stable sort: equal scores keep catalog insertion order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > c.topK {
		candidates = candidates[:c.topK]
	}

	if len(candidates) > 0 {
		classifyBestScore.Observe(candidates[0].Score)
		span.SetAttributes(
			attribute.String("best_intent", candidates[0].IntentID),
			attribute.Float64("best_score", candidates[0].Score),
		)
		c.logger.Debug("classify: ranked intents",
			slog.String("best_intent", candidates[0].IntentID),
			slog.Float64("best_score", candidates[0].Score),
			slog.Int("returned", len(candidates)),
		)
	}

	return candidates, nil
}

// clamp bounds a cosine score to [-1, 1]; float accumulation can drift a
// hair past the bound.
func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// truncate shortens s to at most n runes for span attributes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
