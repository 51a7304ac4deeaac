// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package plan turns a ranked candidate list into a single executable query
// plan, or a typed rejection explaining why no plan could be assembled.
package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/casegraph/casegraph/services/planner/catalog"
	"github.com/casegraph/casegraph/services/planner/classify"
	"github.com/casegraph/casegraph/services/planner/extract"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var planOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "casegraph",
	Subsystem: "plan",
	Name:      "outcomes_total",
	Help:      "Plan assembly outcomes by result",
}, []string{"outcome"}) // built | rejected_score | rejected_extraction

var tracer = otel.Tracer("casegraph.planner.plan")

// =============================================================================
// Plan
// =============================================================================

// DefaultMinScore is the similarity floor a candidate must clear before the
// builder spends an extraction attempt on it. Queries scoring below it across
// the board are considered off-catalog.
const DefaultMinScore = 0.4

// ValueParam is the parameter name every catalog query template binds its
// extracted value under.
const ValueParam = "value"

// Plan is a fully-bound, executable graph query. The template travels
// verbatim from the catalog; the extracted value rides only in Parameters,
// never spliced into the query text.
type Plan struct {
	IntentID      string
	QueryTemplate string
	Parameters    map[string]any
	SourceScore   float64
}

// RejectedError reports that no candidate produced a plan. BestScore carries
// the top similarity seen so callers can decide how to degrade (e.g. route
// the query to plain chat).
type RejectedError struct {
	BestScore float64
	Reason    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("plan rejected: %s (best score %.3f)", e.Reason, e.BestScore)
}

// =============================================================================
// Builder
// =============================================================================

// Builder assembles plans from classification candidates.
//
// # Description
//
// The first candidate at or above the score floor gets one extraction
// attempt. By default that attempt is decisive: if extraction fails, the
// whole build is rejected rather than silently sliding to a lower-ranked
// intent and executing a query the user did not ask. Fallthrough to later
// candidates is an explicit opt-in.
//
// # Thread Safety
//
// Safe for concurrent use; the builder is read-only after construction.
type Builder struct {
	cat      *catalog.Catalog
	minScore float64
	fallthru bool
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithMinScore overrides the candidate score floor.
func WithMinScore(s float64) Option {
	return func(b *Builder) { b.minScore = s }
}

// WithCandidateFallthrough lets the builder try lower-ranked candidates when
// a higher-ranked one clears the floor but fails extraction. Off by default:
// a wrong-intent query against the graph is worse than an honest rejection.
func WithCandidateFallthrough() Option {
	return func(b *Builder) { b.fallthru = true }
}

// NewBuilder creates a Builder over a loaded catalog.
func NewBuilder(cat *catalog.Catalog, logger *slog.Logger, opts ...Option) (*Builder, error) {
	if cat == nil {
		return nil, fmt.Errorf("plan: catalog must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		cat:      cat,
		minScore: DefaultMinScore,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build assembles an executable plan from ranked candidates.
//
// # Description
//
// Walks the candidates in rank order. The first one at or above the floor is
// resolved against the catalog and handed to the extractor; on success the
// plan binds the intent's template with the normalized value under
// ValueParam. On extraction failure the build rejects (or, with fallthrough
// enabled, continues down the list). An empty candidate list or one with no
// candidate above the floor rejects with the best score seen.
//
// # Inputs
//
//   - ctx: Context for tracing only; the builder itself does no I/O.
//   - query: Raw user query text, handed to the extractor.
//   - candidates: Ranked candidates from the classifier.
//
// # Outputs
//
//   - *Plan: Executable plan. Nil exactly when error is non-nil.
//   - error: *RejectedError when no plan could be built; other errors only
//     for catalog inconsistencies (candidate naming an unknown intent).
func (b *Builder) Build(ctx context.Context, query string, candidates []classify.Candidate) (*Plan, error) {
	_, span := tracer.Start(ctx, "Builder.Build")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		planOutcomes.WithLabelValues("rejected_score").Inc()
		return nil, &RejectedError{BestScore: 0, Reason: "no candidates"}
	}

	best := candidates[0].Score
	eligible := 0
	for _, cand := range candidates {
		if cand.Score < b.minScore {
			// Candidates are sorted: everything after is below the floor too.
			break
		}
		eligible++

		in, ok := b.cat.Get(cand.IntentID)
		if !ok {
			return nil, fmt.Errorf("plan: candidate references unknown intent %q", cand.IntentID)
		}

		res := extract.Extract(query, in.EntityType)
		if !res.Valid {
			b.logger.Debug("plan: extraction failed for candidate",
				slog.String("intent_id", in.ID),
				slog.String("entity_type", string(in.EntityType)),
				slog.Float64("score", cand.Score),
			)
			if b.fallthru {
				continue
			}
			planOutcomes.WithLabelValues("rejected_extraction").Inc()
			span.SetAttributes(attribute.String("rejected_intent", in.ID))
			return nil, &RejectedError{
				BestScore: best,
				Reason:    fmt.Sprintf("intent %s matched but no %s value found in query", in.ID, in.EntityType),
			}
		}

		planOutcomes.WithLabelValues("built").Inc()
		span.SetAttributes(
			attribute.String("intent_id", in.ID),
			attribute.Float64("score", cand.Score),
		)
		b.logger.Info("plan: built",
			slog.String("intent_id", in.ID),
			slog.Float64("score", cand.Score),
			slog.String("entity_type", string(in.EntityType)),
		)
		return &Plan{
			IntentID:      in.ID,
			QueryTemplate: in.QueryTemplate,
			Parameters:    map[string]any{ValueParam: res.NormalizedValue},
			SourceScore:   cand.Score,
		}, nil
	}

	if eligible == 0 {
		planOutcomes.WithLabelValues("rejected_score").Inc()
		return nil, &RejectedError{
			BestScore: best,
			Reason:    fmt.Sprintf("best candidate score below floor %.2f", b.minScore),
		}
	}

	// Fallthrough exhausted every eligible candidate without a value.
	planOutcomes.WithLabelValues("rejected_extraction").Inc()
	return nil, &RejectedError{
		BestScore: best,
		Reason:    "no eligible candidate yielded an entity value",
	}
}
