// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chat wires classification, planning, execution and answer
// formatting into the end-to-end ask pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/casegraph/casegraph/services/planner/classify"
	"github.com/casegraph/casegraph/services/planner/graph"
	"github.com/casegraph/casegraph/services/planner/plan"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var askRoutes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "casegraph",
	Subsystem: "chat",
	Name:      "ask_routes_total",
	Help:      "Ask pipeline routing decisions",
}, []string{"source"}) // graph | chat

var tracer = otel.Tracer("casegraph.chat")

// =============================================================================
// Pipeline Contracts
// =============================================================================

// DefaultGraphThreshold is the best-score floor above which a query is
// routed through graph retrieval. Deliberately higher than the plan
// builder's candidate floor: routing decides whether to consult the graph
// at all, planning decides which intent to trust.
const DefaultGraphThreshold = 0.55

// noRecordsInfo is injected as context when retrieval ran and found
// nothing, so the model states the absence instead of improvising.
const noRecordsInfo = "Nenhum registro encontrado no banco de dados para esta consulta."

// IntentClassifier ranks catalog intents for a query.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) ([]classify.Candidate, error)
}

// PlanBuilder assembles an executable plan from ranked candidates.
type PlanBuilder interface {
	Build(ctx context.Context, query string, candidates []classify.Candidate) (*plan.Plan, error)
}

// GraphExecutor runs a bound plan against the graph.
type GraphExecutor interface {
	Execute(ctx context.Context, intentID, cypher string, params map[string]any) ([]graph.Record, error)
}

// AnswerFormatter renders the final reply. Nil records means chat-only.
type AnswerFormatter interface {
	Answer(ctx context.Context, query string, records []graph.Record) (string, error)
}

// Response is the pipeline's reply to one question.
type Response struct {
	RequestID   string  `json:"request_id"`
	Answer      string  `json:"answer"`
	Source      string  `json:"source"` // "graph" or "chat"
	IntentID    string  `json:"intent_id,omitempty"`
	BestScore   float64 `json:"best_score"`
	RecordCount int     `json:"record_count"`
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline answers free-text questions, consulting the case graph when the
// question matches a catalog intent well enough.
//
// # Description
//
// Every question is classified. Above the graph threshold the pipeline
// builds and executes a plan and grounds the answer in the retrieved
// records; below it, or when planning or execution cannot produce records,
// the question falls back to plain chat. Retrieval that runs and finds
// nothing is not a fallback: the model is told explicitly that no records
// exist.
//
// # Thread Safety
//
// Safe for concurrent use; all collaborators are.
type Pipeline struct {
	classifier IntentClassifier
	builder    PlanBuilder
	executor   GraphExecutor
	formatter  AnswerFormatter
	threshold  float64
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGraphThreshold overrides the graph routing floor.
func WithGraphThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(classifier IntentClassifier, builder PlanBuilder, executor GraphExecutor, formatter AnswerFormatter, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if classifier == nil || builder == nil || executor == nil || formatter == nil {
		return nil, fmt.Errorf("chat: all pipeline collaborators are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		classifier: classifier,
		builder:    builder,
		executor:   executor,
		formatter:  formatter,
		threshold:  DefaultGraphThreshold,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ask answers one question end to end.
//
// # Inputs
//
//   - ctx: Context for the whole question.
//   - query: Raw user question.
//
// # Outputs
//
//   - *Response: Answer plus routing telemetry.
//   - error: Non-nil only when classification or answer formatting fails;
//     planning and execution failures degrade to plain chat instead.
func (p *Pipeline) Ask(ctx context.Context, query string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ask")
	defer span.End()

	requestID := uuid.NewString()
	logger := p.logger.With(slog.String("request_id", requestID))
	span.SetAttributes(attribute.String("request_id", requestID))

	candidates, err := p.classifier.Classify(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return nil, fmt.Errorf("chat: classify: %w", err)
	}

	var bestScore float64
	if len(candidates) > 0 {
		bestScore = candidates[0].Score
	}
	span.SetAttributes(attribute.Float64("best_score", bestScore))

	resp := &Response{
		RequestID: requestID,
		Source:    "chat",
		BestScore: bestScore,
	}

	// Nil records means chat-only; the formatter skips the grounding
	// headings entirely.
	var records []graph.Record

	if bestScore > p.threshold {
		records = p.retrieve(ctx, logger, query, candidates, resp)
	} else {
		logger.Debug("chat: below graph threshold, answering freely",
			slog.Float64("best_score", bestScore),
			slog.Float64("threshold", p.threshold),
		)
	}

	askRoutes.WithLabelValues(resp.Source).Inc()

	answer, err := p.formatter.Answer(ctx, query, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer formatting failed")
		return nil, fmt.Errorf("chat: format answer: %w", err)
	}
	resp.Answer = answer
	return resp, nil
}

// retrieve runs the graph leg. It returns nil (plain chat) when planning or
// execution cannot produce records, and a one-record info context when the
// query ran clean but matched nothing.
func (p *Pipeline) retrieve(ctx context.Context, logger *slog.Logger, query string, candidates []classify.Candidate, resp *Response) []graph.Record {
	pl, err := p.builder.Build(ctx, query, candidates)
	if err != nil {
		var rejected *plan.RejectedError
		if errors.As(err, &rejected) {
			logger.Info("chat: plan rejected, answering freely",
				slog.Float64("best_score", rejected.BestScore),
				slog.String("reason", rejected.Reason),
			)
		} else {
			logger.Error("chat: plan build failed", slog.String("error", err.Error()))
		}
		return nil
	}

	resp.IntentID = pl.IntentID
	records, err := p.executor.Execute(ctx, pl.IntentID, pl.QueryTemplate, pl.Parameters)
	if err != nil {
		logger.Error("chat: graph execution failed, answering freely",
			slog.String("intent_id", pl.IntentID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	resp.Source = "graph"
	resp.RecordCount = len(records)
	if len(records) == 0 {
		logger.Info("chat: query matched no records", slog.String("intent_id", pl.IntentID))
		return []graph.Record{{"info": noRecordsInfo}}
	}
	logger.Info("chat: grounded answer",
		slog.String("intent_id", pl.IntentID),
		slog.Int("records", len(records)),
	)
	return records
}
