// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph executes bound query plans against the Neo4j case graph and
// returns flattened, presentation-ready records.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	executeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "casegraph",
		Subsystem: "graph",
		Name:      "execute_latency_seconds",
		Help:      "Graph query execution latency",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1.0, 5.0},
	})

	executeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "casegraph",
		Subsystem: "graph",
		Name:      "execute_errors_total",
		Help:      "Graph query executions that returned an error",
	})
)

var tracer = otel.Tracer("casegraph.planner.graph")

// =============================================================================
// Configuration
// =============================================================================

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string

	// Connection backoff. Zero values take the defaults below.
	MaxConnectAttempts int
	ConnectTimeout     time.Duration
}

const (
	defaultConnectAttempts = 5
	defaultConnectTimeout  = 10 * time.Second
	connectBaseDelay       = 100 * time.Millisecond
)

// ExecutionError wraps any failure while running a plan against the graph.
// Execution is not retried: by the time a plan exists the query shape is
// known-good, so failures are environmental and the caller decides whether
// to degrade or surface them.
type ExecutionError struct {
	IntentID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("graph execution failed for intent %s: %v", e.IntentID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// =============================================================================
// Executor
// =============================================================================

// runFunc executes one read query. Indirection point for tests.
type runFunc func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)

// Executor runs bound plans against the graph.
//
// # Description
//
// Queries always travel as (template, parameters): the extracted value is
// bound under its parameter name by the driver, never interpolated into the
// query text. Read-only sessions; the pipeline never writes to the graph.
//
// # Thread Safety
//
// Safe for concurrent use. The driver pools connections internally.
type Executor struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
	run      runFunc
}

// Connect builds an Executor, dialing Neo4j with exponential backoff.
//
// # Inputs
//
//   - ctx: Bounds the whole connection attempt, including backoff waits.
//   - cfg: Connection settings. URI, Username and Password are required.
//   - logger: Logger. May be nil.
//
// # Outputs
//
//   - *Executor: Connected executor with verified connectivity.
//   - error: Non-nil if every attempt failed or ctx was cancelled.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph: URI must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.MaxConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driverConfig := func(c *neo4j.Config) {
		c.ConnectionAcquisitionTimeout = timeout
	}

	var driver neo4j.DriverWithContext
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		d, err := neo4j.NewDriverWithContext(cfg.URI, auth, driverConfig)
		if err == nil {
			if err = d.VerifyConnectivity(ctx); err == nil {
				driver = d
				break
			}
			_ = d.Close(ctx)
		}
		lastErr = err

		delay := connectBaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > timeout {
			delay = timeout
		}
		logger.Warn("graph: connection attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("graph: connect cancelled: %w", ctx.Err())
		}
	}
	if driver == nil {
		return nil, fmt.Errorf("graph: connect failed after %d attempts: %w", attempts, lastErr)
	}

	e := &Executor{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}
	e.run = e.runSession
	logger.Info("graph: connected", slog.String("uri", cfg.URI), slog.String("database", cfg.Database))
	return e, nil
}

// Close releases the driver's connection pool.
func (e *Executor) Close(ctx context.Context) error {
	if e.driver == nil {
		return nil
	}
	return e.driver.Close(ctx)
}

// Execute runs a bound plan and returns flattened records.
//
// # Description
//
// Runs the template in a read session with the plan's parameters bound by
// the driver. Each returned record is flattened: graph nodes collapse to
// their property maps, with the internal "uri" and "localName" bookkeeping
// keys removed. Zero records with a nil error is the normal "no data"
// outcome, not a failure.
//
// # Inputs
//
//   - ctx: Context for the session.
//   - intentID: Originating intent, carried into errors and telemetry.
//   - cypher: Query template, passed to the driver verbatim.
//   - params: Named parameters, including the extracted value.
//
// # Outputs
//
//   - []Record: Flattened result records. May be empty.
//   - error: *ExecutionError wrapping any driver failure.
func (e *Executor) Execute(ctx context.Context, intentID, cypher string, params map[string]any) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "Executor.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("intent_id", intentID))

	timer := prometheus.NewTimer(executeLatency)
	defer timer.ObserveDuration()

	raw, err := e.run(ctx, cypher, params)
	if err != nil {
		executeErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, &ExecutionError{IntentID: intentID, Err: err}
	}

	records := make([]Record, 0, len(raw))
	for _, rec := range raw {
		records = append(records, flattenRecord(rec))
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	e.logger.Debug("graph: query executed",
		slog.String("intent_id", intentID),
		slog.Int("records", len(records)),
	)
	return records, nil
}

// runSession is the production runFunc: one read transaction per query.
func (e *Executor) runSession(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}
