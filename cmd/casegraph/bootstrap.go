// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casegraph/casegraph/services/answer"
	"github.com/casegraph/casegraph/services/chat"
	"github.com/casegraph/casegraph/services/llm"
	"github.com/casegraph/casegraph/services/planner/catalog"
	"github.com/casegraph/casegraph/services/planner/classify"
	"github.com/casegraph/casegraph/services/planner/config"
	"github.com/casegraph/casegraph/services/planner/embedding"
	"github.com/casegraph/casegraph/services/planner/graph"
	"github.com/casegraph/casegraph/services/planner/plan"
	"github.com/casegraph/casegraph/services/planner/storage/badgerdb"
)

// buildPipeline wires the full ask pipeline from configuration.
//
// # Description
//
// Loads config, opens the vector cache, loads and warms the intent catalog,
// connects to the graph, and assembles the pipeline. The returned cleanup
// function closes the cache and graph connections and is safe to call after
// a partial failure path has already returned an error. The loaded config
// comes back so commands can read their own sections (server port).
func buildPipeline(ctx context.Context) (*chat.Pipeline, config.Config, func(), error) {
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, func() {}, err
	}

	db, err := badgerdb.Open(cfg.Catalog.CacheDir, logger)
	if err != nil {
		// The cache only saves warm-up calls; run without it.
		logger.Warn("vector cache unavailable, warming without persistence",
			slog.String("dir", cfg.Catalog.CacheDir),
			slog.String("error", err.Error()),
		)
		db = nil
	}

	cleanup := func() {
		if db != nil {
			if err := db.Close(); err != nil {
				logger.Warn("closing vector cache", slog.String("error", err.Error()))
			}
		}
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, logger)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, cfg, cleanup, err
	}
	var store embedding.Store
	if db != nil {
		store = embedding.NewBadgerStore(db, 0, logger)
	}
	if err := cat.Warm(ctx, embedder, store, logger); err != nil {
		return nil, cfg, cleanup, fmt.Errorf("warming intent catalog: %w", err)
	}
	logger.Info("intent catalog ready",
		slog.Int("intents", cat.Len()),
		slog.String("model", cat.Model()),
	)

	classifier, err := classify.New(cat, embedder, logger, classify.WithTopK(cfg.Routing.TopK))
	if err != nil {
		return nil, cfg, cleanup, err
	}

	builder, err := plan.NewBuilder(cat, logger, plan.WithMinScore(cfg.Routing.PlanMinScore))
	if err != nil {
		return nil, cfg, cleanup, err
	}

	executor, err := graph.Connect(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
	if err != nil {
		return nil, cfg, cleanup, fmt.Errorf("connecting to graph: %w", err)
	}
	fullCleanup := func() {
		if err := executor.Close(context.Background()); err != nil {
			logger.Warn("closing graph driver", slog.String("error", err.Error()))
		}
		cleanup()
	}

	var chatClient llm.ChatClient
	switch cfg.LLM.Provider {
	case "openai":
		chatClient, err = llm.NewOpenAIClient(cfg.LLM.URL, cfg.LLM.Model, logger)
		if err != nil {
			return nil, cfg, fullCleanup, err
		}
	default:
		chatClient = llm.NewOllamaClient(cfg.LLM.URL, cfg.LLM.Model, logger)
	}
	formatter, err := answer.NewFormatter(chatClient, cfg.LLM.Temperature, cfg.LLM.NumCtx, logger)
	if err != nil {
		return nil, cfg, fullCleanup, err
	}

	pipeline, err := chat.NewPipeline(classifier, builder, executor, formatter, logger,
		chat.WithGraphThreshold(cfg.Routing.GraphThreshold))
	if err != nil {
		return nil, cfg, fullCleanup, err
	}
	return pipeline, cfg, fullCleanup, nil
}
