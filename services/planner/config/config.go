// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads pipeline configuration from an optional YAML file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full pipeline configuration.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment
// variables. Immutable after loading; safe for concurrent use.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Routing   RoutingConfig   `yaml:"routing"`
	Server    ServerConfig    `yaml:"server"`
}

// EmbeddingConfig points at the embedding provider.
type EmbeddingConfig struct {
	// URL is the embedding endpoint (Ollama /api/embed shape).
	URL string `yaml:"url"`

	// Model is the embedding model name. Changing it invalidates the
	// persisted catalog vectors via the corpus hash.
	Model string `yaml:"model"`
}

// LLMConfig points at the chat completion provider.
type LLMConfig struct {
	// Provider selects the chat backend: "ollama" or "openai".
	Provider string `yaml:"provider"`

	URL   string `yaml:"url"`
	Model string `yaml:"model"`

	// Temperature for answer formatting. Low by default: the formatter must
	// restate retrieved facts, not improvise.
	Temperature float64 `yaml:"temperature"`

	// NumCtx is the provider-side context window size.
	NumCtx int `yaml:"num_ctx"`
}

// Neo4jConfig holds graph connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// CatalogConfig locates the intent catalog and its vector cache.
type CatalogConfig struct {
	// Path is the intent catalog JSON file.
	Path string `yaml:"path"`

	// CacheDir is the BadgerDB directory for persisted example embeddings.
	// Empty means in-memory only (vectors recomputed every start).
	CacheDir string `yaml:"cache_dir"`
}

// RoutingConfig carries the pipeline's two independent thresholds.
type RoutingConfig struct {
	// GraphThreshold is the best-score floor above which a query is routed
	// to graph retrieval instead of plain chat.
	GraphThreshold float64 `yaml:"graph_threshold"`

	// PlanMinScore is the per-candidate floor the plan builder applies.
	// Deliberately lower than GraphThreshold: a query worth routing to the
	// graph may still be served best by its second-ranked intent.
	PlanMinScore float64 `yaml:"plan_min_score"`

	// TopK is the number of classification candidates considered.
	TopK int `yaml:"top_k"`
}

// ServerConfig holds HTTP front-end settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			URL:   "http://localhost:11434/api/embed",
			Model: "paraphrase-multilingual",
		},
		LLM: LLMConfig{
			Provider: "ollama",
			// URL and Model empty: each provider client applies its own
			// defaults when unset.
			Temperature: 0.1,
			NumCtx:      8192,
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Catalog: CatalogConfig{
			Path: "intents.json",
		},
		Routing: RoutingConfig{
			GraphThreshold: 0.55,
			PlanMinScore:   0.4,
			TopK:           5,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, in that order.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file layer entirely; a non-empty
//     path that does not exist is an error.
//
// # Outputs
//
//   - Config: Merged configuration.
//   - error: Non-nil on unreadable file, invalid YAML, or invalid values.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of the file values.
func applyEnv(cfg *Config) {
	setString(&cfg.Embedding.URL, "EMBEDDING_SERVICE_URL")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.URL, "LLM_SERVICE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.Neo4j.URI, "NEO4J_URI")
	setString(&cfg.Neo4j.Username, "NEO4J_USERNAME")
	setString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	setString(&cfg.Catalog.Path, "CATALOG_PATH")
	setString(&cfg.Catalog.CacheDir, "ROUTING_CACHE_DIR")
	setInt(&cfg.Server.Port, "PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c Config) validate() error {
	if c.Routing.GraphThreshold < -1 || c.Routing.GraphThreshold > 1 {
		return fmt.Errorf("config: graph_threshold %v outside [-1, 1]", c.Routing.GraphThreshold)
	}
	if c.Routing.PlanMinScore < -1 || c.Routing.PlanMinScore > 1 {
		return fmt.Errorf("config: plan_min_score %v outside [-1, 1]", c.Routing.PlanMinScore)
	}
	if c.Routing.TopK <= 0 {
		return fmt.Errorf("config: top_k must be positive, got %d", c.Routing.TopK)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d outside (0, 65535]", c.Server.Port)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("config: catalog path must not be empty")
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}
