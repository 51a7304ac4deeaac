// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Routing.GraphThreshold != 0.55 {
		t.Errorf("GraphThreshold = %v, want 0.55", cfg.Routing.GraphThreshold)
	}
	if cfg.Routing.PlanMinScore != 0.4 {
		t.Errorf("PlanMinScore = %v, want 0.4", cfg.Routing.PlanMinScore)
	}
	if cfg.Routing.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Routing.TopK)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	raw := `
routing:
  graph_threshold: 0.6
  top_k: 3
neo4j:
  uri: bolt://graph:7687
catalog:
  path: /etc/casegraph/intents.json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Routing.GraphThreshold != 0.6 {
		t.Errorf("GraphThreshold = %v, want 0.6", cfg.Routing.GraphThreshold)
	}
	if cfg.Routing.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Routing.TopK)
	}
	if cfg.Neo4j.URI != "bolt://graph:7687" {
		t.Errorf("Neo4j.URI = %s, want bolt://graph:7687", cfg.Neo4j.URI)
	}
	// Untouched sections keep defaults.
	if cfg.Routing.PlanMinScore != 0.4 {
		t.Errorf("PlanMinScore = %v, want default 0.4", cfg.Routing.PlanMinScore)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	raw := "embedding:\n  model: file-model\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("EMBEDDING_MODEL", "env-model")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Embedding.Model != "env-model" {
		t.Errorf("Embedding.Model = %s, want env-model", cfg.Embedding.Model)
	}
	if cfg.Neo4j.Password != "secret" {
		t.Errorf("Neo4j.Password = %s, want secret", cfg.Neo4j.Password)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() with missing file returned nil error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"threshold out of range", "routing:\n  graph_threshold: 1.5\n"},
		{"zero top_k", "routing:\n  top_k: 0\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"empty catalog path", "catalog:\n  path: \"\"\n"},
		{"unknown llm provider", "llm:\n  provider: cohere\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.raw), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}
