// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog loads and holds the intent catalog: the ontology-derived
// collection of parameterized query intents the planner can resolve a user
// question to.
//
// The catalog file is produced offline by the intent generator from graph
// ontology metadata; this package only reads it. After Load and Warm the
// catalog is immutable and safe to share across concurrent requests without
// locking. Iteration order is file order and is load-bearing: the classifier
// breaks score ties by insertion index.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// =============================================================================
// Entity Types
// =============================================================================

// EntityType selects the extraction and normalization rule for the value an
// intent needs pulled out of the user's question. It is a property of the
// ontology schema, not of the query text: the generator assigns it per
// intent from the property's normalization metadata.
type EntityType string

const (
	EntityCPF         EntityType = "cpf"
	EntityCNPJ        EntityType = "cnpj"
	EntityPhone       EntityType = "phone"
	EntityPlate       EntityType = "plate"
	EntityIMEI        EntityType = "imei"
	EntityRENAVAM     EntityType = "renavam"
	EntityGenericText EntityType = "generic_text"
)

// Known reports whether t is one of the closed set of entity types.
func (t EntityType) Known() bool {
	switch t {
	case EntityCPF, EntityCNPJ, EntityPhone, EntityPlate,
		EntityIMEI, EntityRENAVAM, EntityGenericText:
		return true
	}
	return false
}

// =============================================================================
// Intent
// =============================================================================

// Intent is one parameterized query pattern from the catalog.
//
// # Description
//
// Examples exist purely to derive embeddings — they are never shown to the
// user. HopCount distinguishes direct property lookups (1) from composite
// relationship-traversal intents (2–3); it affects no classification math
// and exists for diagnostics and test selection.
//
// Immutable after Load; the example vectors are attached once by Warm.
type Intent struct {
	ID            string
	Category      string
	Description   string
	EntityType    EntityType
	Property      string
	Examples      []string
	QueryTemplate string
	HopCount      int

	// exampleVectors holds one unit-normalized embedding per example,
	// parallel to Examples. Set exactly once by Catalog.Warm.
	exampleVectors [][]float32
}

// ExampleVectors returns the unit-normalized example embeddings, parallel to
// Examples. Nil before Warm. The returned slices are shared read-only state —
// callers must not mutate them.
func (in *Intent) ExampleVectors() [][]float32 {
	return in.exampleVectors
}

// =============================================================================
// Load Error
// =============================================================================

// LoadError is the fatal-at-startup error for a missing, malformed, or
// incomplete catalog file.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("intent catalog %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("intent catalog %q: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the in-memory intent collection, read-only after Load.
type Catalog struct {
	intents []*Intent
	byID    map[string]*Intent
	warmed  bool
	model   string // embedding model the vectors were computed with
}

// fileConfig mirrors the generator's JSON output.
type fileConfig struct {
	Version string       `json:"version"`
	Intents []fileIntent `json:"intents"`
}

type fileIntent struct {
	ID             string   `json:"intent_id"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	EntityType     string   `json:"entity_type"`
	Property       string   `json:"property"`
	Examples       []string `json:"examples"`
	CypherTemplate string   `json:"cypher_template"`
	Hops           int      `json:"hops"`
}

// Load reads and validates the catalog file.
//
// # Description
//
// Fails with *LoadError if the file is missing or malformed, if any intent
// lacks a required field (intent_id, entity_type, cypher_template, at least
// one example), if an entity type is outside the closed set, or if two
// intents share an id. Does NOT call the embedding provider — call Warm
// before handing the catalog to a classifier.
//
// # Inputs
//
//   - path: Catalog JSON file path.
//
// # Outputs
//
//   - *Catalog: Validated catalog in file order. Never nil on success.
//   - error: *LoadError on any failure.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "read file", Err: err}
	}

	var cfg fileConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &LoadError{Path: path, Reason: "parse JSON", Err: err}
	}
	if len(cfg.Intents) == 0 {
		return nil, &LoadError{Path: path, Reason: "no intents defined"}
	}

	cat := &Catalog{
		intents: make([]*Intent, 0, len(cfg.Intents)),
		byID:    make(map[string]*Intent, len(cfg.Intents)),
	}

	for i, fi := range cfg.Intents {
		if fi.ID == "" {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("intent at index %d has no intent_id", i)}
		}
		if fi.EntityType == "" {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("intent %q has no entity_type", fi.ID)}
		}
		et := EntityType(fi.EntityType)
		if !et.Known() {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("intent %q has unknown entity_type %q", fi.ID, fi.EntityType)}
		}
		if fi.CypherTemplate == "" {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("intent %q has no cypher_template", fi.ID)}
		}
		if len(fi.Examples) == 0 {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("intent %q has no examples", fi.ID)}
		}
		if _, dup := cat.byID[fi.ID]; dup {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("duplicate intent_id %q", fi.ID)}
		}

		in := &Intent{
			ID:            fi.ID,
			Category:      fi.Category,
			Description:   fi.Description,
			EntityType:    et,
			Property:      fi.Property,
			Examples:      fi.Examples,
			QueryTemplate: fi.CypherTemplate,
			HopCount:      fi.Hops,
		}
		cat.intents = append(cat.intents, in)
		cat.byID[in.ID] = in
	}

	return cat, nil
}

// All returns the intents in catalog insertion order. The returned slice is
// shared read-only state — callers must not mutate it.
func (c *Catalog) All() []*Intent {
	return c.intents
}

// Get returns the intent with the given id, if present.
func (c *Catalog) Get(id string) (*Intent, bool) {
	in, ok := c.byID[id]
	return in, ok
}

// Len returns the number of intents.
func (c *Catalog) Len() int {
	return len(c.intents)
}

// Warmed reports whether example embeddings have been computed.
func (c *Catalog) Warmed() bool {
	return c.warmed
}

// Model returns the embedding model name the catalog was warmed with.
// Empty before Warm.
func (c *Catalog) Model() string {
	return c.model
}
