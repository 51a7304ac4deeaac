// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Record is one flattened result row, keyed by property name.
type Record map[string]any

// internalKeys are ontology bookkeeping properties that carry no
// investigative value and never reach the answer layer.
var internalKeys = map[string]bool{
	"uri":       true,
	"localName": true,
}

// flattenRecord collapses a driver record into a flat property map.
//
// Catalog templates conventionally return a single aliased value (RETURN n
// AS resultado); when that value is a node or map, its properties become the
// record. Multi-column records keep their column names as keys.
func flattenRecord(rec *neo4j.Record) Record {
	if len(rec.Keys) == 1 {
		if m, ok := sanitize(rec.Values[0]).(map[string]any); ok {
			return m
		}
	}
	out := make(Record, len(rec.Keys))
	for i, key := range rec.Keys {
		if internalKeys[key] {
			continue
		}
		out[key] = sanitize(rec.Values[i])
	}
	return out
}

// sanitize converts driver values to plain Go values: nodes and
// relationships collapse to their property maps, containers recurse, and
// internal keys are dropped.
func sanitize(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return sanitizeMap(val.Props)
	case dbtype.Relationship:
		return sanitizeMap(val.Props)
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, sanitize(item))
		}
		return out
	default:
		return v
	}
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if internalKeys[k] {
			continue
		}
		out[k] = sanitize(v)
	}
	return out
}
