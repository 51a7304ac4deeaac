// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract pulls the entity value an intent needs out of the raw
// query text and normalizes it to the canonical form stored in the graph.
//
// Normalization type is a property of the ontology schema, not of the query
// text: the package is a pure dispatch table from entity type to rule.
// Adding a type is one table entry plus a rule. Extraction never errors —
// text that contains no valid entity is a normal, expected outcome reported
// as Valid=false.
package extract

import (
	"regexp"
	"strings"

	"github.com/casegraph/casegraph/services/planner/catalog"
)

// Result is the outcome of one extraction attempt.
//
// Invariant: Valid=false implies NormalizedValue is empty; Valid=true
// implies NormalizedValue matches the entity type's canonical grammar
// exactly (e.g. CPF: ^\d{11}$, plate: ^[A-Z]{3}\d[A-Z0-9]\d{2}$).
type Result struct {
	RawText         string
	NormalizedValue string
	EntityType      catalog.EntityType
	Valid           bool
}

// rule locates, normalizes, and validates a candidate value in query text.
// Returns ("", false) when no valid value is present.
type rule func(query string) (string, bool)

// rules is the strategy table from entity type to normalization rule.
var rules = map[catalog.EntityType]rule{
	catalog.EntityCPF:         digitRun(11, 11),
	catalog.EntityCNPJ:        digitRun(14, 14),
	catalog.EntityPhone:       digitRun(10, 11),
	catalog.EntityIMEI:        digitRun(14, 15),
	catalog.EntityRENAVAM:     digitRun(9, 11),
	catalog.EntityPlate:       plateRule,
	catalog.EntityGenericText: textRule,
}

// Extract applies the entity type's rule to the query text.
//
// # Description
//
// Pure function: no state, no side effects, never an error. An unknown
// entity type (impossible for a loaded catalog, which rejects them) yields
// Valid=false.
//
// # Inputs
//
//   - query: Raw user query text.
//   - entityType: The intent's declared entity type.
//
// # Outputs
//
//   - Result: Extraction outcome. Valid=false for non-matching text.
func Extract(query string, entityType catalog.EntityType) Result {
	r, ok := rules[entityType]
	if !ok {
		return Result{RawText: query, EntityType: entityType}
	}
	value, valid := r(query)
	if !valid {
		return Result{RawText: query, EntityType: entityType}
	}
	return Result{
		RawText:         query,
		NormalizedValue: value,
		EntityType:      entityType,
		Valid:           valid,
	}
}

// =============================================================================
// Numeric Rules
// =============================================================================

// digitRunPattern locates maximal runs of digits possibly broken by the
// separator characters people type inside documents and phone numbers:
// spaces, dots, dashes, slashes, parentheses. "(11) 99988-7766" and
// "111.222.333-44" are each a single run.
var digitRunPattern = regexp.MustCompile(`[0-9][0-9()\s./-]*[0-9]|[0-9]`)

// digitRun builds a rule for digit-shaped identifiers: locate each candidate
// run, strip everything that is not a digit, and accept the first run whose
// digit count falls in [min, max].
func digitRun(min, max int) rule {
	return func(query string) (string, bool) {
		for _, run := range digitRunPattern.FindAllString(query, -1) {
			digits := stripNonDigits(run)
			if len(digits) >= min && len(digits) <= max {
				return digits, true
			}
		}
		return "", false
	}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// =============================================================================
// Plate Rule
// =============================================================================

// platePattern matches Brazilian plates in both the legacy (ABC1234,
// ABC-1234) and Mercosur (ABC1D23, ABC-1D23) grammars. The second position
// class covers both: a digit there is legacy, a letter is Mercosur.
var platePattern = regexp.MustCompile(`\b[A-Z]{3}[- ]?[0-9][A-Z0-9][0-9]{2}\b`)

// plateCanonical is the canonical normalized form: uppercase, no separators.
// Legacy LLLNNNN is a subset (digit in the [A-Z0-9] slot).
var plateCanonical = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z0-9][0-9]{2}$`)

// plateRule uppercases the query, locates a plate-shaped token, strips the
// optional separator, and re-validates against the canonical grammar. The
// graph stores plates clean and uppercase, so the bound value must be too.
func plateRule(query string) (string, bool) {
	upper := strings.ToUpper(query)
	match := platePattern.FindString(upper)
	if match == "" {
		return "", false
	}
	value := strings.NewReplacer("-", "", " ", "").Replace(match)
	if !plateCanonical.MatchString(value) {
		return "", false
	}
	return value, true
}

// =============================================================================
// Text Rule
// =============================================================================

// textRule handles free-text values (brands, names, models). The value
// almost always trails the query ("veículo marca Toyota"), so it takes the
// last substantive word — longer than two runes, skipping connectives like
// "de"/"da" — falling back to the last word of any length.
func textRule(query string) (string, bool) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "", false
	}
	for i := len(words) - 1; i >= 0; i-- {
		w := strings.TrimRight(words[i], ".,!?;:")
		if len([]rune(w)) > 2 {
			return w, true
		}
	}
	last := strings.TrimRight(words[len(words)-1], ".,!?;:")
	if last == "" {
		return "", false
	}
	return last, true
}
