// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// fakeRun records what the executor hands the driver and plays back canned
// records.
type fakeRun struct {
	gotCypher string
	gotParams map[string]any
	records   []*neo4j.Record
	err       error
}

func (f *fakeRun) run(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	f.gotCypher = cypher
	f.gotParams = params
	return f.records, f.err
}

func newFakeExecutor(f *fakeRun) *Executor {
	return &Executor{
		run:    f.run,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestExecuteSendsTemplateVerbatim(t *testing.T) {
	f := &fakeRun{}
	e := newFakeExecutor(f)

	template := "MATCH (n:TargetPerson) WHERE n.cpf = $value RETURN n AS resultado"
	params := map[string]any{"value": "11122233344"}
	if _, err := e.Execute(context.Background(), "intent_cpf_search", template, params); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// The value must ride only in the parameter map, never in the query text.
	if f.gotCypher != template {
		t.Errorf("cypher sent = %q, want template verbatim", f.gotCypher)
	}
	if !reflect.DeepEqual(f.gotParams, params) {
		t.Errorf("params sent = %v, want %v", f.gotParams, params)
	}
}

func TestExecuteFlattensNodeRecords(t *testing.T) {
	f := &fakeRun{records: []*neo4j.Record{
		{
			Keys: []string{"resultado"},
			Values: []any{dbtype.Node{Props: map[string]any{
				"personFullName": "Maria Souza",
				"cpf":            "11122233344",
				"uri":            "http://ontology/person#p1",
				"localName":      "p1",
			}}},
		},
	}}
	e := newFakeExecutor(f)

	got, err := e.Execute(context.Background(), "intent_cpf_search", "MATCH ...", map[string]any{"value": "11122233344"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	want := Record{"personFullName": "Maria Souza", "cpf": "11122233344"}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("record = %v, want %v (node flattened, internal keys stripped)", got[0], want)
	}
}

func TestExecuteKeepsMultiColumnKeys(t *testing.T) {
	f := &fakeRun{records: []*neo4j.Record{
		{
			Keys: []string{"nome", "placa", "uri"},
			Values: []any{
				"João Lima",
				dbtype.Node{Props: map[string]any{"plate": "ABC1D23", "localName": "v9"}},
				"http://ontology/x",
			},
		},
	}}
	e := newFakeExecutor(f)

	got, err := e.Execute(context.Background(), "intent_plate_owner", "MATCH ...", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := Record{
		"nome":  "João Lima",
		"placa": map[string]any{"plate": "ABC1D23"},
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("record = %v, want %v", got[0], want)
	}
}

func TestExecuteEmptyResultIsNotAnError(t *testing.T) {
	e := newFakeExecutor(&fakeRun{})

	got, err := e.Execute(context.Background(), "intent_cpf_search", "MATCH ...", nil)
	if err != nil {
		t.Fatalf("Execute() with zero records error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(records) = %d, want 0", len(got))
	}
}

func TestExecuteWrapsDriverErrors(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	e := newFakeExecutor(&fakeRun{err: cause})

	_, err := e.Execute(context.Background(), "intent_phone_search", "MATCH ...", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *ExecutionError", err)
	}
	if execErr.IntentID != "intent_phone_search" {
		t.Errorf("IntentID = %s, want intent_phone_search", execErr.IntentID)
	}
	if !errors.Is(err, cause) {
		t.Error("ExecutionError does not unwrap to the driver error")
	}
}

func TestSanitizeRecursesLists(t *testing.T) {
	got := sanitize([]any{
		dbtype.Node{Props: map[string]any{"cpf": "111", "uri": "x"}},
		"plain",
	})
	want := []any{map[string]any{"cpf": "111"}, "plain"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sanitize() = %v, want %v", got, want)
	}
}

func TestConnectRequiresURI(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}, nil); err == nil {
		t.Fatal("Connect() with empty URI returned nil error")
	}
}
