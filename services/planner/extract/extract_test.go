// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"regexp"
	"testing"

	"github.com/casegraph/casegraph/services/planner/catalog"
)

func TestExtractTable(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		entity    catalog.EntityType
		wantValid bool
		wantValue string
	}{
		// CPF: exactly 11 digits, separators stripped.
		{"cpf formatted", "Buscar pessoa com CPF 123.456.789-00", catalog.EntityCPF, true, "12345678900"},
		{"cpf bare", "Quais mensagens o CPF 12345678900 enviou?", catalog.EntityCPF, true, "12345678900"},
		{"cpf already normalized", "11122233344", catalog.EntityCPF, true, "11122233344"},
		{"cpf punctuated", "Buscar CPF de 111.222.333-44", catalog.EntityCPF, true, "11122233344"},
		{"cpf too short", "Search for person with CPF abc", catalog.EntityCPF, false, ""},
		{"cpf wrong length", "Buscar CPF 12345", catalog.EntityCPF, false, ""},

		// CNPJ: exactly 14 digits.
		{"cnpj formatted", "Buscar empresa com CNPJ 12.345.678/0001-99", catalog.EntityCNPJ, true, "12345678000199"},
		{"cnpj cpf-sized run", "Buscar CNPJ 123.456.789-00", catalog.EntityCNPJ, false, ""},

		// Phone: 10-11 digits.
		{"phone formatted", "Localizar telefone (11) 99988-7766", catalog.EntityPhone, true, "11999887766"},
		{"phone landline", "Telefone 2133334444", catalog.EntityPhone, true, "2133334444"},
		{"phone with full format", "Telefone (21) 98765-4321", catalog.EntityPhone, true, "21987654321"},
		{"phone too short", "Telefone 4444", catalog.EntityPhone, false, ""},

		// IMEI: 14-15 digits.
		{"imei", "Localizar equipamento com IMEI 123456789012345", catalog.EntityIMEI, true, "123456789012345"},
		{"imei 14 digits", "IMEI 12345678901234", catalog.EntityIMEI, true, "12345678901234"},
		{"imei missing", "Localizar equipamento com IMEI", catalog.EntityIMEI, false, ""},

		// RENAVAM: 9-11 digits.
		{"renavam", "Buscar registro com RENAVAM 12345678901", catalog.EntityRENAVAM, true, "12345678901"},
		{"renavam 9 digits", "RENAVAM 123456789", catalog.EntityRENAVAM, true, "123456789"},

		// Plate: legacy and Mercosur grammars, canonical uppercase.
		{"plate legacy", "Buscar placa veicular ABC1234", catalog.EntityPlate, true, "ABC1234"},
		{"plate legacy hyphen", "Quem é o dono do carro ABC-1234?", catalog.EntityPlate, true, "ABC1234"},
		{"plate mercosur", "Buscar veículo com placa HHH8I88", catalog.EntityPlate, true, "HHH8I88"},
		{"plate mercosur hyphen", "Placa ABC-1D23", catalog.EntityPlate, true, "ABC1D23"},
		{"plate lowercase input", "placa abc1d23", catalog.EntityPlate, true, "ABC1D23"},
		{"plate absent", "Buscar veículo marca Toyota", catalog.EntityPlate, false, ""},

		// Generic text: last substantive token.
		{"text brand", "Buscar veículo marca Toyota", catalog.EntityGenericText, true, "Toyota"},
		{"text trailing punctuation", "Localizar carro da marca Honda.", catalog.EntityGenericText, true, "Honda"},
		{"text short connective skipped", "Buscar modelo do Corolla de lá", catalog.EntityGenericText, true, "Corolla"},
		{"text empty query", "", catalog.EntityGenericText, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.query, tt.entity)
			if got.Valid != tt.wantValid {
				t.Fatalf("Extract(%q, %s).Valid = %v, want %v", tt.query, tt.entity, got.Valid, tt.wantValid)
			}
			if got.NormalizedValue != tt.wantValue {
				t.Errorf("NormalizedValue = %q, want %q", got.NormalizedValue, tt.wantValue)
			}
			if got.EntityType != tt.entity {
				t.Errorf("EntityType = %q, want %q", got.EntityType, tt.entity)
			}
			if got.RawText != tt.query {
				t.Errorf("RawText = %q, want %q", got.RawText, tt.query)
			}
		})
	}
}

// Invalid results must never carry a partial value.
func TestInvalidImpliesEmptyValue(t *testing.T) {
	queries := []string{"", "abc", "12", "Buscar algo sem entidade útil 12"}
	for _, et := range []catalog.EntityType{
		catalog.EntityCPF, catalog.EntityCNPJ, catalog.EntityPhone,
		catalog.EntityPlate, catalog.EntityIMEI, catalog.EntityRENAVAM,
	} {
		for _, q := range queries {
			if got := Extract(q, et); !got.Valid && got.NormalizedValue != "" {
				t.Errorf("Extract(%q, %s): Valid=false but NormalizedValue=%q", q, et, got.NormalizedValue)
			}
		}
	}
}

// Normalizing an already-normalized value returns it unchanged.
func TestNormalizationIdempotence(t *testing.T) {
	tests := []struct {
		entity catalog.EntityType
		value  string
	}{
		{catalog.EntityCPF, "11122233344"},
		{catalog.EntityCNPJ, "12345678000199"},
		{catalog.EntityPhone, "21987654321"},
		{catalog.EntityIMEI, "123456789012345"},
		{catalog.EntityRENAVAM, "12345678901"},
		{catalog.EntityPlate, "ABC1D23"},
		{catalog.EntityPlate, "ABC1234"},
	}
	for _, tt := range tests {
		got := Extract(tt.value, tt.entity)
		if !got.Valid || got.NormalizedValue != tt.value {
			t.Errorf("Extract(%q, %s) = {Valid:%v Value:%q}, want the input back",
				tt.value, tt.entity, got.Valid, got.NormalizedValue)
		}
	}
}

// Valid results must match the type's canonical grammar exactly.
func TestValidMatchesCanonicalGrammar(t *testing.T) {
	grammars := map[catalog.EntityType]*regexp.Regexp{
		catalog.EntityCPF:     regexp.MustCompile(`^\d{11}$`),
		catalog.EntityCNPJ:    regexp.MustCompile(`^\d{14}$`),
		catalog.EntityPhone:   regexp.MustCompile(`^\d{10,11}$`),
		catalog.EntityIMEI:    regexp.MustCompile(`^\d{14,15}$`),
		catalog.EntityRENAVAM: regexp.MustCompile(`^\d{9,11}$`),
		catalog.EntityPlate:   regexp.MustCompile(`^[A-Z]{3}\d[A-Z0-9]\d{2}$`),
	}
	queries := map[catalog.EntityType]string{
		catalog.EntityCPF:     "CPF 123.456.789-00",
		catalog.EntityCNPJ:    "CNPJ 12.345.678/0001-99",
		catalog.EntityPhone:   "telefone (11) 99988-7766",
		catalog.EntityIMEI:    "IMEI 123456789012345",
		catalog.EntityRENAVAM: "RENAVAM 12345678901",
		catalog.EntityPlate:   "placa abc-1d23",
	}
	for et, grammar := range grammars {
		got := Extract(queries[et], et)
		if !got.Valid {
			t.Errorf("Extract(%q, %s) not valid", queries[et], et)
			continue
		}
		if !grammar.MatchString(got.NormalizedValue) {
			t.Errorf("%s value %q does not match canonical grammar %s", et, got.NormalizedValue, grammar)
		}
	}
}

func TestUnknownEntityTypeIsInvalid(t *testing.T) {
	got := Extract("qualquer coisa", catalog.EntityType("passport"))
	if got.Valid {
		t.Error("unknown entity type extracted a value")
	}
}
