// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command casegraph runs the investigative question-answering pipeline:
// intent classification over an embedding catalog, templated graph
// retrieval, and LLM answer formatting.
//
// Usage:
//
//	casegraph serve                  # HTTP API on :8080
//	casegraph chat                   # interactive terminal chat
//	casegraph ask "Buscar pessoa com CPF 111.222.333-44"
//
// Configuration comes from an optional YAML file (--config), a .env file,
// and environment variables, in increasing precedence.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
