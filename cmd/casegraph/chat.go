// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat with the case graph",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	pipeline, _, cleanup, err := buildPipeline(ctx)
	if err != nil {
		cleanup()
		return err
	}
	defer cleanup()

	fmt.Println("Chat iniciado. Digite 'sair' para encerrar.")
	fmt.Println(strings.Repeat("-", 50))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nVocê: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		switch strings.ToLower(query) {
		case "sair", "exit", "quit":
			return nil
		}

		resp, err := pipeline.Ask(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
			continue
		}
		if resp.Source == "graph" {
			fmt.Printf("   [%s: %d registros, score %.2f]\n", resp.IntentID, resp.RecordCount, resp.BestScore)
		}
		fmt.Printf("CaseGraph: %s\n", resp.Answer)
	}
	return scanner.Err()
}
