// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	pipeline, _, cleanup, err := buildPipeline(ctx)
	if err != nil {
		cleanup()
		return err
	}
	defer cleanup()

	resp, err := pipeline.Ask(ctx, question)
	if err != nil {
		return err
	}

	if resp.Source == "graph" {
		fmt.Printf("[intent: %s | score: %.2f | registros: %d]\n\n", resp.IntentID, resp.BestScore, resp.RecordCount)
	}
	fmt.Println(resp.Answer)
	return nil
}
