// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:           "casegraph",
	Short:         "Investigative question answering over the case graph",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A missing .env file is fine; explicit --env-file that fails to
		// load is only worth a warning, env vars may already be set.
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			slog.Warn("env file not loaded", slog.String("path", envFile), slog.String("error", err.Error()))
		}

		level := slog.LevelInfo
		if debugMode {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
}
