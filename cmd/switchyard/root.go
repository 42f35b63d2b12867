// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the YAML configuration for the switchyard binary.
type Config struct {
	Server struct {
		// Port the HTTP API listens on. Default: 12310.
		Port int `yaml:"port"`

		// RequestsPerSecond and Burst tune the per-client rate
		// limiter. Zero values use the built-in defaults.
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"server"`

	Storage struct {
		// DataDir is where BadgerDB keeps experiment state.
		// Default: ~/.switchyard/data.
		DataDir string `yaml:"data_dir"`

		// InMemory runs without disk persistence. Experiments are
		// lost on restart; meant for local evaluation.
		InMemory bool `yaml:"in_memory"`
	} `yaml:"storage"`

	Experiments struct {
		// ResultsSaveInterval is how often live experiment results
		// are snapshotted to storage. Default: 1m.
		ResultsSaveInterval time.Duration `yaml:"results_save_interval"`
	} `yaml:"experiments"`

	Telemetry struct {
		// Enabled turns on OTLP trace export.
		Enabled bool `yaml:"enabled"`

		// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT.
		Endpoint string `yaml:"endpoint"`
	} `yaml:"telemetry"`

	Logging struct {
		// Level is debug, info, warn, or error. Default: info.
		Level string `yaml:"level"`

		// Dir enables JSON file logging when set.
		Dir string `yaml:"dir"`

		// JSON switches stderr output to JSON.
		JSON bool `yaml:"json"`
	} `yaml:"logging"`
}

var config Config

var configPath string

// loadConfig reads the YAML config when present. A missing file is
// not an error; every field has a workable default.
func loadConfig() error {
	config = Config{}
	config.Server.Port = 12310
	config.Experiments.ResultsSaveInterval = time.Minute

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parse config %s: %w", configPath, err)
	}
	if config.Server.Port <= 0 {
		config.Server.Port = 12310
	}
	if config.Experiments.ResultsSaveInterval <= 0 {
		config.Experiments.ResultsSaveInterval = time.Minute
	}
	return nil
}

// =============================================================================
// Root Command
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Adaptive LLM request routing engine",
	Long: `Switchyard routes LLM requests across backends with bandit
policies, runs A/B experiments over routing strategies, and learns
from reported outcomes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the switchyard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("switchyard", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
