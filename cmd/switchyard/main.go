// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command switchyard runs the adaptive LLM routing engine: bandit
// policies over a pool of backends, A/B experiment orchestration, and
// the HTTP API that fronts both.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
