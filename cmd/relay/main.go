// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relay starts the AleutianRelay chat HTTP server.
//
// This is the main entry point for the containerized relay service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - RELAY_PORT: HTTP server port (default: 12220)
//   - RELAY_STORE_PATH: Badger data directory (default: ./data/relay)
//   - RELAY_STORE_IN_MEMORY: "true" for a non-persistent store (default: false)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - DEEPSEEK_API_KEY: Generation backend API key (required)
//   - DEEPSEEK_BASE_URL: Generation endpoint override (optional)
//   - DEEPSEEK_MODEL: Chat model name (default: deepseek-chat)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//   - RELAY_LOG_DIR: directory for JSON log files (optional)
//
// # Usage
//
//	# Build
//	go build -o relay ./cmd/relay
//
//	# Run
//	DEEPSEEK_API_KEY=sk-... ./relay
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianRelay/pkg/logging"
	"github.com/AleutianAI/AleutianRelay/services/relay"
)

func main() {
	// Setup structured logging
	logger, err := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("RELAY_LOG_DIR"),
		Service: "relay",
		JSON:    true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	// Build configuration from environment variables
	cfg := relay.Config{
		Port:            getEnvInt("RELAY_PORT", 12220),
		StorePath:       getEnvString("RELAY_STORE_PATH", "./data/relay"),
		InMemoryStore:   getEnvBool("RELAY_STORE_IN_MEMORY", false),
		WeaviateURL:     os.Getenv("WEAVIATE_SERVICE_URL"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL: os.Getenv("DEEPSEEK_BASE_URL"),
		DeepSeekModel:   os.Getenv("DEEPSEEK_MODEL"),
		OTelEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	slog.Info("Starting relay",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := relay.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
