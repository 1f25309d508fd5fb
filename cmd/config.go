package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags.`,
		Flags:       globalFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			return RunConfigWithConfig(cfg)
		},
	}
}

// RunConfigWithConfig prints cfg; secrets are never shown
func RunConfigWithConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	fmt.Println("====================")
	fmt.Println("Active Configuration:")

	fmt.Println("\nStore:")
	fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
	fmt.Printf("  Collection: %s\n", cfg.Store.Collection)

	switch cfg.Store.Backend {
	case "duckdb", "sqlite":
		fmt.Printf("  Path: %s\n", cfg.Store.Path)
	case "postgres":
		fmt.Printf("  DSN: %s\n", setOrNot(cfg.Store.PostgresDSN))
	case "qdrant":
		fmt.Printf("  Qdrant: %s:%d\n", cfg.Store.QdrantHost, cfg.Store.QdrantPort)
	}

	fmt.Printf("  Max Connections: %d\n", cfg.Store.MaxConnections)
	fmt.Printf("  Query Timeout: %s\n", cfg.Store.QueryTimeout)

	fmt.Println("\nEmbedding:")
	fmt.Printf("  Provider: %s\n", cfg.Embedding.Provider)
	fmt.Printf("  Model: %s\n", cfg.Embedding.Model)
	fmt.Printf("  Dimensions: %d\n", cfg.Embedding.Dimensions)
	fmt.Printf("  Cache: %t\n", cfg.Embedding.Cache)

	fmt.Println("\nLLM:")
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Model: %s\n", valueOrDefault(cfg.LLM.Model))
	fmt.Printf("  API Key: %s\n", setOrNot(cfg.LLM.APIKey))
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Printf("  Timeout: %s\n", cfg.LLM.Timeout)

	if cfg.LLM.Provider == "bedrock" {
		fmt.Printf("  Region: %s\n", cfg.LLM.Region)
		fmt.Printf("  Bedrock API: %s\n", cfg.LLM.BedrockAPI)
	}

	fmt.Println("\nSource:")
	fmt.Printf("  Type: %s\n", cfg.Source.Type)

	switch cfg.Source.Type {
	case "s3":
		fmt.Printf("  Bucket: %s\n", cfg.Source.S3Bucket)
		fmt.Printf("  Prefix: %s\n", cfg.Source.S3Prefix)
		fmt.Printf("  Endpoint: %s\n", cfg.Source.S3Endpoint)
	case "github":
		fmt.Printf("  Repository: %s\n", cfg.Source.GitHubRepo)
		fmt.Printf("  Path: %s\n", cfg.Source.GitHubPath)
		fmt.Printf("  Ref: %s\n", valueOrDefault(cfg.Source.GitHubRef))
	default:
		fmt.Printf("  Directory: %s\n", cfg.Source.Directory)
	}

	fmt.Println("\nAgent:")
	fmt.Printf("  Top K: %d\n", cfg.Agent.TopK)
	fmt.Printf("  Explain: %t\n", cfg.Agent.Explain)

	fmt.Println("\nHistory:")
	fmt.Printf("  Enabled: %t\n", cfg.History.Enabled)
	fmt.Printf("  Max Stored: %d\n", cfg.History.MaxStored)
	fmt.Printf("  In Prompt: %d\n", cfg.History.InPrompt)
	fmt.Printf("  Summarize: %t\n", cfg.History.Summarize)

	fmt.Println("\nCache:")
	fmt.Printf("  Directory: %s\n", cfg.Cache.Directory)
	fmt.Printf("  Max Size: %d MB\n", cfg.Cache.MaxSizeMB)
	fmt.Printf("  TTL: %d hours\n", cfg.Cache.TTLHours)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Printf("  File: %s\n", cfg.Logging.File)
	}

	fmt.Printf("  Add Source: %t\n", cfg.Logging.AddSource)

	fmt.Println("\nDebug:")
	fmt.Printf("  Enabled: %t\n", cfg.Debug.Enabled)

	if cfg.Debug.Enabled {
		fmt.Printf("  Metrics Port: %d\n", cfg.Debug.MetricsPort)
	}

	fmt.Printf("  Verbose: %t\n", cfg.Debug.Verbose)

	if cfg.Debug.Enabled {
		fmt.Println("\nRaw Configuration (JSON):")
		fmt.Println("==========================")

		redacted := *cfg
		redacted.LLM.APIKey = ""
		redacted.Store.PostgresDSN = setOrNot(cfg.Store.PostgresDSN)

		jsonData, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Println(string(jsonData))
	}

	return nil
}

func setOrNot(secret string) string {
	if secret == "" {
		return "(not set)"
	}

	return "(set)"
}

func valueOrDefault(s string) string {
	if s == "" {
		return "(default)"
	}

	return s
}
