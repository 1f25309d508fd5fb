package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/logging"
)

var version = "dev"

// NewApp returns the root command with every subcommand attached
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "sql-agent",
		Usage:   "Generate SQL from business logic using your table schemas",
		Version: version,
		Description: `sql-agent indexes JSON table schema files into a vector store, retrieves the
tables relevant to a natural-language request and asks a language model to
write the SQL. Use "chat" for a multi-turn session that remembers earlier
requests.`,
		Commands: []*cli.Command{
			SyncCommand(),
			QueryCommand(),
			ChatCommand(),
			TablesCommand(),
			ShowCommand(),
			InspectCommand(),
			StatsCommand(),
			ClearCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewApp().Run(ctx, os.Args)
	if err != nil {
		printError(err)
	}

	_ = logging.GetLogger().Close()

	return err
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)

	for _, s := range errors.GetSuggestions(err) {
		fmt.Fprintf(os.Stderr, "  hint: %s\n", s)
	}
}

// globalFlags are accepted by every subcommand
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Path to a JSON config file"},
		&cli.StringFlag{Name: "db-path", Usage: "Path of the embedded vector store database"},
		&cli.StringFlag{Name: "backend", Usage: "Vector store backend: memory, duckdb, sqlite, postgres, qdrant"},
		&cli.StringFlag{Name: "schemas-dir", Usage: "Directory of JSON schema files"},
		&cli.StringFlag{Name: "llm-provider", Usage: "Language model: openai, anthropic, ollama, bedrock"},
		&cli.StringFlag{Name: "model", Usage: "Model name for the language model provider"},
		&cli.StringFlag{Name: "embedding-provider", Usage: "Embedding provider: ollama, hash"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.BoolFlag{Name: "verbose", Usage: "Log progress at info level"},
		&cli.BoolFlag{Name: "debug", Usage: "Log at debug level and serve /metrics"},
	}
}

func withGlobalFlags(flags ...cli.Flag) []cli.Flag {
	return append(globalFlags(), flags...)
}

var stringOverrides = []string{
	"db-path",
	"backend",
	"schemas-dir",
	"llm-provider",
	"model",
	"embedding-provider",
	"log-level",
}

// loadConfig resolves configuration from file, environment and the command's
// flags, then initializes the global logger from it
func loadConfig(cmd *cli.Command, extra map[string]interface{}) (*config.Config, error) {
	overrides := map[string]interface{}{
		"verbose": cmd.Bool("verbose"),
		"debug":   cmd.Bool("debug"),
	}

	for _, name := range stringOverrides {
		if v := cmd.String(name); v != "" {
			overrides[name] = v
		}
	}

	for k, v := range extra {
		overrides[k] = v
	}

	cfg, err := config.LoadConfigFrom(cmd.String("config"), overrides)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Run 'sql-agent config' to inspect the active settings")
	}

	cfg.ExpandAllPaths()

	if cmd.String("log-level") == "" {
		switch {
		case cfg.Debug.Enabled:
			cfg.Logging.Level = "debug"
		case cfg.Debug.Verbose:
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create data directories")
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.WithError(err).Warn("falling back to default logger")
	}

	return cfg, nil
}
