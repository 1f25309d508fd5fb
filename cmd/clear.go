package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/cache"
	"github.com/kyleking/sql-agent/internal/schemastore"
)

func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:        "clear",
		Usage:       "Remove every stored schema",
		Description: `Drop all schemas from the vector store. This action requires confirmation.`,
		Flags: withGlobalFlags(
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation prompt"},
			&cli.BoolFlag{Name: "cache", Usage: "Also empty the embedding cache"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			var c cache.Cache
			if cmd.Bool("cache") {
				c = rt.Cache
			}

			return RunClearWithDeps(ctx, rt.Store, c, cmd.Bool("force"), os.Stdin)
		},
	}
}

// RunClearWithDeps asks for confirmation on in unless force is set, then
// clears store and, when non-nil, the embedding cache
func RunClearWithDeps(ctx context.Context, store *schemastore.Store, c cache.Cache, force bool, in io.Reader) error {
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count schemas: %w", err)
	}

	if count == 0 && c == nil {
		fmt.Println("Store is already empty.")
		return nil
	}

	fmt.Printf("This will delete:\n")
	fmt.Printf("  • %d stored schemas\n", count)

	if c != nil {
		fmt.Printf("  • all cached embeddings\n")
	}

	if !force {
		fmt.Printf("\nAre you sure you want to clear all data? This action cannot be undone.\n")
		fmt.Printf("Type 'yes' to confirm: ")

		reader := bufio.NewReader(in)

		response, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Operation cancelled.")
			return nil
		}
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	if c != nil {
		if err := c.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear embedding cache: %w", err)
		}
	}

	fmt.Println("Store cleared successfully.")

	return nil
}
