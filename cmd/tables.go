package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/schemastore"
)

// inspectPreviewLength caps how much of schema_json inspect prints
const inspectPreviewLength = 80

// storeAction opens the store without a source or generator and runs fn
func storeAction(fn func(ctx context.Context, cmd *cli.Command, store *schemastore.Store) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}

		rt, err := newRuntime(ctx, cfg, runtimeNeeds{})
		if err != nil {
			return err
		}
		defer rt.Close()

		return fn(ctx, cmd, rt.Store)
	}
}

func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "List the stored tables",
		Flags: globalFlags(),
		Action: storeAction(func(ctx context.Context, _ *cli.Command, store *schemastore.Store) error {
			return RunTablesWithStore(ctx, store)
		}),
	}
}

func RunTablesWithStore(ctx context.Context, store *schemastore.Store) error {
	ids, err := store.ListIdentifiers(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No tables stored. Run 'sql-agent sync' to load schemas.")
		return nil
	}

	fmt.Printf("%d tables:\n", len(ids))

	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}

	return nil
}

func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Print a stored table schema",
		Description: `Print the schema of one table the way it appears in prompts.`,
		ArgsUsage:   " <table>",
		Flags:       globalFlags(),
		Action: storeAction(func(ctx context.Context, cmd *cli.Command, store *schemastore.Store) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return fmt.Errorf("expected exactly 1 argument, got %d", args.Len())
			}

			return RunShowWithStore(ctx, store, args.First())
		}),
	}
}

func RunShowWithStore(ctx context.Context, store *schemastore.Store, name string) error {
	doc, ok, err := store.GetByName(ctx, name)
	if err != nil {
		return err
	}

	if !ok {
		return errors.Newf(errors.ErrTypeNotFound, "table %q is not stored", name).
			WithSuggestion("Run 'sql-agent tables' to list stored tables")
	}

	fmt.Println(strings.TrimPrefix(doc.Context(), "\n"))

	if doc.BusinessContext != "" {
		fmt.Printf("\nBusiness context: %s\n", doc.BusinessContext)
	}

	return nil
}

func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:        "inspect",
		Usage:       "Show the searchable text and metadata of every stored table",
		Description: `Debug retrieval by showing exactly what was embedded for each table.`,
		Flags:       globalFlags(),
		Action: storeAction(func(ctx context.Context, _ *cli.Command, store *schemastore.Store) error {
			return RunInspectWithStore(ctx, store)
		}),
	}
}

func RunInspectWithStore(ctx context.Context, store *schemastore.Store) error {
	records, err := store.Inspect(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("The store is empty.")
		return nil
	}

	for i, r := range records {
		if i > 0 {
			fmt.Println()
		}

		fmt.Printf("=== %s ===\n", r.ID)
		fmt.Printf("Searchable text:\n%s\n", r.Document)
		fmt.Println("Metadata:")

		for _, key := range r.Metadata.Keys() {
			value := r.Metadata.String(key)
			if key == schemastore.KeySchemaJSON && len(value) > inspectPreviewLength {
				value = value[:inspectPreviewLength] + "..."
			}

			fmt.Printf("  %s: %s\n", key, value)
		}
	}

	return nil
}
