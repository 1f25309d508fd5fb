package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/schemastore"
	"github.com/kyleking/sql-agent/internal/source"
)

func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Load schema files into the vector store",
		Description: `Read every JSON schema file from the configured source and store the new or
changed ones. Files whose content is unchanged are skipped. Tables whose
source file is gone are removed unless --no-prune is given.`,
		Flags: withGlobalFlags(
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Re-store every schema even if unchanged"},
			&cli.BoolFlag{Name: "no-prune", Usage: "Keep stored tables whose source file is gone"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeNeeds{source: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			return RunSyncWithDeps(ctx, rt.Store, rt.Source, syncOptions{
				Force: cmd.Bool("force"),
				Prune: !cmd.Bool("no-prune"),
			})
		},
	}
}

type syncOptions struct {
	Force bool
	Prune bool
}

// RunSyncWithDeps loads src into store and prints the summary
func RunSyncWithDeps(ctx context.Context, store *schemastore.Store, src source.Source, opts syncOptions) error {
	fmt.Printf("Loading schemas from %s\n", src.Describe())

	var report syncReport

	err := logging.LoggerMiddleware("sync", func() error {
		var err error
		report, err = syncSource(ctx, store, src, opts)

		return err
	})
	if err != nil {
		return err
	}

	printSyncReport(report)

	return nil
}

type syncReport struct {
	Result schemastore.SyncResult
	Pruned int
}

// syncSource prunes tables with no source file, then syncs what the source
// holds. Pruning only runs against a store that already has schemas.
func syncSource(ctx context.Context, store *schemastore.Store, src source.Source, opts syncOptions) (syncReport, error) {
	var report syncReport

	defs, err := src.Load(ctx)
	if err != nil {
		return report, err
	}

	if opts.Prune {
		count, err := store.Count(ctx)
		if err != nil {
			return report, err
		}

		if count > 0 {
			report.Pruned, err = store.PruneDeleted(ctx, source.IDs(defs))
			if err != nil {
				return report, err
			}
		}
	}

	report.Result, err = store.Sync(ctx, defs, opts.Force)
	if err != nil {
		return report, err
	}

	logging.WithFields(map[string]interface{}{
		"source": src.Describe(),
		"pruned": report.Pruned,
		"total":  report.Result.Total(),
	}).Info("sync finished")

	return report, nil
}

func printSyncReport(report syncReport) {
	fmt.Printf("Synced %d schemas: %s\n", report.Result.Total(), report.Result)

	if report.Pruned > 0 {
		fmt.Printf("Removed %d schemas with no source file\n", report.Pruned)
	}

	if report.Result.Errors == 0 {
		return
	}

	fmt.Printf("%d files could not be loaded:\n", report.Result.Errors)

	for _, o := range report.Result.Outcomes {
		if o.Status == schemastore.StatusError {
			fmt.Printf("  %s: %v\n", o.Origin, o.Err)
		}
	}
}
