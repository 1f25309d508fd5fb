package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/agent"
	"github.com/kyleking/sql-agent/internal/errors"
)

func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Generate SQL for one business logic request",
		ArgsUsage: " <business logic...>",
		Description: `Retrieve the tables most relevant to the request and print the generated SQL.

Examples:
  sql-agent query "total revenue per customer last month"
  sql-agent query --explain --top-k 3 "customers who never ordered"`,
		Flags: withGlobalFlags(
			&cli.BoolFlag{Name: "explain", Aliases: []string{"e"}, Usage: "Ask for an explanation after the SQL"},
			&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Number of tables to retrieve"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			request := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if request == "" {
				return errors.New(errors.ErrTypeValidation, "a business logic request is required")
			}

			cfg, err := loadConfig(cmd, map[string]interface{}{"top-k": int(cmd.Int("top-k"))})
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeNeeds{generator: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := agentOptions(cfg)
			opts.History.Enabled = false

			return RunQueryWithAgent(ctx, rt.Agent(opts), request, cmd.Bool("explain") || cfg.Agent.Explain)
		},
	}
}

// RunQueryWithAgent prints the SQL generated for request
func RunQueryWithAgent(ctx context.Context, a *agent.Agent, request string, explain bool) error {
	sql, err := withSpinner("Generating SQL...", func() (string, error) {
		return a.GenerateQuery(ctx, request, explain)
	})
	if err != nil {
		return err
	}

	fmt.Println(sql)

	return nil
}

// withSpinner shows progress on stderr while fn runs. The spinner stays
// silent unless attached to a terminal.
func withSpinner[T any](message string, fn func() (T, error)) (T, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr),
		spinner.WithSuffix(" "+message),
		spinner.WithHiddenCursor(true),
	)

	s.Start()
	defer s.Stop()

	return fn()
}
