package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/agent"
	"github.com/kyleking/sql-agent/internal/logging"
)

func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive session that remembers earlier requests",
		Description: `Sync the schema source, then read business logic requests from stdin and
print the SQL for each. Follow-up requests can refer to earlier ones.

Session commands:
  history   show the conversation so far
  clear     forget the conversation
  exit      end the session (also: quit, Ctrl+D)`,
		Flags: withGlobalFlags(
			&cli.BoolFlag{Name: "explain", Aliases: []string{"e"}, Usage: "Ask for an explanation after the SQL"},
			&cli.BoolFlag{Name: "no-history", Usage: "Treat every request independently"},
			&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Number of tables to retrieve"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, map[string]interface{}{"top-k": int(cmd.Int("top-k"))})
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeNeeds{source: true, generator: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := syncSource(ctx, rt.Store, rt.Source, syncOptions{Prune: true})
			if err != nil {
				return err
			}

			printSyncReport(report)

			tables, err := rt.Store.ListIdentifiers(ctx)
			if err != nil {
				return err
			}

			opts := agentOptions(cfg)
			if cmd.Bool("no-history") {
				opts.History.Enabled = false
			}

			return RunChatWithDeps(ctx, rt.Agent(opts), tables, os.Stdin, cmd.Bool("explain") || cfg.Agent.Explain)
		},
	}
}

// RunChatWithDeps runs the session loop over in until exit, EOF or ctx is done
func RunChatWithDeps(ctx context.Context, a *agent.Agent, tables []string, in io.Reader, explain bool) error {
	bold := color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println(bold("SQL Agent"))

	if len(tables) > 0 {
		fmt.Printf("Available tables: %s\n", strings.Join(tables, ", "))
	} else {
		fmt.Println("No tables are loaded; run 'sql-agent sync' first.")
	}

	fmt.Println("Describe the data you need. Type 'exit' to quit.")

	lines := readLines(ctx, in)

	for {
		fmt.Print("\n" + bold("> "))

		var (
			line string
			ok   bool
		)

		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok = <-lines:
		}

		if !ok {
			fmt.Println()
			return nil
		}

		request := strings.TrimSpace(line)

		switch strings.ToLower(request) {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("Goodbye.")
			return nil
		case "clear":
			a.ClearHistory()
			fmt.Println("Conversation history cleared.")

			continue
		case "history":
			printHistory(a)
			continue
		}

		sql, err := withSpinner("Generating SQL...", func() (string, error) {
			return a.GenerateQuery(ctx, request, explain)
		})
		if err != nil {
			logging.WithError(err).Debug("generation failed")
			fmt.Printf("%s %v\n", red("Error:"), err)

			continue
		}

		fmt.Println(cyan(sql))
	}
}

// readLines delivers input lines until EOF or ctx is done
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}

func printHistory(a *agent.Agent) {
	turns := a.History()
	if len(turns) == 0 {
		fmt.Println("No conversation history yet.")
		return
	}

	for i, turn := range turns {
		fmt.Printf("\nTurn %d:\n  Request: %s\n  Response: %s\n", i+1, turn.Request, turn.Response)
	}
}
