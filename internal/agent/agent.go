// Package agent turns a business-logic request into SQL: it retrieves the
// relevant table schemas, assembles the prompt with optional conversation
// history, and asks the language model for the query.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/history"
	"github.com/kyleking/sql-agent/internal/llm"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/monitor"
	"github.com/kyleking/sql-agent/internal/prompt"
	"github.com/kyleking/sql-agent/internal/schema"
)

// NoTablesFound is returned in place of SQL when retrieval finds nothing
const NoTablesFound = "Error: No relevant tables found for this query."

// Retriever finds the schemas most relevant to a request
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]schema.Document, error)
}

// HistoryOptions controls conversation memory
type HistoryOptions struct {
	Enabled   bool
	MaxStored int
	InPrompt  int
	Summarize bool
}

type Options struct {
	TopK    int
	History HistoryOptions
}

// DefaultOptions keeps the last 10 turns and shows the last 3, summarized
func DefaultOptions() Options {
	return Options{
		TopK: 5,
		History: HistoryOptions{
			Enabled:   true,
			MaxStored: 10,
			InPrompt:  3,
			Summarize: true,
		},
	}
}

// Agent is safe for concurrent use; all callers share one history
type Agent struct {
	retriever Retriever
	generator llm.Generator
	opts      Options
	history   *history.Tracker
	logger    *logging.Logger
}

type Option func(*Agent)

func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(retriever Retriever, generator llm.Generator, opts Options, extra ...Option) *Agent {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	a := &Agent{
		retriever: retriever,
		generator: generator,
		opts:      opts,
		history:   history.New(opts.History.MaxStored),
		logger:    logging.GetLogger(),
	}

	for _, opt := range extra {
		opt(a)
	}

	return a
}

// GenerateQuery returns the SQL for request. When no schema matches it
// returns NoTablesFound without calling the model or touching history.
func (a *Agent) GenerateQuery(ctx context.Context, request string, explain bool) (string, error) {
	docs, err := a.retriever.Retrieve(ctx, request, a.opts.TopK)
	if err != nil {
		monitor.RecordQuery(monitor.QueryFailed)
		return "", errors.Wrap(err, errors.GetType(err), "failed to retrieve schemas")
	}

	monitor.ObserveRetrieved(len(docs))

	if len(docs) == 0 {
		monitor.RecordQuery(monitor.QueryNoTables)
		return NoTablesFound, nil
	}

	in := prompt.Input{
		Request:       request,
		SchemaContext: schema.FormatContext(docs),
		Explain:       explain,
	}

	if a.opts.History.Enabled && a.history.Len() > 0 {
		in.History = a.history.ForPrompt(a.opts.History.InPrompt, a.opts.History.Summarize)
	}

	a.logger.WithFields(map[string]interface{}{
		"tables":  strings.Join(schema.Names(docs), ","),
		"history": len(in.History),
	}).Debug("generating query")

	started := time.Now()
	raw, err := a.generate(ctx, in)
	monitor.ObserveGeneration(llm.Name(a.generator), time.Since(started))

	if err != nil {
		monitor.RecordQuery(monitor.QueryFailed)
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "query generation failed")
	}

	response := strings.TrimSpace(raw)

	if a.opts.History.Enabled {
		a.history.Append(history.Turn{Request: request, Response: response})
	}

	monitor.RecordQuery(monitor.QueryOK)

	return response, nil
}

// generate sends the split prompt to backends with a system role and the
// combined prompt to the rest
func (a *Agent) generate(ctx context.Context, in prompt.Input) (string, error) {
	if g, ok := a.generator.(llm.SystemPromptGenerator); ok {
		msgs := prompt.BuildMessages(in)
		return g.GenerateWithSystem(ctx, msgs.System, msgs.User, 0)
	}

	return a.generator.Generate(ctx, prompt.Build(in), 0)
}

// History returns a copy of the stored turns, oldest first
func (a *Agent) History() []history.Turn {
	return a.history.Snapshot()
}

func (a *Agent) ClearHistory() {
	a.history.Clear()
}
