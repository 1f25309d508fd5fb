package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/agent"
	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/schemastore"
	"github.com/kyleking/sql-agent/internal/source"
	"github.com/kyleking/sql-agent/internal/storage"
	"github.com/kyleking/sql-agent/internal/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true

	os.Exit(m.Run())
}

// captureOutput runs fn with stdout redirected and returns what it printed
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w

	done := make(chan string)

	go func() {
		var buf bytes.Buffer

		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := fn()

	w.Close()

	os.Stdout = oldStdout

	return <-done, runErr
}

func newTestStore(t *testing.T) *schemastore.Store {
	t.Helper()

	c := storage.NewMemoryCollection("database_schemas", embedding.NewHashProvider(256))

	return schemastore.New(c, schemastore.WithLogger(logging.Discard()))
}

// newLoadedStore returns a store holding the sample schemas
func newLoadedStore(t *testing.T) *schemastore.Store {
	t.Helper()

	store := newTestStore(t)
	src := source.NewDirectory(testutil.WriteSchemaDir(t, testutil.SampleSchemas()))

	defs, err := src.Load(context.Background())
	require.NoError(t, err)

	_, err = store.Sync(context.Background(), defs, false)
	require.NoError(t, err)

	return store
}

func newTestAgent(store *schemastore.Store, gen *testutil.FakeGenerator, history bool) *agent.Agent {
	opts := agent.DefaultOptions()
	opts.History.Enabled = history

	return agent.New(store, gen, opts, agent.WithLogger(logging.Discard()))
}
