package cmd

import (
	"context"
	goerrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/testutil"
)

var sampleTables = []string{"customers", "orders", "products"}

func TestRunChatSession(t *testing.T) {
	gen := testutil.NewFakeGenerator(testutil.WithResponses("SELECT SUM(amount) FROM orders;", "SELECT 2;"))
	a := newTestAgent(newLoadedStore(t), gen, true)

	input := strings.Join([]string{
		"",
		"history",
		"total revenue",
		"  HISTORY  ",
		"only last month",
		"clear",
		"history",
		"Exit",
		"never sent",
	}, "\n")

	output, err := captureOutput(t, func() error {
		return RunChatWithDeps(context.Background(), a, sampleTables, strings.NewReader(input), false)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "Available tables: customers, orders, products")
	assert.Contains(t, output, "SELECT SUM(amount) FROM orders;")
	assert.Contains(t, output, "Turn 1:\n  Request: total revenue\n  Response: SELECT SUM(amount) FROM orders;")
	assert.Contains(t, output, "Conversation history cleared.")
	assert.Equal(t, 2, strings.Count(output, "No conversation history yet."))
	assert.Contains(t, output, "Goodbye.")

	calls := gen.Calls()
	require.Len(t, calls, 2, "session commands never reach the model")
	assert.Contains(t, calls[1].Prompt, "User: total revenue")
	assert.Empty(t, a.History())
}

func TestRunChatQuitAndEOF(t *testing.T) {
	for name, input := range map[string]string{
		"quit": "quit\ntotal revenue\n",
		"eof":  "",
	} {
		t.Run(name, func(t *testing.T) {
			gen := testutil.NewFakeGenerator()
			a := newTestAgent(newLoadedStore(t), gen, true)

			_, err := captureOutput(t, func() error {
				return RunChatWithDeps(context.Background(), a, sampleTables, strings.NewReader(input), false)
			})
			require.NoError(t, err)
			assert.Empty(t, gen.Calls())
		})
	}
}

func TestRunChatContinuesAfterErrors(t *testing.T) {
	gen := testutil.NewFakeGenerator(testutil.WithGenerateError(goerrors.New("rate limited")))
	a := newTestAgent(newLoadedStore(t), gen, true)

	output, err := captureOutput(t, func() error {
		return RunChatWithDeps(context.Background(), a, sampleTables,
			strings.NewReader("total revenue\nrevenue by month\nexit\n"), false)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(output, "Error:"))
	assert.Contains(t, output, "rate limited")
	assert.Contains(t, output, "Goodbye.")
	assert.Len(t, gen.Calls(), 2)
	assert.Empty(t, a.History())
}

func TestRunChatWithoutTables(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newTestAgent(newTestStore(t), gen, true)

	output, err := captureOutput(t, func() error {
		return RunChatWithDeps(context.Background(), a, nil, strings.NewReader("total revenue\n"), false)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "No tables are loaded")
	assert.Contains(t, output, "Error: No relevant tables found for this query.")
	assert.Empty(t, gen.Calls())
}

func TestRunChatStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := newTestAgent(newLoadedStore(t), testutil.NewFakeGenerator(), true)

	// a reader that never returns keeps the session waiting for input
	blocked, release := blockingReader()
	defer release()

	done := make(chan error, 1)

	_, err := captureOutput(t, func() error {
		go func() {
			done <- RunChatWithDeps(ctx, a, sampleTables, blocked, false)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			return err
		case <-time.After(testutil.ShortTestTimeout):
			t.Fatal("session did not stop after cancel")
			return nil
		}
	})
	require.NoError(t, err)
}

type blockReader struct {
	release chan struct{}
}

func (b *blockReader) Read(_ []byte) (int, error) {
	<-b.release
	return 0, context.Canceled
}

func blockingReader() (*blockReader, func()) {
	b := &blockReader{release: make(chan struct{})}
	return b, func() { close(b.release) }
}
