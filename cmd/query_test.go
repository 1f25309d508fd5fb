package cmd

import (
	"context"
	goerrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/agent"
	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/testutil"
)

func TestRunQuery(t *testing.T) {
	tests := []struct {
		name     string
		explain  bool
		response string
		want     string
	}{
		{
			name:     "sql only",
			response: "SELECT SUM(amount) FROM orders;\n",
			want:     "SELECT SUM(amount) FROM orders;\n",
		},
		{
			name:     "with explanation",
			explain:  true,
			response: "SELECT 1;\n\nUses no tables.",
			want:     "SELECT 1;\n\nUses no tables.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := testutil.NewFakeGenerator(testutil.WithResponses(tt.response))
			a := newTestAgent(newLoadedStore(t), gen, false)

			output, err := captureOutput(t, func() error {
				return RunQueryWithAgent(context.Background(), a, "total revenue", tt.explain)
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, output)

			p := gen.LastCall().Prompt
			assert.Contains(t, p, "## Business Logic:\ntotal revenue")
			assert.Equal(t, tt.explain, strings.Contains(p, "provide a brief explanation"))
		})
	}
}

func TestRunQueryEmptyStore(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newTestAgent(newTestStore(t), gen, false)

	output, err := captureOutput(t, func() error {
		return RunQueryWithAgent(context.Background(), a, "total revenue", false)
	})
	require.NoError(t, err)
	assert.Equal(t, agent.NoTablesFound+"\n", output)
	assert.Empty(t, gen.Calls())
}

func TestRunQueryGenerationError(t *testing.T) {
	cause := goerrors.New("model overloaded")
	gen := testutil.NewFakeGenerator(testutil.WithGenerateError(cause))
	a := newTestAgent(newLoadedStore(t), gen, false)

	output, err := captureOutput(t, func() error {
		return RunQueryWithAgent(context.Background(), a, "total revenue", false)
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, output)
}

func TestQueryCommandRequiresRequest(t *testing.T) {
	err := NewApp().Run(context.Background(), []string{"sql-agent", "query"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}
