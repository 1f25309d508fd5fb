package agent

import (
	"context"
	goerrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/history"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/prompt"
	"github.com/kyleking/sql-agent/internal/schema"
	"github.com/kyleking/sql-agent/internal/schemastore"
	"github.com/kyleking/sql-agent/internal/source"
	"github.com/kyleking/sql-agent/internal/storage"
	"github.com/kyleking/sql-agent/internal/testutil"
)

// staticRetriever returns fixed documents and records the topK it was asked for
type staticRetriever struct {
	docs []schema.Document
	err  error
	topK int
}

func (r *staticRetriever) Retrieve(_ context.Context, _ string, topK int) ([]schema.Document, error) {
	r.topK = topK
	if r.err != nil {
		return nil, r.err
	}

	if topK < len(r.docs) {
		return r.docs[:topK], nil
	}

	return r.docs, nil
}

func ordersRetriever() *staticRetriever {
	return &staticRetriever{docs: []schema.Document{
		testutil.Schema("orders",
			testutil.WithDescription("Customer orders"),
			testutil.WithColumn("order_id", "INTEGER", "Unique id", "PRIMARY KEY"),
			testutil.WithColumn("amount", "DECIMAL", "Order total"),
		),
	}}
}

// mockRetriever records retrieval calls through testify/mock
type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, topK int) ([]schema.Document, error) {
	args := m.Called(ctx, query, topK)

	docs, _ := args.Get(0).([]schema.Document)

	return docs, args.Error(1)
}

func newAgent(r Retriever, g *testutil.FakeGenerator, opts Options) *Agent {
	return New(r, g, opts, WithLogger(logging.Discard()))
}

func TestGenerateQuerySingleTurn(t *testing.T) {
	gen := testutil.NewFakeGenerator(testutil.WithResponses("  SELECT SUM(amount) FROM orders;\n\n"))
	a := newAgent(ordersRetriever(), gen, DefaultOptions())

	out, err := a.GenerateQuery(context.Background(), "total revenue", false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(amount) FROM orders;", out)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.0, calls[0].Temperature)

	p := calls[0].Prompt
	assert.True(t, strings.HasPrefix(p, prompt.SystemPrompt))
	assert.Contains(t, p, "### Table: orders")
	assert.Contains(t, p, "## Business Logic:\ntotal revenue")
	assert.Contains(t, p, prompt.OutputSQLOnly)
	assert.NotContains(t, p, "## Previous Conversation:")

	assert.Equal(t, []history.Turn{{Request: "total revenue", Response: "SELECT SUM(amount) FROM orders;"}}, a.History())
}

func TestGenerateQueryMultiTurnIncludesHistory(t *testing.T) {
	gen := testutil.NewFakeGenerator(testutil.WithResponses("SELECT 1;", "SELECT 2;", "SELECT 3;"))
	a := newAgent(ordersRetriever(), gen, DefaultOptions())
	ctx := context.Background()

	for _, req := range []string{"first", "second", "third"} {
		_, err := a.GenerateQuery(ctx, req, false)
		require.NoError(t, err)
	}

	last := gen.LastCall().Prompt
	assert.Contains(t, last, "## Previous Conversation:")
	assert.Contains(t, last, "User: first")
	assert.Contains(t, last, "Assistant: SELECT 2;")
	assert.Contains(t, last, "## Current Request:")
	assert.Less(t, strings.Index(last, "User: first"), strings.Index(last, "User: second"))
	assert.NotContains(t, last, "User: third")
	assert.Len(t, a.History(), 3)
}

func TestGenerateQueryHistoryWindowAndSummary(t *testing.T) {
	long := "SELECT " + strings.Repeat("column_name, ", 30) + "id FROM orders;"
	gen := testutil.NewFakeGenerator(testutil.WithResponses(long, "SELECT 2;", "SELECT 3;", "SELECT 4;"))
	opts := DefaultOptions()
	opts.History.InPrompt = 2
	a := newAgent(ordersRetriever(), gen, opts)
	ctx := context.Background()

	for _, req := range []string{"one", "two", "three"} {
		_, err := a.GenerateQuery(ctx, req, false)
		require.NoError(t, err)
	}

	third := gen.Calls()[2].Prompt
	assert.Contains(t, third, "User: one")
	assert.Contains(t, third, history.Summarize(long))
	assert.NotContains(t, third, long)

	_, err := a.GenerateQuery(ctx, "four", false)
	require.NoError(t, err)

	fourth := gen.LastCall().Prompt
	assert.NotContains(t, fourth, "User: one")
	assert.Contains(t, fourth, "User: two")
	assert.Contains(t, fourth, "User: three")

	assert.Equal(t, long, a.History()[0].Response, "stored history keeps the full response")
}

func TestGenerateQueryHistoryDisabled(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	opts := DefaultOptions()
	opts.History.Enabled = false
	a := newAgent(ordersRetriever(), gen, opts)

	for i := 0; i < 2; i++ {
		_, err := a.GenerateQuery(context.Background(), "same request", false)
		require.NoError(t, err)
	}

	assert.Empty(t, a.History())
	assert.NotContains(t, gen.LastCall().Prompt, "## Previous Conversation:")
}

func TestGenerateQueryExplain(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newAgent(ordersRetriever(), gen, DefaultOptions())

	_, err := a.GenerateQuery(context.Background(), "total revenue", true)
	require.NoError(t, err)

	p := gen.LastCall().Prompt
	assert.Contains(t, p, prompt.ExplanationInstructions)
	assert.Contains(t, p, prompt.OutputSQLWithExplanation)
}

func TestGenerateQueryNoTables(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newAgent(&staticRetriever{}, gen, DefaultOptions())

	out, err := a.GenerateQuery(context.Background(), "anything", false)
	require.NoError(t, err)
	assert.Equal(t, NoTablesFound, out)
	assert.Empty(t, gen.Calls(), "the model is not called")
	assert.Empty(t, a.History(), "history is untouched")
}

func TestGenerateQueryPassesTopK(t *testing.T) {
	r := ordersRetriever()
	opts := DefaultOptions()
	opts.TopK = 7

	_, err := newAgent(r, testutil.NewFakeGenerator(), opts).GenerateQuery(context.Background(), "x", false)
	require.NoError(t, err)
	assert.Equal(t, 7, r.topK)

	_, err = newAgent(r, testutil.NewFakeGenerator(), Options{}).GenerateQuery(context.Background(), "x", false)
	require.NoError(t, err)
	assert.Equal(t, 5, r.topK, "zero topK uses the default")
}

func TestGenerateQueryGenerationFailure(t *testing.T) {
	cause := goerrors.New("upstream timeout")
	gen := testutil.NewFakeGenerator(testutil.WithGenerateError(cause))
	a := newAgent(ordersRetriever(), gen, DefaultOptions())

	out, err := a.GenerateQuery(context.Background(), "total revenue", false)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
	assert.ErrorIs(t, err, cause)
	assert.Len(t, gen.Calls(), 1, "no retry")
	assert.Empty(t, a.History())
}

func TestGenerateQueryRetrievalFailure(t *testing.T) {
	cause := errors.New(errors.ErrTypeStorage, "database is locked")
	gen := testutil.NewFakeGenerator()
	a := newAgent(&staticRetriever{err: cause}, gen, DefaultOptions())

	_, err := a.GenerateQuery(context.Background(), "x", false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, gen.Calls())
}

func TestGenerateQueryUsesSystemRole(t *testing.T) {
	gen := testutil.NewFakeSystemGenerator(testutil.WithResponses("SELECT 1;"))
	a := New(ordersRetriever(), gen, DefaultOptions(), WithLogger(logging.Discard()))

	_, err := a.GenerateQuery(context.Background(), "total revenue", false)
	require.NoError(t, err)

	call := gen.LastCall()
	assert.Empty(t, call.Prompt)
	assert.Equal(t, prompt.SystemPrompt, call.System)
	assert.NotContains(t, call.User, prompt.SystemPrompt)
	assert.Contains(t, call.User, "## Business Logic:\ntotal revenue")
}

func TestClearHistory(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newAgent(ordersRetriever(), gen, DefaultOptions())

	_, err := a.GenerateQuery(context.Background(), "x", false)
	require.NoError(t, err)
	require.Len(t, a.History(), 1)

	a.ClearHistory()
	assert.Empty(t, a.History())

	_, err = a.GenerateQuery(context.Background(), "y", false)
	require.NoError(t, err)
	assert.NotContains(t, gen.LastCall().Prompt, "## Previous Conversation:")
}

func TestHistoryEvictsOldestTurns(t *testing.T) {
	opts := DefaultOptions()
	opts.History.MaxStored = 2
	a := newAgent(ordersRetriever(), testutil.NewFakeGenerator(), opts)

	for _, req := range []string{"a", "b", "c"} {
		_, err := a.GenerateQuery(context.Background(), req, false)
		require.NoError(t, err)
	}

	turns := a.History()
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].Request)
	assert.Equal(t, "c", turns[1].Request)
}

func TestEndToEndWithSchemaStore(t *testing.T) {
	ctx := context.Background()
	store := schemastore.New(
		storage.NewMemoryCollection("database_schemas", embedding.NewHashProvider(256)),
		schemastore.WithLogger(logging.Discard()),
	)

	var defs []source.Definition
	for name, body := range testutil.SampleSchemas() {
		defs = append(defs, source.NewDefinition(name, []byte(body)))
	}

	result, err := store.Sync(ctx, defs, false)
	require.NoError(t, err)
	require.Equal(t, 3, result.New)

	gen := testutil.NewFakeGenerator(testutil.WithResponses("SELECT email FROM customers;"))
	opts := DefaultOptions()
	opts.TopK = 1
	a := newAgent(store, gen, opts)

	out, err := a.GenerateQuery(ctx, "login email signup", false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT email FROM customers;", out)

	p := gen.LastCall().Prompt
	assert.Contains(t, p, "### Table: customers")
	assert.NotContains(t, p, "### Table: products")
}

func TestRetrievalUsesCurrentRequestOnly(t *testing.T) {
	docs := ordersRetriever().docs

	r := &mockRetriever{}
	r.On("Retrieve", mock.Anything, "count orders", 5).Return(docs, nil).Once()
	r.On("Retrieve", mock.Anything, "now only last week", 5).Return(docs, nil).Once()

	gen := testutil.NewFakeGenerator(testutil.WithResponses(
		"SELECT COUNT(*) FROM orders;",
		"SELECT COUNT(*) FROM orders WHERE created_at > now() - interval '7 days';",
	))
	a := newAgent(r, gen, DefaultOptions())

	_, err := a.GenerateQuery(context.Background(), "count orders", false)
	require.NoError(t, err)

	_, err = a.GenerateQuery(context.Background(), "now only last week", false)
	require.NoError(t, err)

	r.AssertExpectations(t)
	assert.Contains(t, gen.LastCall().Prompt, "User: count orders")
}

func newMemorySchemaStore() *schemastore.Store {
	return schemastore.New(
		storage.NewMemoryCollection("database_schemas", embedding.NewHashProvider(256)),
		schemastore.WithLogger(logging.Discard()),
	)
}

func TestActiveCustomersScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemorySchemaStore()

	customers := testutil.Schema("customers",
		testutil.WithDescription("Registered customers"),
		testutil.WithColumn("id", "INT", "Customer id", "PRIMARY KEY"),
		testutil.WithColumn("active", "BOOLEAN", "Whether the account is active"),
		testutil.WithTextRelationship("Referenced by orders.customer_id"),
	)

	result, err := store.Sync(ctx, []source.Definition{
		source.NewDefinition("schemas/customers.json", testutil.SchemaJSON(t, customers)),
	}, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.New)

	gen := testutil.NewFakeGenerator(testutil.WithResponses("SELECT * FROM customers WHERE active = TRUE;\n"))
	a := newAgent(store, gen, DefaultOptions())

	out, err := a.GenerateQuery(ctx, "get all active customers", false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers WHERE active = TRUE;", out)

	p := gen.LastCall().Prompt
	assert.Contains(t, p, "### Table: customers")
	assert.Contains(t, p, "active (BOOLEAN)")
	assert.Contains(t, p, "Referenced by orders.customer_id")
	assert.Contains(t, p, "## Business Logic:\nget all active customers")
	assert.Contains(t, p, prompt.OutputSQLOnly)

	turns := a.History()
	require.Len(t, turns, 1)
	assert.Equal(t, "get all active customers", turns[0].Request)
	assert.Equal(t, out, turns[0].Response)
}

func TestEmptySchemaStoreShortCircuits(t *testing.T) {
	gen := testutil.NewFakeGenerator()
	a := newAgent(newMemorySchemaStore(), gen, DefaultOptions())

	out, err := a.GenerateQuery(context.Background(), "get all active customers", false)
	require.NoError(t, err)
	assert.Equal(t, NoTablesFound, out)
	assert.Empty(t, gen.Calls())
	assert.Empty(t, a.History())
}
