package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"

	"github.com/kyleking/sql-agent/internal/errors"
)

// mockRESTClient answers by exact path and 404s everything else
type mockRESTClient struct {
	responses map[string]interface{}
	errors    map[string]error
	calls     []string
}

func newMockRESTClient() *mockRESTClient {
	return &mockRESTClient{
		responses: make(map[string]interface{}),
		errors:    make(map[string]error),
	}
}

func (m *mockRESTClient) Get(path string, response interface{}) error {
	m.calls = append(m.calls, path)

	if err, ok := m.errors[path]; ok {
		return err
	}

	resp, ok := m.responses[path]
	if !ok {
		return &api.HTTPError{StatusCode: http.StatusNotFound}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, response)
}

// encodeContent wraps base64 the way the contents API does
func encodeContent(body string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))

	var b strings.Builder
	for len(encoded) > 60 {
		b.WriteString(encoded[:60])
		b.WriteString("\n")
		encoded = encoded[60:]
	}
	b.WriteString(encoded)

	return b.String()
}

func fileEntry(path, body string) contentEntry {
	return contentEntry{Name: filepath.Base(path), Path: path, Type: "file", Content: encodeContent(body), Encoding: "base64"}
}

func TestGitHubLoad(t *testing.T) {
	client := newMockRESTClient()
	client.responses["repos/acme/warehouse/contents/schemas?ref=main"] = []contentEntry{
		{Name: "orders.json", Path: "schemas/orders.json", Type: "file"},
		{Name: "customers.json", Path: "schemas/customers.json", Type: "file"},
		{Name: "raw.json", Path: "schemas/raw.json", Type: "file"},
		{Name: "README.md", Path: "schemas/README.md", Type: "file"},
		{Name: "legacy", Path: "schemas/legacy", Type: "dir"},
	}
	client.responses["repos/acme/warehouse/contents/schemas/orders.json?ref=main"] = fileEntry("schemas/orders.json", ordersJSON)
	client.responses["repos/acme/warehouse/contents/schemas/customers.json?ref=main"] = fileEntry("schemas/customers.json", customersJSON)
	client.responses["repos/acme/warehouse/contents/schemas/raw.json?ref=main"] = contentEntry{Path: "schemas/raw.json", Encoding: "none"}

	src, err := NewGitHubWithClient(client, "acme/warehouse", "/schemas/", "main")
	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/warehouse/schemas@main", src.Describe())

	defs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "customers", defs[0].ID)
	require.NoError(t, defs[0].Err)
	assert.Equal(t, "github.com/acme/warehouse/schemas@main:schemas/customers.json", defs[0].Origin)

	assert.Equal(t, "orders", defs[1].ID)
	assert.Equal(t, ordersJSON, string(defs[1].Raw))

	assert.Equal(t, "raw", defs[2].ID)
	assert.True(t, errors.IsType(defs[2].Err, errors.ErrTypeInvalidSchema))

	assert.NotContains(t, client.calls, "repos/acme/warehouse/contents/schemas/README.md?ref=main")
}

func TestGitHubLoadRepositoryRoot(t *testing.T) {
	client := newMockRESTClient()
	client.responses["repos/acme/warehouse/contents/"] = []contentEntry{{Name: "orders.json", Path: "orders.json", Type: "file"}}
	client.responses["repos/acme/warehouse/contents/orders.json"] = fileEntry("orders.json", ordersJSON)

	src, err := NewGitHubWithClient(client, "acme/warehouse", "", "")
	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/warehouse", src.Describe())

	defs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "orders", defs[0].Document.TableName)
}

func TestGitHubLoadErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		src, err := NewGitHubWithClient(newMockRESTClient(), "acme/warehouse", "nope", "")
		require.NoError(t, err)

		_, err = src.Load(context.Background())
		assert.True(t, errors.IsType(err, errors.ErrTypeSourceNotFound))
	})

	t.Run("no schema files", func(t *testing.T) {
		client := newMockRESTClient()
		client.responses["repos/acme/warehouse/contents/docs"] = []contentEntry{{Name: "a.md", Path: "docs/a.md", Type: "file"}}

		src, err := NewGitHubWithClient(client, "acme/warehouse", "docs", "")
		require.NoError(t, err)

		_, err = src.Load(context.Background())
		assert.True(t, errors.IsType(err, errors.ErrTypeSourceNotFound))
	})

	t.Run("server error", func(t *testing.T) {
		client := newMockRESTClient()
		client.errors["repos/acme/warehouse/contents/schemas"] = &api.HTTPError{StatusCode: http.StatusBadGateway}

		src, err := NewGitHubWithClient(client, "acme/warehouse", "schemas", "")
		require.NoError(t, err)

		_, err = src.Load(context.Background())
		assert.True(t, errors.IsType(err, errors.ErrTypeNetwork))
	})

	t.Run("file fetch failure is per definition", func(t *testing.T) {
		client := newMockRESTClient()
		client.responses["repos/acme/warehouse/contents/schemas"] = []contentEntry{{Name: "gone.json", Path: "schemas/gone.json", Type: "file"}}

		src, err := NewGitHubWithClient(client, "acme/warehouse", "schemas", "")
		require.NoError(t, err)

		defs, err := src.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.True(t, errors.IsType(defs[0].Err, errors.ErrTypeNetwork))
	})
}

func TestNewGitHubWithClientValidation(t *testing.T) {
	for _, repo := range []string{"", "acme", "acme/", "/warehouse", "a/b/c"} {
		_, err := NewGitHubWithClient(newMockRESTClient(), repo, "", "")
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig), repo)
	}

	_, err := NewGitHubWithClient(nil, "acme/warehouse", "", "")
	assert.Error(t, err)
}

func TestContentsPathEscapes(t *testing.T) {
	src, err := NewGitHubWithClient(newMockRESTClient(), "acme/warehouse", "my schemas", "feature/x")
	require.NoError(t, err)

	assert.Equal(t, "repos/acme/warehouse/contents/my%20schemas/a.json?ref=feature%2Fx", src.contentsPath("my schemas/a.json"))
}

// vcrRESTClient serves RESTClientInterface over the recorder's http client
type vcrRESTClient struct {
	httpClient *http.Client
	baseURL    string
}

func (v *vcrRESTClient) Get(path string, response interface{}) error {
	resp, err := v.httpClient.Get(v.baseURL + "/" + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &api.HTTPError{StatusCode: resp.StatusCode}
	}

	return json.NewDecoder(resp.Body).Decode(response)
}

func newContentsServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/warehouse/contents/schemas", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]contentEntry{{Name: "orders.json", Path: "schemas/orders.json", Type: "file"}})
	})
	mux.HandleFunc("/repos/acme/warehouse/contents/schemas/orders.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fileEntry("schemas/orders.json", ordersJSON))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func loadThroughRecorder(t *testing.T, cassettePath string, mode recorder.Mode, transport http.RoundTripper, baseURL string) []Definition {
	t.Helper()

	opts := []recorder.Option{
		recorder.WithMode(mode),
		recorder.WithMatcher(cassette.NewDefaultMatcher(
			cassette.WithIgnoreAuthorization(),
			cassette.WithIgnoreHeaders("Accept", "User-Agent"),
		)),
	}
	if transport != nil {
		opts = append(opts, recorder.WithRealTransport(transport))
	}

	r, err := recorder.New(cassettePath, opts...)
	require.NoError(t, err)

	src, err := NewGitHubWithClient(&vcrRESTClient{httpClient: r.GetDefaultClient(), baseURL: baseURL}, "acme/warehouse", "schemas", "")
	require.NoError(t, err)

	defs, err := src.Load(context.Background())
	require.NoError(t, r.Stop())
	require.NoError(t, err)

	return defs
}

func TestGitHubLoadRecordAndReplay(t *testing.T) {
	server := newContentsServer(t)
	cassettePath := filepath.Join(t.TempDir(), "github_contents")

	recorded := loadThroughRecorder(t, cassettePath, recorder.ModeRecordOnly, server.Client().Transport, server.URL)
	require.Len(t, recorded, 1)

	// replay must not reach the server
	baseURL := server.URL
	server.Close()

	replayed := loadThroughRecorder(t, cassettePath, recorder.ModeReplayOnly, nil, baseURL)
	require.Len(t, replayed, 1)
	assert.Equal(t, recorded[0].Document, replayed[0].Document)
	assert.Equal(t, "orders", replayed[0].Document.TableName)
}
