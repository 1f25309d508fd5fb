package source

import (
	"context"
	"encoding/base64"
	goerrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/kyleking/sql-agent/internal/errors"
)

// RESTClientInterface is the part of the go-gh REST client the source uses
type RESTClientInterface interface {
	Get(path string, resp interface{}) error
}

// contentEntry is one item of the repository contents API
type contentEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GitHub reads *.json files from one directory of a repository using the
// authentication of the GitHub CLI
type GitHub struct {
	client RESTClientInterface
	repo   string
	path   string
	ref    string
}

func NewGitHub(repo, dir, ref string) (*GitHub, error) {
	if err := validateRepo(repo); err != nil {
		return nil, err
	}

	client, err := api.DefaultRESTClient()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create GitHub API client").
			WithSuggestion("Run 'gh auth login' or set GH_TOKEN")
	}

	return NewGitHubWithClient(client, repo, dir, ref)
}

func NewGitHubWithClient(client RESTClientInterface, repo, dir, ref string) (*GitHub, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}

	if err := validateRepo(repo); err != nil {
		return nil, err
	}

	return &GitHub{
		client: client,
		repo:   strings.TrimSpace(repo),
		path:   strings.Trim(strings.TrimSpace(dir), "/"),
		ref:    strings.TrimSpace(ref),
	}, nil
}

func validateRepo(repo string) error {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errors.NewConfigError(fmt.Sprintf("github repository must be owner/name, got %q", repo), "source.github_repo")
	}

	return nil
}

func (g *GitHub) Describe() string {
	location := "github.com/" + g.repo
	if g.path != "" {
		location += "/" + g.path
	}

	if g.ref != "" {
		location += "@" + g.ref
	}

	return location
}

func (g *GitHub) Load(ctx context.Context) ([]Definition, error) {
	var entries []contentEntry
	if err := g.client.Get(g.contentsPath(g.path), &entries); err != nil {
		if isNotFound(err) {
			return nil, errors.NewSourceNotFoundError(g.Describe())
		}

		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "failed to list %s", g.Describe())
	}

	var defs []Definition

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if entry.Type != "file" || !isSchemaFile(entry.Name) {
			continue
		}

		origin := g.Describe() + ":" + entry.Path

		raw, err := g.fetch(entry.Path)
		if err != nil {
			defs = append(defs, Definition{ID: stem(entry.Name), Origin: origin, Err: err})
			continue
		}

		defs = append(defs, NewDefinition(origin, raw))
	}

	if len(defs) == 0 {
		return nil, errors.NewSourceNotFoundError(g.Describe())
	}

	sortByOrigin(defs)

	return defs, nil
}

func (g *GitHub) fetch(filePath string) ([]byte, error) {
	var file contentEntry
	if err := g.client.Get(g.contentsPath(filePath), &file); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "failed to fetch %s", filePath)
	}

	if file.Encoding != "base64" {
		return nil, errors.NewInvalidSchemaError(filePath, fmt.Sprintf("unsupported content encoding %q", file.Encoding))
	}

	// the API wraps base64 content at 60 columns
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, errors.NewInvalidSchemaError(filePath, "content is not valid base64")
	}

	return raw, nil
}

func (g *GitHub) contentsPath(p string) string {
	var escaped []string
	for _, segment := range strings.Split(p, "/") {
		if segment != "" {
			escaped = append(escaped, url.PathEscape(segment))
		}
	}

	out := fmt.Sprintf("repos/%s/contents/%s", g.repo, strings.Join(escaped, "/"))
	if g.ref != "" {
		out += "?ref=" + url.QueryEscape(g.ref)
	}

	return out
}

func isNotFound(err error) bool {
	var httpErr *api.HTTPError

	return goerrors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
