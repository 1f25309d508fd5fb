// Package source loads schema definition files from where they are kept:
// a local directory, an S3-compatible bucket, or a GitHub repository.
package source

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/schema"
)

// Definition is one schema file as read from a source. A file that could not
// be parsed carries the failure in Err so a batch can count it and move on.
type Definition struct {
	ID       string
	Origin   string
	Raw      []byte
	Document schema.Document
	Err      error
}

// Source loads every schema definition it can find
type Source interface {
	Load(ctx context.Context) ([]Definition, error)

	// Describe names the location for log and CLI output
	Describe() string
}

// New returns the source selected by cfg.Type
func New(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	switch strings.ToLower(cfg.Type) {
	case "dir", "":
		return NewDirectory(config.ExpandPath(cfg.Directory)), nil
	case "s3":
		s, err := NewS3(ctx, S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3KeyID,
			SecretAccessKey: cfg.S3Secret,
			UseSSL:          cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}

		return s, nil
	case "github":
		g, err := NewGitHub(cfg.GitHubRepo, cfg.GitHubPath, cfg.GitHubRef)
		if err != nil {
			return nil, err
		}

		return g, nil
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported schema source: %s", cfg.Type)
	}
}

// NewDefinition parses raw into a definition identified by the file stem
func NewDefinition(origin string, raw []byte) Definition {
	def := Definition{
		ID:     stem(origin),
		Origin: origin,
		Raw:    raw,
	}

	def.Document, def.Err = schema.Parse(raw)

	return def
}

// IDs returns the identifiers that still have a definition file: every file
// stem plus the table name of each definition that parsed
func IDs(defs []Definition) []string {
	seen := make(map[string]bool, len(defs))
	ids := make([]string, 0, len(defs))

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, d := range defs {
		add(d.ID)

		if d.Err == nil {
			add(d.Document.TableName)
		}
	}

	return ids
}

func stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func isSchemaFile(name string) bool {
	return strings.EqualFold(path.Ext(name), ".json")
}

func sortByOrigin(defs []Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Origin < defs[j].Origin })
}
