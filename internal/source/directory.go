package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kyleking/sql-agent/internal/errors"
)

// Directory reads *.json files from a single directory, non-recursively
type Directory struct {
	Path string
}

func NewDirectory(path string) *Directory {
	return &Directory{Path: path}
}

func (d *Directory) Describe() string {
	return d.Path
}

func (d *Directory) Load(ctx context.Context) ([]Definition, error) {
	info, err := os.Stat(d.Path)
	if err != nil || !info.IsDir() {
		return nil, errors.NewSourceNotFoundError(d.Path)
	}

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read %s", d.Path)
	}

	var defs []Definition

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if entry.IsDir() || !isSchemaFile(entry.Name()) {
			continue
		}

		full := filepath.Join(d.Path, entry.Name())

		raw, err := os.ReadFile(full)
		if err != nil {
			defs = append(defs, Definition{
				ID:     stem(entry.Name()),
				Origin: full,
				Err:    errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read %s", full),
			})

			continue
		}

		defs = append(defs, NewDefinition(full, raw))
	}

	if len(defs) == 0 {
		return nil, errors.NewSourceNotFoundError(d.Path)
	}

	sortByOrigin(defs)

	return defs, nil
}
