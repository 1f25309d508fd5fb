package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kyleking/sql-agent/internal/schema"
)

// SchemaOption is a functional option for configuring test schemas
type SchemaOption func(*schema.Document)

// WithDescription sets the table description
func WithDescription(desc string) SchemaOption {
	return func(d *schema.Document) {
		d.Description = desc
	}
}

// WithBusinessContext sets the business context
func WithBusinessContext(text string) SchemaOption {
	return func(d *schema.Document) {
		d.BusinessContext = text
	}
}

// WithColumn appends a column
func WithColumn(name, typ, desc string, constraints ...string) SchemaOption {
	return func(d *schema.Document) {
		d.Columns = append(d.Columns, schema.Column{
			Name:        name,
			Type:        typ,
			Description: desc,
			Constraints: constraints,
		})
	}
}

// WithTextRelationship appends a free-text relationship
func WithTextRelationship(text string) SchemaOption {
	return func(d *schema.Document) {
		d.Relationships = append(d.Relationships, schema.Relationship{Text: text})
	}
}

// WithForeignKey appends a structured relationship
func WithForeignKey(relType, table, fk string) SchemaOption {
	return func(d *schema.Document) {
		d.Relationships = append(d.Relationships, schema.Relationship{
			Type:         relType,
			RelatedTable: table,
			ForeignKey:   fk,
		})
	}
}

// Schema creates a test schema document with the given options
func Schema(table string, opts ...SchemaOption) schema.Document {
	doc := schema.Document{TableName: table}
	for _, opt := range opts {
		opt(&doc)
	}

	return doc
}

// SchemaJSON marshals doc, failing the test on error
func SchemaJSON(t *testing.T, doc schema.Document) []byte {
	t.Helper()

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal schema %q: %v", doc.TableName, err)
	}

	return raw
}

// WriteSchemaDir writes files into a new temp directory and returns it
func WriteSchemaDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	return dir
}
