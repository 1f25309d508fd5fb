// Package schema models a single table's schema definition as read from a
// JSON file and renders it for embedding and for prompts.
package schema

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kyleking/sql-agent/internal/errors"
)

// Document describes one table. TableName is its identity in the store.
type Document struct {
	TableName       string         `json:"table_name"`
	Description     string         `json:"description,omitempty"`
	BusinessContext string         `json:"business_context,omitempty"`
	Columns         Columns        `json:"columns,omitempty"`
	Relationships   []Relationship `json:"relationships,omitempty"`
	Indexes         []string       `json:"indexes,omitempty"`
	ExampleQueries  []string       `json:"example_queries,omitempty"`
}

// Column is a single column definition
type Column struct {
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"`
	Constraints Constraints `json:"constraints,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Constraints accepts either "PRIMARY KEY, NOT NULL" or ["PRIMARY KEY", "NOT NULL"]
type Constraints []string

// Columns accepts either an object keyed by column name or an array of
// columns carrying their own name. Source order is kept for stable rendering.
type Columns []Column

// Relationship is either free text or a structured reference to another table
type Relationship struct {
	Text         string `json:"-"`
	Type         string `json:"type,omitempty"`
	RelatedTable string `json:"related_table,omitempty"`
	ForeignKey   string `json:"foreign_key,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Parse decodes and validates a schema definition
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, errors.Wrap(err, errors.ErrTypeInvalidSchema, "malformed schema JSON")
	}

	if err := doc.Validate(); err != nil {
		return Document{}, err
	}

	return doc, nil
}

// Validate rejects documents without a table name
func (d Document) Validate() error {
	if strings.TrimSpace(d.TableName) == "" {
		return errors.NewInvalidSchemaError(d.TableName, "missing table_name")
	}

	return nil
}

// ContentHash fingerprints the raw bytes of a schema file
func ContentHash(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Text joins the constraints for display
func (c Constraints) Text() string {
	return strings.Join(c, ", ")
}

func (c *Constraints) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*c = nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		if s = strings.TrimSpace(s); s != "" {
			*c = Constraints{s}
		} else {
			*c = nil
		}
	default:
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("constraints must be a string or a list of strings: %w", err)
		}

		*c = list
	}

	return nil
}

func (cs *Columns) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*cs = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []Column
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("invalid columns list: %w", err)
		}

		*cs = list

		return nil
	case '{':
		cols, err := decodeColumnObject(data)
		if err != nil {
			return err
		}

		*cs = cols

		return nil
	default:
		return fmt.Errorf("columns must be an object or a list")
	}
}

// decodeColumnObject walks the object token by token so the source key order survives
func decodeColumnObject(data []byte) (Columns, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid columns object: %w", err)
	}

	var cols Columns

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid columns object: %w", err)
		}

		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid column %q: %w", name, err)
		}

		col := Column{Name: name}

		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			// shorthand: "id": "INTEGER"
			if err := json.Unmarshal(raw, &col.Type); err != nil {
				return nil, fmt.Errorf("invalid column %q: %w", name, err)
			}
		} else if err := json.Unmarshal(raw, &col); err != nil {
			return nil, fmt.Errorf("invalid column %q: %w", name, err)
		}

		col.Name = name
		cols = append(cols, col)
	}

	return cols, nil
}

// IsText reports whether the relationship was written as a plain string
func (r Relationship) IsText() bool {
	return r.Text != "" && r.Type == "" && r.RelatedTable == "" && r.ForeignKey == "" && r.Description == ""
}

// Line is the canonical one-line rendering shared by embeddings and prompts
func (r Relationship) Line() string {
	if r.Text != "" {
		return r.Text
	}

	if r.Description != "" {
		return r.Description
	}

	line := r.RelatedTable
	if r.ForeignKey != "" {
		line = r.ForeignKey + " -> " + line
	}

	if r.Type != "" {
		line = strings.TrimSuffix(r.Type+": "+line, ": ")
	}

	return line
}

func (r *Relationship) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*r = Relationship{}
		return json.Unmarshal(data, &r.Text)
	}

	type structured Relationship

	var s structured
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("relationship must be a string or an object: %w", err)
	}

	*r = Relationship(s)

	return nil
}

func (r Relationship) MarshalJSON() ([]byte, error) {
	if r.IsText() {
		return json.Marshal(r.Text)
	}

	type structured Relationship

	return json.Marshal(structured(r))
}
