package schema

import (
	"fmt"
	"strings"
)

const unknownType = "UNKNOWN"

// SearchableText is the text embedded for similarity search
func (d Document) SearchableText() string {
	parts := []string{"Table: " + d.TableName}

	if d.Description != "" {
		parts = append(parts, "Description: "+d.Description)
	}

	if d.BusinessContext != "" {
		parts = append(parts, "Business Context: "+d.BusinessContext)
	}

	if len(d.Columns) > 0 {
		parts = append(parts, "\nColumns:")
		for _, col := range d.Columns {
			parts = append(parts, strings.TrimRight(fmt.Sprintf("  - %s: %s %s", col.Name, col.Type, col.Description), " "))
		}
	}

	parts = append(parts, d.relationshipLines()...)

	return strings.Join(parts, "\n")
}

// ContextLine renders a column for the prompt's schema section
func (c Column) ContextLine() string {
	colType := c.Type
	if colType == "" {
		colType = unknownType
	}

	name := c.Name
	if name == "" {
		name = unknownType
	}

	line := fmt.Sprintf("  - %s (%s)", name, colType)

	if text := c.Constraints.Text(); text != "" {
		line += " [" + text + "]"
	}

	if c.Description != "" {
		line += " - " + c.Description
	}

	return line
}

// Context renders the document as a prompt section
func (d Document) Context() string {
	lines := []string{"\n### Table: " + d.TableName}

	if d.Description != "" {
		lines = append(lines, "Description: "+d.Description)
	}

	if len(d.Columns) > 0 {
		lines = append(lines, "\nColumns:")
		for _, col := range d.Columns {
			lines = append(lines, col.ContextLine())
		}
	}

	lines = append(lines, d.relationshipLines()...)

	return strings.Join(lines, "\n")
}

func (d Document) relationshipLines() []string {
	if len(d.Relationships) == 0 {
		return nil
	}

	lines := []string{"\nRelationships:"}
	for _, rel := range d.Relationships {
		lines = append(lines, "  - "+rel.Line())
	}

	return lines
}

// FormatContext renders retrieved documents, in rank order, as the schema
// section of a prompt
func FormatContext(docs []Document) string {
	sections := make([]string, 0, len(docs))
	for _, doc := range docs {
		sections = append(sections, doc.Context())
	}

	return strings.Join(sections, "\n")
}

// Names returns the table names in order
func Names(docs []Document) []string {
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, doc.TableName)
	}

	return names
}
