package types

import "strings"

// ColumnMeta describes one column of a warehouse table.
type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableMetadata is the extracted metadata for one warehouse table.
type TableMetadata struct {
	Ref       TableRef     `json:"table"`
	Columns   []ColumnMeta `json:"columns"`
	SizeBytes int64        `json:"size_bytes"`
	RowCount  int64        `json:"row_count"`
	Platform  string       `json:"source_platform"`
	Project   string       `json:"source_project"`
	Region    string       `json:"source_region,omitempty"`
}

// ColumnCatalog is a best-effort mapping of table to known column names,
// used to validate extracted predicate columns against the real schema.
// A nil or empty catalog validates nothing (all hits pass).
type ColumnCatalog map[string]map[string]bool

// NewColumnCatalog builds a catalog from extracted table metadata.
func NewColumnCatalog(tables []TableMetadata) ColumnCatalog {
	cat := make(ColumnCatalog, len(tables))
	for _, t := range tables {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			cols[strings.ToLower(c.Name)] = true
		}
		cat[t.Ref.Key()] = cols
	}
	return cat
}

// Knows reports whether the catalog has any schema for the table. Hits on
// tables the catalog does not know are never dropped.
func (c ColumnCatalog) Knows(ref TableRef) bool {
	_, ok := c[ref.Key()]
	return ok
}

// Has reports whether the column exists on the table. Unknown tables pass.
func (c ColumnCatalog) Has(ref TableRef, column string) bool {
	cols, ok := c[ref.Key()]
	if !ok {
		return true
	}
	return cols[strings.ToLower(column)]
}

// TablesWith returns which of the given refs have the column, used to
// resolve unqualified columns in multi-table queries.
func (c ColumnCatalog) TablesWith(refs []TableRef, column string) []TableRef {
	var out []TableRef
	for _, ref := range refs {
		cols, ok := c[ref.Key()]
		if ok && cols[strings.ToLower(column)] {
			out = append(out, ref)
		}
	}
	return out
}
