// Package types provides core data types for the querypulse pattern engine.
package types

import (
	"fmt"
	"strings"
)

// TableRef identifies a warehouse table by database, schema, and table name.
// All comparisons are case-insensitive; Key() is the canonical form.
type TableRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

// Key returns the canonical lowercase "database.schema.table" identity used
// for map keys and deterministic ordering.
func (r TableRef) Key() string {
	return strings.ToLower(fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Table))
}

// String returns the dotted form, omitting empty qualifiers.
func (r TableRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Database, r.Schema, r.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two refs identify the same table, ignoring case.
func (r TableRef) Equal(other TableRef) bool {
	return r.Key() == other.Key()
}

// systemSchemas are schema/database names whose tables are metadata surfaces,
// never user tables. Rows touching only these are filtered by the normalizer.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"account_usage":      true,
	"pg_catalog":         true,
	"sys":                true,
	"performance_schema": true,
}

// IsSystem reports whether the ref points at a system or metadata table.
func (r TableRef) IsSystem() bool {
	if systemSchemas[strings.ToLower(r.Schema)] || systemSchemas[strings.ToLower(r.Database)] {
		return true
	}
	// Snowflake exposes usage views under the SNOWFLAKE database.
	return strings.EqualFold(r.Database, "snowflake")
}

// ParseTableRef splits a dotted identifier into a TableRef. One part is a bare
// table, two parts are schema.table, three or more are database.schema.table.
func ParseTableRef(s string) TableRef {
	parts := strings.Split(strings.TrimSpace(s), ".")
	switch len(parts) {
	case 0:
		return TableRef{}
	case 1:
		return TableRef{Table: parts[0]}
	case 2:
		return TableRef{Schema: parts[0], Table: parts[1]}
	default:
		return TableRef{
			Database: strings.Join(parts[:len(parts)-2], "."),
			Schema:   parts[len(parts)-2],
			Table:    parts[len(parts)-1],
		}
	}
}
