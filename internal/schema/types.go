package schema

import (
	"fmt"
	"regexp"

	"github.com/roach88/shardstore/internal/storeerr"
)

// ColumnType is the semantic type of a payload column.
type ColumnType int

const (
	// Float columns hold float64 parameters and may use relative-tolerance matching.
	Float ColumnType = iota + 1
	// Int columns hold int64 values, typically serials of other objects.
	Int
	// String columns hold NFC-normalized text labels.
	String
	// Bool columns hold flags, stored as 0/1.
	Bool
)

// String returns the lowercase name of the column type.
func (t ColumnType) String() string {
	switch t {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// SQLType returns the SQLite storage class for the column type.
func (t ColumnType) SQLType() string {
	switch t {
	case Float:
		return "REAL"
	case String:
		return "TEXT"
	default:
		return "INTEGER"
	}
}

// MatchKind selects how a key column is compared during find-or-create.
type MatchKind int

const (
	// MatchExact requires stored == requested.
	MatchExact MatchKind = iota
	// MatchRelative requires |stored - requested| / |requested| < Epsilon.
	// When requested is exactly zero the comparison is absolute: |stored| < Epsilon.
	MatchRelative
)

// MatchRule is the matching rule for a key column.
type MatchRule struct {
	Kind    MatchKind
	Epsilon float64
}

// Exact returns an exact-equality match rule.
func Exact() MatchRule {
	return MatchRule{Kind: MatchExact}
}

// Relative returns a relative-tolerance match rule.
func Relative(eps float64) MatchRule {
	return MatchRule{Kind: MatchRelative, Epsilon: eps}
}

// Column describes one payload column of an object type.
type Column struct {
	Name    string
	Type    ColumnType
	Indexed bool

	// Key columns participate in find-or-create matching. Non-key columns are
	// data columns: written at insert when present, or later by Store.
	Key   bool
	Match MatchRule
}

// ObjectType is the immutable descriptor of a stored object type.
type ObjectType struct {
	Name string

	// Versioned types record the serial of the store's version row on insert.
	Versioned bool

	// Timestamped types record their creation time on insert.
	Timestamped bool

	// Replicated types exist with identical serials on every shard.
	// Partitioned types (Replicated == false) live on exactly one shard.
	Replicated bool

	// TracksValidation types carry a ValidationMark and are subject to pruning.
	TracksValidation bool

	Columns []Column

	// SortColumn is the natural sort key for bulk reads. Empty means serial.
	SortColumn string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedColumns are managed by the store and may not be declared.
var reservedColumns = map[string]bool{
	"serial":         true,
	"validated":      true,
	"generation":     true,
	"version_serial": true,
	"created_at":     true,
}

// Validate checks the descriptor is well formed.
func (t ObjectType) Validate() error {
	if !identPattern.MatchString(t.Name) {
		return storeerr.Config("invalid object type name %q", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	keys := 0
	for _, c := range t.Columns {
		if !identPattern.MatchString(c.Name) {
			return storeerr.Config("type %s: invalid column name %q", t.Name, c.Name)
		}
		if reservedColumns[c.Name] {
			return storeerr.Config("type %s: column name %q is reserved", t.Name, c.Name)
		}
		if seen[c.Name] {
			return storeerr.Config("type %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Type < Float || c.Type > Bool {
			return storeerr.Config("type %s: column %q has no type", t.Name, c.Name)
		}
		if c.Key {
			keys++
			if c.Match.Kind == MatchRelative {
				if c.Type != Float {
					return storeerr.Config("type %s: relative match on non-float column %q", t.Name, c.Name)
				}
				if c.Match.Epsilon <= 0 {
					return storeerr.Config("type %s: column %q needs a positive epsilon", t.Name, c.Name)
				}
			}
		}
	}
	if keys == 0 {
		return storeerr.Config("type %s: at least one key column is required", t.Name)
	}
	if t.SortColumn != "" && !seen[t.SortColumn] {
		return storeerr.Config("type %s: sort column %q is not declared", t.Name, t.SortColumn)
	}
	return nil
}

// Column returns the column named name.
func (t ObjectType) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// KeyColumns returns the key columns in declaration order.
func (t ObjectType) KeyColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Key {
			out = append(out, c)
		}
	}
	return out
}

// DataColumns returns the non-key columns in declaration order.
func (t ObjectType) DataColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if !c.Key {
			out = append(out, c)
		}
	}
	return out
}

// OrderBy returns the column used for deterministic bulk-read ordering.
func (t ObjectType) OrderBy() string {
	if t.SortColumn == "" {
		return "serial"
	}
	return t.SortColumn
}

// Placement returns "replicated" or "partitioned".
func (t ObjectType) Placement() string {
	if t.Replicated {
		return "replicated"
	}
	return "partitioned"
}

// String implements fmt.Stringer.
func (t ObjectType) String() string {
	return fmt.Sprintf("%s(%s, %d columns)", t.Name, t.Placement(), len(t.Columns))
}

// ValidIdent reports whether name is safe to use as an SQL identifier.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}
