package querysql

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/xqcore/internal/index"
)

// Schema is the record store layout the compiled statements run against.
// Every indexed value of a record is a row of record_values; num holds the
// value read as a double, or NULL if it is not numeric.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	xml        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_by_collection ON records(collection, id);

CREATE TABLE IF NOT EXISTS record_values (
	record_id  INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	collection TEXT NOT NULL,
	path       TEXT NOT NULL,
	text       TEXT NOT NULL,
	num        REAL,
	PRIMARY KEY (record_id, path, text)
);
CREATE INDEX IF NOT EXISTS record_values_by_text ON record_values(collection, path, text COLLATE BINARY);
CREATE INDEX IF NOT EXISTS record_values_by_num ON record_values(collection, path, num);
`

// SQLCompiler compiles index descriptors to parameterized SQL for SQLite.
//
// CRITICAL: record queries are ordered by record id, which is document order
// within a collection.
// CRITICAL: all values are parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile returns the query selecting (id, xml) of every record matched by
// d, in record order.
func (c *SQLCompiler) Compile(d index.Descriptor) (string, []any, error) {
	where, params, err := c.compileMatch(d)
	if err != nil {
		return "", nil, err
	}
	coll, _ := d.Target()
	sql := "SELECT r.id, r.xml FROM records r WHERE r.collection = ? AND r.id IN (" +
		"SELECT v.record_id FROM record_values v WHERE " + where + ")" +
		" ORDER BY r.id ASC"
	return sql, append([]any{coll}, params...), nil
}

// Count returns the query counting the records matched by d.
func (c *SQLCompiler) Count(d index.Descriptor) (string, []any, error) {
	where, params, err := c.compileMatch(d)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(DISTINCT v.record_id) FROM record_values v WHERE " + where, params, nil
}

// Size returns the query counting the records of a collection.
func (c *SQLCompiler) Size(collection string) (string, []any) {
	return "SELECT COUNT(*) FROM records WHERE collection = ?", []any{collection}
}

// Scan returns the query selecting every record of a collection in order.
func (c *SQLCompiler) Scan(collection string) (string, []any) {
	return "SELECT id, xml FROM records WHERE collection = ? ORDER BY id ASC", []any{collection}
}

// compileMatch builds the record_values condition for d.
func (c *SQLCompiler) compileMatch(d index.Descriptor) (string, []any, error) {
	if d == nil {
		return "", nil, fmt.Errorf("cannot compile nil descriptor")
	}
	if res := index.Validate(d); !res.Eligible {
		return "", nil, fmt.Errorf("descriptor %s is not eligible: %s", d, strings.Join(res.Warnings, "; "))
	}
	coll, path := d.Target()
	parts := []string{"v.collection = ?", "v.path = ?"}
	params := []any{coll, index.PathString(path)}

	switch desc := d.(type) {
	case index.TokenMatch:
		parts = append(parts, "v.text = ?")
		params = append(params, desc.Value)
	case index.NumericRange:
		parts = append(parts, "v.num IS NOT NULL")
		if !math.IsInf(desc.Min, -1) {
			parts = append(parts, "v.num "+lowerOp(desc.MinIncl)+" ?")
			params = append(params, desc.Min)
		}
		if !math.IsInf(desc.Max, 1) {
			parts = append(parts, "v.num "+upperOp(desc.MaxIncl)+" ?")
			params = append(params, desc.Max)
		}
	case index.StringRange:
		if desc.HasMin {
			parts = append(parts, "v.text "+lowerOp(desc.MinIncl)+" ? COLLATE BINARY")
			params = append(params, desc.Min)
		}
		if desc.HasMax {
			parts = append(parts, "v.text "+upperOp(desc.MaxIncl)+" ? COLLATE BINARY")
			params = append(params, desc.Max)
		}
	default:
		return "", nil, fmt.Errorf("unsupported descriptor type: %T", d)
	}
	return strings.Join(parts, " AND "), params, nil
}

func lowerOp(incl bool) string {
	if incl {
		return ">="
	}
	return ">"
}

func upperOp(incl bool) string {
	if incl {
		return "<="
	}
	return "<"
}
