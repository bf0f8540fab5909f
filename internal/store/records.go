package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// indexedValue is one row of record_values.
type indexedValue struct {
	path string
	text string
	num  sql.NullFloat64
}

// Insert parses doc and stores it as a record of collection, indexing its
// child values. Returns the record id.
func (s *Store) Insert(ctx context.Context, collection, doc string) (int64, error) {
	parsed, err := value.ParseXMLString(doc)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	rec := parsed.Children[0]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO records (collection, xml) VALUES (?, ?)",
		collection, rec.XML())
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get record id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO record_values (record_id, collection, path, text, num)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare value insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range recordValues(rec) {
		if _, err := stmt.ExecContext(ctx, id, collection, v.path, v.text, v.num); err != nil {
			return 0, fmt.Errorf("insert value %s: %w", v.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record: %w", err)
	}

	s.mu.Lock()
	clear(s.estimates)
	s.mu.Unlock()
	return id, nil
}

// recordValues lists the indexed values of rec: every element reachable by
// child steps and every attribute of those elements (and of rec itself).
func recordValues(rec *value.Node) []indexedValue {
	var out []indexedValue
	var walk func(n *value.Node, prefix string)
	walk = func(n *value.Node, prefix string) {
		for _, a := range n.Attrs {
			out = append(out, newIndexedValue(prefix+"@"+a.Name, a.Text))
		}
		for _, c := range n.Children {
			if c.Kind() != seqtype.Element {
				continue
			}
			path := prefix + c.Name
			out = append(out, newIndexedValue(path, c.StringValue()))
			walk(c, path+"/")
		}
	}
	walk(rec, "")
	return out
}

func newIndexedValue(path, text string) indexedValue {
	v := indexedValue{path: path, text: text}
	// Numeric reading follows the untypedAtomic to xs:double cast used by
	// general comparisons.
	if d, err := value.Cast(value.Untyped(text), seqtype.Double); err == nil {
		if f := value.ToDouble(d); !math.IsNaN(f) {
			v.num = sql.NullFloat64{Float64: f, Valid: true}
		}
	}
	return v
}

// Collection returns every record of the named collection, in record order.
// It implements expr.Collections.
func (s *Store) Collection(ctx context.Context, name string) (value.Seq, error) {
	query, params := s.sql.Scan(name)
	recs, err := s.records(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", name, err)
	}
	return recs, nil
}

// Size returns the number of records in a collection.
func (s *Store) Size(ctx context.Context, collection string) (int64, error) {
	query, params := s.sql.Size(collection)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("size of %s: %w", collection, err)
	}
	return n, nil
}

// records runs a query returning (id, xml) rows and parses each record.
// Returns an empty sequence, never nil, when nothing matches.
func (s *Store) records(ctx context.Context, query string, params []any) (value.Items, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := value.Items{}
	for rows.Next() {
		var (
			id  int64
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		parsed, err := value.ParseXMLString(doc)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", id, err)
		}
		out = append(out, parsed.Children[0])
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
