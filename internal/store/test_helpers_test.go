package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/value"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testBooks = []string{
	`<book id="b1"><title>A</title><author>Ann</author><price>5</price></book>`,
	`<book id="b2"><title>B</title><author>Bob</author><price>12</price></book>`,
	`<book id="b3"><title>C</title><author>Ann</author><price>30</price><price>4</price></book>`,
	`<book id="b4"><title>D</title><author><name>Cid</name></author><price>8</price></book>`,
}

// seedBooks inserts testBooks into the "books" collection.
func seedBooks(t *testing.T, s *Store) {
	t.Helper()
	for _, b := range testBooks {
		_, err := s.Insert(context.Background(), "books", b)
		require.NoError(t, err)
	}
}

// titlesOf returns the title text of each record.
func titlesOf(t *testing.T, recs value.Seq) []string {
	t.Helper()
	out := make([]string, 0, recs.Len())
	for i := range recs.Len() {
		n, ok := recs.At(i).(*value.Node)
		require.True(t, ok, "record %d is %T", i, recs.At(i))
		out = append(out, n.Children[0].StringValue())
	}
	return out
}
