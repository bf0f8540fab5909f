package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/value"
)

func TestInsert_IndexesChildValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "books", testBooks[3])
	require.NoError(t, err)

	rows, err := s.Query(ctx, `
		SELECT path, text, num FROM record_values
		WHERE record_id = ?
		ORDER BY path ASC, text COLLATE BINARY ASC
	`, id)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		path, text string
		numeric    bool
	}
	var got []row
	for rows.Next() {
		var r row
		var num *float64
		require.NoError(t, rows.Scan(&r.path, &r.text, &num))
		r.numeric = num != nil
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []row{
		{"@id", "b4", false},
		{"author", "Cid", false},
		{"author/name", "Cid", false},
		{"price", "8", true},
		{"title", "D", false},
	}, got)
}

func TestInsert_NumericReading(t *testing.T) {
	tests := []struct {
		text string
		num  float64
		ok   bool
	}{
		{"12", 12, true},
		{" 4.5 ", 4.5, true},
		{"-1e2", -100, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v := newIndexedValue("price", tt.text)
			assert.Equal(t, tt.ok, v.num.Valid)
			if tt.ok {
				assert.Equal(t, tt.num, v.num.Float64)
			}
		})
	}
}

func TestInsert_DuplicateValuesStoredOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "tags", `<doc><tag>x</tag><tag>x</tag><tag>y</tag></doc>`)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM record_values WHERE record_id = ?", id).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestInsert_RejectsMalformedXML(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Insert(context.Background(), "books", "<book><title>")
	require.Error(t, err)

	n, err := s.Size(context.Background(), "books")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollection_RecordOrder(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)
	_, err := s.Insert(context.Background(), "other", `<x><title>Z</title></x>`)
	require.NoError(t, err)

	recs, err := s.Collection(context.Background(), "books")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, titlesOf(t, recs))

	// Records are element nodes in increasing document order.
	for i := int64(1); i < recs.Len(); i++ {
		prev := recs.At(i - 1).(*value.Node)
		cur := recs.At(i).(*value.Node)
		assert.True(t, prev.Before(cur))
	}
}

func TestCollection_Empty(t *testing.T) {
	s := createTestStore(t)

	recs, err := s.Collection(context.Background(), "nothing")
	require.NoError(t, err)
	require.NotNil(t, recs)
	assert.Zero(t, recs.Len())
}

func TestSize(t *testing.T) {
	s := createTestStore(t)
	seedBooks(t, s)

	n, err := s.Size(context.Background(), "books")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
