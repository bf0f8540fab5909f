package store

import (
	"context"
	"fmt"

	"github.com/roach88/xqcore/internal/expr"
	"github.com/roach88/xqcore/internal/index"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

var (
	_ expr.IndexProvider = (*Store)(nil)
	_ expr.Collections   = (*Store)(nil)
)

// Estimate returns the number of records matching d. Descriptors the value
// index cannot serve are reported as not applicable rather than as errors.
func (s *Store) Estimate(ctx context.Context, d index.Descriptor) (index.Cost, error) {
	if !index.Validate(d).Eligible {
		return index.NotApplicable, nil
	}

	key := index.Key(d)
	s.mu.Lock()
	n, ok := s.estimates[key]
	s.mu.Unlock()
	if ok {
		return index.Cost{Applicable: true, Results: n}, nil
	}

	query, params, err := s.sql.Count(d)
	if err != nil {
		return index.NotApplicable, nil
	}
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return index.Cost{}, fmt.Errorf("estimate %s: %w", d, err)
	}

	s.mu.Lock()
	s.estimates[key] = n
	s.mu.Unlock()
	return index.Cost{Applicable: true, Results: n}, nil
}

// Access returns a leaf that reads the records matched by d from the value
// index when evaluated.
func (s *Store) Access(_ context.Context, d index.Descriptor, info qerr.Info) (expr.Expr, error) {
	query, params, err := s.sql.Compile(d)
	if err != nil {
		return nil, fmt.Errorf("access %s: %w", d, err)
	}
	return expr.NewIndexAccess(d, info, func(ctx context.Context) (value.Seq, error) {
		recs, err := s.records(ctx, query, params)
		if err != nil {
			return nil, fmt.Errorf("index access %s: %w", d, err)
		}
		return recs, nil
	}), nil
}
