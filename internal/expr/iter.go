package expr

import (
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/value"
)

// Iter is a lazy, single-pass iterator. Next returns nil when exhausted.
type Iter interface {
	Next() (value.Item, error)
}

// IterFunc adapts a function to Iter.
type IterFunc func() (value.Item, error)

func (f IterFunc) Next() (value.Item, error) { return f() }

type seqIter struct {
	s value.Seq
	i int64
}

func (it *seqIter) Next() (value.Item, error) {
	if it.i >= it.s.Len() {
		return nil, nil
	}
	v := it.s.At(it.i)
	it.i++
	return v, nil
}

// IterSeq iterates over a materialized sequence.
func IterSeq(s value.Seq) Iter {
	return &seqIter{s: s}
}

// checkedIter counts a step for every item of a generated sequence.
type checkedIter struct {
	qc *QueryContext
	it Iter
}

func (c checkedIter) Next() (value.Item, error) {
	v, err := c.it.Next()
	if err != nil || v == nil {
		return nil, err
	}
	if err := c.qc.Check(); err != nil {
		return nil, err
	}
	return v, nil
}

// errIter fails on the first call to Next.
type errIter struct{ err error }

func (it errIter) Next() (value.Item, error) { return nil, it.err }

// Collect drains it into a sequence.
func Collect(qc *QueryContext, it Iter) (value.Seq, error) {
	if si, ok := it.(*seqIter); ok && si.i == 0 {
		return si.s, nil
	}
	var out value.Items
	for {
		v, err := it.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return out, nil
		}
		if err := qc.Check(); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// itemOf derives Item from Iter: it reads up to two items.
func itemOf(e Expr, qc *QueryContext) (value.Item, error) {
	it, err := e.Iter(qc)
	if err != nil {
		return nil, err
	}
	first, err := it.Next()
	if err != nil || first == nil {
		return nil, err
	}
	second, err := it.Next()
	if err != nil {
		return nil, err
	}
	if second != nil {
		return nil, tooMany(e)
	}
	return first, nil
}

// valueOf derives Value from Iter, or from Item when the static type
// admits at most one item.
func valueOf(e Expr, qc *QueryContext) (value.Seq, error) {
	if e.SeqType().ZeroOrOne() {
		v, err := e.Item(qc)
		if err != nil {
			return nil, err
		}
		return value.Single(v), nil
	}
	it, err := e.Iter(qc)
	if err != nil {
		return nil, err
	}
	return Collect(qc, it)
}

// iterOf derives Iter from Value.
func iterOf(e Expr, qc *QueryContext) (Iter, error) {
	v, err := e.Value(qc)
	if err != nil {
		return nil, err
	}
	return IterSeq(v), nil
}

// itemFromValue derives Item from Value.
func itemFromValue(e Expr, qc *QueryContext) (value.Item, error) {
	v, err := e.Value(qc)
	if err != nil {
		return nil, err
	}
	switch v.Len() {
	case 0:
		return nil, nil
	case 1:
		return v.At(0), nil
	}
	return nil, tooMany(e)
}

// iterFromItem and valueFromItem derive the other entry points for nodes
// that produce at most one item.
func iterFromItem(e Expr, qc *QueryContext) (Iter, error) {
	v, err := e.Item(qc)
	if err != nil {
		return nil, err
	}
	return IterSeq(value.Single(v)), nil
}

func valueFromItem(e Expr, qc *QueryContext) (value.Seq, error) {
	v, err := e.Item(qc)
	if err != nil {
		return nil, err
	}
	return value.Single(v), nil
}

func tooMany(e Expr) error {
	return qerr.New(qerr.CodeType, e.Info(), "more than one item returned by %s", e)
}

// ebv computes the effective boolean value of e.
func ebv(e Expr, qc *QueryContext) (bool, error) {
	if e.SeqType().ZeroOrOne() {
		v, err := e.Item(qc)
		if err != nil {
			return false, err
		}
		b, err := value.EBV(v, false)
		return b, qerr.Locate(err, e.Info())
	}
	it, err := e.Iter(qc)
	if err != nil {
		return false, err
	}
	first, err := it.Next()
	if err != nil || first == nil {
		return false, err
	}
	if _, ok := first.(*value.Node); ok {
		return true, nil
	}
	second, err := it.Next()
	if err != nil {
		return false, err
	}
	b, err := value.EBV(first, second != nil)
	return b, qerr.Locate(err, e.Info())
}

// atomized returns the atomized single item of e, or nil.
func atomized(e Expr, qc *QueryContext) (value.Item, error) {
	v, err := e.Item(qc)
	if err != nil || v == nil {
		return nil, err
	}
	a, err := value.Atomize(v)
	return a, qerr.Locate(err, e.Info())
}

// atomizedSeq returns the atomized value of e.
func atomizedSeq(e Expr, qc *QueryContext) (value.Seq, error) {
	v, err := e.Value(qc)
	if err != nil {
		return nil, err
	}
	needs := false
	for i := range v.Len() {
		switch v.At(i).(type) {
		case *value.Node, *value.Func:
			needs = true
		}
	}
	if !needs {
		return v, nil
	}
	out := make(value.Items, v.Len())
	for i := range v.Len() {
		a, err := value.Atomize(v.At(i))
		if err != nil {
			return nil, qerr.Locate(err, e.Info())
		}
		out[i] = a
	}
	return out, nil
}

// focusIter evaluates every step of it under focus f. Lazy iterators that
// create child iterators on demand use it to keep the focus they were
// created under.
func focusIter(qc *QueryContext, f Focus, it Iter) Iter {
	return IterFunc(func() (value.Item, error) {
		defer qc.enter(f)()
		return it.Next()
	})
}
