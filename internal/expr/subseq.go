package expr

import (
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Subseq returns Len items of Root starting at the 1-based position Start.
// Len may be seqtype.Unbounded.
type Subseq struct {
	base
	Root  Expr
	Start int64
	Len   int64
}

// NewSubseq returns a positional access.
func NewSubseq(info qerr.Info, root Expr, start, n int64) *Subseq {
	return &Subseq{base: base{info: info}, Root: root, Start: max(start, 1), Len: n}
}

func (s *Subseq) slots(fn slotFunc) bool { return fn(&s.Root, slotPlain) }

func (s *Subseq) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, s) }

func (s *Subseq) pos() Pos {
	if s.Len == seqtype.Unbounded {
		return Pos{s.Start, seqtype.Unbounded}
	}
	return Pos{s.Start, satAdd(s.Start, s.Len-1)}
}

func (s *Subseq) Optimize(cc *CompileContext) (Expr, error) {
	t := s.Root.SeqType()
	rest := subOcc(t.Occ, s.Start-1)
	s.st = t.WithOcc(seqtype.Occ{Min: min(rest.Min, s.Len), Max: min(rest.Max, s.Len)})
	switch {
	case s.Len <= 0 || (s.st.Occ.Max == 0 && pure(s.Root)):
		return cc.Replace(s, cc.Empty(s.info), "empty subsequence"), nil
	case s.Start == 1 && s.Len >= t.Occ.Max:
		return cc.Replace(s, s.Root, "whole sequence"), nil
	}
	if inner, ok := s.Root.(*Subseq); ok {
		p := inner.pos().Then(s.pos())
		r, err := NewSubseq(s.info, inner.Root, p.Min, p.Len()).Optimize(cc)
		if err != nil {
			return nil, err
		}
		return cc.Replace(s, r, "nested subsequence"), nil
	}
	if c, ok := s.Root.(*Const); ok {
		return cc.Replace(s, ConstOf(s.info, value.Sub(c.Val, s.Start-1, s.Len)), "pre-evaluate"), nil
	}
	return s, nil
}

// randomAccess reports whether e's value is materialized cheaply, so that
// skipping items needs no scan.
func randomAccess(e Expr) bool {
	switch e.(type) {
	case *Const, *VarRef, *Range, *Replicate, *CachedFilter:
		return true
	}
	return false
}

func (s *Subseq) Value(qc *QueryContext) (value.Seq, error) {
	if randomAccess(s.Root) {
		v, err := s.Root.Value(qc)
		if err != nil {
			return nil, err
		}
		return value.Sub(v, s.Start-1, s.Len), nil
	}
	it, err := s.Iter(qc)
	if err != nil {
		return nil, err
	}
	return Collect(qc, it)
}

func (s *Subseq) Iter(qc *QueryContext) (Iter, error) {
	if randomAccess(s.Root) {
		return iterOf(s, qc)
	}
	root, err := s.Root.Iter(qc)
	if err != nil {
		return nil, err
	}
	skip, left := s.Start-1, s.Len
	return focusIter(qc, qc.Focus(), IterFunc(func() (value.Item, error) {
		for ; skip > 0; skip-- {
			it, err := root.Next()
			if err != nil || it == nil {
				return nil, err
			}
			if err := qc.Check(); err != nil {
				return nil, err
			}
		}
		if left <= 0 {
			return nil, nil
		}
		if left != seqtype.Unbounded {
			left--
		}
		return root.Next()
	})), nil
}

func (s *Subseq) Item(qc *QueryContext) (value.Item, error) {
	if s.Len == 1 || randomAccess(s.Root) {
		return itemFromValue(s, qc)
	}
	return itemOf(s, qc)
}

func (s *Subseq) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewSubseq(s.info, s.Root.Copy(cc, vm), s.Start, s.Len)
	c.st = s.st
	return c
}

func (s *Subseq) Equal(o Expr) bool {
	os, ok := o.(*Subseq)
	return ok && s.Start == os.Start && s.Len == os.Len && s.Root.Equal(os.Root)
}

func (s *Subseq) String() string {
	switch {
	case s.Start == 1 && s.Len == 1:
		return fmt.Sprintf("head(%s)", s.Root)
	case s.Start == 2 && s.Len == seqtype.Unbounded:
		return fmt.Sprintf("tail(%s)", s.Root)
	case s.Len == 1:
		return fmt.Sprintf("items-at(%s, %d)", s.Root, s.Start)
	case s.Len == seqtype.Unbounded:
		return fmt.Sprintf("subsequence(%s, %d)", s.Root, s.Start)
	}
	return fmt.Sprintf("subsequence(%s, %d, %d)", s.Root, s.Start, s.Len)
}
