package expr

import (
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Replicate repeats the value of Input Count times. With Multiple set,
// Input is evaluated once per copy.
type Replicate struct {
	base
	Input    Expr
	Count    Expr
	Multiple bool
}

// NewReplicate returns replicate(input, count, multiple).
func NewReplicate(info qerr.Info, input, count Expr, multiple bool) *Replicate {
	return &Replicate{base: base{info: info}, Input: input, Count: count, Multiple: multiple}
}

func (r *Replicate) slots(fn slotFunc) bool {
	k := slotPlain
	if r.Multiple {
		k = slotLoop
	}
	return fn(&r.Input, k) && fn(&r.Count, slotPlain)
}

func (r *Replicate) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, r) }

// constCount returns the count if it is a constant integer.
func (r *Replicate) constCount() (int64, bool) {
	c, ok := r.Count.(*Const)
	if !ok || c.Val.Len() != 1 {
		return 0, false
	}
	n, ok := c.Val.At(0).(value.Int)
	return int64(n), ok && n >= 0
}

func (r *Replicate) Optimize(cc *CompileContext) (Expr, error) {
	if r.Multiple && !Has(r.Input, FlagNdt) {
		r.Multiple = false
	}
	in := r.Input.SeqType()
	n, ok := r.constCount()
	if !ok {
		r.st = in.WithOcc(seqtype.Occ{Max: in.Occ.Mul(seqtype.ZeroOrMore).Max})
		return r, nil
	}
	r.st = in.WithOcc(in.Occ.Mul(seqtype.Exactly(n)))
	switch {
	case n == 0 && pure(r.Input):
		return cc.Replace(r, cc.Empty(r.info), "replicate zero times"), nil
	case n == 1:
		return cc.Replace(r, r.Input, "replicate once"), nil
	case in.Zero():
		return cc.Replace(r, r.Input, "replicate empty"), nil
	}
	if inner, ok := r.Input.(*Replicate); ok && inner.Multiple == r.Multiple {
		if m, ok := inner.constCount(); ok && m <= seqtype.Unbounded/max(n, 1) {
			fused := NewReplicate(r.info, inner.Input, NewConst(r.info, value.Int(m*n)), r.Multiple)
			res, err := fused.Optimize(cc)
			if err != nil {
				return nil, err
			}
			return cc.Replace(r, res, "nested replicate"), nil
		}
	}
	if !r.Multiple && in.One() && allConst(r) {
		return cc.PreEval(r)
	}
	return r, nil
}

func (r *Replicate) count(qc *QueryContext) (int64, error) {
	cnt, err := integerOperand(r.Count, qc)
	if err != nil {
		return 0, err
	}
	if cnt == nil || *cnt < 0 {
		return 0, qerr.New(qerr.CodeInvalidValue, r.Count.Info(), "replicate count must be a non-negative integer")
	}
	return int64(*cnt), nil
}

// Value grows the result one copy at a time; each copy is a step, so a
// huge count runs into the quota instead of an allocation.
func (r *Replicate) Value(qc *QueryContext) (value.Seq, error) {
	n, err := r.count(qc)
	if err != nil || n == 0 {
		return value.Empty, err
	}
	var parts []value.Seq
	if !r.Multiple {
		v, err := r.Input.Value(qc)
		if err != nil {
			return nil, err
		}
		if v.Len() == 1 {
			return value.Repeat{Item: v.At(0), N: n}, nil
		}
		for range n {
			if err := qc.Check(); err != nil {
				return nil, err
			}
			parts = append(parts, v)
		}
		return value.Concat(parts...), nil
	}
	for range n {
		if err := qc.Check(); err != nil {
			return nil, err
		}
		v, err := r.Input.Value(qc)
		if err != nil {
			return nil, err
		}
		parts = append(parts, v)
	}
	return value.Concat(parts...), nil
}

func (r *Replicate) Iter(qc *QueryContext) (Iter, error) {
	n, err := r.count(qc)
	if err != nil {
		return nil, err
	}
	ri := &replicateIter{r: r, qc: qc, left: n}
	if !r.Multiple && n > 0 {
		if ri.v, err = r.Input.Value(qc); err != nil {
			return nil, err
		}
	}
	return ri, nil
}

// replicateIter yields the copies lazily.
type replicateIter struct {
	r    *Replicate
	qc   *QueryContext
	v    value.Seq
	cur  Iter
	left int64
}

func (ri *replicateIter) Next() (value.Item, error) {
	for {
		if ri.cur != nil {
			it, err := ri.cur.Next()
			if err != nil || it != nil {
				return it, err
			}
			ri.cur = nil
		}
		if ri.left == 0 {
			return nil, nil
		}
		if err := ri.qc.Check(); err != nil {
			return nil, err
		}
		ri.left--
		if ri.r.Multiple {
			cur, err := ri.r.Input.Iter(ri.qc)
			if err != nil {
				return nil, err
			}
			ri.cur = cur
		} else {
			ri.cur = IterSeq(ri.v)
		}
	}
}

func (r *Replicate) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(r, qc) }

func (r *Replicate) Copy(cc *CompileContext, vm VarMap) Expr {
	c := NewReplicate(r.info, r.Input.Copy(cc, vm), r.Count.Copy(cc, vm), r.Multiple)
	c.st = r.st
	return c
}

func (r *Replicate) Equal(o Expr) bool {
	or, ok := o.(*Replicate)
	return ok && r.Multiple == or.Multiple && r.Input.Equal(or.Input) && r.Count.Equal(or.Count)
}

func (r *Replicate) String() string {
	if r.Multiple {
		return fmt.Sprintf("replicate(%s, %s, true())", r.Input, r.Count)
	}
	return fmt.Sprintf("replicate(%s, %s)", r.Input, r.Count)
}
