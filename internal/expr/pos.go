package expr

import (
	"fmt"
	"math"

	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Pos is a closed range of 1-based positions. Max may be
// seqtype.Unbounded.
type Pos struct {
	Min, Max int64
}

// AllPos is the range of every position.
var AllPos = Pos{1, seqtype.Unbounded}

// Exact reports whether p selects a single position.
func (p Pos) Exact() bool { return p.Min == p.Max }

// Empty reports whether p selects nothing.
func (p Pos) Empty() bool { return p.Min > p.Max }

// Contains reports whether n lies in p.
func (p Pos) Contains(n int64) bool { return n >= p.Min && n <= p.Max }

// Intersect returns the positions in both p and q.
func (p Pos) Intersect(q Pos) Pos {
	return Pos{max(p.Min, q.Min), min(p.Max, q.Max)}
}

// Union returns the positions in p or q if they form one range.
func (p Pos) Union(q Pos) (Pos, bool) {
	if p.Min > satInc(q.Max) || q.Min > satInc(p.Max) {
		return Pos{}, false
	}
	return Pos{min(p.Min, q.Min), max(p.Max, q.Max)}, true
}

// Then composes two successive positional filters: q applies to the
// items that survived p.
func (p Pos) Then(q Pos) Pos {
	lo := satAdd(p.Min, q.Min-1)
	hi := min(p.Max, satAdd(p.Min, q.Max-1))
	return Pos{lo, hi}
}

// Len returns the number of positions, or seqtype.Unbounded.
func (p Pos) Len() int64 {
	if p.Empty() {
		return 0
	}
	if p.Max == seqtype.Unbounded {
		return seqtype.Unbounded
	}
	return p.Max - p.Min + 1
}

func satInc(n int64) int64 { return satAdd(n, 1) }

func satAdd(a, b int64) int64 {
	if b > 0 && a > seqtype.Unbounded-b {
		return seqtype.Unbounded
	}
	return a + b
}

// posResult classifies "position() op n".
type posResult uint8

const (
	posNone  posResult = iota // not expressible as a range
	posRange                  // the returned range
	posTrue
	posFalse
)

// posCompare returns the positions p for which "p op n" holds. Fractional
// bounds are rounded inward.
func posCompare(op value.CmpOp, n float64) (Pos, posResult) {
	if math.IsNaN(n) {
		if op == value.OpNe {
			return AllPos, posTrue
		}
		return Pos{}, posFalse
	}
	var p Pos
	switch op {
	case value.OpEq:
		if n != math.Trunc(n) {
			return Pos{}, posFalse
		}
		p = Pos{clampPos(n), clampPos(n)}
	case value.OpNe:
		if n != math.Trunc(n) || n < 1 {
			return AllPos, posTrue
		}
		return Pos{}, posNone
	case value.OpLt:
		p = Pos{1, clampPos(math.Ceil(n) - 1)}
	case value.OpLe:
		p = Pos{1, clampPos(math.Floor(n))}
	case value.OpGt:
		p = Pos{clampPos(math.Floor(n) + 1), seqtype.Unbounded}
	case value.OpGe:
		p = Pos{clampPos(math.Ceil(n)), seqtype.Unbounded}
	}
	p.Min = max(p.Min, 1)
	switch {
	case p.Empty():
		return Pos{}, posFalse
	case p == AllPos:
		return p, posTrue
	}
	return p, posRange
}

// clampPos converts a position bound to int64, mapping values below 1 to 0.
func clampPos(f float64) int64 {
	switch {
	case f < 1:
		return 0
	case f >= float64(seqtype.Unbounded):
		return seqtype.Unbounded
	}
	return int64(f)
}

// CmpPos tests the context position against a closed range.
type CmpPos struct {
	base
	Pos Pos
}

// NewCmpPos returns a positional test.
func NewCmpPos(info qerr.Info, p Pos) *CmpPos {
	return &CmpPos{base: base{info: info, st: seqtype.BooleanOne}, Pos: p}
}

func (c *CmpPos) Compile(cc *CompileContext) (Expr, error) {
	if _, ok := cc.FocusType(); !ok {
		return nil, qerr.New(qerr.CodeNoContext, c.info, "no focus for position()")
	}
	return c.Optimize(cc)
}

func (c *CmpPos) Optimize(cc *CompileContext) (Expr, error) {
	switch {
	case c.Pos.Empty():
		return cc.Replace(c, cc.Bool(false, c.info), "empty position range"), nil
	case c.Pos == AllPos:
		return cc.Replace(c, cc.Bool(true, c.info), "full position range"), nil
	}
	return c, nil
}

func (*CmpPos) flags() Flag { return FlagPos }

func (c *CmpPos) Item(qc *QueryContext) (value.Item, error) {
	f := qc.Focus()
	if !f.Defined() {
		return nil, qerr.New(qerr.CodeNoContext, c.info, "no focus for position()")
	}
	return value.Bln(c.Pos.Contains(f.Pos)), nil
}

func (c *CmpPos) Iter(qc *QueryContext) (Iter, error) { return iterFromItem(c, qc) }
func (c *CmpPos) Value(qc *QueryContext) (value.Seq, error) { return valueFromItem(c, qc) }

// invert returns the complement of the range if it is a range itself.
func (c *CmpPos) invert() (Expr, bool) {
	switch {
	case c.Pos.Max == seqtype.Unbounded && c.Pos.Min > 1:
		return NewCmpPos(c.info, Pos{1, c.Pos.Min - 1}), true
	case c.Pos.Min == 1 && c.Pos.Max != seqtype.Unbounded:
		return NewCmpPos(c.info, Pos{c.Pos.Max + 1, seqtype.Unbounded}), true
	}
	return nil, false
}

func (c *CmpPos) Copy(*CompileContext, VarMap) Expr { return NewCmpPos(c.info, c.Pos) }

func (c *CmpPos) Equal(o Expr) bool {
	oc, ok := o.(*CmpPos)
	return ok && c.Pos == oc.Pos
}

func (c *CmpPos) String() string {
	switch {
	case c.Pos.Exact():
		return fmt.Sprintf("(position() = %d)", c.Pos.Min)
	case c.Pos.Max == seqtype.Unbounded:
		return fmt.Sprintf("(position() >= %d)", c.Pos.Min)
	case c.Pos.Min == 1:
		return fmt.Sprintf("(position() <= %d)", c.Pos.Max)
	}
	return fmt.Sprintf("(position() = %d to %d)", c.Pos.Min, c.Pos.Max)
}
