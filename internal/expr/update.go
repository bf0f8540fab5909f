package expr

import (
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// Delete is "delete node Target". Evaluation adds one pending update per
// target node and returns the empty sequence.
type Delete struct {
	base
	Target Expr
}

// NewDelete returns a delete expression.
func NewDelete(info qerr.Info, target Expr) *Delete {
	return &Delete{base: base{info: info, st: seqtype.Empty}, Target: target}
}

func (d *Delete) slots(fn slotFunc) bool { return fn(&d.Target, slotPlain) }

func (*Delete) flags() Flag { return FlagUpd }

func (d *Delete) Compile(cc *CompileContext) (Expr, error) { return compileNode(cc, d) }

func (d *Delete) Optimize(cc *CompileContext) (Expr, error) {
	if t := d.Target.SeqType(); t.Zero() {
		return cc.Replace(d, d.Target, "delete nothing"), nil
	}
	return d, nil
}

func (d *Delete) Value(qc *QueryContext) (value.Seq, error) {
	v, err := d.Target.Value(qc)
	if err != nil {
		return nil, err
	}
	for i := range v.Len() {
		n, ok := v.At(i).(*value.Node)
		if !ok {
			return nil, qerr.WithValue(qerr.CodeType, d.Target.Info(), v.At(i), "delete target is not a node")
		}
		qc.AddUpdate(Update{Kind: "delete", Target: n})
	}
	return value.Empty, nil
}

func (d *Delete) Iter(qc *QueryContext) (Iter, error) { return iterOf(d, qc) }
func (d *Delete) Item(qc *QueryContext) (value.Item, error) { return itemFromValue(d, qc) }

func (d *Delete) Copy(cc *CompileContext, vm VarMap) Expr {
	return NewDelete(d.info, d.Target.Copy(cc, vm))
}

func (d *Delete) Equal(o Expr) bool {
	od, ok := o.(*Delete)
	return ok && d.Target.Equal(od.Target)
}

func (d *Delete) String() string { return "delete node " + d.Target.String() }
