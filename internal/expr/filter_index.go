package expr

import (
	"math"

	"github.com/roach88/xqcore/internal/index"
	"github.com/roach88/xqcore/internal/qerr"
	"github.com/roach88/xqcore/internal/seqtype"
	"github.com/roach88/xqcore/internal/value"
)

// negotiateIndex offers the first predicate of a filter over a collection
// to the index provider. If storage answers it cheaper than a scan, the
// collection and the predicate are replaced by the provider's leaf.
// Provider failures are logged and the scan is kept.
func negotiateIndex(cc *CompileContext, root Expr, preds []Expr, info qerr.Info) (Expr, []Expr, bool, error) {
	p := cc.Indexes()
	coll, ok := root.(*Collection)
	if p == nil || !ok || len(preds) == 0 {
		return root, preds, false, nil
	}
	d, ok := descriptorOf(coll.Name, preds[0])
	if !ok {
		return root, preds, false, nil
	}
	log := cc.logger.With("descriptor", d.String())
	if res := index.Validate(d); !res.Eligible {
		log.Debug("index not eligible", "warnings", res.Warnings)
		return root, preds, false, nil
	}
	ctx := cc.Context()
	cost, err := p.Estimate(ctx, d)
	if err != nil {
		log.Warn("index estimate failed", "error", err)
		return root, preds, false, nil
	}
	if !cost.Applicable {
		return root, preds, false, nil
	}
	size, err := p.Size(ctx, coll.Name)
	if err != nil {
		log.Warn("collection size failed", "error", err)
		return root, preds, false, nil
	}
	log.Debug("index estimate", "results", cost.Results, "size", size)
	if cost.Results >= size {
		return root, preds, false, nil
	}
	acc, err := p.Access(ctx, d, info)
	if err != nil {
		log.Warn("index access failed", "error", err)
		return root, preds, false, nil
	}
	cc.Replace(NewFilter(info, root, preds[0]), acc, "index access")
	return acc, preds[1:], true, nil
}

// descriptorOf translates an index-eligible predicate: a comparison of a
// child path of the context item with a literal.
func descriptorOf(coll string, pred Expr) (index.Descriptor, bool) {
	switch c := pred.(type) {
	case *CmpG:
		if c.Op != value.OpEq {
			return nil, false
		}
		path, ok := ChildPath(c.L)
		lit, isLit := constItem(c.R)
		if !ok || !isLit {
			return nil, false
		}
		if lit.Kind().IsNumeric() {
			f := value.ToDouble(lit)
			if math.IsNaN(f) {
				return nil, false
			}
			return index.NumericRange{Collection: coll, Path: path, Min: f, Max: f, MinIncl: true, MaxIncl: true}, true
		}
		if k := lit.Kind(); k != seqtype.String && k != seqtype.Untyped {
			return nil, false
		}
		return index.TokenMatch{Collection: coll, Path: path, Value: value.StringOf(lit)}, true
	case *CmpR:
		path, ok := ChildPath(c.X)
		if !ok {
			return nil, false
		}
		d := index.NumericRange{Collection: coll, Path: path, Min: math.Inf(-1), Max: math.Inf(1),
			MinIncl: c.Bounds.MinIncl, MaxIncl: c.Bounds.MaxIncl}
		if c.Bounds.Min != nil {
			d.Min = value.ToDouble(c.Bounds.Min)
		}
		if c.Bounds.Max != nil {
			d.Max = value.ToDouble(c.Bounds.Max)
		}
		return d, true
	case *CmpSR:
		path, ok := ChildPath(c.X)
		if !ok {
			return nil, false
		}
		d := index.StringRange{Collection: coll, Path: path, MinIncl: c.Bounds.MinIncl, MaxIncl: c.Bounds.MaxIncl}
		if c.Bounds.Min != nil {
			d.Min, d.HasMin = value.StringOf(c.Bounds.Min), true
		}
		if c.Bounds.Max != nil {
			d.Max, d.HasMax = value.StringOf(c.Bounds.Max), true
		}
		return d, true
	}
	return nil, false
}
