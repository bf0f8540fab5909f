package seqtype

// SeqType is a static sequence type: an item kind with an occurrence range.
// Use New to construct normalized values; the zero value is the empty
// sequence type.
type SeqType struct {
	Kind Kind
	Occ  Occ
}

var (
	// Empty is the type of the empty sequence.
	Empty = SeqType{None, Zero}

	// Never is the type of an expression that never returns a value.
	Never = SeqType{None, occNone}

	ItemStar    = New(Item, ZeroOrMore)
	ItemOpt     = New(Item, ZeroOrOne)
	ItemOne     = New(Item, ExactlyOne)
	BooleanOne  = New(Boolean, ExactlyOne)
	IntegerOne  = New(Integer, ExactlyOne)
	IntegerOpt  = New(Integer, ZeroOrOne)
	IntStar     = New(Integer, ZeroOrMore)
	StringOne   = New(String, ExactlyOne)
	StringOpt   = New(String, ZeroOrOne)
	DoubleOne   = New(Double, ExactlyOne)
	NumericOne  = New(Numeric, ExactlyOne)
	NumericOpt  = New(Numeric, ZeroOrOne)
	AtomicStar  = New(AnyAtomic, ZeroOrMore)
	AtomicOpt   = New(AnyAtomic, ZeroOrOne)
	ElementStar = New(Element, ZeroOrMore)
	NodeStar    = New(Node, ZeroOrMore)
)

// New returns the normalized sequence type of kind k and occurrence o.
// A zero occurrence yields Empty; the None kind with a non-zero occurrence
// yields Never.
func New(k Kind, o Occ) SeqType {
	switch {
	case o.IsNone():
		return Never
	case o.Zero():
		return Empty
	case k == None:
		return Never
	}
	return SeqType{k, o}
}

// One returns the type of exactly one item of kind k.
func One(k Kind) SeqType {
	return New(k, ExactlyOne)
}

// Opt returns the type of zero or one item of kind k.
func Opt(k Kind) SeqType {
	return New(k, ZeroOrOne)
}

// Star returns the type of any number of items of kind k.
func Star(k Kind) SeqType {
	return New(k, ZeroOrMore)
}

// IsNever reports whether t is the bottom type.
func (t SeqType) IsNever() bool {
	return t.Occ.IsNone()
}

// Zero reports whether t is the empty sequence type.
func (t SeqType) Zero() bool {
	return t.Occ.Zero()
}

// One reports whether t is exactly one item.
func (t SeqType) One() bool {
	return t.Occ.One()
}

// ZeroOrOne reports whether t admits at most one item.
func (t SeqType) ZeroOrOne() bool {
	return t.Occ.ZeroOrOne()
}

// Many reports whether t admits more than one item.
func (t SeqType) Many() bool {
	return t.Occ.Many()
}

// Exact returns the exact cardinality of t, if known.
func (t SeqType) Exact() (int64, bool) {
	if t.IsNever() {
		return 0, false
	}
	return t.Occ.Exact()
}

// Eq reports whether t and u denote the same type.
func (t SeqType) Eq(u SeqType) bool {
	return t == u
}

// Union returns the smallest type containing every value of t and u.
func (t SeqType) Union(u SeqType) SeqType {
	return New(t.Kind.Union(u.Kind), t.Occ.Union(u.Occ))
}

// Intersect returns the type of values belonging to both t and u. The
// second result is false if no value (not even the empty sequence) does.
func (t SeqType) Intersect(u SeqType) (SeqType, bool) {
	if t.IsNever() || u.IsNever() {
		return Never, true
	}
	o, ok := t.Occ.Intersect(u.Occ)
	if !ok {
		return Never, false
	}
	k := t.Kind.Intersect(u.Kind)
	if k == None && !o.Zero() {
		if o.Min > 0 {
			return Never, false
		}
		return Empty, true
	}
	return New(k, o), true
}

// InstanceOf reports whether every value of t is a value of u.
func (t SeqType) InstanceOf(u SeqType) bool {
	if t.IsNever() {
		return true
	}
	return t.Kind.InstanceOf(u.Kind) && t.Occ.InstanceOf(u.Occ)
}

// WithOcc returns t with occurrence o.
func (t SeqType) WithOcc(o Occ) SeqType {
	return New(t.Kind, o)
}

// ItemType returns the type of a single item of t.
func (t SeqType) ItemType() SeqType {
	if t.Zero() || t.IsNever() {
		return t
	}
	return One(t.Kind)
}

// Numeric reports whether every item of t is numeric.
func (t SeqType) Numeric() bool {
	return t.Kind.IsNumeric()
}

func (t SeqType) String() string {
	switch {
	case t.IsNever():
		return "none"
	case t.Zero():
		return "empty-sequence()"
	}
	return t.Kind.String() + t.Occ.String()
}
