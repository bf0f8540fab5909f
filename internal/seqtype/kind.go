package seqtype

// Kind is an item kind. Kinds form a tree rooted at Item; None sits below
// every kind.
type Kind uint8

const (
	None Kind = iota
	Item
	AnyAtomic
	Numeric
	Double
	Decimal
	Integer
	String
	Boolean
	Untyped
	Node
	Document
	Element
	Attribute
	Text
	Function
)

// parents maps each kind to its direct supertype. Item is its own parent.
var parents = [...]Kind{
	None:      None,
	Item:      Item,
	AnyAtomic: Item,
	Numeric:   AnyAtomic,
	Double:    Numeric,
	Decimal:   Numeric,
	Integer:   Decimal,
	String:    AnyAtomic,
	Boolean:   AnyAtomic,
	Untyped:   AnyAtomic,
	Node:      Item,
	Document:  Node,
	Element:   Node,
	Attribute: Node,
	Text:      Node,
	Function:  Item,
}

var kindNames = [...]string{
	None:      "none",
	Item:      "item()",
	AnyAtomic: "xs:anyAtomicType",
	Numeric:   "xs:numeric",
	Double:    "xs:double",
	Decimal:   "xs:decimal",
	Integer:   "xs:integer",
	String:    "xs:string",
	Boolean:   "xs:boolean",
	Untyped:   "xs:untypedAtomic",
	Node:      "node()",
	Document:  "document-node()",
	Element:   "element()",
	Attribute: "attribute()",
	Text:      "text()",
	Function:  "function(*)",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Parent returns the direct supertype of k.
func (k Kind) Parent() Kind {
	return parents[k]
}

// depth returns the number of edges between k and Item.
func (k Kind) depth() int {
	d := 0
	for k != Item && k != None {
		k = k.Parent()
		d++
	}
	return d
}

// InstanceOf reports whether every item of kind k is also of kind o.
func (k Kind) InstanceOf(o Kind) bool {
	if k == None {
		return true
	}
	if o == None {
		return false
	}
	for {
		if k == o {
			return true
		}
		if k == Item {
			return false
		}
		k = k.Parent()
	}
}

// Union returns the nearest common supertype of k and o.
func (k Kind) Union(o Kind) Kind {
	if k == None {
		return o
	}
	if o == None {
		return k
	}
	dk, do := k.depth(), o.depth()
	for dk > do {
		k, dk = k.Parent(), dk-1
	}
	for do > dk {
		o, do = o.Parent(), do-1
	}
	for k != o {
		k, o = k.Parent(), o.Parent()
	}
	return k
}

// Intersect returns the more specific of k and o, or None if neither is a
// subtype of the other.
func (k Kind) Intersect(o Kind) Kind {
	switch {
	case k.InstanceOf(o):
		return k
	case o.InstanceOf(k):
		return o
	default:
		return None
	}
}

// Atomic reports whether k is an atomic kind.
func (k Kind) Atomic() bool {
	return k != None && k.InstanceOf(AnyAtomic)
}

// IsNumeric reports whether k is a numeric kind.
func (k Kind) IsNumeric() bool {
	return k != None && k.InstanceOf(Numeric)
}

// IsNode reports whether k is a node kind.
func (k Kind) IsNode() bool {
	return k != None && k.InstanceOf(Node)
}

// Reflexive reports whether every value of kind k equals itself. Doubles
// (NaN) and untyped values (compared by the other operand's type) are not.
func (k Kind) Reflexive() bool {
	switch k {
	case Integer, Decimal, String, Boolean:
		return true
	}
	return false
}
