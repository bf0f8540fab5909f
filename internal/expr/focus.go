package expr

import (
	"github.com/roach88/xqcore/internal/value"
)

// SizeUnknown marks a focus whose size has not been computed.
const SizeUnknown = -1

// Focus is the dynamic evaluation focus: the context item, its 1-based
// position and the size of the sequence it belongs to. A zero Focus has no
// context item.
type Focus struct {
	Value value.Item
	Pos   int64
	Size  int64
}

// ItemFocus returns the focus of a single item.
func ItemFocus(it value.Item) Focus {
	return Focus{Value: it, Pos: 1, Size: 1}
}

// Defined reports whether a context item is present.
func (f Focus) Defined() bool {
	return f.Value != nil
}
