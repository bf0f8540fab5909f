package value

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/roach88/xqcore/internal/seqtype"
)

// nodeOrder hands out document-order positions. Nodes created later sort
// after nodes created earlier, which keeps order total across documents.
var nodeOrder atomic.Int64

// Node is an XML node: a document, element, attribute or text node.
// Nodes are immutable once their tree has been built.
type Node struct {
	kind     seqtype.Kind
	Name     string
	Text     string
	Attrs    []*Node
	Children []*Node
	Parent   *Node
	order    int64
}

func (*Node) item() {}

// Kind returns the node kind (Document, Element, Attribute or Text).
func (n *Node) Kind() seqtype.Kind { return n.kind }

func newNode(k seqtype.Kind, name, text string) *Node {
	return &Node{kind: k, Name: name, Text: text, order: nodeOrder.Add(1)}
}

// Element creates an element node. Attribute nodes among kids become
// attributes; everything else becomes a child.
func Element(name string, kids ...*Node) *Node {
	n := newNode(seqtype.Element, name, "")
	for _, k := range kids {
		k.Parent = n
		if k.kind == seqtype.Attribute {
			n.Attrs = append(n.Attrs, k)
			continue
		}
		n.Children = append(n.Children, k)
	}
	if len(kids) > 0 {
		// Kids were created first; document order puts the element before them.
		renumber(n)
	}
	return n
}

// Attribute creates an attribute node.
func Attribute(name, value string) *Node {
	return newNode(seqtype.Attribute, name, value)
}

// TextNode creates a text node.
func TextNode(s string) *Node {
	return newNode(seqtype.Text, "", s)
}

// Document creates a document node around root.
func Document(root *Node) *Node {
	d := newNode(seqtype.Document, "", "")
	renumber(root)
	root.Parent = d
	d.Children = []*Node{root}
	return d
}

func renumber(n *Node) {
	n.order = nodeOrder.Add(1)
	for _, a := range n.Attrs {
		a.order = nodeOrder.Add(1)
	}
	for _, c := range n.Children {
		renumber(c)
	}
}

// Before reports whether n precedes m in document order.
func (n *Node) Before(m *Node) bool {
	return n.order < m.order
}

// StringValue returns the concatenated text content of n.
func (n *Node) StringValue() string {
	switch n.kind {
	case seqtype.Attribute, seqtype.Text:
		return n.Text
	}
	var b strings.Builder
	n.appendText(&b)
	return b.String()
}

func (n *Node) appendText(b *strings.Builder) {
	if n.kind == seqtype.Text {
		b.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.appendText(b)
	}
}

// Walk calls fn for n and every descendant in document order. Attributes
// are not visited.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// XML serializes n.
func (n *Node) XML() string {
	var b strings.Builder
	n.writeXML(&b)
	return b.String()
}

func (n *Node) writeXML(b *strings.Builder) {
	switch n.kind {
	case seqtype.Text:
		_ = xml.EscapeText(b, []byte(n.Text))
	case seqtype.Attribute:
		fmt.Fprintf(b, "%s=\"", n.Name)
		_ = xml.EscapeText(b, []byte(n.Text))
		b.WriteByte('"')
	case seqtype.Document:
		for _, c := range n.Children {
			c.writeXML(b)
		}
	case seqtype.Element:
		b.WriteByte('<')
		b.WriteString(n.Name)
		for _, a := range n.Attrs {
			b.WriteByte(' ')
			a.writeXML(b)
		}
		if len(n.Children) == 0 {
			b.WriteString("/>")
			return
		}
		b.WriteByte('>')
		for _, c := range n.Children {
			c.writeXML(b)
		}
		fmt.Fprintf(b, "</%s>", n.Name)
	}
}

// ParseXML parses a document. Whitespace-only text between elements is
// dropped; comments and processing instructions are ignored.
func ParseXML(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var attrs []*Node
			for _, a := range t.Attr {
				attrs = append(attrs, Attribute(a.Name.Local, a.Value))
			}
			el := Element(t.Name.Local, attrs...)
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				el.Parent = parent
				parent.Children = append(parent.Children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 || strings.TrimSpace(string(t)) == "" {
				continue
			}
			parent := stack[len(stack)-1]
			txt := TextNode(string(t))
			txt.Parent = parent
			parent.Children = append(parent.Children, txt)
		}
	}
	if root == nil {
		return nil, errors.New("parse xml: no root element")
	}
	return Document(root), nil
}

// ParseXMLString is ParseXML over a string.
func ParseXMLString(s string) (*Node, error) {
	return ParseXML(strings.NewReader(s))
}
