// Package typetree decomposes nested column type descriptors into a tree of
// typed nodes that can be published as graph metadata.
//
// A descriptor such as
//
//	struct<id:bigint, tags:array<string>, attrs:map<string,decimal(10,2)>>
//
// becomes a Struct node with three ordered fields, each of which is a Scalar,
// Array or Map node in turn. Keys are derived from the parent, so parsing the
// same descriptor for the same column always yields the same keys.
package typetree

import (
	"slices"
	"strings"

	"github.com/rlch/metagraph"
)

// Kind tags the variant of a Node.
type Kind int

// Node kinds.
const (
	KindScalar Kind = iota
	KindArray
	KindMap
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindStruct:
		return "struct"
	default:
		return "scalar"
	}
}

// Reserved names for anonymous positions.
const (
	InnerName    = "_inner_"
	MapKeyName   = "_map_key"
	MapValueName = "_map_value"
)

// NoSortOrder marks nodes that are not struct fields.
const NoSortOrder = -1

// Parent is the owner a type node hangs from: a column or another type node.
type Parent interface {
	// NodeKey is the key of the parent graph node.
	NodeKey() string

	// NodeLabel is the label of the parent graph node.
	NodeLabel() string

	// ChildKeyPrefix is the prefix child type keys are built from.
	ChildKeyPrefix() string
}

// Node is a single type in a type tree. Kind selects the variant:
//
//   - KindScalar: no children
//   - KindArray: exactly one child named InnerName
//   - KindMap: exactly two children, MapKeyName then MapValueName
//   - KindStruct: one child per field, SortOrder 0..n-1
type Node struct {
	Kind        Kind
	Name        string
	RawType     string
	SortOrder   int
	Description string
	Badges      []string
	Children    []*Node

	// parent is a back-reference; the parent owns this node, never the
	// reverse.
	parent Parent
}

// Parent returns the owner of n.
func (n *Node) Parent() Parent {
	return n.parent
}

// Key returns the deterministic key of n.
func (n *Node) Key() string {
	return n.parent.ChildKeyPrefix() + "/" + n.Name
}

// NodeKey implements Parent.
func (n *Node) NodeKey() string {
	return n.Key()
}

// NodeLabel implements Parent.
func (n *Node) NodeLabel() string {
	return metagraph.LabelTypeMetadata
}

// ChildKeyPrefix implements Parent.
func (n *Node) ChildKeyPrefix() string {
	return n.Key()
}

// IsTerminal reports whether n has no children.
func (n *Node) IsTerminal() bool {
	return len(n.Children) == 0
}

// Child returns the direct child called name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// Find resolves a slash-separated path of child names below n.
func (n *Node) Find(path string) *Node {
	cur := n

	for _, name := range strings.Split(path, "/") {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}

	return cur
}

// SetBadges replaces the badges of n. Duplicates are dropped and the result
// is sorted so equality does not depend on input order.
func (n *Node) SetBadges(badges ...string) {
	b := slices.Clone(badges)
	slices.Sort(b)
	n.Badges = slices.Compact(b)
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}

	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Equal reports whether two trees are structurally identical. Parents are
// not compared.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}

	if n.Kind != o.Kind ||
		n.Name != o.Name ||
		n.RawType != o.RawType ||
		n.SortOrder != o.SortOrder ||
		n.Description != o.Description ||
		!slices.Equal(n.Badges, o.Badges) ||
		len(n.Children) != len(o.Children) {
		return false
	}

	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}

	return true
}

// String renders the tree in descriptor syntax.
func (n *Node) String() string {
	var b strings.Builder
	n.render(&b)

	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	switch n.Kind {
	case KindArray:
		b.WriteString("array<")
		n.Children[0].render(b)
		b.WriteString(">")
	case KindMap:
		b.WriteString("map<")
		n.Children[0].render(b)
		b.WriteString(",")
		n.Children[1].render(b)
		b.WriteString(">")
	case KindStruct:
		b.WriteString("struct<")

		for i, c := range n.Children {
			if i > 0 {
				b.WriteString(",")
			}

			b.WriteString(c.Name)
			b.WriteString(":")
			c.render(b)
		}

		b.WriteString(">")
	default:
		b.WriteString(n.RawType)
	}
}
