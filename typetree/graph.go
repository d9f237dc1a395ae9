package typetree

import (
	"slices"
	"strconv"

	"github.com/rlch/metagraph"
)

// BadgeCategory is the category type-level badges are filed under.
const BadgeCategory = "column"

// GraphNodes returns the Type_Metadata nodes of the subtree rooted at n with
// their descriptions and badges. Badges shared by several nodes of the tree
// are emitted once per seen set.
func (n *Node) GraphNodes(seen *metagraph.Seen) []*metagraph.Node {
	var out []*metagraph.Node

	n.Walk(func(t *Node) bool {
		out = append(out, t.graphNode())

		if t.Description != "" {
			out = append(out, metagraph.DescriptionNode(t.Key(), "", t.Description))
		}

		for _, b := range t.uniqueBadges() {
			badge := metagraph.BadgeNode(b, BadgeCategory)
			if seen.Mark(badge.Key) {
				out = append(out, badge)
			}
		}

		return true
	})

	return out
}

// GraphRelationships returns the edges of the subtree rooted at n, starting
// with the edge from n to its own parent.
func (n *Node) GraphRelationships() []*metagraph.Relationship {
	var out []*metagraph.Relationship

	n.Walk(func(t *Node) bool {
		out = append(out, t.parentRelationship())

		if t.Description != "" {
			desc := metagraph.DescriptionNode(t.Key(), "", t.Description)
			out = append(out, metagraph.DescriptionRelationship(metagraph.LabelTypeMetadata, t.Key(), desc))
		}

		for _, b := range t.uniqueBadges() {
			badge := metagraph.BadgeNode(b, BadgeCategory)
			out = append(out, metagraph.BadgeRelationship(metagraph.LabelTypeMetadata, t.Key(), badge))
		}

		return true
	})

	return out
}

// Entity exposes the subtree rooted at n through the pull-based contract.
func (n *Node) Entity() metagraph.Entity {
	return metagraph.NewCursor(n)
}

func (n *Node) graphNode() *metagraph.Node {
	props := metagraph.Properties{
		{Name: "name", Value: n.Name},
		{Name: "kind", Value: n.Kind.String()},
		{Name: "data_type", Value: n.RawType},
	}

	if n.SortOrder != NoSortOrder {
		props.Set("sort_order", int64(n.SortOrder))
	}

	return &metagraph.Node{
		Label:      metagraph.LabelTypeMetadata,
		Key:        n.Key(),
		Properties: props,
	}
}

func (n *Node) parentRelationship() *metagraph.Relationship {
	rel := &metagraph.Relationship{
		StartLabel:  n.parent.NodeLabel(),
		StartKey:    n.parent.NodeKey(),
		EndLabel:    metagraph.LabelTypeMetadata,
		EndKey:      n.Key(),
		Type:        metagraph.RelSubtype,
		ReverseType: metagraph.RelSubtypeOf,
	}

	if _, nested := n.parent.(*Node); !nested {
		rel.Type = metagraph.RelTypeMetadata
		rel.ReverseType = metagraph.RelTypeMetadataOf
	}

	return rel
}

// uniqueBadges returns the badges of n in order with repeats dropped. Badges
// assigned directly rather than through SetBadges may contain duplicates.
func (n *Node) uniqueBadges() []string {
	out := make([]string, 0, len(n.Badges))
	for _, b := range n.Badges {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}

	return out
}

// Describe returns a one-line summary of n, used by the CLI.
func (n *Node) Describe() string {
	s := n.Kind.String() + " " + n.Name + " (" + n.RawType + ")"
	if n.SortOrder != NoSortOrder {
		s += " #" + strconv.Itoa(n.SortOrder)
	}

	return s
}
