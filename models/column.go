package models

import (
	"strings"

	"go.uber.org/zap"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/typetree"
)

// ColumnBadgeCategory is the category column badges are filed under.
const ColumnBadgeCategory = typetree.BadgeCategory

// Column is a column of a Table. Columns are bound to their table when the
// table is serialized.
type Column struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	SortOrder   int      `yaml:"sort_order"`
	Description string   `yaml:"description,omitempty"`
	Badges      []string `yaml:"badges,omitempty"`

	table *Table

	tree     *typetree.Node
	treeErr  error
	treeDone bool
}

var _ typetree.Parent = (*Column)(nil)

// Key returns the key of the column node.
func (c *Column) Key() string {
	return c.table.Key() + "/" + c.Name
}

// NodeKey implements typetree.Parent.
func (c *Column) NodeKey() string {
	return c.Key()
}

// NodeLabel implements typetree.Parent.
func (c *Column) NodeLabel() string {
	return metagraph.LabelColumn
}

// ChildKeyPrefix implements typetree.Parent.
func (c *Column) ChildKeyPrefix() string {
	return c.Key() + "/type"
}

// IsNested reports whether the column type is a compound type that gets a
// type tree.
func (c *Column) IsNested() bool {
	return strings.Contains(c.Type, "<")
}

// TypeTree returns the parsed type of a nested column, or nil for plain
// scalar columns. A malformed descriptor degrades to a single scalar node
// and the parse error is returned with it.
func (c *Column) TypeTree() (*typetree.Node, error) {
	if c.treeDone {
		return c.tree, c.treeErr
	}

	c.treeDone = true

	if !c.IsNested() {
		return nil, nil
	}

	c.tree, c.treeErr = typetree.ParseOrScalar(c.Type, c.Name, c)

	return c.tree, c.treeErr
}

func (c *Column) graphNodes(seen *metagraph.Seen, log *zap.Logger) []*metagraph.Node {
	key := c.Key()

	out := []*metagraph.Node{{
		Label: metagraph.LabelColumn,
		Key:   key,
		Properties: metagraph.Properties{
			{Name: "name", Value: c.Name},
			{Name: "col_type", Value: c.Type},
			{Name: "sort_order", Value: int64(c.SortOrder)},
		},
	}}

	out = append(out, descriptionNodes(key, c.Description, nil)...)
	out = append(out, badgeNodes(seen, c.Badges, ColumnBadgeCategory)...)

	tree, err := c.TypeTree()
	if err != nil {
		log.Warn("column type degraded to scalar",
			zap.String("column", key),
			zap.String("type", c.Type),
			zap.Error(err))
	}

	if tree != nil {
		out = append(out, tree.GraphNodes(seen)...)
	}

	return out
}

func (c *Column) graphRelationships() []*metagraph.Relationship {
	key := c.Key()

	out := []*metagraph.Relationship{
		link(metagraph.LabelTable, c.table.Key(), metagraph.LabelColumn, key, metagraph.RelColumn, metagraph.RelColumnOf),
	}

	out = append(out, descriptionRelationships(metagraph.LabelColumn, key, c.Description, nil)...)
	out = append(out, badgeRelationships(metagraph.LabelColumn, key, c.Badges, ColumnBadgeCategory)...)

	// Parse errors were already logged during node emission.
	if tree, _ := c.TypeTree(); tree != nil {
		out = append(out, tree.GraphRelationships()...)
	}

	return out
}
