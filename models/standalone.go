package models

import (
	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/typetree"
)

var (
	_ metagraph.Producer = (*Tag)(nil)
	_ metagraph.Producer = (*Badges)(nil)
	_ metagraph.Producer = (*Description)(nil)
	_ metagraph.Producer = (*typetree.Node)(nil)
)

// Tag is a tag node published on its own, without an owning entity.
type Tag struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// Entity returns a fresh serialization pass over t.
func (t *Tag) Entity() metagraph.Entity {
	return metagraph.NewCursor(t)
}

// GraphNodes implements metagraph.Producer.
func (t *Tag) GraphNodes(*metagraph.Seen) []*metagraph.Node {
	return []*metagraph.Node{tagNode(t.Name, t.Type)}
}

// GraphRelationships implements metagraph.Producer.
func (t *Tag) GraphRelationships() []*metagraph.Relationship {
	return nil
}

// Badges attaches badges of one category to an existing entity.
type Badges struct {
	EntityLabel string   `yaml:"entity_label"`
	EntityKey   string   `yaml:"entity_key"`
	Category    string   `yaml:"category"`
	Names       []string `yaml:"names"`
}

// Entity returns a fresh serialization pass over b.
func (b *Badges) Entity() metagraph.Entity {
	return metagraph.NewCursor(b)
}

// GraphNodes implements metagraph.Producer.
func (b *Badges) GraphNodes(seen *metagraph.Seen) []*metagraph.Node {
	return badgeNodes(seen, b.Names, b.Category)
}

// GraphRelationships implements metagraph.Producer.
func (b *Badges) GraphRelationships() []*metagraph.Relationship {
	return badgeRelationships(b.EntityLabel, b.EntityKey, b.Names, b.Category)
}

// Description attaches a description to an existing entity. An empty or
// "description" source is a user description, anything else a programmatic
// one.
type Description struct {
	EntityLabel string `yaml:"entity_label"`
	EntityKey   string `yaml:"entity_key"`
	Source      string `yaml:"source,omitempty"`
	Text        string `yaml:"text"`
}

// Entity returns a fresh serialization pass over d.
func (d *Description) Entity() metagraph.Entity {
	return metagraph.NewCursor(d)
}

// GraphNodes implements metagraph.Producer.
func (d *Description) GraphNodes(*metagraph.Seen) []*metagraph.Node {
	return []*metagraph.Node{metagraph.DescriptionNode(d.EntityKey, d.Source, d.Text)}
}

// GraphRelationships implements metagraph.Producer.
func (d *Description) GraphRelationships() []*metagraph.Relationship {
	n := metagraph.DescriptionNode(d.EntityKey, d.Source, d.Text)
	return []*metagraph.Relationship{metagraph.DescriptionRelationship(d.EntityLabel, d.EntityKey, n)}
}

// ColumnRef is the key of a column published elsewhere. It lets a type tree
// hang off a column without the column's table.
type ColumnRef string

var _ typetree.Parent = ColumnRef("")

// NodeKey implements typetree.Parent.
func (r ColumnRef) NodeKey() string { return string(r) }

// NodeLabel implements typetree.Parent.
func (r ColumnRef) NodeLabel() string { return metagraph.LabelColumn }

// ChildKeyPrefix implements typetree.Parent.
func (r ColumnRef) ChildKeyPrefix() string { return string(r) + "/type" }

// NewTypeMetadata parses typeString as the type of the column at columnKey.
// Unlike column extraction, a malformed descriptor is an error here.
func NewTypeMetadata(columnKey, columnName, typeString string) (*typetree.Node, error) {
	return typetree.Parse(typeString, columnName, ColumnRef(columnKey))
}
