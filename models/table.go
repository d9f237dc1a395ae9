// Package models holds the metadata models that describe themselves as graph
// data: tables with their columns and nested types, dashboards, and the small
// standalone entities (tags, badges, descriptions, type metadata) connectors
// emit on their own.
//
// Every model implements metagraph.Producer and exposes an Entity method that
// wraps it in a metagraph.Cursor, so the dedup set lives exactly as long as
// one serialization pass.
package models

import (
	"go.uber.org/zap"

	"github.com/rlch/metagraph"
)

// DatabaseKey returns the key of a database node.
func DatabaseKey(database string) string {
	return "database://" + database
}

// ClusterKey returns the key of a cluster node inside database.
func ClusterKey(database, cluster string) string {
	return database + "://" + cluster
}

// SchemaKey returns the key of a schema node.
func SchemaKey(database, cluster, schema string) string {
	return ClusterKey(database, cluster) + "." + schema
}

// TableKey returns the key of a table node.
func TableKey(database, cluster, schema, table string) string {
	return SchemaKey(database, cluster, schema) + "/" + table
}

// ProgrammaticDescription is a description produced by a tool rather than a
// person. Each source gets its own description node.
type ProgrammaticDescription struct {
	Source string `yaml:"source"`
	Text   string `yaml:"text"`
}

// Table is a table or view, the schema it lives in and its columns.
type Table struct {
	Database string `yaml:"database"`
	Cluster  string `yaml:"cluster"`
	Schema   string `yaml:"schema"`
	Name     string `yaml:"name"`
	IsView   bool   `yaml:"is_view,omitempty"`

	Description              string                    `yaml:"description,omitempty"`
	ProgrammaticDescriptions []ProgrammaticDescription `yaml:"programmatic_descriptions,omitempty"`
	Tags                     []string                  `yaml:"tags,omitempty"`
	Badges                   []string                  `yaml:"badges,omitempty"`
	Columns                  []*Column                 `yaml:"columns,omitempty"`

	// Logger receives column type parse failures. Nil means no logging.
	Logger *zap.Logger `yaml:"-"`
}

// TableBadgeCategory is the category table-level badges are filed under.
const TableBadgeCategory = "table"

var _ metagraph.Producer = (*Table)(nil)

// Key returns the key of the table node.
func (t *Table) Key() string {
	return TableKey(t.Database, t.Cluster, t.Schema, t.Name)
}

// Entity returns a fresh serialization pass over t.
func (t *Table) Entity() metagraph.Entity {
	return metagraph.NewCursor(t)
}

// GraphNodes implements metagraph.Producer.
func (t *Table) GraphNodes(seen *metagraph.Seen) []*metagraph.Node {
	t.bindColumns()

	key := t.Key()
	out := []*metagraph.Node{{
		Label: metagraph.LabelTable,
		Key:   key,
		Properties: metagraph.Properties{
			{Name: "name", Value: t.Name},
			{Name: "is_view", Value: t.IsView},
		},
	}}

	out = append(out, descriptionNodes(key, t.Description, t.ProgrammaticDescriptions)...)
	out = append(out, tagNodes(seen, t.Tags)...)
	out = append(out, badgeNodes(seen, t.Badges, TableBadgeCategory)...)

	for _, c := range t.Columns {
		out = append(out, c.graphNodes(seen, t.logger())...)
	}

	ancestors := []*metagraph.Node{
		nameNode(metagraph.LabelDatabase, DatabaseKey(t.Database), t.Database),
		nameNode(metagraph.LabelCluster, ClusterKey(t.Database, t.Cluster), t.Cluster),
		nameNode(metagraph.LabelSchema, SchemaKey(t.Database, t.Cluster, t.Schema), t.Schema),
	}
	for _, n := range ancestors {
		if seen.Mark(n.Key) {
			out = append(out, n)
		}
	}

	return out
}

// GraphRelationships implements metagraph.Producer.
func (t *Table) GraphRelationships() []*metagraph.Relationship {
	t.bindColumns()

	key := t.Key()

	var out []*metagraph.Relationship

	out = append(out, descriptionRelationships(metagraph.LabelTable, key, t.Description, t.ProgrammaticDescriptions)...)
	out = append(out, tagRelationships(metagraph.LabelTable, key, t.Tags)...)
	out = append(out, badgeRelationships(metagraph.LabelTable, key, t.Badges, TableBadgeCategory)...)

	for _, c := range t.Columns {
		out = append(out, c.graphRelationships()...)
	}

	dbKey := DatabaseKey(t.Database)
	clusterKey := ClusterKey(t.Database, t.Cluster)
	schemaKey := SchemaKey(t.Database, t.Cluster, t.Schema)

	out = append(out,
		link(metagraph.LabelDatabase, dbKey, metagraph.LabelCluster, clusterKey, metagraph.RelCluster, metagraph.RelClusterOf),
		link(metagraph.LabelCluster, clusterKey, metagraph.LabelSchema, schemaKey, metagraph.RelSchema, metagraph.RelSchemaOf),
		link(metagraph.LabelSchema, schemaKey, metagraph.LabelTable, key, metagraph.RelTable, metagraph.RelTableOf),
	)

	return out
}

func (t *Table) bindColumns() {
	for _, c := range t.Columns {
		c.table = t
	}
}

func (t *Table) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}

	return t.Logger
}
