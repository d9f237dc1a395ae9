package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/typetree"
)

func testTable(log *zap.Logger) *Table {
	return &Table{
		Database:    "hive",
		Cluster:     "gold",
		Schema:      "core",
		Name:        "users",
		Description: "All users",
		Tags:        []string{"pii", "core", "pii"},
		Badges:      []string{"beta"},
		Columns: []*Column{
			{Name: "id", Type: "bigint", SortOrder: 0, Badges: []string{"primary"}},
			{Name: "attrs", Type: "map<string,array<int>>", SortOrder: 1, Badges: []string{"primary"}},
			{Name: "broken", Type: "struct<a:int", SortOrder: 2},
		},
		Logger: log,
	}
}

func keysOf(nodes []*metagraph.Node) []string {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Label + " " + n.Key
	}

	return keys
}

func TestTable_Nodes(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	nodes, _ := metagraph.Drain(testTable(zap.New(core)).Entity())

	want := []string{
		"Table hive://gold.core/users",
		"Description hive://gold.core/users/_description",
		"Tag pii",
		"Tag core",
		"Badge beta:table",
		"Column hive://gold.core/users/id",
		"Badge primary:column",
		"Column hive://gold.core/users/attrs",
		"Type_Metadata hive://gold.core/users/attrs/type/attrs",
		"Type_Metadata hive://gold.core/users/attrs/type/attrs/_map_key",
		"Type_Metadata hive://gold.core/users/attrs/type/attrs/_map_value",
		"Type_Metadata hive://gold.core/users/attrs/type/attrs/_map_value/_inner_",
		"Column hive://gold.core/users/broken",
		"Type_Metadata hive://gold.core/users/broken/type/broken",
		"Database database://hive",
		"Cluster hive://gold",
		"Schema hive://gold.core",
	}
	if diff := cmp.Diff(want, keysOf(nodes)); diff != "" {
		t.Errorf("Table nodes mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, 1, logs.Len(), "malformed column type is logged once")
	entry := logs.All()[0]
	assert.Equal(t, "hive://gold.core/users/broken", entry.ContextMap()["column"])

	broken := nodes[13]
	kind, _ := broken.Properties.Get("kind")
	raw, _ := broken.Properties.Get("data_type")
	assert.Equal(t, "scalar", kind)
	assert.Equal(t, "struct<a:int", raw)
}

func TestTable_Relationships(t *testing.T) {
	_, rels := metagraph.Drain(testTable(nil).Entity())
	require.Len(t, rels, 17)

	byType := map[string]int{}
	for _, r := range rels {
		byType[r.Type]++
	}

	want := map[string]int{
		metagraph.RelDescription:  1,
		metagraph.RelTaggedBy:     2,
		metagraph.RelHasBadge:     3,
		metagraph.RelColumn:       3,
		metagraph.RelTypeMetadata: 2,
		metagraph.RelSubtype:      3,
		metagraph.RelCluster:      1,
		metagraph.RelSchema:       1,
		metagraph.RelTable:        1,
	}
	if diff := cmp.Diff(want, byType); diff != "" {
		t.Errorf("relationship types mismatch (-want +got):\n%s", diff)
	}

	last := rels[len(rels)-1]
	assert.Equal(t, &metagraph.Relationship{
		StartLabel:  metagraph.LabelSchema,
		StartKey:    "hive://gold.core",
		EndLabel:    metagraph.LabelTable,
		EndKey:      "hive://gold.core/users",
		Type:        metagraph.RelTable,
		ReverseType: metagraph.RelTableOf,
	}, last)
}

func TestTable_NoDuplicateNodeKeys(t *testing.T) {
	nodes, _ := metagraph.Drain(testTable(nil).Entity())

	seen := map[string]bool{}
	for _, n := range nodes {
		assert.False(t, seen[n.Key], "node %s emitted twice", n.Key)
		seen[n.Key] = true
	}
}

func TestTable_EntityIsFreshPerCall(t *testing.T) {
	tbl := testTable(nil)

	first, _ := metagraph.Drain(tbl.Entity())
	second, _ := metagraph.Drain(tbl.Entity())
	assert.Equal(t, keysOf(first), keysOf(second))

	e := tbl.Entity()
	metagraph.Drain(e)

	_, ok := e.NextNode()
	assert.False(t, ok, "exhausted entity does not restart")
}

func TestColumn_TypeTree(t *testing.T) {
	tbl := testTable(nil)
	tbl.GraphNodes(metagraph.NewSeen())

	tree, err := tbl.Columns[0].TypeTree()
	require.NoError(t, err)
	assert.Nil(t, tree, "scalar columns have no type tree")

	tree, err = tbl.Columns[1].TypeTree()
	require.NoError(t, err)
	assert.Equal(t, typetree.KindMap, tree.Kind)
	assert.Same(t, tbl.Columns[1], tree.Parent())

	tree, err = tbl.Columns[2].TypeTree()
	require.ErrorIs(t, err, typetree.ErrParse)
	assert.Equal(t, typetree.KindScalar, tree.Kind)
}

func TestTable_ProgrammaticDescriptions(t *testing.T) {
	tbl := &Table{
		Database: "postgres",
		Cluster:  "main",
		Schema:   "public",
		Name:     "orders",
		ProgrammaticDescriptions: []ProgrammaticDescription{
			{Source: "quality", Text: "98% complete"},
			{Source: "empty"},
		},
	}

	nodes, rels := metagraph.Drain(tbl.Entity())
	require.Equal(t, "postgres://main.public/orders/_quality_description", nodes[1].Key)
	assert.Equal(t, metagraph.LabelProgrammatic, nodes[1].Label)

	source, _ := nodes[1].Properties.Get("description_source")
	assert.Equal(t, "quality", source)

	assert.Equal(t, metagraph.RelDescription, rels[0].Type)
	assert.Equal(t, metagraph.LabelProgrammatic, rels[0].EndLabel)
}

func TestDashboard(t *testing.T) {
	d := &Dashboard{
		Product:          "mode",
		GroupID:          "finance",
		GroupName:        "Finance",
		GroupDescription: "Finance reporting",
		ID:               "rev",
		Name:             "Revenue",
		URL:              "https://mode.example/rev",
		Description:      "Daily revenue",
		CreatedTimestamp: 1700000000,
		Tags:             []string{"kpi"},
	}

	nodes, rels := metagraph.Drain(d.Entity())

	want := []string{
		"Dashboard mode_dashboard://gold.finance/rev",
		"Dashboardgroup mode_dashboard://gold.finance",
		"Description mode_dashboard://gold.finance/_description",
		"Description mode_dashboard://gold.finance/rev/_description",
		"Cluster mode_dashboard://gold",
		"Tag kpi",
	}
	if diff := cmp.Diff(want, keysOf(nodes)); diff != "" {
		t.Errorf("Dashboard nodes mismatch (-want +got):\n%s", diff)
	}

	created, ok := nodes[0].Properties.Get("created_timestamp")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), created)

	require.Len(t, rels, 5)
	assert.Equal(t, metagraph.RelDashboardOf, rels[0].Type)
	assert.Equal(t, metagraph.RelDashboard, rels[0].ReverseType)
	assert.Equal(t, metagraph.LabelCluster, rels[1].StartLabel)
	assert.Equal(t, metagraph.RelDashboardGroup, rels[1].Type)
	assert.Equal(t, metagraph.RelTaggedBy, rels[4].Type)
	assert.Equal(t, "kpi", rels[4].EndKey)
}

func TestStandaloneEntities(t *testing.T) {
	tag := &Tag{Name: "gdpr"}
	nodes, rels := metagraph.Drain(tag.Entity())
	require.Len(t, nodes, 1)
	assert.Empty(t, rels)

	tagType, _ := nodes[0].Properties.Get("tag_type")
	assert.Equal(t, DefaultTagType, tagType)

	badges := &Badges{
		EntityLabel: metagraph.LabelTable,
		EntityKey:   "hive://gold.core/users",
		Category:    "table_status",
		Names:       []string{"Deprecated", "beta"},
	}
	nodes, rels = metagraph.Drain(badges.Entity())
	assert.Equal(t, []string{"Badge deprecated:table_status", "Badge beta:table_status"}, keysOf(nodes))
	require.Len(t, rels, 2)
	assert.Equal(t, metagraph.RelBadgeFor, rels[0].ReverseType)

	desc := &Description{EntityLabel: metagraph.LabelColumn, EntityKey: "k/c", Text: "hello"}
	nodes, rels = metagraph.Drain(desc.Entity())
	assert.Equal(t, []string{"Description k/c/_description"}, keysOf(nodes))
	assert.Equal(t, "k/c/_description", rels[0].EndKey)
}

func TestNewTypeMetadata(t *testing.T) {
	tree, err := NewTypeMetadata("hive://gold.core/users/attrs", "attrs", "array<string>")
	require.NoError(t, err)
	assert.Equal(t, "hive://gold.core/users/attrs/type/attrs/_inner_", tree.Children[0].Key())

	_, rels := metagraph.Drain(tree.Entity())
	assert.Equal(t, metagraph.LabelColumn, rels[0].StartLabel)
	assert.Equal(t, "hive://gold.core/users/attrs", rels[0].StartKey)

	_, err = NewTypeMetadata("k", "attrs", "array<")
	assert.ErrorIs(t, err, typetree.ErrParse)
}
