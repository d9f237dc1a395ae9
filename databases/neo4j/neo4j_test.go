//nolint:testpackage
package neo4j

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/publisher"
	"github.com/rlch/metagraph/staged"
)

func TestConstraintStatement(t *testing.T) {
	got, err := ConstraintStatement("Type_Metadata")
	require.NoError(t, err)

	want := "CREATE CONSTRAINT `metagraph_type_metadata_key` IF NOT EXISTS FOR (n:`Type_Metadata`) REQUIRE n.key IS UNIQUE"
	assert.Equal(t, want, got)

	_, err = ConstraintStatement("Bad`Label")
	require.ErrorIs(t, err, metagraph.ErrInvalidName)
}

func TestNodeStatement(t *testing.T) {
	base := metagraph.NodeTemplate{
		Label:         "Table",
		Properties:    []string{"name"},
		Metadata:      []string{"published_tag"},
		PreserveEmpty: true,
	}

	tests := []struct {
		name   string
		mutate func(*metagraph.NodeTemplate)
		want   string
	}{
		{
			name: "default",
			want: "UNWIND $batch AS row\n" +
				"MERGE (n:`Table` {key: row.key})\n" +
				"ON CREATE SET n.`name` = row.`name`, n.`published_tag` = row.`published_tag`\n" +
				"ON MATCH SET n.`name` = row.`name`, n.`published_tag` = row.`published_tag`",
		},
		{
			name:   "create only",
			mutate: func(t *metagraph.NodeTemplate) { t.CreateOnly = true },
			want: "UNWIND $batch AS row\n" +
				"MERGE (n:`Table` {key: row.key})\n" +
				"ON CREATE SET n.`name` = row.`name`, n.`published_tag` = row.`published_tag`",
		},
		{
			name:   "drop empty",
			mutate: func(t *metagraph.NodeTemplate) { t.PreserveEmpty = false },
			want: "UNWIND $batch AS row\n" +
				"MERGE (n:`Table` {key: row.key})\n" +
				"ON CREATE SET n.`name` = row.`name`, n.`published_tag` = row.`published_tag`\n" +
				"ON MATCH SET n.`name` = coalesce(row.`name`, n.`name`), " +
				"n.`published_tag` = coalesce(row.`published_tag`, n.`published_tag`)",
		},
		{
			name: "preserve adhoc",
			mutate: func(t *metagraph.NodeTemplate) {
				t.PreserveAdhoc = true
				t.Metadata = nil
			},
			want: "UNWIND $batch AS row\n" +
				"MERGE (n:`Table` {key: row.key})\n" +
				"ON CREATE SET n.`name` = row.`name`\n" +
				"ON MATCH SET n.`name` = CASE WHEN n.published_tag IS NULL THEN n.`name` ELSE row.`name` END",
		},
		{
			name: "no properties",
			mutate: func(t *metagraph.NodeTemplate) {
				t.Properties = nil
				t.Metadata = nil
			},
			want: "UNWIND $batch AS row\nMERGE (n:`Table` {key: row.key})",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := base
			if tt.mutate != nil {
				tt.mutate(&tmpl)
			}

			got, err := NodeStatement(&tmpl)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NodeStatement() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNodeStatement_InvalidNames(t *testing.T) {
	for _, tmpl := range []*metagraph.NodeTemplate{
		{Label: "Table) DETACH DELETE (m"},
		{Label: "Table", Properties: []string{"name`"}},
		{Label: "Table", Properties: []string{metagraph.RowKey}},
		{Label: "Table", Properties: []string{"a"}, Metadata: []string{"a"}},
	} {
		_, err := NodeStatement(tmpl)
		require.ErrorIs(t, err, metagraph.ErrInvalidName, "template %+v", tmpl)
	}
}

func TestRelationshipStatement(t *testing.T) {
	tmpl := &metagraph.RelationshipTemplate{
		StartLabel:    "Table",
		EndLabel:      "Column",
		Type:          "COLUMN",
		ReverseType:   "COLUMN_OF",
		Metadata:      []string{"published_tag"},
		Reverse:       true,
		PreserveEmpty: true,
	}

	got, err := RelationshipStatement(tmpl)
	require.NoError(t, err)

	want := "UNWIND $batch AS row\n" +
		"MATCH (n1:`Table` {key: row.start_key})\n" +
		"MATCH (n2:`Column` {key: row.end_key})\n" +
		"MERGE (n1)-[r1:`COLUMN`]->(n2)\n" +
		"SET r1.`published_tag` = row.`published_tag`\n" +
		"MERGE (n2)-[r2:`COLUMN_OF`]->(n1)\n" +
		"SET r2.`published_tag` = row.`published_tag`\n" +
		"RETURN row.idx AS idx"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RelationshipStatement() mismatch (-want +got):\n%s", diff)
	}

	tmpl.Reverse = false
	tmpl.Metadata = nil

	got, err = RelationshipStatement(tmpl)
	require.NoError(t, err)

	want = "UNWIND $batch AS row\n" +
		"MATCH (n1:`Table` {key: row.start_key})\n" +
		"MATCH (n2:`Column` {key: row.end_key})\n" +
		"MERGE (n1)-[r1:`COLUMN`]->(n2)\n" +
		"RETURN row.idx AS idx"
	assert.Equal(t, want, got)

	_, err = RelationshipStatement(&metagraph.RelationshipTemplate{
		StartLabel: "Table", EndLabel: "Column", Type: "COLUMN", ReverseType: "BAD TYPE", Reverse: true,
	})
	require.ErrorIs(t, err, metagraph.ErrInvalidName)
}

func TestStatements_NoRowData(t *testing.T) {
	// Row values are bound as parameters and never appear in statement text.
	tmpl := &metagraph.NodeTemplate{Label: "Table", Properties: []string{"name", "description"}}

	got, err := NodeStatement(tmpl)
	require.NoError(t, err)
	assert.NotContains(t, got, "'")
	assert.NotContains(t, got, "\"")
	assert.Contains(t, got, "$batch")
}

func TestStaleStatement(t *testing.T) {
	count, err := StaleStatement("Table", false)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`Table`)\n"+
		"WHERE n.published_tag IS NOT NULL AND n.published_tag <> $tag\n"+
		"RETURN count(n) AS count", count)

	del, err := StaleStatement("Table", true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(del, "DETACH DELETE n\nRETURN count(n) AS count"))

	nodes, err := CountNodesStatement("Table")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`Table`) RETURN count(n) AS count", nodes)
}

func TestStatementCache(t *testing.T) {
	c := newStatementCache()

	tmpl := &metagraph.NodeTemplate{Label: "Table", Properties: []string{"name"}}

	first, err := c.node(tmpl)
	require.NoError(t, err)

	second, err := c.node(&metagraph.NodeTemplate{Label: "Table", Properties: []string{"name"}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.len())

	_, err = c.node(&metagraph.NodeTemplate{Label: "Table", Properties: []string{"name"}, CreateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, c.len())

	_, err = c.relationship(&metagraph.RelationshipTemplate{StartLabel: "Bad Label"})
	require.ErrorIs(t, err, metagraph.ErrInvalidName)
	assert.Equal(t, 2, c.len())
}

func TestMatchedRows(t *testing.T) {
	records := []*neo4j.Record{
		{Keys: []string{"idx"}, Values: []any{int64(0)}},
		{Keys: []string{"idx"}, Values: []any{int64(2)}},
	}

	got, err := matchedRows(records)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, got)

	_, err = matchedRows([]*neo4j.Record{{Keys: []string{"other"}, Values: []any{int64(1)}}})
	require.ErrorIs(t, err, ErrUnexpectedResult)

	_, err = matchedRows([]*neo4j.Record{{Keys: []string{"idx"}, Values: []any{"1"}}})
	require.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestIsConstraintExists(t *testing.T) {
	exists := &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists"}
	assert.True(t, isConstraintExists(fmt.Errorf("wrapped: %w", exists)))

	other := &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintValidationFailed"}
	assert.False(t, isConstraintExists(other))
	assert.False(t, isConstraintExists(ErrUnexpectedResult))
}

func TestStore_Registration(t *testing.T) {
	assert.True(t, slices.Contains(metagraph.RegisteredStores(), metagraph.StoreNeo4j))

	_, err := metagraph.NewStore(metagraph.StoreNeo4j, "not a config")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(context.Background(), &metagraph.Neo4jConfig{})
	require.ErrorIs(t, err, metagraph.ErrConfiguration)
}

// Integration tests - only run with a real Neo4j instance.
// Set METAGRAPH_NEO4J_URI, METAGRAPH_NEO4J_USER, METAGRAPH_NEO4J_PASS to run.

func TestStore_Publish_Integration(t *testing.T) {
	store := setupIntegrationTest(t)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	cleanup(t, store)
	t.Cleanup(func() { cleanup(t, store) })

	stage := integrationStage()

	cfg := metagraph.DefaultPublisherConfig()
	cfg.JobPublishTag = "it-1"
	cfg.TransactionSize = 2

	p, err := publisher.New(store, cfg)
	require.NoError(t, err)

	result, err := p.Publish(ctx, stage)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Nodes)
	assert.Equal(t, 2, result.Relationships)
	assert.Equal(t, 1, result.SkippedCount())

	// Publishing again converges to the same graph.
	result, err = p.Publish(ctx, stage)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Relationships)

	n, err := store.CountNodes(ctx, "MetagraphItColumn")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	edges, err := store.count(ctx,
		"MATCH (:MetagraphItTable)-[r]-(:MetagraphItColumn) RETURN count(DISTINCT r) AS count", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), edges)

	stale, err := store.CountStale(ctx, "MetagraphItColumn", "it-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stale)
}

func TestStore_Rollback_Integration(t *testing.T) {
	store := setupIntegrationTest(t)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	cleanup(t, store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	err = tx.MergeNodes(ctx, &metagraph.NodeBatch{
		Template: &metagraph.NodeTemplate{Label: "MetagraphItTable", PreserveEmpty: true},
		Rows:     []map[string]any{{metagraph.RowKey: "rolled-back"}},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	n, err := store.CountNodes(ctx, "MetagraphItTable")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func integrationStage() *staged.Stage {
	node := func(label, key string) *metagraph.Node {
		n := &metagraph.Node{Label: label, Key: key}
		n.Properties.Set("name", key)

		return n
	}
	rel := func(end string) *metagraph.Relationship {
		return &metagraph.Relationship{
			StartLabel: "MetagraphItTable", StartKey: "t",
			EndLabel: "MetagraphItColumn", EndKey: end,
			Type: "COLUMN", ReverseType: "COLUMN_OF",
		}
	}

	rels := []*metagraph.Relationship{rel("t/a"), rel("t/b"), rel("t/missing")}

	return &staged.Stage{
		Nodes: []*staged.NodeGroup{
			{
				Name: "nodes_0.csv", Label: "MetagraphItTable",
				Columns: []staged.Column{{Name: "name"}},
				Nodes:   []*metagraph.Node{node("MetagraphItTable", "t")},
			},
			{
				Name: "nodes_1.csv", Label: "MetagraphItColumn",
				Columns: []staged.Column{{Name: "name"}},
				Nodes:   []*metagraph.Node{node("MetagraphItColumn", "t/a"), node("MetagraphItColumn", "t/b")},
			},
		},
		Relationships: []*staged.RelationshipGroup{
			{Name: "relationships_0.csv", Key: rels[0].GroupKey(), Relationships: rels},
		},
	}
}

func cleanup(t *testing.T, store *Store) {
	t.Helper()

	for _, label := range []string{"MetagraphItTable", "MetagraphItColumn"} {
		stmt := fmt.Sprintf("MATCH (n:%s) DETACH DELETE n RETURN count(n) AS count", quote(label))
		if _, err := store.count(context.Background(), stmt, nil); err != nil {
			t.Fatalf("cleanup %s: %v", label, err)
		}
	}
}

func setupIntegrationTest(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("METAGRAPH_NEO4J_URI")
	if uri == "" {
		t.Skip("METAGRAPH_NEO4J_URI not set, skipping integration test")
	}

	cfg := &metagraph.Neo4jConfig{
		URI:      uri,
		Username: os.Getenv("METAGRAPH_NEO4J_USER"),
		Password: os.Getenv("METAGRAPH_NEO4J_PASS"),
	}

	store, err := New(t.Context(), cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return store
}
