package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/publisher/publishertest"
	"github.com/rlch/metagraph/staged"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func node(label, key string, kv ...any) *metagraph.Node {
	n := &metagraph.Node{Label: label, Key: key}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Properties.Set(kv[i].(string), kv[i+1])
	}

	return n
}

func nodeGroup(name, label string, cols []string, nodes ...*metagraph.Node) *staged.NodeGroup {
	g := &staged.NodeGroup{Name: name, Label: label, Nodes: nodes}
	for _, c := range cols {
		g.Columns = append(g.Columns, staged.Column{Name: c})
	}

	return g
}

func rel(startLabel, startKey, endLabel, endKey, typ, reverse string) *metagraph.Relationship {
	return &metagraph.Relationship{
		StartLabel:  startLabel,
		StartKey:    startKey,
		EndLabel:    endLabel,
		EndKey:      endKey,
		Type:        typ,
		ReverseType: reverse,
	}
}

func relGroup(name string, rels ...*metagraph.Relationship) *staged.RelationshipGroup {
	return &staged.RelationshipGroup{Name: name, Key: rels[0].GroupKey(), Relationships: rels}
}

// tableStage stages one table with n columns linked to it.
func tableStage(n int) *staged.Stage {
	tables := nodeGroup("nodes_0.csv", metagraph.LabelTable, []string{"name"},
		node(metagraph.LabelTable, "hive://gold.core/users", "name", "users"))

	columns := nodeGroup("nodes_1.csv", metagraph.LabelColumn, []string{"name"})

	var rels []*metagraph.Relationship

	for i := range n {
		key := fmt.Sprintf("hive://gold.core/users/c%d", i)
		columns.Nodes = append(columns.Nodes, node(metagraph.LabelColumn, key, "name", fmt.Sprintf("c%d", i)))
		rels = append(rels, rel(metagraph.LabelTable, "hive://gold.core/users", metagraph.LabelColumn, key,
			metagraph.RelColumn, metagraph.RelColumnOf))
	}

	s := &staged.Stage{Nodes: []*staged.NodeGroup{tables, columns}}
	if n > 0 {
		s.Relationships = []*staged.RelationshipGroup{relGroup("relationships_0.csv", rels...)}
	}

	return s
}

func testConfig() metagraph.PublisherConfig {
	cfg := metagraph.DefaultPublisherConfig()
	cfg.JobPublishTag = "run-1"

	return cfg
}

func newPublisher(t *testing.T, store metagraph.Store, cfg metagraph.PublisherConfig, opts ...Option) *Publisher {
	t.Helper()

	p, err := New(store, cfg, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	return p
}

type recorder struct {
	events []Event
	failOn func(Event) error
}

func (r *recorder) Event(_ context.Context, event Event, _ *Result) error {
	r.events = append(r.events, event)
	if r.failOn != nil {
		return r.failOn(event)
	}

	return nil
}

func (r *recorder) Err(string) error { return nil }

func (r *recorder) actions() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = string(e.Action) + ":" + string(e.Phase)
	}

	return out
}

func TestPublish_Phases(t *testing.T) {
	store := publishertest.New()
	rec := &recorder{}

	p := newPublisher(t, store, testConfig(), WithHandler(rec))

	result, err := p.Publish(context.Background(), tableStage(2))
	require.NoError(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, PhaseDone, result.Phase)

	want := []string{
		"phase:bootstrap",
		"constraint:bootstrap",
		"constraint:bootstrap",
		"phase:nodes",
		"batch:nodes",
		"batch:nodes",
		"phase:relationships",
		"batch:relationships",
		"done:done",
	}
	if diff := cmp.Diff(want, rec.actions()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	// Constraints are ensured in label order before any transaction.
	calls := store.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"constraint:Column", "constraint:Table", "begin"}, calls[:3])
	assert.Equal(t, []string{"Column", "Table"}, store.Constraints())

	assert.Equal(t, 2, result.Constraints)
	assert.Equal(t, 3, result.Nodes)
	assert.Equal(t, 2, result.Relationships)
	assert.Equal(t, 4, result.Edges)
}

func TestPublish_Batching(t *testing.T) {
	store := publishertest.New()
	cfg := testConfig()
	cfg.TransactionSize = 500

	p := newPublisher(t, store, cfg)

	result, err := p.Publish(context.Background(), tableStage(1001))
	require.NoError(t, err)

	// One table batch plus three column batches of 500, 500 and 1.
	assert.Equal(t, 4, result.NodeBatches)
	assert.Equal(t, 3, result.RelationshipBatches)
	assert.Equal(t, 1002, result.Nodes)
	assert.Equal(t, 1001, result.Relationships)
	assert.Equal(t, 1002, store.NodeCount())
	assert.Len(t, store.Edges(), 2002)
}

func TestPublish_DefaultTransactionSize(t *testing.T) {
	cfg := testConfig()
	cfg.TransactionSize = 0

	store := publishertest.New()
	p := newPublisher(t, store, cfg)

	result, err := p.Publish(context.Background(), tableStage(metagraph.DefaultTransactionSize+1))
	require.NoError(t, err)
	assert.Equal(t, 3, result.NodeBatches)
}

func TestPublish_Metadata(t *testing.T) {
	store := publishertest.New()
	cfg := testConfig()
	cfg.AdditionalMetadata = map[string]string{"source": "hive"}

	p := newPublisher(t, store, cfg)

	_, err := p.Publish(context.Background(), tableStage(1))
	require.NoError(t, err)

	got, ok := store.Node(metagraph.LabelTable, "hive://gold.core/users")
	require.True(t, ok)

	want := publishertest.Props{
		metagraph.PropKey:          "hive://gold.core/users",
		"name":                     "users",
		"source":                   "hive",
		metagraph.PropPublishedTag: "run-1",
		metagraph.PropLastUpdated:  fixedNow.UnixMilli(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("node mismatch (-want +got):\n%s", diff)
	}

	edge, ok := store.Edge(publishertest.EdgeKey{
		StartLabel: metagraph.LabelColumn,
		StartKey:   "hive://gold.core/users/c0",
		Type:       metagraph.RelColumnOf,
		EndLabel:   metagraph.LabelTable,
		EndKey:     "hive://gold.core/users",
	})
	require.True(t, ok)
	assert.Equal(t, "run-1", edge[metagraph.PropPublishedTag])
	assert.Equal(t, "hive", edge["source"])
}

func TestPublish_MetadataDisabled(t *testing.T) {
	store := publishertest.New()
	cfg := testConfig()
	cfg.AddPublisherMetadata = false
	cfg.JobPublishTag = ""
	cfg.AdditionalMetadata = map[string]string{"source": "hive"}

	p := newPublisher(t, store, cfg)

	_, err := p.Publish(context.Background(), tableStage(1))
	require.NoError(t, err)

	got, ok := store.Node(metagraph.LabelTable, "hive://gold.core/users")
	require.True(t, ok)
	assert.NotContains(t, got, metagraph.PropPublishedTag)
	assert.NotContains(t, got, metagraph.PropLastUpdated)
	assert.NotContains(t, got, "source")

	edges := store.Edges()
	require.NotEmpty(t, edges)

	for _, key := range edges {
		props, ok := store.Edge(key)
		require.True(t, ok)
		assert.NotContains(t, props, "source", key.String())
	}
}

func TestPublish_ReverseRelationships(t *testing.T) {
	tests := []struct {
		name    string
		reverse bool
		want    []publishertest.EdgeKey
	}{
		{
			name:    "enabled",
			reverse: true,
			want: []publishertest.EdgeKey{
				{metagraph.LabelColumn, "hive://gold.core/users/c0", metagraph.RelColumnOf, metagraph.LabelTable, "hive://gold.core/users"},
				{metagraph.LabelTable, "hive://gold.core/users", metagraph.RelColumn, metagraph.LabelColumn, "hive://gold.core/users/c0"},
			},
		},
		{
			name:    "disabled",
			reverse: false,
			want: []publishertest.EdgeKey{
				{metagraph.LabelTable, "hive://gold.core/users", metagraph.RelColumn, metagraph.LabelColumn, "hive://gold.core/users/c0"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := publishertest.New()
			cfg := testConfig()
			cfg.PublishReverseRelationships = tt.reverse

			p := newPublisher(t, store, cfg)

			result, err := p.Publish(context.Background(), tableStage(1))
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, store.Edges()); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}

			assert.Equal(t, len(tt.want), result.Edges)
		})
	}
}

func TestPublish_Idempotent(t *testing.T) {
	store := publishertest.New()
	p := newPublisher(t, store, testConfig())

	stage := tableStage(3)

	_, err := p.Publish(context.Background(), stage)
	require.NoError(t, err)

	nodes := store.NodeCount()
	edges := store.Edges()
	table, _ := store.Node(metagraph.LabelTable, "hive://gold.core/users")

	result, err := p.Publish(context.Background(), stage)
	require.NoError(t, err)
	assert.True(t, result.Ok())

	// Existing constraints count as ensured.
	assert.Equal(t, 2, result.Constraints)

	assert.Equal(t, nodes, store.NodeCount())
	assert.Equal(t, edges, store.Edges())

	again, _ := store.Node(metagraph.LabelTable, "hive://gold.core/users")
	if diff := cmp.Diff(table, again); diff != "" {
		t.Errorf("node changed on re-publish (-first +second):\n%s", diff)
	}
}

func TestPublish_CreateOnly(t *testing.T) {
	store := publishertest.New()
	store.PutNode(metagraph.LabelTable, "hive://gold.core/users", publishertest.Props{
		metagraph.PropKey: "hive://gold.core/users",
		"name":            "renamed in ui",
	})

	cfg := testConfig()
	cfg.CreateOnlyLabels = []string{metagraph.LabelTable}

	p := newPublisher(t, store, cfg)

	_, err := p.Publish(context.Background(), tableStage(1))
	require.NoError(t, err)

	table, _ := store.Node(metagraph.LabelTable, "hive://gold.core/users")
	assert.Equal(t, "renamed in ui", table["name"])
	assert.NotContains(t, table, metagraph.PropPublishedTag)

	column, _ := store.Node(metagraph.LabelColumn, "hive://gold.core/users/c0")
	assert.Equal(t, "run-1", column[metagraph.PropPublishedTag])
}

func TestPublish_PreserveAdhoc(t *testing.T) {
	store := publishertest.New()
	store.PutNode(metagraph.LabelColumn, "hive://gold.core/users/c0", publishertest.Props{
		"name": "added by hand",
	})
	store.PutNode(metagraph.LabelColumn, "hive://gold.core/users/c1", publishertest.Props{
		"name":                     "stale",
		metagraph.PropPublishedTag: "run-0",
	})

	cfg := testConfig()
	cfg.PreserveAdhocUIData = true

	p := newPublisher(t, store, cfg)

	_, err := p.Publish(context.Background(), tableStage(2))
	require.NoError(t, err)

	adhoc, _ := store.Node(metagraph.LabelColumn, "hive://gold.core/users/c0")
	assert.Equal(t, "added by hand", adhoc["name"])

	published, _ := store.Node(metagraph.LabelColumn, "hive://gold.core/users/c1")
	assert.Equal(t, "c1", published["name"])
	assert.Equal(t, "run-1", published[metagraph.PropPublishedTag])
}

func TestPublish_PreserveEmptyProps(t *testing.T) {
	stage := &staged.Stage{Nodes: []*staged.NodeGroup{
		nodeGroup("nodes_0.csv", metagraph.LabelTable, []string{"name", "owner"},
			node(metagraph.LabelTable, "t", "name", "t", "owner", "")),
	}}

	tests := []struct {
		name     string
		preserve bool
		want     any
	}{
		{name: "preserved", preserve: true, want: ""},
		{name: "dropped", preserve: false, want: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := publishertest.New()
			store.PutNode(metagraph.LabelTable, "t", publishertest.Props{
				"owner":                    "alice",
				metagraph.PropPublishedTag: "run-0",
			})

			cfg := testConfig()
			cfg.PreserveEmptyProps = tt.preserve

			p := newPublisher(t, store, cfg)

			_, err := p.Publish(context.Background(), stage)
			require.NoError(t, err)

			got, _ := store.Node(metagraph.LabelTable, "t")
			assert.Equal(t, tt.want, got["owner"])
		})
	}
}

func TestPublish_MissingEndpoints(t *testing.T) {
	stage := tableStage(2)
	stage.Relationships[0].Relationships = append(stage.Relationships[0].Relationships,
		rel(metagraph.LabelTable, "hive://gold.core/users", metagraph.LabelColumn, "hive://gold.core/users/gone",
			metagraph.RelColumn, metagraph.RelColumnOf))

	core, logs := observer.New(zapcore.WarnLevel)

	store := publishertest.New()
	rec := &recorder{}

	cfg := testConfig()
	cfg.TransactionSize = 2

	p := newPublisher(t, store, cfg, WithHandler(rec), WithLogger(zap.New(core)))

	result, err := p.Publish(context.Background(), stage)
	require.NoError(t, err)
	assert.True(t, result.Ok())

	want := []*metagraph.EndpointMissing{{
		StartLabel: metagraph.LabelTable,
		StartKey:   "hive://gold.core/users",
		EndLabel:   metagraph.LabelColumn,
		EndKey:     "hive://gold.core/users/gone",
		Type:       metagraph.RelColumn,
		Row:        2,
	}}
	if diff := cmp.Diff(want, result.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 2, result.Relationships)
	assert.Len(t, store.Edges(), 4)

	var skipped []Event

	for _, e := range rec.events {
		if e.Action == ActionSkipped {
			skipped = append(skipped, e)
		}
	}

	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Batch)
	require.ErrorIs(t, skipped[0].Error, metagraph.ErrEndpointMissing)

	assert.Equal(t, 1, logs.FilterMessage("relationship skipped").Len())
}

func TestPublish_MissingLimit(t *testing.T) {
	stage := tableStage(1)
	stage.Relationships[0].Relationships = append(stage.Relationships[0].Relationships,
		rel(metagraph.LabelTable, "hive://gold.core/users", metagraph.LabelColumn, "a", metagraph.RelColumn, metagraph.RelColumnOf),
		rel(metagraph.LabelTable, "hive://gold.core/users", metagraph.LabelColumn, "b", metagraph.RelColumn, metagraph.RelColumnOf),
	)

	p := newPublisher(t, publishertest.New(), testConfig(), WithMissingLimit(1))

	result, err := p.Publish(context.Background(), stage)
	require.ErrorIs(t, err, ErrTooManyMissing)
	assert.False(t, result.Ok())
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 2, result.SkippedCount())
}

func TestPublish_SchemaBootstrapError(t *testing.T) {
	store := publishertest.New()
	store.ConstraintErrs = map[string]error{metagraph.LabelTable: errTestStore}

	p := newPublisher(t, store, testConfig())

	result, err := p.Publish(context.Background(), tableStage(1))
	require.ErrorIs(t, err, metagraph.ErrSchemaBootstrap)
	require.ErrorIs(t, err, errTestStore)

	var bootErr *metagraph.SchemaBootstrapError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, metagraph.LabelTable, bootErr.Label)

	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, []string{"constraint:Column", "constraint:Table"}, store.Calls())
}

func TestPublish_BatchError(t *testing.T) {
	store := publishertest.New()
	store.FailBatch = func(name string, call int) error {
		// The table batch is call 0; fail the second column batch.
		if call == 2 {
			return errTestStore
		}

		return nil
	}

	cfg := testConfig()
	cfg.TransactionSize = 2

	p := newPublisher(t, store, cfg)

	result, err := p.Publish(context.Background(), tableStage(5))
	require.ErrorIs(t, err, metagraph.ErrBatchUpsert)
	require.ErrorIs(t, err, errTestStore)

	var batchErr *metagraph.BatchUpsertError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "nodes", batchErr.Phase)
	assert.Equal(t, metagraph.LabelColumn, batchErr.Group)
	assert.Equal(t, 1, batchErr.Batch)
	assert.Equal(t, 2, batchErr.Rows)

	// Committed batches stay; the failed one is rolled back and nothing
	// later runs.
	assert.Equal(t, 3, store.NodeCount())
	assert.Contains(t, store.Calls(), "rollback")
	assert.NotContains(t, store.Calls(), "relationships:"+metagraph.RelColumn)
	assert.Empty(t, store.Edges())

	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 2, result.NodeBatches)
	require.ErrorIs(t, result.Err, metagraph.ErrBatchUpsert)
}

func TestPublish_RelationshipBatchError(t *testing.T) {
	store := publishertest.New()
	store.FailBatch = func(name string, _ int) error {
		if name == "relationships:"+metagraph.RelColumn {
			return errTestStore
		}

		return nil
	}

	p := newPublisher(t, store, testConfig())

	_, err := p.Publish(context.Background(), tableStage(1))

	var batchErr *metagraph.BatchUpsertError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "relationships", batchErr.Phase)
	assert.Equal(t, "Table_Column_COLUMN", batchErr.Group)
	assert.Equal(t, 0, batchErr.Batch)
}

func TestPublish_HandlerErrorAborts(t *testing.T) {
	store := publishertest.New()
	rec := &recorder{failOn: func(e Event) error {
		if e.Action == ActionBatch {
			return errTestHandler
		}

		return nil
	}}

	p := newPublisher(t, store, testConfig(), WithHandler(rec))

	result, err := p.Publish(context.Background(), tableStage(1))
	require.ErrorIs(t, err, errTestHandler)
	assert.Equal(t, 1, result.NodeBatches)
	assert.Equal(t, ActionFailed, rec.events[len(rec.events)-1].Action)
}

func TestPublish_InvalidNames(t *testing.T) {
	store := publishertest.New()
	stage := &staged.Stage{Nodes: []*staged.NodeGroup{
		nodeGroup("nodes_0.csv", "Bad-Label", nil, node("Bad-Label", "k")),
	}}

	p := newPublisher(t, store, testConfig())

	result, err := p.Publish(context.Background(), stage)
	require.ErrorIs(t, err, metagraph.ErrInvalidName)
	assert.Nil(t, result)
	assert.Empty(t, store.Calls())
}

func TestPublish_MetadataCollision(t *testing.T) {
	store := publishertest.New()
	stage := &staged.Stage{Nodes: []*staged.NodeGroup{
		nodeGroup("nodes_0.csv", metagraph.LabelTable, []string{metagraph.PropPublishedTag},
			node(metagraph.LabelTable, "k", metagraph.PropPublishedTag, "mine")),
	}}

	p := newPublisher(t, store, testConfig())

	_, err := p.Publish(context.Background(), stage)
	require.ErrorIs(t, err, metagraph.ErrInvalidName)
	assert.Empty(t, store.Calls())
}

func TestPublish_EmptyStage(t *testing.T) {
	store := publishertest.New()
	p := newPublisher(t, store, testConfig())

	result, err := p.Publish(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Ok())
	assert.Empty(t, store.Calls())
}

func TestPublish_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPublisher(t, publishertest.New(), testConfig())

	_, err := p.Publish(ctx, tableStage(1))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, metagraph.ErrBatchUpsert)
}

func TestNew_Config(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*metagraph.PublisherConfig)
		field  string
	}{
		{
			name:   "negative transaction size",
			mutate: func(c *metagraph.PublisherConfig) { c.TransactionSize = -1 },
			field:  "transaction_size",
		},
		{
			name:   "missing publish tag",
			mutate: func(c *metagraph.PublisherConfig) { c.JobPublishTag = "  " },
			field:  "job_publish_tag",
		},
		{
			name:   "invalid create only label",
			mutate: func(c *metagraph.PublisherConfig) { c.CreateOnlyLabels = []string{"a b"} },
			field:  "create_only_labels",
		},
		{
			name: "reserved metadata field",
			mutate: func(c *metagraph.PublisherConfig) {
				c.AdditionalMetadata = map[string]string{metagraph.PropPublishedTag: "x"}
			},
			field: "additional_publisher_metadata_fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := New(publishertest.New(), cfg)
			require.ErrorIs(t, err, metagraph.ErrConfiguration)

			var cfgErr *metagraph.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("nil store", func(t *testing.T) {
		_, err := New(nil, testConfig())
		require.ErrorIs(t, err, ErrNoStore)
	})
}

func TestMissingLimitHandler(t *testing.T) {
	h := NewMissingLimitHandler(0)
	result := NewResult()

	for range 3 {
		result.Add(Event{Action: ActionSkipped, Missing: &metagraph.EndpointMissing{}})
		require.NoError(t, h.Event(context.Background(), Event{Action: ActionSkipped}, result))
	}

	h = NewMissingLimitHandler(3)
	require.NoError(t, h.Event(context.Background(), Event{Action: ActionSkipped}, result))

	result.Add(Event{Action: ActionSkipped, Missing: &metagraph.EndpointMissing{}})

	err := h.Event(context.Background(), Event{Action: ActionSkipped}, result)
	require.True(t, errors.Is(err, ErrTooManyMissing))
}
