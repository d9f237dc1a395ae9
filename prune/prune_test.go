package prune

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/publisher/publishertest"
)

// seed stores n nodes of label, the first stale of them tagged "old" and the
// rest tagged "new".
func seed(store *publishertest.Store, label string, n, stale int) {
	for i := range n {
		tag := "new"
		if i < stale {
			tag = "old"
		}

		store.PutNode(label, fmt.Sprintf("%s/%d", label, i), publishertest.Props{
			metagraph.PropPublishedTag: tag,
		})
	}
}

func TestPrune(t *testing.T) {
	store := publishertest.New()
	seed(store, "Table", 20, 1)
	seed(store, "Column", 100, 5)
	store.PutNode("Column", "adhoc", publishertest.Props{"name": "never published"})

	p, err := New(store, metagraph.PruneConfig{Labels: []string{"Table", "Column"}, MaxStalePct: 5})
	require.NoError(t, err)

	got, err := p.Prune(context.Background(), "new")
	require.NoError(t, err)

	want := []LabelResult{
		{Label: "Table", Total: 20, Stale: 1, Deleted: 1},
		{Label: "Column", Total: 101, Stale: 5, Deleted: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Prune() mismatch (-want +got):\n%s", diff)
	}

	_, ok := store.Node("Column", "adhoc")
	assert.True(t, ok, "untagged nodes are kept")

	n, _ := store.CountNodes(context.Background(), "Column")
	assert.Equal(t, int64(96), n)
}

func TestPrune_ThresholdRefusesAllLabels(t *testing.T) {
	store := publishertest.New()
	seed(store, "Table", 10, 1)
	seed(store, "Column", 10, 5)

	p, err := New(store, metagraph.PruneConfig{Labels: []string{"Table", "Column"}, MaxStalePct: 10})
	require.NoError(t, err)

	got, err := p.Prune(context.Background(), "new")
	require.ErrorIs(t, err, ErrTooManyStale)
	assert.Len(t, got, 2)

	// Nothing is deleted, not even from the label under the threshold.
	for _, label := range []string{"Table", "Column"} {
		n, _ := store.CountNodes(context.Background(), label)
		assert.Equal(t, int64(10), n, label)
	}

	assert.NotContains(t, store.Calls(), "delete:Table")
}

func TestPrune_DryRun(t *testing.T) {
	store := publishertest.New()
	seed(store, "Table", 10, 1)

	p, err := New(store, metagraph.PruneConfig{Labels: []string{"Table"}, MaxStalePct: 50}, WithDryRun(true))
	require.NoError(t, err)

	got, err := p.Prune(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, []LabelResult{{Label: "Table", Total: 10, Stale: 1}}, got)

	n, _ := store.CountNodes(context.Background(), "Table")
	assert.Equal(t, int64(10), n)
}

func TestPrune_EmptyLabel(t *testing.T) {
	p, err := New(publishertest.New(), metagraph.PruneConfig{Labels: []string{"Table"}})
	require.NoError(t, err)

	got, err := p.Prune(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, []LabelResult{{Label: "Table"}}, got)
}

func TestPrune_RequiresTag(t *testing.T) {
	p, err := New(publishertest.New(), metagraph.PruneConfig{Labels: []string{"Table"}})
	require.NoError(t, err)

	_, err = p.Prune(context.Background(), " ")
	require.ErrorIs(t, err, metagraph.ErrConfiguration)
}

func TestNew_Config(t *testing.T) {
	tests := []struct {
		name string
		cfg  metagraph.PruneConfig
	}{
		{name: "no labels", cfg: metagraph.PruneConfig{MaxStalePct: 5}},
		{name: "invalid label", cfg: metagraph.PruneConfig{Labels: []string{"a-b"}, MaxStalePct: 5}},
		{name: "negative pct", cfg: metagraph.PruneConfig{Labels: []string{"Table"}, MaxStalePct: -1}},
		{name: "pct above 100", cfg: metagraph.PruneConfig{Labels: []string{"Table"}, MaxStalePct: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(publishertest.New(), tt.cfg)
			require.ErrorIs(t, err, metagraph.ErrConfiguration)
		})
	}
}

func TestLabelResult_Pct(t *testing.T) {
	assert.InDelta(t, 0.0, LabelResult{}.Pct(), 0)
	assert.InDelta(t, 25.0, LabelResult{Total: 4, Stale: 1}.Pct(), 1e-9)
}
