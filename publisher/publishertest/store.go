// Package publishertest provides an in-memory metagraph.Store for tests.
//
// The store follows the upsert semantics of the Neo4j statements: nodes are
// merged by label and key, relationships only when both endpoints exist, and
// a transaction's writes become visible on Commit.
package publishertest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rlch/metagraph"
)

// Props is a stored property map.
type Props = map[string]any

// EdgeKey identifies a directed edge.
type EdgeKey struct {
	StartLabel string
	StartKey   string
	Type       string
	EndLabel   string
	EndKey     string
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("(%s %s)-[%s]->(%s %s)", k.StartLabel, k.StartKey, k.Type, k.EndLabel, k.EndKey)
}

type graph struct {
	nodes map[string]map[string]Props
	edges map[EdgeKey]Props
}

func newGraph() *graph {
	return &graph{
		nodes: make(map[string]map[string]Props),
		edges: make(map[EdgeKey]Props),
	}
}

func (g *graph) clone() *graph {
	c := newGraph()
	for label, nodes := range g.nodes {
		c.nodes[label] = make(map[string]Props, len(nodes))
		for key, props := range nodes {
			c.nodes[label][key] = maps.Clone(props)
		}
	}

	for key, props := range g.edges {
		c.edges[key] = maps.Clone(props)
	}

	return c
}

func (g *graph) node(label, key string) (Props, bool) {
	props, ok := g.nodes[label][key]

	return props, ok
}

// Store is an in-memory property graph.
type Store struct {
	mu          sync.Mutex
	graph       *graph
	constraints map[string]bool
	calls       []string

	// ConstraintErrs makes EnsureUniqueKey fail for the given labels.
	ConstraintErrs map[string]error

	// FailBatch, when set, is consulted before every merge with the merge
	// name ("nodes:<label>" or "relationships:<type>") and the number of
	// merge calls made so far. A non-nil error fails the merge.
	FailBatch func(name string, call int) error

	merges int
}

var _ metagraph.StaleStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		graph:       newGraph(),
		constraints: make(map[string]bool),
	}
}

// Name implements metagraph.Store.
func (s *Store) Name() string {
	return "memory"
}

// EnsureUniqueKey implements metagraph.Store.
func (s *Store) EnsureUniqueKey(_ context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "constraint:"+label)

	if err := s.ConstraintErrs[label]; err != nil {
		return err
	}

	if s.constraints[label] {
		return metagraph.ErrConstraintExists
	}

	s.constraints[label] = true

	return nil
}

// Begin implements metagraph.Store.
func (s *Store) Begin(_ context.Context) (metagraph.StoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "begin")

	return &tx{store: s, graph: s.graph.clone()}, nil
}

// Close implements metagraph.Store.
func (s *Store) Close() error {
	return nil
}

// Calls returns the operations made so far, in order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

// Constraints returns the labels with a key constraint, sorted.
func (s *Store) Constraints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.constraints))
}

// Node returns the properties of a committed node.
func (s *Store) Node(label, key string) (Props, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.graph.node(label, key)

	return maps.Clone(props), ok
}

// PutNode stores a node directly, bypassing the publisher.
func (s *Store) PutNode(label, key string, props Props) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph.nodes[label] == nil {
		s.graph.nodes[label] = make(map[string]Props)
	}

	s.graph.nodes[label][key] = maps.Clone(props)
}

// Edge returns the properties of a committed edge.
func (s *Store) Edge(key EdgeKey) (Props, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.graph.edges[key]

	return maps.Clone(props), ok
}

// Edges returns all committed edge keys in string order.
func (s *Store) Edges() []EdgeKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := slices.Collect(maps.Keys(s.graph.edges))
	slices.SortFunc(keys, func(a, b EdgeKey) int {
		return strings.Compare(a.String(), b.String())
	})

	return keys
}

// NodeCount returns the number of committed nodes across all labels.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, nodes := range s.graph.nodes {
		n += len(nodes)
	}

	return n
}

// CountNodes implements metagraph.StaleStore.
func (s *Store) CountNodes(_ context.Context, label string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.graph.nodes[label])), nil
}

// CountStale implements metagraph.StaleStore.
func (s *Store) CountStale(_ context.Context, label, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.stale(label, tag))), nil
}

// DeleteStale implements metagraph.StaleStore.
func (s *Store) DeleteStale(_ context.Context, label, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "delete:"+label)

	stale := s.stale(label, tag)
	for _, key := range stale {
		delete(s.graph.nodes[label], key)

		for edge := range s.graph.edges {
			if (edge.StartLabel == label && edge.StartKey == key) || (edge.EndLabel == label && edge.EndKey == key) {
				delete(s.graph.edges, edge)
			}
		}
	}

	return int64(len(stale)), nil
}

func (s *Store) stale(label, tag string) []string {
	var keys []string

	for key, props := range s.graph.nodes[label] {
		published, ok := props[metagraph.PropPublishedTag]
		if ok && published != nil && published != tag {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	return keys
}

func (s *Store) beforeMerge(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.merges
	s.merges++

	s.calls = append(s.calls, name)

	if s.FailBatch == nil {
		return nil
	}

	return s.FailBatch(name, call)
}

type tx struct {
	store *Store
	graph *graph
	done  bool
}

func (t *tx) MergeNodes(_ context.Context, batch *metagraph.NodeBatch) error {
	if err := t.store.beforeMerge("nodes:" + batch.Template.Label); err != nil {
		return err
	}

	tmpl := batch.Template
	names := slices.Concat(tmpl.Properties, tmpl.Metadata)

	nodes := t.graph.nodes[tmpl.Label]
	if nodes == nil {
		nodes = make(map[string]Props)
		t.graph.nodes[tmpl.Label] = nodes
	}

	for _, row := range batch.Rows {
		key, ok := row[metagraph.RowKey].(string)
		if !ok {
			return fmt.Errorf("publishertest: row without key: %v", row)
		}

		existing, ok := nodes[key]
		if !ok {
			created := Props{metagraph.PropKey: key}
			assign(created, row, names, true)
			nodes[key] = created

			continue
		}

		if tmpl.CreateOnly {
			continue
		}

		if tmpl.PreserveAdhoc && existing[metagraph.PropPublishedTag] == nil {
			continue
		}

		assign(existing, row, names, tmpl.PreserveEmpty)
	}

	return nil
}

func (t *tx) MergeRelationships(_ context.Context, batch *metagraph.RelationshipBatch) ([]int, error) {
	tmpl := batch.Template
	if err := t.store.beforeMerge("relationships:" + tmpl.Type); err != nil {
		return nil, err
	}

	names := slices.Concat(tmpl.Properties, tmpl.Metadata)

	var matched []int

	for _, row := range batch.Rows {
		start, _ := row[metagraph.RowStartKey].(string)
		end, _ := row[metagraph.RowEndKey].(string)

		_, startOK := t.graph.node(tmpl.StartLabel, start)
		_, endOK := t.graph.node(tmpl.EndLabel, end)

		if !startOK || !endOK {
			continue
		}

		t.mergeEdge(EdgeKey{tmpl.StartLabel, start, tmpl.Type, tmpl.EndLabel, end}, row, names, tmpl.PreserveEmpty)

		if tmpl.Reverse {
			t.mergeEdge(EdgeKey{tmpl.EndLabel, end, tmpl.ReverseType, tmpl.StartLabel, start}, row, names, tmpl.PreserveEmpty)
		}

		idx, ok := row[metagraph.RowIndex].(int)
		if !ok {
			return nil, fmt.Errorf("publishertest: row without index: %v", row)
		}

		matched = append(matched, idx)
	}

	return matched, nil
}

func (t *tx) mergeEdge(key EdgeKey, row map[string]any, names []string, preserveEmpty bool) {
	existing, ok := t.graph.edges[key]
	if !ok {
		created := Props{}
		assign(created, row, names, true)
		t.graph.edges[key] = created

		return
	}

	assign(existing, row, names, preserveEmpty)
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("publishertest: transaction already closed")
	}

	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.graph = t.graph
	t.store.calls = append(t.store.calls, "commit")

	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.calls = append(t.store.calls, "rollback")

	return nil
}

// assign applies row values to props. A nil value removes the property when
// removeOnNull is set and leaves the stored value otherwise.
func assign(props Props, row map[string]any, names []string, removeOnNull bool) {
	for _, name := range names {
		v := row[name]
		if v == nil {
			if removeOnNull {
				delete(props, name)
			}

			continue
		}

		props[name] = v
	}
}
