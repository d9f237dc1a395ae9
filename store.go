package metagraph

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Row parameter names reserved by the upsert templates.
const (
	RowKey      = "key"
	RowIndex    = "idx"
	RowStartKey = "start_key"
	RowEndKey   = "end_key"
)

// Store is a property-graph store the publisher writes into.
type Store interface {
	// Name returns the store identifier (e.g., "neo4j").
	Name() string

	// EnsureUniqueKey creates a uniqueness constraint on the key property of
	// label. Stores return nil or ErrConstraintExists when it is already
	// present.
	EnsureUniqueKey(ctx context.Context, label string) error

	// Begin starts a write transaction. Each publisher batch runs in its own
	// transaction.
	Begin(ctx context.Context) (StoreTx, error)

	// Close releases the store connection.
	Close() error
}

// StoreTx is an open write transaction.
type StoreTx interface {
	// MergeNodes upserts every row of the batch by label and key.
	MergeNodes(ctx context.Context, batch *NodeBatch) error

	// MergeRelationships upserts the edges of every row whose endpoints both
	// exist and returns the RowIndex values of those rows.
	MergeRelationships(ctx context.Context, batch *RelationshipBatch) ([]int, error)

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction.
	Rollback(ctx context.Context) error
}

// StaleStore is an optional interface for stores that can remove data left
// behind by earlier publish runs.
type StaleStore interface {
	Store

	// CountNodes returns the number of nodes carrying label.
	CountNodes(ctx context.Context, label string) (int64, error)

	// CountStale returns the number of label nodes whose published tag is
	// set and differs from tag.
	CountStale(ctx context.Context, label, tag string) (int64, error)

	// DeleteStale detaches and deletes those nodes and returns the count.
	DeleteStale(ctx context.Context, label, tag string) (int64, error)
}

// NodeTemplate is the compiled upsert plan shared by every batch of a staged
// node group.
type NodeTemplate struct {
	Label string

	// Properties are the staged property columns, in header order.
	Properties []string

	// Metadata are the publisher-stamped properties.
	Metadata []string

	// CreateOnly leaves existing nodes untouched.
	CreateOnly bool

	// PreserveAdhoc leaves existing nodes untouched when they carry no
	// PropPublishedTag.
	PreserveAdhoc bool

	// PreserveEmpty stores empty strings as-is. When false, empty values are
	// sent as null and never overwrite a stored value.
	PreserveEmpty bool
}

// Validate checks every name that will be interpolated into a statement.
func (t *NodeTemplate) Validate() error {
	if err := ValidateName(t.Label); err != nil {
		return err
	}

	return validateProperties(slices.Concat(t.Properties, t.Metadata), RowKey)
}

// Signature identifies templates that compile to the same statement.
func (t *NodeTemplate) Signature() string {
	return fmt.Sprintf("node:%s|%s|%s|%t|%t|%t", t.Label,
		strings.Join(t.Properties, ","), strings.Join(t.Metadata, ","),
		t.CreateOnly, t.PreserveAdhoc, t.PreserveEmpty)
}

// NodeBatch is one transaction's worth of node rows. Each row holds RowKey
// plus one entry per template property.
type NodeBatch struct {
	Template *NodeTemplate
	Rows     []map[string]any
}

// RelationshipTemplate is the compiled upsert plan shared by every batch of
// a staged relationship group.
type RelationshipTemplate struct {
	StartLabel  string
	EndLabel    string
	Type        string
	ReverseType string

	Properties []string
	Metadata   []string

	// Reverse materializes the ReverseType edge alongside the forward one.
	Reverse bool

	// PreserveEmpty behaves as in NodeTemplate.
	PreserveEmpty bool
}

// Validate checks every name that will be interpolated into a statement.
func (t *RelationshipTemplate) Validate() error {
	names := []string{t.StartLabel, t.EndLabel, t.Type}
	if t.Reverse {
		names = append(names, t.ReverseType)
	}

	for _, name := range names {
		if err := ValidateName(name); err != nil {
			return err
		}
	}

	return validateProperties(slices.Concat(t.Properties, t.Metadata), RowIndex, RowStartKey, RowEndKey)
}

// Signature identifies templates that compile to the same statement.
func (t *RelationshipTemplate) Signature() string {
	return fmt.Sprintf("rel:%s|%s|%s|%s|%s|%s|%t|%t", t.StartLabel, t.EndLabel, t.Type, t.ReverseType,
		strings.Join(t.Properties, ","), strings.Join(t.Metadata, ","), t.Reverse, t.PreserveEmpty)
}

// RelationshipBatch is one transaction's worth of relationship rows. Each row
// holds RowIndex, RowStartKey, RowEndKey and one entry per template property.
type RelationshipBatch struct {
	Template *RelationshipTemplate
	Rows     []map[string]any
}

func validateProperties(props []string, reserved ...string) error {
	seen := make(map[string]struct{}, len(props))

	for _, name := range props {
		if err := ValidateName(name); err != nil {
			return err
		}

		if slices.Contains(reserved, name) {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate property %q", ErrInvalidName, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// StoreFactory creates a Store from its configuration.
type StoreFactory func(cfg any) (Store, error)

var stores = make(map[string]StoreFactory)

// RegisterStore registers a store factory by name.
func RegisterStore(name string, factory StoreFactory) {
	stores[name] = factory
}

// NewStore creates a store instance by name.
func NewStore(name string, cfg any) (Store, error) {
	factory, ok := stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}

	return factory(cfg)
}

// RegisteredStores returns the names of all registered stores.
func RegisteredStores() []string {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
