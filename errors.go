package metagraph

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConfigNotFound is returned when no .metagraph.yaml is found.
	ErrConfigNotFound = errors.New("metagraph: no .metagraph.yaml found")

	// ErrConfiguration is returned when a required setting is missing or
	// invalid. It is raised before any I/O happens.
	ErrConfiguration = errors.New("metagraph: invalid configuration")

	// ErrUnknownStore is returned when an unregistered store is requested.
	ErrUnknownStore = errors.New("metagraph: unknown store")

	// ErrInvalidName is returned for labels, types or property names that
	// cannot be placed into a statement.
	ErrInvalidName = errors.New("metagraph: invalid name")

	// ErrSchemaBootstrap is returned when a uniqueness constraint could not be
	// ensured.
	ErrSchemaBootstrap = errors.New("metagraph: schema bootstrap failed")

	// ErrBatchUpsert is returned when a node or relationship batch failed.
	ErrBatchUpsert = errors.New("metagraph: batch upsert failed")

	// ErrEndpointMissing marks a relationship row whose endpoint node does not
	// exist. It is recorded, never fatal.
	ErrEndpointMissing = errors.New("metagraph: relationship endpoint missing")

	// ErrConstraintExists is returned by stores when the constraint being
	// created is already present.
	ErrConstraintExists = errors.New("metagraph: constraint already exists")
)

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("metagraph: invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// SchemaBootstrapError reports a failed constraint creation for a label.
type SchemaBootstrapError struct {
	Label string
	Err   error
}

func (e *SchemaBootstrapError) Error() string {
	return fmt.Sprintf("metagraph: ensuring key constraint on %s: %v", e.Label, e.Err)
}

func (e *SchemaBootstrapError) Unwrap() []error {
	return []error{ErrSchemaBootstrap, e.Err}
}

// BatchUpsertError reports a failed batch with enough context to locate it
// in the staged input.
type BatchUpsertError struct {
	Phase string // "nodes" or "relationships"
	Group string // label, or relationship group tuple
	Batch int    // zero-based batch index within the group
	Rows  int
	Err   error
}

func (e *BatchUpsertError) Error() string {
	return fmt.Sprintf("metagraph: %s batch %d of %s (%d rows): %v", e.Phase, e.Batch, e.Group, e.Rows, e.Err)
}

func (e *BatchUpsertError) Unwrap() []error {
	return []error{ErrBatchUpsert, e.Err}
}

// EndpointMissing describes a relationship row that was skipped because one
// of its endpoints could not be matched.
type EndpointMissing struct {
	StartLabel string
	StartKey   string
	EndLabel   string
	EndKey     string
	Type       string
	Row        int // row index within the staged group
}

func (e *EndpointMissing) Error() string {
	return fmt.Sprintf("metagraph: %s row %d: no match for (%s {key: %q}) or (%s {key: %q})",
		e.Type, e.Row, e.StartLabel, e.StartKey, e.EndLabel, e.EndKey)
}

func (e *EndpointMissing) Unwrap() error {
	return ErrEndpointMissing
}
