// Package publisher applies staged node and relationship rows to a property
// graph store.
//
// A publish job runs four phases in order, on the calling goroutine:
//
//	bootstrap      ensure a key uniqueness constraint per node label
//	nodes          upsert node groups in batches of transaction_size
//	relationships  upsert relationship groups, skipping rows whose endpoints
//	               are missing
//	done | failed
//
// Every batch is its own transaction. The first constraint or batch error
// aborts the job; batches committed before it stay in place, and because all
// upserts are keyed, re-running the job is safe.
package publisher

import (
	"time"

	"github.com/rlch/metagraph"
)

// Phase is a stage of a publish job.
type Phase string

// Job phases.
const (
	PhaseBootstrap     Phase = "bootstrap"
	PhaseNodes         Phase = "nodes"
	PhaseRelationships Phase = "relationships"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// Action represents the type of publish event.
type Action string

// Action constants for publish events.
const (
	ActionPhase      Action = "phase"
	ActionConstraint Action = "constraint"
	ActionBatch      Action = "batch"
	ActionSkipped    Action = "skipped"
	ActionFailed     Action = "failed"
	ActionDone       Action = "done"
)

// IsTerminal returns true if this action ends the job.
func (a Action) IsTerminal() bool {
	return a == ActionDone || a == ActionFailed
}

// Event is a single event emitted while publishing.
type Event struct {
	Time   time.Time
	Action Action
	Phase  Phase

	// Group is the staged group name; Label is set for constraint events.
	Group string
	Label string

	// Batch is the zero-based batch index within Group.
	Batch int

	// Rows is the number of rows in the batch, or for phase events the
	// number of rows the phase will process.
	Rows int

	// Merged is the number of rows applied; Edges the number of edges they
	// materialized.
	Merged int
	Edges  int

	Elapsed time.Duration
	Error   error

	// Missing describes the skipped row of an ActionSkipped event.
	Missing *metagraph.EndpointMissing
}
