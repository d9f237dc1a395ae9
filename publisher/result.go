package publisher

import (
	"sync"
	"time"

	"github.com/rlch/metagraph"
)

// Result accumulates the outcome of a publish job.
type Result struct {
	mu sync.RWMutex

	StartTime time.Time
	EndTime   time.Time

	// Phase is the last phase entered; PhaseDone or PhaseFailed once the
	// job has ended.
	Phase Phase

	Constraints int

	NodeBatches int
	Nodes       int

	RelationshipBatches int
	Relationships       int
	Edges               int

	// Skipped lists relationship rows dropped for a missing endpoint, in
	// the order they were found.
	Skipped []*metagraph.EndpointMissing

	Err error
}

// NewResult creates an initialized Result.
func NewResult() *Result {
	return &Result{StartTime: time.Now()}
}

// Add records an event in the result.
func (r *Result) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Action {
	case ActionPhase:
		r.Phase = event.Phase
	case ActionConstraint:
		r.Constraints++
	case ActionBatch:
		switch event.Phase {
		case PhaseNodes:
			r.NodeBatches++
			r.Nodes += event.Merged
		case PhaseRelationships:
			r.RelationshipBatches++
			r.Relationships += event.Merged
			r.Edges += event.Edges
		case PhaseBootstrap, PhaseDone, PhaseFailed:
			// No batches
		}
	case ActionSkipped:
		if event.Missing != nil {
			r.Skipped = append(r.Skipped, event.Missing)
		}
	case ActionFailed:
		r.Phase = PhaseFailed
		r.Err = event.Error
	case ActionDone:
		r.Phase = PhaseDone
	}
}

// Finish marks the result as complete.
func (r *Result) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EndTime = time.Now()
}

// Elapsed returns the total job time.
func (r *Result) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}

	return r.EndTime.Sub(r.StartTime)
}

// Ok returns true if the job completed.
func (r *Result) Ok() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Phase == PhaseDone && r.Err == nil
}

// SkippedCount returns the number of skipped relationship rows.
func (r *Result) SkippedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Skipped)
}
