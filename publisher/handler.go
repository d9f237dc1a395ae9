package publisher

import (
	"context"
	"fmt"
)

// Handler receives publish events as they occur.
type Handler interface {
	// Event is called for each publish event. Returning an error aborts the
	// job.
	Event(ctx context.Context, event Event, result *Result) error

	// Err is called for messages that are not tied to an event.
	Err(text string) error
}

// MultiHandler fans out events to multiple handlers.
type MultiHandler struct {
	handlers []Handler
}

// NewMultiHandler creates a handler that dispatches to multiple handlers.
func NewMultiHandler(handlers ...Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Event dispatches to all handlers, stopping on first error.
func (m *MultiHandler) Event(ctx context.Context, event Event, result *Result) error {
	for _, h := range m.handlers {
		if err := h.Event(ctx, event, result); err != nil {
			return err
		}
	}

	return nil
}

// Err dispatches to all handlers.
func (m *MultiHandler) Err(text string) error {
	for _, h := range m.handlers {
		if err := h.Err(text); err != nil {
			return err
		}
	}

	return nil
}

// ResultHandler updates the Result accumulator from events.
type ResultHandler struct{}

// NewResultHandler creates a handler that accumulates results.
func NewResultHandler() *ResultHandler {
	return &ResultHandler{}
}

// Event updates the result accumulator.
func (h *ResultHandler) Event(_ context.Context, event Event, result *Result) error {
	result.Add(event)

	return nil
}

// Err is a no-op for ResultHandler.
func (h *ResultHandler) Err(_ string) error {
	return nil
}

// MissingLimitHandler aborts a job once more than max relationship rows were
// skipped for a missing endpoint. It must run after the ResultHandler.
type MissingLimitHandler struct {
	max int
}

// NewMissingLimitHandler creates a handler that tolerates up to max skipped
// rows. A non-positive max disables the limit.
func NewMissingLimitHandler(max int) *MissingLimitHandler {
	return &MissingLimitHandler{max: max}
}

// Event checks the skipped row count.
func (h *MissingLimitHandler) Event(_ context.Context, event Event, result *Result) error {
	if h.max <= 0 || event.Action != ActionSkipped {
		return nil
	}

	if n := result.SkippedCount(); n > h.max {
		return fmt.Errorf("%w: %d > %d", ErrTooManyMissing, n, h.max)
	}

	return nil
}

// Err is a no-op.
func (h *MissingLimitHandler) Err(_ string) error {
	return nil
}
