package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Formatter renders publish events and results.
type Formatter interface {
	Format(event Event, result *Result) error
	Summary(result *Result) error
}

// FormatHandler is a Handler that delegates to a Formatter.
type FormatHandler struct {
	formatter Formatter
	stderr    io.Writer
}

// NewFormatHandler creates a handler that formats events.
func NewFormatHandler(f Formatter, stderr io.Writer) *FormatHandler {
	return &FormatHandler{formatter: f, stderr: stderr}
}

// Event formats the event.
func (h *FormatHandler) Event(_ context.Context, event Event, result *Result) error {
	return h.formatter.Format(event, result)
}

// Err writes to stderr.
func (h *FormatHandler) Err(text string) error {
	_, err := h.stderr.Write([]byte(text + "\n"))

	return err
}

// Summary renders the final summary.
func (h *FormatHandler) Summary(result *Result) error {
	return h.formatter.Summary(result)
}

func status(result *Result) string {
	if result.Ok() {
		return "DONE"
	}

	return "FAILED"
}

// -----------------------------------------------------------------------------
// Dots Formatter
// -----------------------------------------------------------------------------

// DotsFormatter prints one character per committed batch.
type DotsFormatter struct {
	w     io.Writer
	count int
}

// NewDotsFormatter creates a dots formatter.
func NewDotsFormatter(w io.Writer) *DotsFormatter {
	return &DotsFormatter{w: w}
}

const lineWidth = 80

// Format prints a single character per batch, skipped row or failure.
func (d *DotsFormatter) Format(event Event, _ *Result) error {
	var char string

	switch event.Action {
	case ActionBatch:
		char = "."
	case ActionSkipped:
		char = "s"
	case ActionFailed:
		char = "F"
	case ActionPhase, ActionConstraint, ActionDone:
		return nil
	}

	_, err := fmt.Fprint(d.w, char)
	d.count++

	if d.count%lineWidth == 0 {
		_, _ = fmt.Fprintln(d.w)
	}

	return err
}

// Summary prints the final results.
func (d *DotsFormatter) Summary(result *Result) error {
	if d.count > 0 && d.count%lineWidth != 0 {
		_, _ = fmt.Fprintln(d.w)
	}

	_, _ = fmt.Fprintln(d.w)

	for _, missing := range result.Skipped {
		_, _ = fmt.Fprintf(d.w, "SKIP %s row %d: (%s %s) -> (%s %s)\n",
			missing.Type, missing.Row, missing.StartLabel, missing.StartKey, missing.EndLabel, missing.EndKey)
	}

	if result.Err != nil {
		_, _ = fmt.Fprintf(d.w, "ERROR %v\n", result.Err)
	}

	if len(result.Skipped) > 0 || result.Err != nil {
		_, _ = fmt.Fprintln(d.w)
	}

	_, _ = fmt.Fprintf(d.w, "%s %d constraints, %d nodes, %d relationships (%d edges), %d skipped in %s\n",
		status(result),
		result.Constraints,
		result.Nodes,
		result.Relationships,
		result.Edges,
		len(result.Skipped),
		result.Elapsed().Round(time.Millisecond),
	)

	return nil
}

// -----------------------------------------------------------------------------
// Verbose Formatter
// -----------------------------------------------------------------------------

// VerboseFormatter prints every event on its own line.
type VerboseFormatter struct {
	w io.Writer
}

// NewVerboseFormatter creates a verbose formatter.
func NewVerboseFormatter(w io.Writer) *VerboseFormatter {
	return &VerboseFormatter{w: w}
}

// Format prints each event as it occurs.
func (v *VerboseFormatter) Format(event Event, _ *Result) error {
	switch event.Action {
	case ActionPhase:
		_, _ = fmt.Fprintf(v.w, "=== PHASE %s (%d)\n", event.Phase, event.Rows)
	case ActionConstraint:
		_, _ = fmt.Fprintf(v.w, "--- CONSTRAINT: %s (%s)\n", event.Label, event.Elapsed)
	case ActionBatch:
		_, _ = fmt.Fprintf(v.w, "--- BATCH: %s #%d %d/%d rows (%s)\n",
			event.Group, event.Batch, event.Merged, event.Rows, event.Elapsed)
	case ActionSkipped:
		_, _ = fmt.Fprintf(v.w, "--- SKIP: %s #%d\n", event.Group, event.Batch)
		_, _ = fmt.Fprintf(v.w, "    %v\n", event.Error)
	case ActionFailed:
		_, _ = fmt.Fprintf(v.w, "--- FAILED\n")
		_, _ = fmt.Fprintf(v.w, "    %v\n", event.Error)
	case ActionDone:
		_, _ = fmt.Fprintf(v.w, "=== DONE\n")
	}

	return nil
}

// Summary prints the final results.
func (v *VerboseFormatter) Summary(result *Result) error {
	_, _ = fmt.Fprintln(v.w)
	_, _ = fmt.Fprintf(v.w, "%s\n", status(result))
	_, _ = fmt.Fprintf(v.w, "  %d constraints, %d node batches, %d nodes\n",
		result.Constraints,
		result.NodeBatches,
		result.Nodes,
	)
	_, _ = fmt.Fprintf(v.w, "  %d relationship batches, %d relationships, %d edges, %d skipped\n",
		result.RelationshipBatches,
		result.Relationships,
		result.Edges,
		len(result.Skipped),
	)
	_, _ = fmt.Fprintf(v.w, "  elapsed: %s\n", result.Elapsed().Round(time.Millisecond))

	return nil
}

// -----------------------------------------------------------------------------
// JSON Formatter
// -----------------------------------------------------------------------------

// JSONFormatter outputs newline-delimited JSON events.
type JSONFormatter struct {
	enc *json.Encoder
}

// NewJSONFormatter creates a JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{enc: json.NewEncoder(w)}
}

type jsonEvent struct {
	Time    string  `json:"time"`
	Action  string  `json:"action"`
	Phase   string  `json:"phase"`
	Group   string  `json:"group,omitempty"`
	Label   string  `json:"label,omitempty"`
	Batch   *int    `json:"batch,omitempty"`
	Rows    int     `json:"rows,omitempty"`
	Merged  int     `json:"merged,omitempty"`
	Edges   int     `json:"edges,omitempty"`
	Elapsed float64 `json:"elapsed,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Format outputs a JSON event.
func (j *JSONFormatter) Format(event Event, _ *Result) error {
	je := jsonEvent{
		Time:   event.Time.Format(time.RFC3339Nano),
		Action: string(event.Action),
		Phase:  string(event.Phase),
		Group:  event.Group,
		Label:  event.Label,
		Rows:   event.Rows,
	}

	switch event.Action {
	case ActionBatch:
		batch := event.Batch
		je.Batch = &batch
		je.Merged = event.Merged
		je.Edges = event.Edges
		je.Elapsed = event.Elapsed.Seconds()
	case ActionSkipped:
		batch := event.Batch
		je.Batch = &batch
	case ActionConstraint:
		je.Elapsed = event.Elapsed.Seconds()
	case ActionPhase, ActionFailed, ActionDone:
	}

	if event.Error != nil {
		je.Error = event.Error.Error()
	}

	return j.enc.Encode(je)
}

type jsonSummary struct {
	Action        string  `json:"action"`
	Constraints   int     `json:"constraints"`
	Nodes         int     `json:"nodes"`
	Relationships int     `json:"relationships"`
	Edges         int     `json:"edges"`
	Skipped       int     `json:"skipped"`
	Error         string  `json:"error,omitempty"`
	Elapsed       float64 `json:"elapsed"`
	Ok            bool    `json:"ok"`
}

// Summary outputs the final JSON summary.
func (j *JSONFormatter) Summary(result *Result) error {
	s := jsonSummary{
		Action:        "summary",
		Constraints:   result.Constraints,
		Nodes:         result.Nodes,
		Relationships: result.Relationships,
		Edges:         result.Edges,
		Skipped:       len(result.Skipped),
		Elapsed:       result.Elapsed().Seconds(),
		Ok:            result.Ok(),
	}

	if result.Err != nil {
		s.Error = result.Err.Error()
	}

	return j.enc.Encode(s)
}

// NewFormatter creates a formatter by name: "verbose", "json" or "dots".
func NewFormatter(name string, w io.Writer) Formatter {
	switch name {
	case "verbose":
		return NewVerboseFormatter(w)
	case "json":
		return NewJSONFormatter(w)
	default:
		return NewDotsFormatter(w)
	}
}
