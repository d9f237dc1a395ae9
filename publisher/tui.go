package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/rlch/metagraph/staged"
)

// TUIFormatter implements Formatter with an animated terminal UI.
type TUIFormatter struct {
	w       io.Writer
	program *tea.Program
	model   *tuiModel

	mu       sync.Mutex
	started  bool
	finished bool
	done     chan struct{}
}

// NewTUIFormatter creates a TUI formatter showing the groups of stage.
func NewTUIFormatter(w io.Writer, stage *staged.Stage) *TUIFormatter {
	model := newTUIModel(BuildStageTree(stage))

	opts := []tea.ProgramOption{
		tea.WithOutput(w),
		tea.WithoutSignalHandler(),
		tea.WithAltScreen(),
	}

	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		opts = append(opts, tea.WithInput(nil))
	}

	return &TUIFormatter{
		w:       w,
		program: tea.NewProgram(model, opts...),
		model:   model,
		done:    make(chan struct{}),
	}
}

// Start begins the TUI event loop. Call this before publishing.
func (t *TUIFormatter) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	t.started = true

	go func() {
		defer close(t.done)

		_, _ = t.program.Run()
	}()

	return nil
}

// Format sends an event to the TUI.
func (t *TUIFormatter) Format(event Event, _ *Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.finished {
		return nil
	}

	t.program.Send(eventMsg(event))

	return nil
}

// Summary stops the TUI and prints the final tree.
func (t *TUIFormatter) Summary(result *Result) error {
	t.mu.Lock()
	started := t.started
	t.finished = true
	t.mu.Unlock()

	if started {
		// Messages are handled in order, so the model has the result
		// before it sees the quit.
		t.program.Send(doneMsg{result: result})
		t.program.Quit()
		<-t.done
	} else {
		t.model.Update(doneMsg{result: result})
	}

	_, err := fmt.Fprintln(t.w, t.model.FinalView())

	return err
}

// -----------------------------------------------------------------------------
// Tree Model - Built from the stage before publishing
// -----------------------------------------------------------------------------

// nodeStatus tracks the progress of a tree entry.
type nodeStatus int

const (
	statusPending nodeStatus = iota
	statusRunning
	statusDone
	statusFailed
)

// treeNode is a phase or a group within a phase.
type treeNode struct {
	name     string
	status   nodeStatus
	children []*treeNode

	rows    int
	merged  int
	skipped int
	elapsed time.Duration
	err     error
}

// StageTree is the tree shown by the TUI: one entry per phase with the
// labels or groups it processes.
type StageTree struct {
	phases map[Phase]*treeNode
	order  []*treeNode
	idx    map[string]*treeNode
	rows   int
}

// BuildStageTree creates the tree of stage.
func BuildStageTree(stage *staged.Stage) StageTree {
	st := StageTree{
		phases: make(map[Phase]*treeNode),
		idx:    make(map[string]*treeNode),
	}

	if stage == nil {
		stage = &staged.Stage{}
	}

	for _, phase := range []Phase{PhaseBootstrap, PhaseNodes, PhaseRelationships} {
		n := &treeNode{name: string(phase)}
		st.phases[phase] = n
		st.order = append(st.order, n)
	}

	for _, label := range stage.Labels() {
		n := &treeNode{name: label, rows: 1}
		st.phases[PhaseBootstrap].children = append(st.phases[PhaseBootstrap].children, n)
		st.idx[treeKey(PhaseBootstrap, label)] = n
	}

	for _, g := range stage.Nodes {
		n := &treeNode{name: g.Name, rows: len(g.Nodes)}
		st.phases[PhaseNodes].children = append(st.phases[PhaseNodes].children, n)
		st.idx[treeKey(PhaseNodes, g.Name)] = n
		st.rows += n.rows
	}

	for _, g := range stage.Relationships {
		n := &treeNode{name: g.Name, rows: len(g.Relationships)}
		st.phases[PhaseRelationships].children = append(st.phases[PhaseRelationships].children, n)
		st.idx[treeKey(PhaseRelationships, g.Name)] = n
		st.rows += n.rows
	}

	return st
}

func treeKey(phase Phase, name string) string {
	return string(phase) + "::" + name
}

// -----------------------------------------------------------------------------
// Bubbletea Model
// -----------------------------------------------------------------------------

// tuiModel is the bubbletea model for the publish UI.
type tuiModel struct {
	styles  *Styles
	spinner spinner.Model

	width  int
	height int

	tree StageTree

	// processed counts node and relationship rows handled so far.
	processed int
	skipped   int

	startTime time.Time
	endTime   time.Time

	finalResult *Result
	isDone      bool
}

// Messages
type (
	tickMsg  time.Time
	eventMsg Event
	doneMsg  struct{ result *Result }
)

func newTUIModel(tree StageTree) *tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerFrames(),
		FPS:    time.Second / 10,
	}
	s.Style = DefaultStyles().Running

	return &tuiModel{
		styles:    DefaultStyles(),
		spinner:   s,
		tree:      tree,
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.tick(),
	)
}

func (m *tuiModel) tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.QuitMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		return m, nil

	case tickMsg:
		if !m.isDone {
			cmds = append(cmds, m.tick())
		}

	case spinner.TickMsg:
		if !m.isDone {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case eventMsg:
		m.handleEvent(Event(msg))

	case doneMsg:
		m.isDone = true
		m.endTime = time.Now()
		m.finalResult = msg.result
	}

	return m, tea.Batch(cmds...)
}

func (m *tuiModel) handleEvent(event Event) {
	switch event.Action {
	case ActionPhase:
		for _, n := range m.tree.order {
			if n.status == statusRunning {
				n.status = statusDone
			}
		}

		if phase, ok := m.tree.phases[event.Phase]; ok {
			phase.status = statusRunning
		}

	case ActionConstraint:
		if n, ok := m.tree.idx[treeKey(PhaseBootstrap, event.Label)]; ok {
			n.status = statusDone
			n.merged = 1
			n.elapsed = event.Elapsed
		}

	case ActionBatch:
		n, ok := m.tree.idx[treeKey(event.Phase, event.Group)]
		if !ok {
			return
		}

		n.merged += event.Merged
		n.elapsed += event.Elapsed
		n.status = statusRunning

		if n.merged+n.skipped >= n.rows {
			n.status = statusDone
		}

		m.processed += event.Rows

	case ActionSkipped:
		m.skipped++

		n, ok := m.tree.idx[treeKey(event.Phase, event.Group)]
		if !ok {
			return
		}

		n.skipped++
		if n.merged+n.skipped >= n.rows {
			n.status = statusDone
		}

	case ActionFailed:
		for _, phase := range m.tree.order {
			if phase.status != statusRunning {
				continue
			}

			phase.status = statusFailed
			phase.err = event.Error

			for _, n := range phase.children {
				if n.status == statusRunning {
					n.status = statusFailed
				}
			}
		}

	case ActionDone:
		for _, n := range m.tree.order {
			n.status = statusDone
		}
	}
}

// clearEOL is the ANSI escape sequence to clear from cursor to end of line.
const clearEOL = "\033[K"

// FinalView renders the complete output printed after the TUI exits.
func (m *tuiModel) FinalView() string {
	lines := m.lines()
	lines = append(lines, "", m.renderSummary())

	return strings.Join(lines, "\n")
}

func (m *tuiModel) View() string {
	lines := m.lines()

	if m.isDone {
		lines = append(lines, "", m.renderSummary())
	}

	for i := range lines {
		lines[i] += clearEOL
	}

	return strings.Join(lines, "\n") + "\n"
}

func (m *tuiModel) lines() []string {
	lines := []string{m.renderHeader(), m.renderProgress(), ""}
	tree := strings.Split(strings.TrimSuffix(m.renderTree(), "\n"), "\n")

	return append(lines, tree...)
}

func (m *tuiModel) renderHeader() string {
	logo := m.styles.Bold.Render("metagraph")
	subtitle := m.styles.Dim.Render(" publish")

	var status string

	switch {
	case m.isDone && m.finalResult != nil && !m.finalResult.Ok():
		status = m.styles.Fail.Render("FAILED")
	case m.isDone:
		status = m.styles.Pass.Render("DONE")
	default:
		status = m.styles.Dim.Render("starting")

		for _, n := range m.tree.order {
			if n.status == statusRunning {
				status = m.styles.Running.Render(n.name)
			}
		}
	}

	return fmt.Sprintf("%s%s  %s", logo, subtitle, status)
}

func (m *tuiModel) renderProgress() string {
	total := m.tree.rows
	if total == 0 {
		total = 1
	}

	pct := min(float64(m.processed)/float64(total), 1)

	elapsed := time.Since(m.startTime)
	if !m.endTime.IsZero() {
		elapsed = m.endTime.Sub(m.startTime)
	}

	elapsedStr := m.styles.Dim.Render(fmt.Sprintf("[%s]", formatDuration(elapsed)))

	barWidth := 30
	filled := int(pct * float64(barWidth))
	filledChar, emptyChar := ProgressChars()

	bar := m.styles.ProgressFilled.Render(strings.Repeat(filledChar, filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat(emptyChar, barWidth-filled))

	counter := m.styles.Muted.Render(fmt.Sprintf("%d/%d", m.processed, m.tree.rows))

	return fmt.Sprintf("%s %s %s", elapsedStr, bar, counter)
}

func (m *tuiModel) renderTree() string {
	var b strings.Builder

	for i, phase := range m.tree.order {
		m.renderNode(&b, phase, "", i == len(m.tree.order)-1, true)
	}

	return b.String()
}

func (m *tuiModel) renderNode(b *strings.Builder, node *treeNode, prefix string, isLast, isPhase bool) {
	branch := "├─"
	if isLast {
		branch = "╰─"
	}

	name := m.styles.Group.Render(node.name)
	if isPhase {
		name = m.styles.Bold.Render(node.name)
	}

	detail := ""
	if !isPhase && node.status != statusPending {
		detail = m.styles.Dim.Render(fmt.Sprintf("  %d/%d [%s]", node.merged, node.rows, formatDuration(node.elapsed)))

		if node.skipped > 0 {
			detail += m.styles.Skip.Render(fmt.Sprintf("  %d skipped", node.skipped))
		}
	}

	b.WriteString(m.styles.Dim.Render(prefix + branch + " "))
	b.WriteString(m.renderSymbol(node))
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(detail)
	b.WriteString("\n")

	childPrefix := prefix
	if isLast {
		childPrefix += "  "
	} else {
		childPrefix += "│ "
	}

	if node.err != nil {
		b.WriteString(m.styles.Dim.Render(childPrefix + "   "))
		b.WriteString(m.styles.Error.Render(node.err.Error()))
		b.WriteString("\n")
	}

	for i, child := range node.children {
		m.renderNode(b, child, childPrefix, i == len(node.children)-1, false)
	}
}

func (m *tuiModel) renderSymbol(node *treeNode) string {
	switch node.status {
	case statusPending:
		return m.styles.Dim.Render("⋯")
	case statusRunning:
		return m.spinner.View()
	case statusDone:
		if node.skipped > 0 {
			return m.styles.Skip.Render(m.styles.SymbolSkip)
		}

		return m.styles.Pass.Render(m.styles.SymbolPass)
	case statusFailed:
		return m.styles.Fail.Render(m.styles.SymbolFail)
	default:
		return " "
	}
}

func (m *tuiModel) renderSummary() string {
	r := m.finalResult
	if r == nil {
		return m.styles.Dim.Render("  Nothing published")
	}

	parts := []string{
		m.styles.Pass.Render(fmt.Sprintf("%d nodes", r.Nodes)),
		m.styles.Pass.Render(fmt.Sprintf("%d relationships", r.Relationships)),
	}

	if n := len(r.Skipped); n > 0 {
		parts = append(parts, m.styles.Skip.Render(fmt.Sprintf("%d skipped", n)))
	}

	if r.Err != nil {
		parts = append(parts, m.styles.Error.Render(r.Err.Error()))
	}

	edges := m.styles.Muted.Render(fmt.Sprintf("(%d edges)", r.Edges))
	sep := m.styles.Dim.Render(" │ ")

	return "  " + strings.Join(parts, sep) + " " + edges
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// -----------------------------------------------------------------------------
// TUIHandler - Bridges TUI to Handler interface
// -----------------------------------------------------------------------------

// TUIHandler wraps TUIFormatter to implement Handler.
type TUIHandler struct {
	formatter *TUIFormatter
	stderr    io.Writer
}

// NewTUIHandler creates a handler rendering stage to w.
func NewTUIHandler(w io.Writer, stderr io.Writer, stage *staged.Stage) *TUIHandler {
	return &TUIHandler{
		formatter: NewTUIFormatter(w, stage),
		stderr:    stderr,
	}
}

// Start initializes the TUI.
func (h *TUIHandler) Start() error {
	return h.formatter.Start()
}

// Event sends an event to the TUI.
func (h *TUIHandler) Event(_ context.Context, event Event, result *Result) error {
	return h.formatter.Format(event, result)
}

// Err writes to stderr.
func (h *TUIHandler) Err(text string) error {
	_, err := h.stderr.Write([]byte(text + "\n"))

	return err
}

// Summary renders the final summary.
func (h *TUIHandler) Summary(result *Result) error {
	return h.formatter.Summary(result)
}
