package publisher

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the terminal UI.
type Styles struct {
	Bold    lipgloss.Style
	Dim     lipgloss.Style
	Muted   lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Skip    lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style
	Path    lipgloss.Style
	Group   lipgloss.Style

	ProgressFilled lipgloss.Style
	ProgressEmpty  lipgloss.Style

	SymbolPass string
	SymbolFail string
	SymbolSkip string
}

// DefaultStyles returns the default UI styles, using adaptive colors so that
// both light and dark terminals stay readable.
func DefaultStyles() *Styles {
	green := lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	red := lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	yellow := lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	blue := lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	gray := lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}

	return &Styles{
		Bold:    lipgloss.NewStyle().Bold(true),
		Dim:     lipgloss.NewStyle().Faint(true),
		Muted:   lipgloss.NewStyle().Foreground(gray),
		Pass:    lipgloss.NewStyle().Foreground(green),
		Fail:    lipgloss.NewStyle().Foreground(red).Bold(true),
		Skip:    lipgloss.NewStyle().Foreground(yellow),
		Error:   lipgloss.NewStyle().Foreground(red),
		Running: lipgloss.NewStyle().Foreground(blue),
		Path:    lipgloss.NewStyle().Faint(true).Underline(true),
		Group:   lipgloss.NewStyle(),

		ProgressFilled: lipgloss.NewStyle().Foreground(green),
		ProgressEmpty:  lipgloss.NewStyle().Faint(true),

		SymbolPass: "✓",
		SymbolFail: "✗",
		SymbolSkip: "↷",
	}
}

// SpinnerFrames returns the frames of the running spinner.
func SpinnerFrames() []string {
	return []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
}

// ProgressChars returns the filled and empty progress bar characters.
func ProgressChars() (string, string) {
	return "━", "─"
}
