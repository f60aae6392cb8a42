package tui

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/jingkaihe/playground/pkg/version"
)

// Summary is what remains of a chat once the full screen view is gone
type Summary struct {
	Usage Usage
	// Unshown holds turn errors that arrived after the view stopped
	Unshown []error
}

// Run starts the full screen chat for session and blocks until the user
// quits and the turn in flight, if any, has finished.
func Run(ctx context.Context, session Session, firstPrompt string) (Summary, error) {
	model := NewModel(ctx, session, firstPrompt)

	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#7aa2f7", Dark: "#7aa2f7"}). // Blue
		Render(fmt.Sprintf("OpenAI Playground (%s)", version.Version))

	welcome := banner + "\nWelcome to OpenAI Playground. Press Ctrl+C to exit the program."
	if !isTTY() {
		welcome += "\nLimited terminal capabilities detected. Some features may not work properly."
	}
	model.AddNotice(welcome)
	model.AddNotice("Type /help for keyboard shortcuts and commands.")

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	result, err := p.Run()
	model.cancel()
	summary := Summary{Unshown: model.Wait()}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return summary, errors.Wrap(err, "error running program")
	}

	if final, ok := result.(Model); ok {
		summary.Usage = final.Usage()
	}
	return summary, nil
}

// isTTY checks if the terminal supports advanced features
func isTTY() bool {
	return isTerminal(os.Stdin)
}

// isTerminal reports whether f is an interactive terminal. Other character
// devices such as /dev/null are not.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
