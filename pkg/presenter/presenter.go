// Package presenter provides consistent CLI output for the playground: status
// messages, conversation listings and chat messages, with color support and
// quiet mode.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// SeparatorLine divides turns in the plain chat output
var SeparatorLine = strings.Repeat("=", 75)

// ListingTimeFormat is the layout of the last activity column of a listing
const ListingTimeFormat = "2006-01-02 15:04:05"

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Separator()
	Listing(listings []convtypes.ConversationListing)
	Message(role convtypes.Role, content string)
	Usage(promptTokens, completionTokens int64, contextSize int)
	PromptMarker()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto lets the color package detect terminal support
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

// New creates a new TerminalPresenter with default settings
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
	}

	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("PLAYGROUND_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message on a single line of stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "Error: %s: %s\n", context, msg)
	} else {
		errorColor.Fprintf(p.errorOutput, "Error: %s\n", msg)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Separator displays the line between turns
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", SeparatorLine)
}

// Listing displays the conversations a user can resume
func (p *TerminalPresenter) Listing(listings []convtypes.ConversationListing) {
	if p.quiet {
		return
	}

	fmt.Fprintf(p.output, "You have %d conversation(s) currently saved.\n", len(listings))
	idColor := color.New(color.FgCyan, color.Bold)
	for _, l := range listings {
		fmt.Fprintf(p.output, "%s %s %s\n",
			color.New(color.Faint).Sprintf("[%s]", l.LastUpdate.Local().Format(ListingTimeFormat)),
			idColor.Sprintf("%d:", l.ID),
			fmt.Sprintf("%s (Usage: %d tokens in total)", l.Title, l.Usage))
	}
}

// Message displays a chat message labelled with its author
func (p *TerminalPresenter) Message(role convtypes.Role, content string) {
	if p.quiet {
		return
	}

	label := color.New(roleColor(role), color.Bold).Sprintf("%s:", role.DisplayName())
	fmt.Fprintf(p.output, "%s %s\n", label, strings.TrimSpace(content))
}

// Usage displays the token accounting of a turn
func (p *TerminalPresenter) Usage(promptTokens, completionTokens int64, contextSize int) {
	if p.quiet {
		return
	}

	color.New(color.Faint).Fprintf(p.output,
		"[Usage] Prompt tokens: %d | Completion tokens: %d | Total: %d | Context messages: %d\n",
		promptTokens, completionTokens, promptTokens+completionTokens, contextSize)
}

// PromptMarker displays the input marker without a newline
func (p *TerminalPresenter) PromptMarker() {
	color.New(color.FgCyan).Fprint(p.output, "> ")
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

func roleColor(role convtypes.Role) color.Attribute {
	switch role {
	case convtypes.RoleAssistant:
		return color.FgGreen
	case convtypes.RoleUser:
		return color.FgBlue
	default:
		return color.FgMagenta
	}
}

var defaultPresenter = New()

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Separator displays the turn separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// Listing displays conversations using the default presenter instance.
func Listing(listings []convtypes.ConversationListing) {
	defaultPresenter.Listing(listings)
}

// Message displays a chat message using the default presenter instance.
func Message(role convtypes.Role, content string) {
	defaultPresenter.Message(role, content)
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// Default returns the default presenter instance
func Default() Presenter {
	return defaultPresenter
}
