package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

const minTextWidth = 20

// Message is an entry of the chat view. A notice is local output of the
// chat itself and has no role.
type Message struct {
	Role    convtypes.Role
	Content string
	Notice  bool
}

// MessageFormatter handles formatting of messages for display
type MessageFormatter struct {
	width          int
	userStyle      lipgloss.Style
	assistantStyle lipgloss.Style
	systemStyle    lipgloss.Style
	noticeStyle    lipgloss.Style

	// renderer turns assistant markdown into terminal text; rebuilt when the width changes
	markdownStyle string
	renderer      *glamour.TermRenderer
	rendererWidth int
}

// NewMessageFormatter creates a new message formatter (Tokyo Night) that
// picks the markdown style from the terminal attached to stdin
func NewMessageFormatter(width int) *MessageFormatter {
	return NewMessageFormatterWithStyle(width, detectMarkdownStyle())
}

// NewMessageFormatterWithStyle creates a message formatter rendering markdown
// with the named glamour style ("dark", "light", "notty", ...)
func NewMessageFormatterWithStyle(width int, markdownStyle string) *MessageFormatter {
	return &MessageFormatter{
		width:          width,
		userStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true), // Cyan
		assistantStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true), // Purple
		systemStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true), // Yellow
		noticeStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),            // Green
		markdownStyle:  markdownStyle,
	}
}

// detectMarkdownStyle queries the terminal once, before the program owns its input
func detectMarkdownStyle() string {
	if !isTTY() {
		return "notty"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// SetWidth updates the width for message formatting
func (f *MessageFormatter) SetWidth(width int) {
	f.width = width
}

func (f *MessageFormatter) textWidth() int {
	return max(f.width-15, minTextWidth)
}

// FormatMessage formats a single message for display
func (f *MessageFormatter) FormatMessage(msg Message) string {
	if msg.Notice {
		return f.noticeStyle.Render(msg.Content)
	}

	var prefix string
	switch msg.Role {
	case convtypes.RoleUser:
		prefix = f.userStyle.Render(msg.Role.DisplayName())
	case convtypes.RoleAssistant:
		prefix = f.assistantStyle.Render(msg.Role.DisplayName())
	default:
		prefix = f.systemStyle.Render(msg.Role.DisplayName())
	}

	content := strings.TrimSpace(msg.Content)
	if msg.Role == convtypes.RoleAssistant {
		if rendered, ok := f.renderMarkdown(content); ok {
			return prefix + " → \n" + rendered
		}
	}

	messageText := lipgloss.NewStyle().
		PaddingLeft(1).
		Width(f.textWidth()).
		Render(content)
	return prefix + " → " + messageText
}

// renderMarkdown reports false when no renderer is available, in which case
// the reply is shown as plain text
func (f *MessageFormatter) renderMarkdown(content string) (string, bool) {
	if f.renderer == nil || f.rendererWidth != f.textWidth() {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(f.markdownStyle),
			glamour.WithWordWrap(f.textWidth()),
		)
		if err != nil {
			return "", false
		}
		f.renderer = renderer
		f.rendererWidth = f.textWidth()
	}

	rendered, err := f.renderer.Render(content)
	if err != nil {
		return "", false
	}
	return strings.Trim(rendered, "\n"), true
}

// FormatMessages formats multiple messages for display
func (f *MessageFormatter) FormatMessages(messages []Message) string {
	var content strings.Builder
	for i, msg := range messages {
		if i > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(f.FormatMessage(msg))
	}
	return content.String()
}

// FromHistory converts stored messages into chat view entries
func FromHistory(history []convtypes.Message) []Message {
	messages := make([]Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// FormatHistoryListing renders stored messages as the plain text shown by /history
func FormatHistoryListing(history []convtypes.Message) string {
	if len(history) == 0 {
		return "No messages stored in this conversation yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s) stored in this conversation:", len(history))
	for _, m := range history {
		fmt.Fprintf(&b, "\n[%s] %s: %s",
			m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			m.Role.DisplayName(),
			strings.TrimSpace(m.Content))
	}
	return b.String()
}
