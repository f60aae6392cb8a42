package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jingkaihe/playground/pkg/chat"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

const (
	statusReady    = "Ready"
	statusThinking = "ChatGPT is thinking..."
)

// Session is the chat session driven by the UI
type Session interface {
	Turn(ctx context.Context, prompt string) (chat.TurnResult, error)
	History() []convtypes.Message
	ConversationID() int64
	Title() string
}

// Model represents the main TUI model
type Model struct {
	session       Session
	formatter     *MessageFormatter
	messages      []Message
	viewport      viewport.Model
	textarea      textarea.Model
	spinner       spinner.Model
	ready         bool
	width         int
	height        int
	isProcessing  bool
	statusMessage string
	usage         Usage
	pending       string
	quitting      bool
	ctx           context.Context
	cancel        context.CancelFunc
	turns         *turnTracker

	// Command auto-completion
	showCommandDropdown bool
	availableCommands   []string
	selectedCommandIdx  int
}

// turnDoneMsg carries the outcome of a turn back into the update loop
type turnDoneMsg struct {
	id     int
	prompt string
	result chat.TurnResult
	err    error
}

// NewModel creates a new TUI model. A non-empty firstPrompt is sent as the
// first turn as soon as the program starts.
func NewModel(ctx context.Context, session Session, firstPrompt string) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.Focus()
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Prompt = "❯ "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	ta.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	vp := viewport.New(0, 0)
	vp.KeyMap.PageDown.SetEnabled(true)
	vp.KeyMap.PageUp.SetEnabled(true)

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
	)

	ctx, cancel := context.WithCancel(ctx)

	model := Model{
		session:           session,
		formatter:         NewMessageFormatter(80),
		messages:          []Message{},
		textarea:          ta,
		viewport:          vp,
		spinner:           sp,
		statusMessage:     statusReady,
		ctx:               ctx,
		cancel:            cancel,
		turns:             newTurnTracker(),
		availableCommands: GetAvailableCommands(),
	}

	if history := session.History(); len(history) > 0 {
		model.messages = FromHistory(history)
		model.AddNotice("Loaded conversation " + FormatConversationInfo(session.ConversationID(), session.Title()))
	}

	if firstPrompt = strings.TrimSpace(firstPrompt); firstPrompt != "" {
		model.AddMessage(convtypes.RoleUser, firstPrompt)
		model.SetProcessing(true)
		model.pending = firstPrompt
	}

	return model
}

// AddMessage adds a chat message to the view
func (m *Model) AddMessage(role convtypes.Role, content string) {
	m.messages = append(m.messages, Message{Role: role, Content: content})
	m.updateViewportContent()
	m.viewport.GotoBottom()
}

// AddNotice adds local output of the chat to the view
func (m *Model) AddNotice(content string) {
	m.messages = append(m.messages, Message{Content: content, Notice: true})
	m.updateViewportContent()
	m.viewport.GotoBottom()
}

// SetProcessing sets the processing state
func (m *Model) SetProcessing(isProcessing bool) {
	m.isProcessing = isProcessing
	if isProcessing {
		m.statusMessage = statusThinking
	} else {
		m.statusMessage = statusReady
	}
}

// Usage returns the token accounting of the session so far
func (m Model) Usage() Usage {
	return m.usage
}

// Wait blocks until the turns started by the model have finished and
// returns the errors that were never displayed
func (m Model) Wait() []error {
	return m.turns.wait()
}

func (m *Model) updateViewportContent() {
	m.viewport.SetContent(m.formatter.FormatMessages(m.messages))
}

func (m *Model) clear() {
	m.messages = []Message{}
	m.updateViewportContent()
	m.AddNotice("Screen cleared")
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.cancel()
	return tea.Quit
}

// Init sends the first prompt, if any
func (m Model) Init() tea.Cmd {
	if m.pending == "" {
		return nil
	}
	return tea.Batch(m.spinner.Tick, m.turns.run(m.ctx, m.session, m.pending))
}

// Update handles the message updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter && m.showCommandDropdown && !m.isProcessing {
			m.textarea.SetValue(m.availableCommands[m.selectedCommandIdx])
			m.showCommandDropdown = false
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, m.quit()
		case tea.KeyCtrlL:
			m.clear()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}
	case turnDoneMsg:
		m.finishTurn(msg)
		return m, nil
	case spinner.TickMsg:
		if !m.isProcessing {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 1
		footerHeight := 6 // textarea + border + status bar + usage line
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.textarea.SetWidth(max(msg.Width-6, 10))
		m.formatter.SetWidth(msg.Width)

		m.ready = true
		m.updateViewportContent()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)

	currentInput := m.textarea.Value()
	if ShouldShowCommandDropdown(currentInput, m.availableCommands, m.isProcessing) {
		if !m.showCommandDropdown {
			m.showCommandDropdown = true
			m.selectedCommandIdx = 0
		}

		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.Type {
			case tea.KeyTab, tea.KeyDown:
				m.selectedCommandIdx = (m.selectedCommandIdx + 1) % len(m.availableCommands)
			case tea.KeyShiftTab, tea.KeyUp:
				m.selectedCommandIdx--
				if m.selectedCommandIdx < 0 {
					m.selectedCommandIdx = len(m.availableCommands) - 1
				}
			}
		}
	} else {
		m.showCommandDropdown = false
	}

	return m, tea.Batch(cmds...)
}

// submit handles the input box content on Enter
func (m Model) submit() (tea.Model, tea.Cmd) {
	m.showCommandDropdown = false
	if m.isProcessing {
		return m, nil
	}

	content := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	if content == "" {
		return m, nil
	}

	if command, _, isCommand, known := ParseCommand(content); isCommand {
		if !known {
			m.AddNotice(NotImplementedText(command))
			return m, nil
		}

		switch Command(command) {
		case CommandHelp:
			m.AddNotice(GetHelpText())
		case CommandHistory:
			m.AddNotice(FormatHistoryListing(m.session.History()))
		case CommandClear:
			m.clear()
		case CommandExit:
			return m, m.quit()
		}
		return m, nil
	}

	m.AddMessage(convtypes.RoleUser, content)
	m.SetProcessing(true)
	return m, tea.Batch(m.spinner.Tick, m.turns.run(m.ctx, m.session, content))
}

func (m *Model) finishTurn(msg turnDoneMsg) {
	m.SetProcessing(false)
	m.turns.shown(msg.id)

	switch {
	case msg.err != nil:
		m.AddNotice("Error: " + msg.err.Error())
	case msg.result.Reply != nil:
		reply := msg.result.Reply
		m.AddMessage(reply.Role, reply.Content)
		m.usage.Add(reply.Usage.PromptTokens, reply.Usage.CompletionTokens, msg.result.ContextSize)
	}
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.quitting {
		return ""
	}

	inputBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 2).
		Width(max(m.width-2, 10)).
		Render(m.textarea.View())

	sections := []string{
		lipgloss.NewStyle().PaddingBottom(1).Render(m.viewport.View()),
		inputBox,
	}
	if m.showCommandDropdown {
		sections = append(sections, m.dropdownView())
	}
	sections = append(sections, m.statusView())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) dropdownView() string {
	var content strings.Builder
	for i, cmd := range m.availableCommands {
		style := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
		if i == m.selectedCommandIdx {
			style = style.Background(lipgloss.Color("205")).Foreground(lipgloss.Color("0"))
		} else {
			style = style.Background(lipgloss.Color("236")).Foreground(lipgloss.Color("252"))
		}
		content.WriteString(style.Render(cmd) + "\n")
	}

	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("↑↓:Navigate Tab:Next Enter:Select")

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Width(40).
		Render(content.String() + hint)
}

// statusView renders the status bar
func (m Model) statusView() string {
	statusText := m.statusMessage
	if m.isProcessing {
		statusText = m.spinner.View() + " " + m.statusMessage
	}

	barStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Background(lipgloss.Color("236")).
		Padding(0, 1).
		Bold(true)

	mainStatus := barStyle.Render(statusText +
		" │ " + FormatConversationInfo(m.session.ConversationID(), m.session.Title()) +
		" │ Ctrl+C: Quit │ /help: Help │ Enter: Send")

	if usageText := FormatUsageStats(m.usage); usageText != "" {
		return lipgloss.JoinVertical(lipgloss.Left, mainStatus, barStyle.Render(usageText))
	}
	return mainStatus
}
