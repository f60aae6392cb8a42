package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func lastMessage(t *testing.T, m Model) Message {
	t.Helper()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

func press(t *testing.T, m Model, input string) (Model, tea.Cmd) {
	t.Helper()
	m.textarea.SetValue(input)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model, ok := updated.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestNewModel(t *testing.T) {
	session := NewMockSession(3, "hello")
	m := NewModel(context.Background(), session, "")

	assert.Empty(t, m.messages)
	assert.False(t, m.isProcessing)
	assert.Equal(t, statusReady, m.statusMessage)
	assert.Nil(t, m.Init())
	assert.Equal(t, "Initializing...", m.View())
}

func TestNewModel_LoadsHistory(t *testing.T) {
	session := NewMockSession(3, "hello")
	session.AddMessage(convtypes.RoleUser, "hello")
	session.AddMessage(convtypes.RoleAssistant, "Hi there!")

	m := NewModel(context.Background(), session, "")

	require.Len(t, m.messages, 3)
	assert.Equal(t, Message{Role: convtypes.RoleUser, Content: "hello"}, m.messages[0])
	assert.Equal(t, Message{Role: convtypes.RoleAssistant, Content: "Hi there!"}, m.messages[1])
	assert.Equal(t, "Loaded conversation Conv 3: hello", lastMessage(t, m).Content)
}

func TestNewModel_FirstPrompt(t *testing.T) {
	session := NewMockSession(4, "Explain goroutines")
	m := NewModel(context.Background(), session, " Explain goroutines ")

	assert.True(t, m.isProcessing)
	assert.Equal(t, statusThinking, m.statusMessage)
	assert.Equal(t, Message{Role: convtypes.RoleUser, Content: "Explain goroutines"}, lastMessage(t, m))
	assert.NotNil(t, m.Init())
}

func TestRunTurn(t *testing.T) {
	session := NewMockSession(1, "t")
	msg := newTurnTracker().run(context.Background(), session, "hi")()

	done, ok := msg.(turnDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Equal(t, 1, done.id)
	assert.Equal(t, "hi", done.prompt)
	assert.Equal(t, "Mock response", done.result.Reply.Content)
	assert.Equal(t, []string{"hi"}, session.Prompts())
}

func TestUpdate_SubmitPrompt(t *testing.T) {
	session := NewMockSession(1, "t")
	m := NewModel(context.Background(), session, "")

	m, cmd := press(t, m, "  What is a channel?  ")
	assert.NotNil(t, cmd)
	assert.True(t, m.isProcessing)
	assert.Empty(t, m.textarea.Value())
	assert.Equal(t, Message{Role: convtypes.RoleUser, Content: "What is a channel?"}, lastMessage(t, m))

	// a second prompt is ignored while the first is in flight
	count := len(m.messages)
	m, cmd = press(t, m, "another")
	assert.Nil(t, cmd)
	assert.Len(t, m.messages, count)
}

func TestUpdate_BlankInputIsIgnored(t *testing.T) {
	m := NewModel(context.Background(), NewMockSession(1, "t"), "")

	m, cmd := press(t, m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.isProcessing)
	assert.Empty(t, m.messages)
}

func TestUpdate_TurnDone(t *testing.T) {
	session := NewMockSession(1, "t")
	m := NewModel(context.Background(), session, "hello")

	result, err := session.Turn(context.Background(), "hello")
	require.NoError(t, err)

	updated, cmd := m.Update(turnDoneMsg{prompt: "hello", result: result})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.False(t, m.isProcessing)
	assert.Equal(t, Message{Role: convtypes.RoleAssistant, Content: "Mock response"}, lastMessage(t, m))
	assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 7, ContextSize: 1, SessionTokens: 12}, m.Usage())
}

func TestUpdate_TurnFailed(t *testing.T) {
	m := NewModel(context.Background(), NewMockSession(1, "t"), "hello")

	updated, _ := m.Update(turnDoneMsg{prompt: "hello", err: errors.New("rate limit exceeded")})
	m = updated.(Model)
	assert.False(t, m.isProcessing)
	assert.Equal(t, Message{Notice: true, Content: "Error: rate limit exceeded"}, lastMessage(t, m))
	assert.Equal(t, Usage{}, m.Usage())
}

func TestUpdate_Commands(t *testing.T) {
	t.Run("help", func(t *testing.T) {
		m := NewModel(context.Background(), NewMockSession(1, "t"), "")
		m, cmd := press(t, m, "/help")
		assert.Nil(t, cmd)
		assert.Equal(t, Message{Notice: true, Content: GetHelpText()}, lastMessage(t, m))
	})

	t.Run("history", func(t *testing.T) {
		session := NewMockSession(1, "t")
		session.AddMessage(convtypes.RoleUser, "hi")
		m := NewModel(context.Background(), session, "")
		m, _ = press(t, m, "/history")
		assert.Equal(t, FormatHistoryListing(session.History()), lastMessage(t, m).Content)
		assert.Empty(t, session.Prompts())
	})

	t.Run("clear", func(t *testing.T) {
		session := NewMockSession(1, "t")
		session.AddMessage(convtypes.RoleUser, "hi")
		m := NewModel(context.Background(), session, "")
		m, _ = press(t, m, "/clear")
		assert.Equal(t, []Message{{Notice: true, Content: "Screen cleared"}}, m.messages)
	})

	t.Run("unknown", func(t *testing.T) {
		session := NewMockSession(1, "t")
		m := NewModel(context.Background(), session, "")
		m, cmd := press(t, m, "/summarize")
		assert.Nil(t, cmd)
		assert.Equal(t, NotImplementedText("summarize"), lastMessage(t, m).Content)
		assert.Empty(t, session.Prompts())
	})

	t.Run("exit", func(t *testing.T) {
		m := NewModel(context.Background(), NewMockSession(1, "t"), "")
		m, cmd := press(t, m, "/exit")
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.True(t, m.quitting)
		assert.Error(t, m.ctx.Err())
	})
}

func TestUpdate_CtrlCQuits(t *testing.T) {
	m := NewModel(context.Background(), NewMockSession(1, "t"), "hello")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

func TestView(t *testing.T) {
	m := NewModel(context.Background(), NewMockSession(7, "Rust vs Go"), "first")

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)
	require.True(t, m.ready)

	view := m.View()
	assert.Contains(t, view, statusThinking)
	assert.Contains(t, view, "Conv 7: Rust vs Go")
	assert.Contains(t, view, "first")

	updated, _ = m.Update(turnDoneMsg{err: errors.New("boom")})
	m = updated.(Model)
	view = m.View()
	assert.Contains(t, view, statusReady)
	assert.NotContains(t, view, statusThinking)
}
