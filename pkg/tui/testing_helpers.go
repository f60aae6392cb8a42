package tui

import (
	"context"
	"sync"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/completion"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// MockSession is a Session for testing that answers every prompt with a
// fixed reply and keeps history in memory
type MockSession struct {
	mu             sync.Mutex
	conversationID int64
	title          string
	history        []convtypes.Message
	prompts        []string
	reply          string
	turnErr        error
}

// NewMockSession creates a mock session for conversation id
func NewMockSession(id int64, title string) *MockSession {
	return &MockSession{conversationID: id, title: title, reply: "Mock response"}
}

// Turn records the prompt and answers it
func (s *MockSession) Turn(_ context.Context, prompt string) (chat.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if s.turnErr != nil {
		return chat.TurnResult{RequestID: "req-test"}, s.turnErr
	}

	contextSize := len(s.history) + 1
	s.history = append(s.history,
		convtypes.Message{Role: convtypes.RoleUser, Content: prompt},
		convtypes.Message{Role: convtypes.RoleAssistant, Content: s.reply, PromptTokens: 5, CompletionTokens: 7},
	)
	return chat.TurnResult{
		RequestID:   "req-test",
		ContextSize: contextSize,
		Reply: &completion.Response{
			Role:    convtypes.RoleAssistant,
			Content: s.reply,
			Usage:   completion.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		},
	}, nil
}

// History returns a copy of the stored messages
func (s *MockSession) History() []convtypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]convtypes.Message(nil), s.history...)
}

// ConversationID returns the mock conversation id
func (s *MockSession) ConversationID() int64 {
	return s.conversationID
}

// Title returns the mock conversation title
func (s *MockSession) Title() string {
	return s.title
}

// Prompts returns the prompts sent so far
func (s *MockSession) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// SetTurnError makes every following turn fail with err
func (s *MockSession) SetTurnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnErr = err
}

// AddMessage adds a message to the stored history
func (s *MockSession) AddMessage(role convtypes.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, convtypes.Message{Role: role, Content: content})
}
