package tui

import (
	"fmt"
	"strings"
)

// Usage is the token accounting shown in the status bar
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	ContextSize      int
	// SessionTokens adds up every turn of this session
	SessionTokens int64
}

// Add records a completed turn
func (u *Usage) Add(promptTokens, completionTokens int64, contextSize int) {
	u.PromptTokens = promptTokens
	u.CompletionTokens = completionTokens
	u.ContextSize = contextSize
	u.SessionTokens += promptTokens + completionTokens
}

// FormatUsageStats formats the last turn's usage for display
func FormatUsageStats(usage Usage) string {
	if usage.SessionTokens == 0 {
		return ""
	}
	return fmt.Sprintf("Tokens: %d prompt / %d completion | Ctx: %d messages | Session: %d tokens",
		usage.PromptTokens, usage.CompletionTokens, usage.ContextSize, usage.SessionTokens)
}

// FormatConversationInfo formats the conversation shown in the status bar
func FormatConversationInfo(id int64, title string) string {
	const maxTitle = 30
	if r := []rune(title); len(r) > maxTitle {
		title = string(r[:maxTitle-1]) + "…"
	}
	return fmt.Sprintf("Conv %d: %s", id, title)
}

// ShouldShowCommandDropdown determines if the command dropdown should be shown
func ShouldShowCommandDropdown(input string, commands []string, isProcessing bool) bool {
	if isProcessing {
		return false
	}

	if !strings.HasPrefix(input, "/") {
		return false
	}

	if IsCommandComplete(input, commands) {
		return false
	}

	return true
}
