// Package contextwindow selects the part of a conversation's history that is
// sent along with a new prompt.
package contextwindow

import (
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// Defaults for the message and token budgets
const (
	DefaultMaxMessages = 32
	DefaultMaxTokens   = 3800
)

// EstimateTokens approximates the token count of content as a third of its byte length
func EstimateTokens(content string) int {
	return len(content) / 3
}

// Build returns the context for a new prompt: the most recent history that
// fits the budgets, oldest first, followed by the prompt as a user message.
//
// The budgets are checked before a message is counted, so the message that
// takes a counter over its budget is still kept and only the next one is
// dropped. The prompt is always present, even with zero budgets.
func Build(history []convtypes.Message, prompt string, maxMessages, maxTokens int) []convtypes.ChatMessage {
	count, tokens := 0, 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		if count > maxMessages || tokens > maxTokens {
			break
		}
		count++
		tokens += EstimateTokens(history[i].Content)
		start = i
	}

	out := make([]convtypes.ChatMessage, 0, len(history)-start+1)
	for _, msg := range history[start:] {
		out = append(out, convtypes.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return append(out, convtypes.ChatMessage{Role: convtypes.RoleUser, Content: prompt})
}
