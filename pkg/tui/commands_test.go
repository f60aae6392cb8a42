package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantCommand   string
		wantArgs      string
		wantIsCommand bool
		wantKnown     bool
	}{
		{
			name:          "help command",
			input:         "/help",
			wantCommand:   "help",
			wantIsCommand: true,
			wantKnown:     true,
		},
		{
			name:          "history command with surrounding space",
			input:         "  /history  ",
			wantCommand:   "history",
			wantIsCommand: true,
			wantKnown:     true,
		},
		{
			name:          "exit command with args",
			input:         "/exit now please",
			wantCommand:   "exit",
			wantArgs:      "now please",
			wantIsCommand: true,
			wantKnown:     true,
		},
		{
			name:          "unknown command",
			input:         "/summarize last week",
			wantCommand:   "summarize",
			wantArgs:      "last week",
			wantIsCommand: true,
			wantKnown:     false,
		},
		{
			name:          "not a command",
			input:         "just a message",
			wantIsCommand: false,
		},
		{
			name:          "empty string",
			input:         "",
			wantIsCommand: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, isCommand, known := ParseCommand(tt.input)
			assert.Equal(t, tt.wantCommand, cmd)
			assert.Equal(t, tt.wantArgs, args)
			assert.Equal(t, tt.wantIsCommand, isCommand)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestNotImplementedText(t *testing.T) {
	assert.Equal(t,
		"This is a command: summarize. Custom commands are not implemented yet.",
		NotImplementedText("summarize"))
}

func TestGetHelpText(t *testing.T) {
	helpText := GetHelpText()

	require.NotEmpty(t, helpText)
	assert.Contains(t, helpText, "Ctrl+C")
	for _, cmd := range GetAvailableCommands() {
		assert.Contains(t, helpText, cmd)
	}
}

func TestGetAvailableCommands(t *testing.T) {
	assert.Equal(t, []string{"/help", "/history", "/clear", "/exit"}, GetAvailableCommands())
}

func TestIsCommandComplete(t *testing.T) {
	commands := GetAvailableCommands()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"complete history command", "/history", true},
		{"incomplete command", "/hi", false},
		{"complete exit command", "/exit", true},
		{"not a command", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCommandComplete(tt.input, commands))
		})
	}
}
