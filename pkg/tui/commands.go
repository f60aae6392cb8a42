package tui

import (
	"fmt"
	"strings"
)

// Command represents a chat command
type Command string

const (
	CommandHelp    Command = "help"
	CommandHistory Command = "history"
	CommandClear   Command = "clear"
	CommandExit    Command = "exit"
)

var knownCommands = []Command{CommandHelp, CommandHistory, CommandClear, CommandExit}

// GetAvailableCommands returns the list of available slash commands
func GetAvailableCommands() []string {
	commands := make([]string, len(knownCommands))
	for i, c := range knownCommands {
		commands[i] = "/" + string(c)
	}
	return commands
}

// ParseCommand splits slash input into the command name and its arguments.
// known reports whether the name is one the chat understands.
func ParseCommand(input string) (command string, args string, isCommand bool, known bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", "", false, false
	}

	parts := strings.SplitN(input, " ", 2)
	command = strings.TrimPrefix(parts[0], "/")
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	for _, c := range knownCommands {
		if string(c) == command {
			return command, args, true, true
		}
	}
	return command, args, true, false
}

// NotImplementedText is shown for slash input naming no known command
func NotImplementedText(command string) string {
	return fmt.Sprintf("This is a command: %s. Custom commands are not implemented yet.", command)
}

// GetHelpText returns the help text for keyboard shortcuts and commands
func GetHelpText() string {
	return `KEYBOARD SHORTCUTS
   Ctrl+C            → Quit the chat
   Enter             → Send message
   Ctrl+L            → Clear screen
   PageUp/PageDown   → Scroll history
   Tab/Up/Down       → Navigate suggestions

AVAILABLE COMMANDS
   /history          → Show the messages stored in this conversation
   /clear            → Clear the screen
   /help             → Show this help message
   /exit             → Leave the chat`
}

// IsCommandComplete checks if the current input is a complete command
// (i.e., starts with a known command prefix)
func IsCommandComplete(input string, commands []string) bool {
	for _, cmd := range commands {
		if strings.HasPrefix(input, cmd) {
			return true
		}
	}
	return false
}
