package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/presenter"
	"github.com/jingkaihe/playground/pkg/tui"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

const plainHelpText = `AVAILABLE COMMANDS
   /history          → Show the messages stored in this conversation
   /clear            → Clear the screen
   /help             → Show this help message
   /exit             → Leave the chat (Ctrl+C works too)`

// turner runs the turns of a chosen conversation
type turner interface {
	Turn(ctx context.Context, prompt string) (chat.TurnResult, error)
	History() []convtypes.Message
}

func plainChat(ctx context.Context, session turner, sel chat.Selection, in *bufio.Reader, p presenter.Presenter) error {
	for _, m := range sel.History {
		p.Separator()
		p.Message(m.Role, m.Content)
	}
	p.Separator()

	if sel.FirstPrompt != "" {
		plainTurn(ctx, session, sel.FirstPrompt, p)
		p.Separator()
	}

	for {
		p.PromptMarker()
		line, err := readLine(ctx, in)
		if err != nil {
			if isEndOfInput(err) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}

		if command, _, isCommand, known := tui.ParseCommand(line); isCommand {
			if !known {
				p.Info(tui.NotImplementedText(command))
				p.Separator()
				continue
			}

			switch tui.Command(command) {
			case tui.CommandHelp:
				p.Info(plainHelpText)
			case tui.CommandHistory:
				p.Info(tui.FormatHistoryListing(session.History()))
			case tui.CommandClear:
				fmt.Print("\033[H\033[2J")
			case tui.CommandExit:
				return nil
			}
			p.Separator()
			continue
		}

		plainTurn(ctx, session, line, p)
		p.Separator()
	}
}

// plainTurn runs one turn and prints its outcome. A failed turn is reported
// and the chat goes on.
func plainTurn(ctx context.Context, session turner, prompt string, p presenter.Presenter) {
	result, err := session.Turn(ctx, prompt)
	if err != nil {
		p.Error(err, "")
		return
	}
	if result.Skipped || result.Reply == nil {
		return
	}

	reply := result.Reply
	p.Message(reply.Role, reply.Content)
	p.Usage(reply.Usage.PromptTokens, reply.Usage.CompletionTokens, result.ContextSize)
}
