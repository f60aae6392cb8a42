package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/completion"
	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/presenter"
	"github.com/jingkaihe/playground/pkg/tui"
)

var chatPlain bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or resume a conversation (default command)",
	Long: `Lists the conversations saved for your API key, then lets you resume one by
number or start a new one by typing its first prompt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context(), chatPlain)
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Use the line-oriented interface instead of the full screen one")
}

// chooser picks the conversation of a session
type chooser interface {
	Choose(ctx context.Context, input string) (chat.Selection, error)
}

func runChat(ctx context.Context, plain bool) error {
	a, err := openApp(ctx, cfg, appOptions{requireKey: true})
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := completion.New(completion.Config{
		APIKey:  a.apiKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Proxy:   cfg.Proxy,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}

	controller, err := chat.New(chat.Options{
		APIKey:      a.apiKey,
		MaxMessages: cfg.MaxDialog,
		MaxTokens:   cfg.MaxToken,
		Schema:      a.registry,
		Store:       a.store,
		Sink:        a.sink,
		Completer:   client,
	})
	if err != nil {
		return err
	}

	if err := controller.Start(ctx); err != nil {
		return err
	}

	p := presenter.Default()
	p.Info("Welcome to OpenAI Playground. Press Ctrl+C to exit the program.")

	listings, err := controller.Conversations(ctx)
	if err != nil {
		return err
	}
	p.Listing(listings)

	in := bufio.NewReader(os.Stdin)
	sel, err := chooseConversation(ctx, controller, in, p)
	if err != nil {
		if isEndOfInput(err) {
			return nil
		}
		return err
	}

	if plain {
		return plainChat(ctx, controller, sel, in, p)
	}
	return tuiChat(ctx, controller, sel, p)
}

// chooseConversation asks until the input names a conversation of the
// current key or starts a new one
func chooseConversation(ctx context.Context, c chooser, in *bufio.Reader, p presenter.Presenter) (chat.Selection, error) {
	p.Info("Enter a number to continue the desired conversation, or enter a piece of text to create a new one: ")
	for {
		line, err := readLine(ctx, in)
		if err != nil {
			return chat.Selection{}, err
		}

		sel, err := c.Choose(ctx, line)
		switch {
		case errors.Is(err, chat.ErrEmptyInput):
			continue
		case errors.Is(err, chat.ErrConversationNotFound):
			p.Info("No such conversation. Please enter again: ")
			continue
		case err != nil:
			return chat.Selection{}, err
		}
		return sel, nil
	}
}

func tuiChat(ctx context.Context, session tui.Session, sel chat.Selection, p presenter.Presenter) error {
	// log lines would tear the full screen view
	logger.SetLogOutput(io.Discard)
	defer logger.SetLogOutput(os.Stderr)

	summary, err := tui.Run(ctx, session, sel.FirstPrompt)
	for _, turnErr := range summary.Unshown {
		p.Error(turnErr, "")
	}
	if err != nil {
		return err
	}

	if summary.Usage.SessionTokens > 0 {
		p.Info(tui.FormatUsageStats(summary.Usage))
	}
	p.Info("[Conversation] " + tui.FormatConversationInfo(session.ConversationID(), session.Title()))
	return nil
}

// readLine reads one trimmed line from in. It gives up when ctx is done; the
// pending read is abandoned since the process is about to exit.
func readLine(ctx context.Context, in *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		line, err := in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && (!errors.Is(res.err, io.EOF) || res.line == "") {
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	}
}

// isEndOfInput reports whether err only means the user is done
func isEndOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}
