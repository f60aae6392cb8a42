package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/completion"
	"github.com/jingkaihe/playground/pkg/presenter"
	"github.com/jingkaihe/playground/pkg/tui"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

func newTestPresenter() (*presenter.TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return presenter.NewWithOptions(&out, &errOut, presenter.ColorNever), &out, &errOut
}

type fakeChooser struct {
	known  map[string]chat.Selection
	inputs []string
}

func (f *fakeChooser) Choose(_ context.Context, input string) (chat.Selection, error) {
	input = strings.TrimSpace(input)
	f.inputs = append(f.inputs, input)
	if input == "" {
		return chat.Selection{}, chat.ErrEmptyInput
	}
	if sel, ok := f.known[input]; ok {
		return sel, nil
	}
	if _, err := parseID(input); err == nil {
		return chat.Selection{}, errors.Wrapf(chat.ErrConversationNotFound, "id %s", input)
	}
	return chat.Selection{ConversationID: 99, Title: input, Created: true, FirstPrompt: input}, nil
}

func parseID(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

type fakeTurner struct {
	prompts []string
	history []convtypes.Message
	err     error
}

func (f *fakeTurner) Turn(_ context.Context, prompt string) (chat.TurnResult, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return chat.TurnResult{}, f.err
	}
	f.history = append(f.history,
		convtypes.Message{Role: convtypes.RoleUser, Content: prompt},
		convtypes.Message{Role: convtypes.RoleAssistant, Content: "echo: " + prompt},
	)
	return chat.TurnResult{
		RequestID:   "req",
		ContextSize: len(f.history) - 1,
		Reply: &completion.Response{
			Role:    convtypes.RoleAssistant,
			Content: "echo: " + prompt,
			Usage:   completion.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		},
	}, nil
}

func (f *fakeTurner) History() []convtypes.Message {
	return f.history
}

func TestReadLine(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("  first  \nlast"))

	line, err := readLine(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = readLine(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = readLine(context.Background(), in)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, isEndOfInput(err))
}

func TestReadLine_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := readLine(ctx, bufio.NewReader(pr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, isEndOfInput(err))
}

func TestChooseConversation(t *testing.T) {
	existing := chat.Selection{ConversationID: 3, Title: "hello"}
	chooser := &fakeChooser{known: map[string]chat.Selection{"3": existing}}
	p, out, _ := newTestPresenter()

	sel, err := chooseConversation(context.Background(), chooser,
		bufio.NewReader(strings.NewReader("\n42\n3\n")), p)
	require.NoError(t, err)
	assert.Equal(t, existing, sel)
	assert.Equal(t, []string{"", "42", "3"}, chooser.inputs)
	assert.Contains(t, out.String(), "Enter a number to continue the desired conversation")
	assert.Equal(t, 1, strings.Count(out.String(), "No such conversation. Please enter again"))
}

func TestChooseConversation_NewConversation(t *testing.T) {
	chooser := &fakeChooser{}
	p, _, _ := newTestPresenter()

	sel, err := chooseConversation(context.Background(), chooser,
		bufio.NewReader(strings.NewReader("Explain goroutines\n")), p)
	require.NoError(t, err)
	assert.True(t, sel.Created)
	assert.Equal(t, "Explain goroutines", sel.FirstPrompt)
}

func TestChooseConversation_EndOfInput(t *testing.T) {
	p, _, _ := newTestPresenter()
	_, err := chooseConversation(context.Background(), &fakeChooser{},
		bufio.NewReader(strings.NewReader("")), p)
	assert.True(t, isEndOfInput(err))
}

func TestPlainChat(t *testing.T) {
	session := &fakeTurner{}
	p, out, _ := newTestPresenter()

	sel := chat.Selection{ConversationID: 1, Title: "hi", Created: true, FirstPrompt: "hi"}
	input := "\nhow are you?\n/summarize\n/history\n/exit\nnever sent\n"

	err := plainChat(context.Background(), session, sel, bufio.NewReader(strings.NewReader(input)), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"hi", "how are you?"}, session.prompts)

	output := out.String()
	assert.Contains(t, output, "ChatGPT: echo: hi\n")
	assert.Contains(t, output, "ChatGPT: echo: how are you?\n")
	assert.Contains(t, output, "[Usage] Prompt tokens: 5 | Completion tokens: 7 | Total: 12")
	assert.Contains(t, output, tui.NotImplementedText("summarize"))
	assert.Contains(t, output, "4 message(s) stored in this conversation:")
	assert.NotContains(t, output, "never sent")
}

func TestPlainChat_ShowsHistory(t *testing.T) {
	session := &fakeTurner{}
	p, out, _ := newTestPresenter()

	sel := chat.Selection{
		ConversationID: 3,
		Title:          "hello",
		History: []convtypes.Message{
			{Role: convtypes.RoleUser, Content: "hello"},
			{Role: convtypes.RoleAssistant, Content: "Hi there!"},
		},
	}
	err := plainChat(context.Background(), session, sel, bufio.NewReader(strings.NewReader("")), p)
	require.NoError(t, err)

	assert.Empty(t, session.prompts)
	assert.Contains(t, out.String(), "You: hello\n")
	assert.Contains(t, out.String(), "ChatGPT: Hi there!\n")
}

func TestPlainChat_FailedTurnContinues(t *testing.T) {
	session := &fakeTurner{err: &chat.TurnError{
		Kind: chat.KindAPI,
		Err:  &completion.APIError{Message: "Rate limit reached", StatusCode: 429},
	}}
	p, out, errOut := newTestPresenter()

	err := plainChat(context.Background(), session, chat.Selection{ConversationID: 1},
		bufio.NewReader(strings.NewReader("one\ntwo\n")), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, session.prompts)
	assert.Equal(t, 2, strings.Count(errOut.String(), "Error: completion API error (status 429): Rate limit reached"))
	assert.NotContains(t, out.String(), "ChatGPT:")
}
