// Package chat drives an interactive conversation: it converges the schema,
// lets the user pick or start a conversation, and runs one turn at a time
// against the completion API, persisting successful exchanges and logging
// failed ones.
package chat

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/playground/pkg/completion"
	"github.com/jingkaihe/playground/pkg/contextwindow"
	"github.com/jingkaihe/playground/pkg/conversations"
	"github.com/jingkaihe/playground/pkg/errorlog"
	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/telemetry"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// State is the position of a controller in its session lifecycle
type State int

const (
	StateUninitialized State = iota
	StateSchemaConverged
	StateConversationChosen
	StateTurnInFlight
	StateTurnIdle
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSchemaConverged:
		return "schema-converged"
	case StateConversationChosen:
		return "conversation-chosen"
	case StateTurnInFlight:
		return "turn-in-flight"
	case StateTurnIdle:
		return "turn-idle"
	default:
		return "unknown"
	}
}

// Converger brings the database schema up to date
type Converger interface {
	Converge(ctx context.Context) error
}

// Store persists conversations and messages
type Store interface {
	CreateConversation(ctx context.Context, title, ownerKey string) (int64, error)
	GetConversation(ctx context.Context, id int64, ownerKey string) (convtypes.Conversation, error)
	ListConversations(ctx context.Context, ownerKey string) ([]convtypes.ConversationListing, error)
	ListMessages(ctx context.Context, conversationID int64) ([]convtypes.Message, error)
	AppendUserMessage(ctx context.Context, conversationID int64, content string) error
	AppendAssistantMessage(ctx context.Context, conversationID int64, reply convtypes.Reply) error
}

// ErrorSink records failed exchanges
type ErrorSink interface {
	Record(ctx context.Context, entry errorlog.Entry) error
}

// Completer sends a context to the completion API
type Completer interface {
	Complete(ctx context.Context, messages []convtypes.ChatMessage) (*completion.Response, error)
}

// Options configures a Controller
type Options struct {
	APIKey      string
	MaxMessages int
	MaxTokens   int
	Schema      Converger
	Store       Store
	Sink        ErrorSink
	Completer   Completer
}

// Selection is the outcome of choosing a conversation
type Selection struct {
	ConversationID int64
	Title          string
	// Created is true when the input started a new conversation
	Created bool
	// FirstPrompt is the text that created the conversation. It is meant to be
	// sent as the first turn.
	FirstPrompt string
	History     []convtypes.Message
}

// TurnResult is the outcome of a turn
type TurnResult struct {
	// Skipped is true for a blank prompt, which does nothing
	Skipped   bool
	RequestID string
	Reply     *completion.Response
	// ContextSize is the number of messages sent, the prompt included
	ContextSize int
}

// Controller runs a chat session for one API key
type Controller struct {
	opts Options

	mu             sync.Mutex
	state          State
	conversationID int64
	title          string
	history        []convtypes.Message
}

// New creates a controller. An empty API key is ErrMissingAPIKey.
func New(opts Options) (*Controller, error) {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Schema == nil || opts.Store == nil || opts.Sink == nil || opts.Completer == nil {
		return nil, errors.New("chat controller requires a schema, store, error sink and completer")
	}
	return &Controller{opts: opts, state: StateUninitialized}, nil
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the chosen conversation, or 0
func (c *Controller) ConversationID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Title returns the title of the chosen conversation
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// History returns a copy of the chosen conversation's messages as last read from the store
func (c *Controller) History() []convtypes.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]convtypes.Message(nil), c.history...)
}

// Start converges the schema. Its failure is fatal to the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return nil
	}
	if err := c.opts.Schema.Converge(ctx); err != nil {
		return errors.Wrap(err, "failed to prepare database")
	}
	c.state = StateSchemaConverged
	return nil
}

// Conversations lists the conversations of the session's key, oldest activity first
func (c *Controller) Conversations(ctx context.Context) ([]convtypes.ConversationListing, error) {
	if c.State() == StateUninitialized {
		return nil, ErrNotStarted
	}
	return c.opts.Store.ListConversations(ctx, c.opts.APIKey)
}

// Choose selects a conversation from user input. A number picks an existing
// conversation of the session's key; ErrConversationNotFound means the caller
// should ask again. Any other text starts a new conversation titled by it.
func (c *Controller) Choose(ctx context.Context, input string) (Selection, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Selection{}, ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized:
		return Selection{}, ErrNotStarted
	case StateTurnInFlight:
		return Selection{}, ErrTurnInFlight
	}

	var sel Selection
	if id, err := strconv.ParseUint(input, 10, 63); err == nil {
		conv, err := c.opts.Store.GetConversation(ctx, int64(id), c.opts.APIKey)
		if err != nil {
			if errors.Is(err, conversations.ErrNotFound) {
				return Selection{}, errors.Wrapf(ErrConversationNotFound, "id %d", id)
			}
			return Selection{}, err
		}
		history, err := c.opts.Store.ListMessages(ctx, conv.ID)
		if err != nil {
			return Selection{}, err
		}
		sel = Selection{ConversationID: conv.ID, Title: conv.Title, History: history}
	} else {
		id, err := c.opts.Store.CreateConversation(ctx, input, c.opts.APIKey)
		if err != nil {
			return Selection{}, err
		}
		sel = Selection{ConversationID: id, Title: input, Created: true, FirstPrompt: input}
	}

	c.conversationID = sel.ConversationID
	c.title = sel.Title
	c.history = sel.History
	c.state = StateConversationChosen

	logger.G(ctx).WithField("conversation_id", sel.ConversationID).
		WithField("created", sel.Created).
		Info("conversation chosen")

	sel.History = append([]convtypes.Message(nil), sel.History...)
	return sel, nil
}

// Turn sends prompt with the conversation's recent history. On success the
// prompt and the reply are stored and history is reloaded from the store.
// On failure nothing is stored in the conversation: the failure is written to
// the error log and returned as *TurnError. A blank prompt is skipped.
func (c *Controller) Turn(ctx context.Context, prompt string) (TurnResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return TurnResult{Skipped: true}, nil
	}

	c.mu.Lock()
	switch c.state {
	case StateUninitialized:
		c.mu.Unlock()
		return TurnResult{}, ErrNotStarted
	case StateSchemaConverged:
		c.mu.Unlock()
		return TurnResult{}, ErrNoConversation
	case StateTurnInFlight:
		c.mu.Unlock()
		return TurnResult{}, ErrTurnInFlight
	}
	c.state = StateTurnInFlight
	conversationID := c.conversationID
	history := c.history
	c.mu.Unlock()

	requestID := uuid.New().String()
	ctx = logger.WithField(ctx, "conversation_id", conversationID)
	ctx = logger.WithField(ctx, "request_id", requestID)

	var result TurnResult
	var refreshed []convtypes.Message
	err := telemetry.WithSpan(ctx, telemetry.SpanTurn, func(ctx context.Context) error {
		var err error
		result, refreshed, err = c.turn(ctx, conversationID, history, prompt, requestID)
		return err
	}, attribute.Int64("conversation.id", conversationID), attribute.String("request.id", requestID))

	c.mu.Lock()
	if refreshed != nil {
		c.history = refreshed
	}
	c.state = StateTurnIdle
	c.mu.Unlock()

	return result, err
}

func (c *Controller) turn(ctx context.Context, conversationID int64, history []convtypes.Message, prompt, requestID string) (TurnResult, []convtypes.Message, error) {
	log := logger.G(ctx)
	messages := contextwindow.Build(history, prompt, c.opts.MaxMessages, c.opts.MaxTokens)
	result := TurnResult{RequestID: requestID, ContextSize: len(messages)}
	log.WithField("context_size", len(messages)).Debug("sending turn")

	resp, err := c.opts.Completer.Complete(ctx, messages)
	if err != nil {
		return result, nil, c.fail(ctx, requestID, messages, err)
	}
	result.Reply = resp

	// a reply that arrived is stored even when the caller stops waiting
	storeCtx := context.WithoutCancel(ctx)
	if err := c.opts.Store.AppendUserMessage(storeCtx, conversationID, prompt); err != nil {
		return result, nil, &TurnError{Kind: KindStore, RequestID: requestID, Err: err}
	}
	if err := c.opts.Store.AppendAssistantMessage(storeCtx, conversationID, resp.Reply()); err != nil {
		log.WithError(err).Warn("user message stored without its reply")
		return result, nil, &TurnError{Kind: KindStore, RequestID: requestID, Err: err}
	}

	refreshed, err := c.opts.Store.ListMessages(storeCtx, conversationID)
	if err != nil {
		return result, nil, &TurnError{Kind: KindStore, RequestID: requestID, Err: err}
	}

	log.WithField("prompt_tokens", resp.Usage.PromptTokens).
		WithField("completion_tokens", resp.Usage.CompletionTokens).
		Info("turn completed")
	return result, refreshed, nil
}

// fail records a failed exchange and builds the error returned for it
func (c *Controller) fail(ctx context.Context, requestID string, messages []convtypes.ChatMessage, cause error) error {
	turnErr := &TurnError{Kind: kindOf(cause), RequestID: requestID, Err: cause}

	entry := errorlog.Entry{
		OwnerKey:  c.opts.APIKey,
		Context:   messages,
		RawError:  rawText(cause),
		RequestID: requestID,
	}
	var apiErr *completion.APIError
	if errors.As(cause, &apiErr) {
		entry.API = &errorlog.APIFields{
			Message: apiErr.Message,
			Code:    apiErr.Code,
			Type:    apiErr.Type,
			Param:   apiErr.Param,
		}
	}

	// a cancelled turn is still recorded
	if err := c.opts.Sink.Record(context.WithoutCancel(ctx), entry); err != nil {
		turnErr.LogErr = err
	}

	logger.G(ctx).WithError(cause).WithField("kind", turnErr.Kind).Warn("turn failed")
	return turnErr
}

func kindOf(err error) ErrorKind {
	var apiErr *completion.APIError
	var parseErr *completion.ParseError
	switch {
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &parseErr):
		return KindParse
	default:
		return KindTransport
	}
}

func rawText(err error) string {
	var raw interface{ Raw() string }
	if errors.As(err, &raw) {
		return raw.Raw()
	}
	return err.Error()
}
