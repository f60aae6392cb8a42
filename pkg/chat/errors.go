package chat

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	// ErrMissingAPIKey means no credential was supplied. A session cannot start without one.
	ErrMissingAPIKey = errors.New("no API key provided")
	// ErrEmptyInput is returned by Choose for blank input
	ErrEmptyInput = errors.New("empty input")
	// ErrConversationNotFound is returned by Choose for an id the owner has no conversation with
	ErrConversationNotFound = errors.New("no such conversation")
	// ErrTurnInFlight is returned when a turn is requested while another is outstanding
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrNotStarted is returned when the schema has not been converged yet
	ErrNotStarted = errors.New("session has not been started")
	// ErrNoConversation is returned by Turn before a conversation has been chosen
	ErrNoConversation = errors.New("no conversation chosen")
)

// ErrorKind classifies a failed turn
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindAPI       ErrorKind = "api"
	KindParse     ErrorKind = "parse"
	KindStore     ErrorKind = "store"
)

// TurnError is a failed turn. The conversation history is unchanged unless
// Kind is KindStore and the failure hit the assistant message.
type TurnError struct {
	Kind      ErrorKind
	RequestID string
	Err       error
	// LogErr is set when the failure could not be written to the error log
	LogErr error
}

func (e *TurnError) Error() string {
	if e.LogErr == nil {
		return e.Err.Error()
	}
	return e.combined().Error()
}

func (e *TurnError) Unwrap() error {
	if e.LogErr == nil {
		return e.Err
	}
	return e.combined()
}

func (e *TurnError) combined() *multierror.Error {
	merr := multierror.Append(e.Err, e.LogErr)
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, "; ")
	}
	return merr
}
