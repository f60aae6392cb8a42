// Package errorlog records failed completion exchanges for operators.
// Entries are append-only and are not read back on the chat path.
package errorlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/logger"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// APIFields are the fields extracted from a structured error payload
type APIFields struct {
	Message string
	Code    string
	Type    string
	Param   string
}

// Entry is one failed exchange
type Entry struct {
	OwnerKey string
	// Context is the exact message list that was about to be sent
	Context  []convtypes.ChatMessage
	RawError string
	// API is nil for transport and parse failures
	API       *APIFields
	RequestID string
}

// RecordError reports that an entry could not be written. It is never the
// cause of a failed turn, only a companion to it.
type RecordError struct {
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("failed to record error log entry: %v", e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Sink writes entries to the error table
type Sink struct {
	db *sqlx.DB
}

// NewSink creates a sink on a converged database
func NewSink(sqlDB *sqlx.DB) *Sink {
	return &Sink{db: sqlDB}
}

type dbEntry struct {
	Key       string  `db:"key"`
	Context   string  `db:"context"`
	Error     string  `db:"error"`
	Message   *string `db:"message"`
	Code      *string `db:"code"`
	Type      *string `db:"type"`
	Param     *string `db:"param"`
	RequestID *string `db:"request_id"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Record appends an entry. A failure is returned as *RecordError.
func (s *Sink) Record(ctx context.Context, entry Entry) error {
	snapshot := entry.Context
	if snapshot == nil {
		snapshot = []convtypes.ChatMessage{}
	}
	contextJSON, err := json.Marshal(snapshot)
	if err != nil {
		return &RecordError{Err: errors.Wrap(err, "failed to serialize context")}
	}

	row := dbEntry{
		Key:       entry.OwnerKey,
		Context:   string(contextJSON),
		Error:     entry.RawError,
		RequestID: nullable(entry.RequestID),
	}
	if entry.API != nil {
		row.Message = &entry.API.Message
		row.Code = nullable(entry.API.Code)
		row.Type = nullable(entry.API.Type)
		row.Param = nullable(entry.API.Param)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO error (key, context, error, message, code, type, param, request_id)
		VALUES (:key, :context, :error, :message, :code, :type, :param, :request_id)
	`, row)
	if err != nil {
		return &RecordError{Err: err}
	}

	logger.G(ctx).WithField("request_id", entry.RequestID).Debug("recorded failed exchange")
	return nil
}

// Count returns the number of entries recorded for an owner
func (s *Sink) Count(ctx context.Context, ownerKey string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM error WHERE key = ?", ownerKey); err != nil {
		return 0, errors.Wrap(err, "failed to count error log entries")
	}
	return n, nil
}
