// Package conversations stores conversations and their messages in the
// playground database. Usage and last activity of a conversation are always
// derived from its messages at read time; they are never stored.
package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/db"
	"github.com/jingkaihe/playground/pkg/logger"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// ErrNotFound is returned when a conversation does not exist for the given owner
var ErrNotFound = errors.New("conversation not found")

// StoreError reports a failed store operation: a constraint violation, an
// I/O fault, or stored data that cannot be decoded.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("conversation store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Store implements conversation and message persistence over SQLite.
// It expects a database that has been converged to the latest schema.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store on an open database
func NewStore(sqlDB *sqlx.DB) *Store {
	return &Store{db: sqlDB}
}

type dbListing struct {
	ID         int64        `db:"id"`
	Title      string       `db:"title"`
	Usage      int64        `db:"usage"`
	LastUpdate db.Timestamp `db:"last_update"`
}

type dbConversation struct {
	ID        int64         `db:"id"`
	Title     string        `db:"title"`
	Key       string        `db:"key"`
	Topic     sql.NullInt64 `db:"topic"`
	CreatedAt db.Timestamp  `db:"updateat"`
}

type dbMessage struct {
	ID               int64          `db:"id"`
	ConversationID   int64          `db:"conversation_id"`
	Role             string         `db:"role"`
	Content          sql.NullString `db:"content"`
	PromptTokens     int64          `db:"prompt_tokens"`
	CompletionTokens int64          `db:"completion_tokens"`
	CreatedAt        db.Timestamp   `db:"updateat"`
}

func (m dbMessage) toMessage() (convtypes.Message, error) {
	role, err := convtypes.ParseRole(m.Role)
	if err != nil {
		return convtypes.Message{}, errors.Wrapf(err, "message %d", m.ID)
	}
	return convtypes.Message{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Role:             role,
		Content:          m.Content.String,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		CreatedAt:        m.CreatedAt.Time,
	}, nil
}

// CreateConversation inserts a conversation owned by ownerKey and returns its id.
// The title is stored verbatim.
func (s *Store) CreateConversation(ctx context.Context, title, ownerKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO conversation (title, key) VALUES (?, ?)", title, ownerKey)
	if err != nil {
		return 0, storeErr("create conversation", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("create conversation", err)
	}

	logger.G(ctx).WithField("conversation_id", id).Debug("created conversation")
	return id, nil
}

// GetConversation loads a conversation if it belongs to ownerKey
func (s *Store) GetConversation(ctx context.Context, id int64, ownerKey string) (convtypes.Conversation, error) {
	var row dbConversation
	err := s.db.GetContext(ctx, &row,
		"SELECT id, title, key, topic, updateat FROM conversation WHERE id = ? AND key = ?", id, ownerKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return convtypes.Conversation{}, errors.Wrapf(ErrNotFound, "id %d", id)
		}
		return convtypes.Conversation{}, storeErr("get conversation", err)
	}

	return convtypes.Conversation{
		ID:        row.ID,
		Title:     row.Title,
		OwnerKey:  row.Key,
		Topic:     row.Topic.Int64,
		CreatedAt: row.CreatedAt.Time,
	}, nil
}

// ListConversations returns the conversations owned by ownerKey with their
// token usage and last activity, oldest activity first.
func (s *Store) ListConversations(ctx context.Context, ownerKey string) ([]convtypes.ConversationListing, error) {
	query := `
		SELECT
			a.id AS id,
			a.title AS title,
			IFNULL(SUM(b.prompt_tokens) + SUM(b.completion_tokens), 0) AS usage,
			IFNULL(MAX(b.updateat), a.updateat) AS last_update
		FROM conversation a
		LEFT JOIN message b ON a.id = b.conversation_id
		WHERE a.key = ?
		GROUP BY a.id
		ORDER BY last_update ASC, a.id ASC
	`

	var rows []dbListing
	if err := s.db.SelectContext(ctx, &rows, query, ownerKey); err != nil {
		return nil, storeErr("list conversations", err)
	}

	listings := make([]convtypes.ConversationListing, len(rows))
	for i, row := range rows {
		listings[i] = convtypes.ConversationListing{
			ID:         row.ID,
			Title:      row.Title,
			Usage:      row.Usage,
			LastUpdate: row.LastUpdate.Time,
		}
	}
	return listings, nil
}

// ListMessages returns all messages of a conversation in creation order
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]convtypes.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, prompt_tokens, completion_tokens, updateat
		FROM message
		WHERE conversation_id = ?
		ORDER BY updateat ASC, id ASC
	`

	var rows []dbMessage
	if err := s.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, storeErr("list messages", err)
	}

	messages := make([]convtypes.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toMessage()
		if err != nil {
			return nil, storeErr("list messages", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

type dbUsage struct {
	ConversationID   int64        `db:"conversation_id"`
	PromptTokens     int64        `db:"prompt_tokens"`
	CompletionTokens int64        `db:"completion_tokens"`
	At               db.Timestamp `db:"updateat"`
}

// ListUsage returns the token accounting of every reply in conversations
// owned by ownerKey, oldest first. Messages without usage are left out.
func (s *Store) ListUsage(ctx context.Context, ownerKey string) ([]convtypes.UsageRecord, error) {
	query := `
		SELECT b.conversation_id, b.prompt_tokens, b.completion_tokens, b.updateat
		FROM message b
		JOIN conversation a ON a.id = b.conversation_id
		WHERE a.key = ? AND (b.prompt_tokens > 0 OR b.completion_tokens > 0)
		ORDER BY b.updateat ASC, b.id ASC
	`

	var rows []dbUsage
	if err := s.db.SelectContext(ctx, &rows, query, ownerKey); err != nil {
		return nil, storeErr("list usage", err)
	}

	records := make([]convtypes.UsageRecord, len(rows))
	for i, row := range rows {
		records[i] = convtypes.UsageRecord{
			ConversationID:   row.ConversationID,
			PromptTokens:     row.PromptTokens,
			CompletionTokens: row.CompletionTokens,
			At:               row.At.Time,
		}
	}
	return records, nil
}

// AppendUserMessage stores the user's prompt. User messages carry no token usage.
func (s *Store) AppendUserMessage(ctx context.Context, conversationID int64, content string) error {
	return s.insertMessage(ctx, "append user message", conversationID, convtypes.RoleUser, content, 0, 0)
}

// AppendAssistantMessage stores the server's reply with its token accounting
func (s *Store) AppendAssistantMessage(ctx context.Context, conversationID int64, reply convtypes.Reply) error {
	const op = "append assistant message"

	role, err := convtypes.ParseRole(string(reply.Role))
	if err != nil {
		return storeErr(op, err)
	}
	if reply.PromptTokens < 0 || reply.CompletionTokens < 0 {
		return storeErr(op, errors.Errorf("negative token count (prompt %d, completion %d)",
			reply.PromptTokens, reply.CompletionTokens))
	}

	return s.insertMessage(ctx, op, conversationID, role, reply.Content, reply.PromptTokens, reply.CompletionTokens)
}

func (s *Store) insertMessage(ctx context.Context, op string, conversationID int64, role convtypes.Role, content string, promptTokens, completionTokens int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message (conversation_id, role, content, prompt_tokens, completion_tokens)
		VALUES (?, ?, ?, ?, ?)
	`, conversationID, string(role), strings.TrimSpace(content), promptTokens, completionTokens)
	if err != nil {
		return storeErr(op, err)
	}

	logger.G(ctx).WithField("conversation_id", conversationID).WithField("role", role).Debug("stored message")
	return nil
}
