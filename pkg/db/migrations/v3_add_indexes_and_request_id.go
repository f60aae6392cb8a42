package migrations

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/db"
)

// MigrationV3AddIndexesAndRequestID adds lookup indexes for listings and a
// request id column that ties an error log entry to the failed turn.
func MigrationV3AddIndexesAndRequestID() db.Migration {
	return db.Migration{
		Version:     3,
		Description: "Add listing indexes and error request id",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			indexes := []string{
				"CREATE INDEX IF NOT EXISTS idx_message_conversation_updateat ON message(conversation_id, updateat)",
				"CREATE INDEX IF NOT EXISTS idx_conversation_key ON conversation(key)",
			}

			for _, idx := range indexes {
				if _, err := tx.ExecContext(ctx, idx); err != nil {
					return errors.Wrap(err, "failed to create index")
				}
			}

			return addColumn(ctx, tx, "error", "request_id", "TEXT")
		},
	}
}
