package migrations

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/db"
)

// MigrationV2AddConfigAndTopic adds the config table that records the schema
// version and a topic column on conversations.
func MigrationV2AddConfigAndTopic() db.Migration {
	return db.Migration{
		Version:     2,
		Description: "Add config table and conversation topic",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS config (
					version INT NOT NULL PRIMARY KEY
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create config table")
			}

			return addColumn(ctx, tx, "conversation", "topic", "INTEGER DEFAULT 0")
		},
	}
}

// addColumn adds a column unless the table already has it
func addColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	exists, err := db.ColumnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+definition); err != nil {
		return errors.Wrapf(err, "failed to add column %s.%s", table, column)
	}
	return nil
}
