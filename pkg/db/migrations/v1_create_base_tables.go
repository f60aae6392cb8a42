package migrations

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/db"
)

// MigrationV1CreateBaseTables creates the error log, conversation and message tables.
func MigrationV1CreateBaseTables() db.Migration {
	return db.Migration{
		Version:     1,
		Description: "Create error, conversation and message tables",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			statements := []struct {
				table string
				sql   string
			}{
				{"error", `
					CREATE TABLE IF NOT EXISTS error (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						key VARCHAR(512) NOT NULL,
						context TEXT,
						error TEXT,
						message TEXT,
						code VARCHAR(128),
						type VARCHAR(128),
						param TEXT,
						updateat DATETIME DEFAULT CURRENT_TIMESTAMP
					)`},
				{"conversation", `
					CREATE TABLE IF NOT EXISTS conversation (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						title VARCHAR(512) NOT NULL,
						key VARCHAR(512) NOT NULL,
						updateat DATETIME DEFAULT CURRENT_TIMESTAMP
					)`},
				{"message", `
					CREATE TABLE IF NOT EXISTS message (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						conversation_id INTEGER NOT NULL,
						role VARCHAR(32) NOT NULL,
						content TEXT,
						prompt_tokens INTEGER NOT NULL,
						completion_tokens INTEGER NOT NULL,
						updateat DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (conversation_id) REFERENCES conversation (id)
					)`},
			}

			for _, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt.sql); err != nil {
					return errors.Wrapf(err, "failed to create %s table", stmt.table)
				}
			}
			return nil
		},
	}
}
