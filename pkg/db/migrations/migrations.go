// Package migrations contains the schema chain of the playground database.
// Versions are consecutive integers; a version is never skipped.
package migrations

import (
	"github.com/jingkaihe/playground/pkg/db"
)

// All returns all registered migrations in the correct order.
// New migrations should be added to the end of this list.
func All() []db.Migration {
	return []db.Migration{
		MigrationV1CreateBaseTables(),
		MigrationV2AddConfigAndTopic(),
		MigrationV3AddIndexesAndRequestID(),
	}
}
