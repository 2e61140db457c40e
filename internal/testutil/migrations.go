package testutil

import (
	"database/sql"

	"github.com/marianozunino/cloudshare/internal/migration"
)

// RunTestMigrations applies the embedded migrations to db
func RunTestMigrations(db *sql.DB) error {
	m, err := migration.NewManagerWithDB(db)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up()
}
