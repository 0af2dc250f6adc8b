package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/workmesh/marketmirror/internal/db"
	"github.com/workmesh/marketmirror/internal/logger"
)

//go:embed 001_initial.sql
var mig001 string

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations runs all migrations for the state store database at dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, all())
}

// RunMigrationsDB runs all migrations against an open database connection.
func RunMigrationsDB(log *logger.Logger, conn *sql.DB) error {
	return db.RunMigrationsDB(log, conn, all())
}
