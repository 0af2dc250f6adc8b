package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/workmesh/marketmirror/internal/logger"
)

const upDownSeparator = "-- +migrate Up"

// Migration is one embedded SQL migration. The SQL contains a Down section
// followed by "-- +migrate Up" and the Up section.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations opens the database at dbPath and applies every pending
// migration in order.
func RunMigrations(dbPath string, migrations []Migration) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer db.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), db, migrations)
}

// RunMigrationsDB applies every pending migration against an open database.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	src := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}

	for _, m := range migrations {
		downSQL, upSQL, err := splitMigration(m)
		if err != nil {
			return err
		}

		src.Migrations = append(src.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	n, err := migrate.Exec(db, "sqlite3", src, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	log.Infof("successfully ran %d of %d migrations", n, len(migrations))
	return nil
}

func splitMigration(m Migration) (down, up string, err error) {
	parts := strings.Split(m.SQL, upDownSeparator)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("migration %s missing '-- +migrate Up' separator", m.ID)
	}

	down = parts[0]
	if idx := strings.Index(down, "-- +migrate Down"); idx != -1 {
		down = down[idx+len("-- +migrate Down"):]
	}

	return strings.TrimSpace(down), strings.TrimSpace(parts[1]), nil
}
