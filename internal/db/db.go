package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/workmesh/marketmirror/pkg/config"
)

// NewSQLiteDB opens a SQLite DB with the settings every component relies on:
// immediate transactions so writers serialize at BEGIN, WAL for concurrent
// readers.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// NewSQLiteDBFromConfig opens a SQLite DB with the given configuration.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}

	return db, nil
}
