package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_duckdb.sql
var duckdbSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// MemoryPath opens an in-memory database for either engine.
const MemoryPath = ":memory:"

type DB struct {
	Analytics *sql.DB // DuckDB for records, alerts and marts
	App       *sql.DB // SQLite for runs/cache/notifications
}

// Initialize opens both databases. MemoryPath keeps a database in memory.
func Initialize(analyticsPath, appPath string) (*DB, error) {
	for _, p := range []string{analyticsPath, appPath} {
		if p == MemoryPath || p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	duckPath := analyticsPath
	if duckPath == MemoryPath {
		duckPath = ""
	}
	analyticsDB, err := sql.Open("duckdb", duckPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics db: %w", err)
	}
	if _, err := analyticsDB.Exec("PRAGMA threads=4"); err != nil {
		log.Warn().Err(err).Msg("failed to set duckdb threads")
	}
	if err := analyticsDB.Ping(); err != nil {
		analyticsDB.Close()
		return nil, fmt.Errorf("failed to ping analytics db: %w", err)
	}

	// Initialize SQLite (App DB)
	appDB, err := sql.Open("sqlite3", appPath)
	if err != nil {
		analyticsDB.Close()
		return nil, err
	}
	if appPath == MemoryPath {
		// every new connection would get its own empty database
		appDB.SetMaxOpenConns(1)
	} else if _, err := appDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Warn().Err(err).Msg("failed to set WAL mode")
	}
	if err := appDB.Ping(); err != nil {
		analyticsDB.Close()
		appDB.Close()
		return nil, err
	}

	log.Info().Str("analytics", analyticsPath).Str("app", appPath).Msg("databases opened")
	return &DB{Analytics: analyticsDB, App: appDB}, nil
}

// execScript runs a multi-statement SQL script one statement at a time.
func execScript(db *sql.DB, name, script string) error {
	statements := strings.Split(script, ";")
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement in %s: %w\nStatement: %s", name, err, stmt)
		}
	}
	return nil
}

func (db *DB) Close() {
	if db.Analytics != nil {
		db.Analytics.Close()
	}
	if db.App != nil {
		db.App.Close()
	}
}
