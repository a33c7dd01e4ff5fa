// Package db owns the workspace layout: a .salesline directory next to the
// user's project files holding the SQLite database (and, one level up, the
// optional salesline.yml).
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".salesline"
	databaseFile = "salesline.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .salesline directory under workspace when it
// is missing and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database. WAL keeps the CLI and a running server
// from blocking each other on the same file; the busy timeout covers the
// brief writer lock during ledger appends.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return sql.Open("sqlite", dsn)
}

// Path returns the database file path for the workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), workspaceDir, databaseFile)
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
