package app

import (
	"database/sql"
	"fmt"

	"salesline/internal/config"
	"salesline/internal/db"
	"salesline/internal/migrate"
	"salesline/internal/pipeline"
)

// App bundles the open database, loaded config and engine for one workspace.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    pipeline.Engine
}

// Open prepares the workspace: ensures the directory, opens the database,
// runs pending migrations and loads salesline.yml (falling back to the
// built-in default catalog when the file is absent).
func Open(workspace string) (*App, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    pipeline.New(conn, cfg),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
