package app

import (
	"context"
	"database/sql"
	"fmt"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/engine"
	"taskflow/internal/engine/auth"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
)

// Options select the workspace and secrets for Open.
type Options struct {
	Workspace string
	// Config defaults to the workspace taskflow.yml, or the built-in default.
	Config *config.Config
	// JWTSecret may be empty for commands that never issue or check tokens.
	JWTSecret string
}

// App bundles the opened database with the engine wired on top of it.
type App struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Config *config.Config
}

// Open prepares the workspace database, applies migrations and builds the
// engine from the role table in the config.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(opts.Workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var tokens *auth.TokenCodec
	if opts.JWTSecret != "" {
		codec, err := auth.NewTokenCodec(opts.JWTSecret)
		if err != nil {
			return nil, err
		}
		tokens = codec
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	return &App{
		DB:     conn,
		Repo:   r,
		Engine: engine.New(r, auth.NewHierarchy(cfg.Roles), tokens),
		Config: cfg,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
