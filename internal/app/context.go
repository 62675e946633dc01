package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/engine"
	"jobline/internal/logger"
	"jobline/internal/migrate"
)

// OwnerEnv names the variable holding the default owner for CLI calls.
const OwnerEnv = "JOBLINE_OWNER"

// App is an opened workspace: migrated database, config, logger and engine.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Log       *logger.Logger
	Engine    engine.Engine
}

// Open loads the workspace config, opens and migrates its database and wires
// the engine.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeoutMS: cfg.Store.BusyTimeoutMS})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Log:       log,
		Engine:    engine.New(conn, cfg, log),
	}, nil
}

func (a *App) Close() error {
	a.Log.Sync()
	return a.DB.Close()
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// LoadEnv loads the workspace .env without overriding variables already set.
func LoadEnv(workspace string) error {
	err := godotenv.Load(envPath(workspace))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// SetEnvValue writes key=value into the workspace .env, keeping other entries.
func SetEnvValue(workspace, key, value string) error {
	path := envPath(workspace)
	vals, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		vals = map[string]string{}
	}
	vals[key] = value
	return godotenv.Write(vals, path)
}

// ResolveOwner prefers the explicit override, then JOBLINE_OWNER.
func ResolveOwner(override string) (string, error) {
	if o := strings.TrimSpace(override); o != "" {
		return o, nil
	}
	if o := strings.TrimSpace(os.Getenv(OwnerEnv)); o != "" {
		return o, nil
	}
	return "", fmt.Errorf("owner not specified; use --owner or jl owner use <id>")
}
