package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sprintlens/internal/config"
	"sprintlens/internal/db"
	"sprintlens/internal/engine"
	"sprintlens/internal/logging"
	"sprintlens/internal/migrate"
)

// Options select the workspace and override config values.
type Options struct {
	Workspace string
	DBPath    string
	LogLevel  string
	LogFormat string
}

// App bundles everything a command or the server needs.
type App struct {
	Workspace string
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sql.DB
	Engine    engine.Engine
}

// Open prepares the workspace, loads sprintlens.yml (defaults when absent),
// opens the database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*App, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	conn, err := db.Open(db.Config{Workspace: workspace, Path: opts.DBPath})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Debug("migrations applied", zap.Int("count", applied), zap.String("db", db.Path(db.Config{Workspace: workspace, Path: opts.DBPath})))
	}
	return &App{
		Workspace: workspace,
		Config:    cfg,
		Logger:    logger,
		DB:        conn,
		Engine:    engine.New(conn, cfg, logger),
	}, nil
}

func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.DB.Close()
}

// LoadEnv loads <workspace>/.env into the process environment without
// overriding variables that are already set.
func LoadEnv(workspace string) error {
	path := EnvPath(workspace)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func EnvPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// SetEnvValue writes key=value into the workspace .env, keeping other entries.
func SetEnvValue(workspace, key, value string) error {
	path := EnvPath(workspace)
	values := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return err
		}
		values = existing
	}
	values[key] = value
	return godotenv.Write(values, path)
}
