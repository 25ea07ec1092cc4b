// Package app wires a workspace's database, config, logger and oracle into
// an engine. The CLI and the HTTP server both start here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"designflow/internal/config"
	"designflow/internal/db"
	"designflow/internal/engine"
	"designflow/internal/logging"
	"designflow/internal/migrate"
	"designflow/internal/oracle"
)

type Options struct {
	Workspace string
	LogLevel  string
	LogJSON   bool
	LogWriter io.Writer
	// Oracle overrides the advisor built from config.
	Oracle oracle.Advisor
}

type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Log    *slog.Logger
}

// Open migrates the workspace database and builds an engine over it. A
// missing config file falls back to defaults.
func Open(ctx context.Context, opts Options) (*Env, error) {
	logger, err := logging.New("designflow", logging.Options{Level: opts.LogLevel, JSON: opts.LogJSON, Writer: opts.LogWriter})
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Log = logger.With("component", "engine")
	eng.Oracle = opts.Oracle
	if eng.Oracle == nil {
		eng.Oracle = oracle.New(cfg.Oracle, logger.With("component", "oracle"))
	}
	return &Env{DB: conn, Config: cfg, Engine: eng, Log: logger}, nil
}

func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

type InitResult struct {
	ConfigPath    string `json:"config_path"`
	ConfigCreated bool   `json:"config_created"`
	DBPath        string `json:"db_path"`
	SchemaVersion int    `json:"schema_version"`
	Seeded        bool   `json:"seeded"`
}

// Init writes a default config when none exists, migrates the database and
// optionally loads demo data.
func Init(ctx context.Context, opts Options, team string, seed bool, actorID string) (InitResult, error) {
	res := InitResult{ConfigPath: config.Path(opts.Workspace), DBPath: db.Path(opts.Workspace)}
	if _, err := os.Stat(res.ConfigPath); errors.Is(err, os.ErrNotExist) {
		if team == "" {
			team = "design"
		}
		if err := os.WriteFile(res.ConfigPath, []byte(config.GenerateDefault(team)), 0o644); err != nil {
			return res, fmt.Errorf("write config: %w", err)
		}
		res.ConfigCreated = true
	} else if err != nil {
		return res, err
	}
	env, err := Open(ctx, opts)
	if err != nil {
		return res, err
	}
	defer env.Close()
	if res.SchemaVersion, err = migrate.Version(ctx, env.DB); err != nil {
		return res, err
	}
	if seed {
		if err := env.Engine.Seed(ctx, actorID); err != nil {
			return res, err
		}
		res.Seeded = true
	}
	return res, nil
}
