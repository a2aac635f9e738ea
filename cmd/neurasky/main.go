package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/neurasky/neurasky/internal/config"
	"github.com/neurasky/neurasky/internal/store"
)

type Globals struct {
	EnvFile   kongdotenv.ENVFileConfig `name:"env-file" default:".env" help:"Path to a .env file."`
	Config    kong.ConfigFlag          `help:"Path to a YAML config file." type:"path"`
	LogLevel  string                   `default:"info" enum:"debug,info,warn,error" env:"NEURASKY_LOG_LEVEL" help:"Log level."`
	LogFormat string                   `default:"text" enum:"text,json" env:"NEURASKY_LOG_FORMAT" help:"Log format."`
	DB        string                   `default:"data/neurasky.db" env:"NEURASKY_DB" type:"path" help:"Path to the SQLite database."`
	Artifacts string                   `default:"data/artifacts" env:"NEURASKY_ARTIFACTS" type:"path" help:"Artifact bundle root."`
	Timezone  string                   `default:"Asia/Kuala_Lumpur" env:"NEURASKY_TIMEZONE" help:"Zone in which departure times are read."`

	logger *slog.Logger
	loc    *time.Location
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Serve predictions over HTTP."`
	Train    TrainCmd    `cmd:"" help:"Train and save a new artifact bundle."`
	Import   ImportCmd   `cmd:"" help:"Import a historical flight dataset into the store."`
	Generate GenerateCmd `cmd:"" help:"Write a synthetic flight dataset as CSV."`
	Predict  PredictCmd  `cmd:"" help:"Score one flight with the active bundle."`
	Forecast ForecastCmd `cmd:"" help:"Show a 24 hour risk forecast for a route."`
	Runs     RunsCmd     `cmd:"" help:"List recent training runs."`
	Activate ActivateCmd `cmd:"" help:"Point the service at an existing bundle."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("neurasky"),
		kong.Description("Flight delay risk training and inference."),
		kong.UsageOnError(),
		kong.Configuration(config.YAML, "neurasky.yaml"),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	cli.logger = config.InitLogger(config.LogConfig{Level: cli.LogLevel, Format: cli.LogFormat})

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		cli.logger.Warn("could not load timezone, using UTC", "timezone", cli.Timezone, "error", err)
		loc = time.UTC
	}
	cli.loc = loc

	if err := kctx.Run(&cli.Globals); err != nil {
		cli.logger.Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

// openStore opens and migrates the database.
func (g *Globals) openStore() (*store.Store, func(), error) {
	if dir := filepath.Dir(g.DB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	g.logger.Debug("database migrated", "path", g.DB)
	return st, func() { db.Close() }, nil
}
