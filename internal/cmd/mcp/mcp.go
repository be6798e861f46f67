// Package mcp parses MCP command flags and serves the gamebook tool
// surface over stdio.
package mcp

import (
	"context"
	"flag"
	"log"

	"github.com/louisbranch/gamebook/internal/cmd/runtime"
	"github.com/louisbranch/gamebook/internal/platform/config"
	"github.com/louisbranch/gamebook/internal/platform/telemetry"
	"github.com/louisbranch/gamebook/internal/platform/timeouts"
	"github.com/louisbranch/gamebook/internal/services/mcp/domain"
	"github.com/louisbranch/gamebook/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	ContentDir string `env:"GAMEBOOK_CONTENT_DIR" envDefault:"./content"`
	CacheDir   string `env:"GAMEBOOK_CACHE_DIR"   envDefault:"./cache"`
	DBPath     string `env:"GAMEBOOK_DB_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ContentDir, "content-dir", cfg.ContentDir, "directory with raw sections and rules")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for cached content and game state")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite registry path (optional)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the engine and serves MCP over stdio until the context is
// cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := telemetry.Setup(ctx, "gamebook-mcp")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	rt, err := runtime.Build(cfg.ContentDir, cfg.CacheDir, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("close runtime: %v", err)
		}
	}()

	var recorder domain.TurnRecorder
	if rt.Registry != nil {
		recorder = rt.Registry
	}

	server, err := service.New(rt.Engine, recorder, service.NarratorSectionLoader{Node: rt.Narrator})
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
