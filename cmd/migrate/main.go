// Command migrate manages the harvest service database schema.
//
// Usage:
//
//	migrate [flags] up        apply all pending migrations
//	migrate [flags] down      roll back all migrations
//	migrate [flags] step N    move N versions; negative N rolls back
//	migrate [flags] status    print the current schema version
//	migrate [flags] force V   mark version V as applied without running it
//
// Database settings come from the same configuration as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholium/harvest-service/internal/config"
	"github.com/scholium/harvest-service/internal/database"
	"github.com/scholium/harvest-service/internal/observability"
)

func main() {
	path := flag.String("path", "", "migrations directory (defaults to the configured path)")
	timeout := flag.Duration("timeout", 30*time.Second, "database connect timeout")
	flag.Usage = usage
	flag.Parse()

	if err := run(flag.Args(), *path, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), `Usage: migrate [flags] <command>

Commands:
  up        apply all pending migrations
  down      roll back all migrations
  step N    move N versions; negative N rolls back
  status    print the current schema version
  force V   mark version V as applied without running it

Flags:
`)
	flag.PrintDefaults()
}

func run(args []string, pathOverride string, timeout time.Duration) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	dir := cfg.Database.MigrationPath
	if pathOverride != "" {
		dir = pathOverride
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("open migrations at %s: %w", dir, err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("migrator close")
		}
	}()

	switch cmd := args[0]; cmd {
	case "up":
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("up: %w", err)
		}

	case "down":
		logger.Warn().Msg("rolling back every migration")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("down: %w", err)
		}

	case "step":
		n, err := commandArg(args, "step")
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("step: N must be non-zero")
		}
		if err := migrator.Steps(n); err != nil {
			return fmt.Errorf("step %d: %w", n, err)
		}

	case "status":
		// The version report below is the whole command.

	case "force":
		v, err := commandArg(args, "force")
		if err != nil {
			return err
		}
		if v < 0 {
			return errors.New("force: version must be non-negative")
		}
		logger.Warn().Int("version", v).Msg("forcing schema version")
		if err := migrator.Force(v); err != nil {
			return fmt.Errorf("force %d: %w", v, err)
		}

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	reportVersion(migrator, logger)
	return nil
}

// commandArg parses the numeric argument of step and force.
func commandArg(args []string, cmd string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s: missing argument", cmd)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", cmd, args[1])
	}
	return n, nil
}

func reportVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("schema version unknown")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
