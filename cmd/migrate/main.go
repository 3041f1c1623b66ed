package main

import (
	"errors"
	"flag"
	"os"
	"strconv"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/cabinet-quote/internal/config"
	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/store"
)

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "migrate").Logger()

	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	m, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrator")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
		}
	}()

	switch cmd {
	case "up":
		err = store.RunMigrations(m)
	case "down":
		steps := 1
		if raw := flag.Arg(1); raw != "" {
			if steps, err = strconv.Atoi(raw); err != nil || steps <= 0 {
				logger.Fatal().Str("steps", raw).Msg("steps must be a positive integer")
			}
		}
		err = m.Steps(-steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			err = verr
			break
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	default:
		logger.Error().Str("command", cmd).Msg("usage: migrate [up|down [steps]|version]")
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}
	logger.Info().Str("command", cmd).Msg("migration complete")
}
