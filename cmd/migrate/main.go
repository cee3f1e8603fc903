package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"contentgen/internal/dbmigrate"
	"contentgen/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL    string
		migrationsPath string
		command        string
	)
	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", dbmigrate.CommandUp, "Migration command: up, down, steps, version, force")
	flag.Parse()

	logger := infra.NewLogger(os.Getenv("APP_ENV"), "migrate")

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal().Msg("database url is required via -database or DATABASE_URL")
	}

	arg := 0
	if command == dbmigrate.CommandForce || command == dbmigrate.CommandSteps {
		if flag.NArg() < 1 {
			logger.Fatal().Str("command", command).Msg("command requires a numeric argument")
		}
		n, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			logger.Fatal().Err(err).Str("arg", flag.Arg(0)).Msg("invalid numeric argument")
		}
		arg = n
	}

	db, err := dbmigrate.Open(databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer db.Close()

	res, err := dbmigrate.Run(db, migrationsPath, command, arg)
	if err != nil {
		logger.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}

	evt := logger.Info().Str("command", command).Uint("version", res.Version).Bool("dirty", res.Dirty)
	if res.NoChange {
		evt.Msg("database is up to date")
		return
	}
	evt.Msg("migration completed")
}
