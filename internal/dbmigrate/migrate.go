// Package dbmigrate applies the SQL schema in migrations/ with golang-migrate.
package dbmigrate

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Command names accepted by Run.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandVersion = "version"
	CommandForce   = "force"
	CommandSteps   = "steps"
)

// Result reports the schema version after a command.
type Result struct {
	Version  uint
	Dirty    bool
	NoChange bool
}

// Open connects to DATABASE_URL through lib/pq, the driver golang-migrate's
// postgres backend expects.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Run executes command against db using the migrations found in dir. arg is
// the target version for force and the step count for steps.
func Run(db *sql.DB, dir, command string, arg int) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve migrations path: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return Result{}, fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return Result{}, fmt.Errorf("create migration instance: %w", err)
	}

	var res Result
	switch command {
	case CommandUp:
		err = m.Up()
	case CommandDown:
		err = m.Down()
	case CommandSteps:
		err = m.Steps(arg)
	case CommandForce:
		err = m.Force(arg)
	case CommandVersion:
	default:
		return Result{}, fmt.Errorf("unknown migrate command %q", command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		res.NoChange = true
		err = nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("migrate %s: %w", command, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("read version: %w", err)
	}
	res.Version = version
	res.Dirty = dirty
	return res, nil
}
