// Applies the embedded schema migrations to the database named by
// DATABASE_URL. With no arguments it migrates up to the latest version;
// "migrate force <version>" pins the recorded version after a failed
// run left the schema dirty.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appmigrations "github.com/atendeai/booking-engine/migrations"
)

func main() {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	m, cleanup, err := newMigrator(databaseURL)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	defer cleanup()

	if len(os.Args) >= 3 && os.Args[1] == "force" {
		forceVersion(m, os.Args[2])
		return
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate up: %v", err)
	}

	fmt.Println("migrations complete")
}

func newMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	cleanup := func() {
		_, _ = m.Close()
		_ = db.Close()
	}
	return m, cleanup, nil
}

func forceVersion(m *migrate.Migrate, arg string) {
	version, err := strconv.Atoi(arg)
	if err != nil {
		log.Fatalf("invalid version %q: %v", arg, err)
	}
	if err := m.Force(version); err != nil {
		log.Fatalf("force version: %v", err)
	}
	fmt.Printf("forced version to %d\n", version)
}
