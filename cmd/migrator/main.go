// Command migrator applies the Postgres schema migrations under
// migrations/. The sqlite backend manages its own schema on open and
// does not use this tool.
package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var dbUrl, migrationsPath, migrationsTable string
	var down bool

	flag.StringVar(&dbUrl, "db-url", "cardstore:cardstore@localhost:5433/cardstore", "db url connection")
	flag.StringVar(&migrationsPath, "migrations-path", "./migrations", "path to migrations")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.BoolVar(&down, "down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	if dbUrl == "" {
		panic("db url is required")
	}
	if migrationsPath == "" {
		panic("migrations path is required")
	}

	m, err := migrate.New(
		"file://"+migrationsPath,
		fmt.Sprintf("postgresql://%s?x-migrations-table=%s&sslmode=disable", dbUrl, migrationsTable),
	)
	if err != nil {
		panic(err)
	}

	step := m.Up
	if down {
		step = m.Down
	}
	if err := step(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}

	fmt.Println("migrations applied successfully")
}
