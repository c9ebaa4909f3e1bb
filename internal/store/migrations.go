package store

import (
	"database/sql"

	"github.com/charmbracelet/log"
	"github.com/pressly/goose/v3"
	assets "github.com/slipway-ci/slipway"
)

func RunMigrations(db *sql.DB, dir string) {
	goose.SetBaseFS(assets.MigrationsFS)
	if err := goose.SetDialect("sqlite"); err != nil {
		log.Fatal("setting goose dialect", "err", err)
	}
	if err := goose.Up(db, dir); err != nil {
		log.Fatal("applying migrations", "err", err)
	}
}
