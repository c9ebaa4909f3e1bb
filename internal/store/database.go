package store

import (
	"database/sql"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/slipway-ci/slipway/internal/settings"
)

func InitDatabase(readonly bool) *sql.DB {
	db, err := sql.Open("sqlite", settings.Settings.SQLiteDbString(readonly))
	if err != nil {
		log.Fatal("opening sqlite database", "err", err)
	}

	if readonly {
		db.SetMaxOpenConns(max(4, runtime.NumCPU()))
	} else {
		if _, err := db.Exec("PRAGMA temp_store=memory"); err != nil {
			log.Fatal("setting temp_store pragma", "err", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			log.Fatal("setting foreign_keys pragma", "err", err)
		}
		db.SetMaxOpenConns(1)
	}

	return db
}
