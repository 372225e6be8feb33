package sqlstore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

func newMigrate(driver string, db *sql.DB) (*migrate.Migrate, error) {
	switch driver {
	case "sqlite3":
		d, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, err
		}
		src, err := iofs.New(migrationFiles, "migrations/sqlite3")
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite3", d)
	case "mysql":
		d, err := mysql.WithInstance(db, &mysql.Config{})
		if err != nil {
			return nil, err
		}
		src, err := iofs.New(migrationFiles, "migrations/mysql")
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "mysql", d)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// Migrate applies every pending migration. Called from the CLI's
// -migrate-db flag, not at normal server startup.
func Migrate(driver string, db *sql.DB) error {
	m, err := newMigrate(driver, db)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// CheckVersion warns, but does not fail, when the schema is behind the
// migrations this binary ships.
func CheckVersion(driver string, db *sql.DB) {
	m, err := newMigrate(driver, db)
	if err != nil {
		log.Warnf("sqlstore: version check skipped: %v", err)
		return
	}
	defer m.Close()

	v, _, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			log.Warn("sqlstore: database has no migration version; run -migrate-db")
		} else {
			log.Warnf("sqlstore: version check failed: %v", err)
		}
		return
	}
	log.Infof("sqlstore: schema at migration version %d", v)
}
