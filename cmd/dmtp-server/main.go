// Command dmtp-server runs the DMTP listener: TCP/UDP packet intake,
// identification, event persistence, and the admin metrics/health surface.
// Bootstrap order follows the teacher's cmd/cc-backend/main.go: parse
// flags, optionally start the gops debugging agent, load the environment
// file, read and validate the JSON config, connect the configured store,
// then either run one-shot maintenance (-migrate-db, -no-server) or start
// serving until a signal arrives.
package main

import (
	"database/sql"

	"github.com/google/gops/agent"

	"github.com/opendmtp/dmtp-backend/internal/config"
	"github.com/opendmtp/dmtp-backend/internal/store/sqlstore"
	"github.com/opendmtp/dmtp-backend/pkg/log"
)

func main() {
	flags := parseFlags()

	if flags.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err)
		}
	}

	if err := config.Init(flags.configFile, flags.envFile); err != nil {
		log.Fatalf("config: %s", err)
	}
	log.SetLogLevel(config.Keys.Log.Level)

	if flags.migrateDB {
		if err := runMigrations(); err != nil {
			log.Fatalf("migrate-db: %s", err)
		}
		return
	}

	b, err := initBackend()
	if err != nil {
		log.Fatalf("init: %s", err)
	}
	defer b.Close()

	if flags.noServer {
		return
	}

	if err := runServer(b); err != nil {
		log.Fatalf("server: %s", err)
	}
}

// runMigrations applies pending schema migrations and exits. Only
// meaningful for the sql-backed store drivers; the memory store has no
// schema to migrate.
func runMigrations() error {
	switch config.Keys.DB.Driver {
	case "sqlite3", "mysql":
	default:
		log.Warnf("migrate-db: db.driver %q has no migrations, skipping", config.Keys.DB.Driver)
		return nil
	}

	conn, err := sqlstore.Connect(config.Keys.DB.Driver, config.Keys.DB.DSN, false)
	if err != nil {
		return err
	}
	var raw *sql.DB = conn.DB.DB
	defer raw.Close()

	if err := sqlstore.Migrate(config.Keys.DB.Driver, raw); err != nil {
		return err
	}
	log.Info("migrate-db: schema is up to date")
	return nil
}
