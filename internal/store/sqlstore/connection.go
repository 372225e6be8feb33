// Package sqlstore is the SQL-backed implementation of the store
// interfaces (component G): account/device/event/template persistence
// over sqlite3 or mysql via jmoiron/sqlx, with query logging wired through
// qustavo/sqlhooks and schema migrations through golang-migrate.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// Connection wraps the live database handle shared by every sqlstore
// table accessor.
type Connection struct {
	DB     *sqlx.DB
	Driver string
}

// Connect opens driver/dsn, registering a query-logging driver wrapper
// when showSQL is set (config key log.show.sql).
func Connect(driver, dsn string, showSQL bool) (*Connection, error) {
	var dbHandle *sqlx.DB
	var err error

	switch driver {
	case "sqlite3":
		drvName := "sqlite3"
		if showSQL {
			drvName = "sqlite3WithHooks"
			sql.Register(drvName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryLogHooks{}))
		}
		dbHandle, err = sqlx.Open(drvName, fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err != nil {
			return nil, err
		}
		// sqlite3 does not multiplex writers; more than one open
		// connection just means waiting on its own lock.
		dbHandle.SetMaxOpenConns(1)
	case "mysql":
		drvName := "mysql"
		if showSQL {
			drvName = "mysqlWithHooks"
			sql.Register(drvName, sqlhooks.Wrap(&mysql.MySQLDriver{}, &queryLogHooks{}))
		}
		dbHandle, err = sqlx.Open(drvName, fmt.Sprintf("%s?multiStatements=true", dsn))
		if err != nil {
			return nil, err
		}
		dbHandle.SetConnMaxLifetime(3 * time.Minute)
		dbHandle.SetMaxOpenConns(10)
		dbHandle.SetMaxIdleConns(10)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	if err := dbHandle.Ping(); err != nil {
		return nil, err
	}

	log.Infof("sqlstore: connected (%s)", driver)
	return &Connection{DB: dbHandle, Driver: driver}, nil
}

// queryLogHooks satisfies sqlhooks.Hooks, logging every query at debug
// level along with its execution time.
type queryLogHooks struct{}

type beginTimeKey struct{}

func (h *queryLogHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql: %s %q", query, args)
	return context.WithValue(ctx, beginTimeKey{}, time.Now()), nil
}

func (h *queryLogHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginTimeKey{}).(time.Time); ok {
		log.Debugf("sql: took %s", time.Since(begin))
	}
	return ctx, nil
}
