package main

import (
	"fmt"
	"os"

	"github.com/opendmtp/dmtp-backend/internal/config"
	"github.com/opendmtp/dmtp-backend/internal/store"
	"github.com/opendmtp/dmtp-backend/internal/store/avroarchive"
	"github.com/opendmtp/dmtp-backend/internal/store/lineexport"
	"github.com/opendmtp/dmtp-backend/internal/store/memstore"
	"github.com/opendmtp/dmtp-backend/internal/store/sqlstore"
	"github.com/opendmtp/dmtp-backend/internal/template"
	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/natsfeed"
)

// backend bundles every store/feed collaborator the session package
// needs, plus whatever owns a Close/Shutdown method so main can tear it
// down cleanly.
type backend struct {
	accounts  store.AccountStore
	devices   store.DeviceStore
	events    store.EventStore
	templates *template.Engine
	limiter   store.RateLimiter

	feed     *natsfeed.Publisher
	lineTap  *lineexport.Tap
	lineFile *os.File
	archiver *avroarchive.Archiver

	sqlConn *sqlstore.Connection
}

func (b *backend) Close() {
	b.feed.Close()
	if b.lineFile != nil {
		b.lineFile.Close()
	}
	if b.archiver != nil {
		b.archiver.Close()
	}
}

// initBackend wires component G (stores) and the optional event sinks
// (NATS, line-protocol, Avro) from config.Keys, following the teacher's
// pattern of a single Init step driven entirely by the parsed config
// (cmd/cc-backend/main.go's repository.Connect/config.Init sequence).
func initBackend() (*backend, error) {
	b := &backend{}

	switch config.Keys.DB.Driver {
	case "memory", "":
		s := memstore.New()
		b.accounts = memstore.NewAccountStore(s)
		b.devices = memstore.NewDeviceStore(s)
		b.events = memstore.NewEventStore(s)
		templateStore := memstore.NewTemplateStore(s)
		b.templates = template.NewEngine(templateStore, template.NewCache(4096, 0), int(config.Keys.Packet.Max.Len))
		b.limiter = memstore.NewRateLimiter(s)

	case "sqlite3", "mysql":
		conn, err := sqlstore.Connect(config.Keys.DB.Driver, config.Keys.DB.DSN, config.Keys.Log.Show.SQL)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", config.Keys.DB.Driver, err)
		}
		b.sqlConn = conn
		b.accounts = sqlstore.NewAccountStore(conn)
		b.devices = sqlstore.NewDeviceStore(conn)
		b.events = sqlstore.NewEventStore(conn)
		templateStore := sqlstore.NewTemplateStore(conn)
		b.templates = template.NewEngine(templateStore, template.NewCache(4096, 0), int(config.Keys.Packet.Max.Len))
		b.limiter = sqlstore.NewRateLimiter(b.devices)

	default:
		return nil, fmt.Errorf("unsupported db.driver %q", config.Keys.DB.Driver)
	}

	feed, err := natsfeed.Connect(natsfeed.Config{
		Address: config.Keys.Nats.Address,
		Subject: config.Keys.Nats.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	b.feed = feed

	if config.Keys.LineProtocol.Path != "" {
		f, err := os.OpenFile(config.Keys.LineProtocol.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening line-protocol sink: %w", err)
		}
		b.lineFile = f
		b.lineTap = lineexport.New(f)
	}

	if config.Keys.Archive.Avro.Dir != "" {
		a, err := avroarchive.New(config.Keys.Archive.Avro.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening avro archive: %w", err)
		}
		b.archiver = a
	}

	log.Infof("backend: store=%s nats=%v lineexport=%v avro=%v",
		config.Keys.DB.Driver, b.feed != nil, b.lineTap != nil, b.archiver != nil)

	return b, nil
}
