// Package natsfeed fans decoded events out to a NATS subject for other
// back-office consumers (a rules engine, a live map, a billing pipeline)
// to subscribe to, without coupling the protocol core to any of them.
// Adapted from the teacher repository's pkg/nats client: connection
// lifecycle and reconnect/error handling follow the same shape, narrowed
// to the publish-only surface this core needs.
package natsfeed

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// Config mirrors the teacher's NatsConfig shape: address plus optional
// username/password or credentials-file authentication.
type Config struct {
	Address       string
	Subject       string
	Username      string
	Password      string
	CredsFilePath string
}

// Publisher wraps a NATS connection dedicated to publishing event
// records. A nil *Publisher is valid and a no-op, so callers can wire it
// unconditionally and skip the feature by leaving nats.address unset.
type Publisher struct {
	conn    *nats.Conn
	subject string
	mu      sync.Mutex
}

// Connect dials cfg.Address. An empty address is not an error: it yields
// a nil Publisher, turning Publish into a no-op for deployments that do
// not configure the feed.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("natsfeed: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("natsfeed: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("natsfeed: error: %v", err)
		}),
	)

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsfeed: connect failed: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "dmtp.events"
	}

	log.Infof("natsfeed: connected to %s, publishing on %q", cfg.Address, subject)
	return &Publisher{conn: nc, subject: subject}, nil
}

// Publish fans out one event record as JSON. Safe to call on a nil
// receiver.
func (p *Publisher) Publish(rec schema.EventRecord) {
	if p == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.Warnf("natsfeed: marshal failed: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.Publish(p.subject+"."+rec.Account+"."+rec.Device, data); err != nil {
		log.Warnf("natsfeed: publish failed: %v", err)
	}
}

// Close flushes and closes the connection. Safe to call on a nil receiver.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.Flush()
	p.conn.Close()
}
