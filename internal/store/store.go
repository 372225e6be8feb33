// Package store defines the back-end contracts the protocol core consumes
// (component G, spec.md §6): account/device lookup, event persistence and
// template survival. Concrete implementations (memstore, sqlstore) are
// external collaborators, not part of the core.
package store

import "github.com/opendmtp/dmtp-backend/pkg/schema"

// AccountStore resolves an authenticated account record.
type AccountStore interface {
	Get(accountID string) (schema.Account, schema.Result, error)
}

// DeviceStore resolves a device either by its protocol-level unique id
// (the identification handshake's first packet) or by the
// (account, device) pair once both are known.
type DeviceStore interface {
	GetByUniqueID(uniqueID uint64) (schema.Device, schema.Result, error)
	Get(accountID, deviceID string) (schema.Device, schema.Result, error)
}

// EventStore persists canonical event records.
type EventStore interface {
	Insert(rec schema.EventRecord) (schema.Result, error)
}

// TemplateStore is the survival layer behind the template engine's cache
// (component C); Get's second return distinguishes "no template" from
// "lookup failed".
type TemplateStore interface {
	Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error)
	Put(accountID, deviceID string, t schema.Template) error
}

// RateLimiter is consulted by the session state machine to decide
// EXCESSIVE_CONNECTIONS/EXCESSIVE_EVENTS outcomes; the store owns the
// threshold, the core only supplies the observed count (spec.md §4.D).
type RateLimiter interface {
	AllowConnection(accountID, deviceID string) bool
	AllowEvent(accountID, deviceID string) bool
}
