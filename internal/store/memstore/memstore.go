// Package memstore is the in-memory implementation of the store
// interfaces (component G), used by tests and by deployments small enough
// not to need sqlstore's durability.
package memstore

import (
	"fmt"
	"sync"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// Store bundles mutex-guarded maps backing every store interface.
// Duplicate detection on Insert is a key lookup under the same lock that
// does the insert, so two racing inserts for the same key deterministically
// pick one winner (spec.md §5). Store itself implements none of the
// interfaces directly; AccountStore/DeviceStore/EventStore/TemplateStore
// below are thin per-interface views over it, since Go cannot overload a
// method name (both AccountStore.Get and DeviceStore.Get are "Get").
type Store struct {
	mu        sync.Mutex
	accounts  map[string]schema.Account
	devices   map[string]schema.Device // keyed by accountID/deviceID
	byUnique  map[uint64]string        // uniqueID -> accountID/deviceID
	events    map[string]schema.EventRecord
	templates map[string]schema.Template
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:  map[string]schema.Account{},
		devices:   map[string]schema.Device{},
		byUnique:  map[uint64]string{},
		events:    map[string]schema.EventRecord{},
		templates: map[string]schema.Template{},
	}
}

func deviceKey(accountID, deviceID string) string {
	return accountID + "/" + deviceID
}

func templateKey(accountID, deviceID string, packetType uint8) string {
	return fmt.Sprintf("%s/%s/%d", accountID, deviceID, packetType)
}

// PutAccount seeds or replaces an account record; a test/fixture helper,
// not part of the AccountStore contract.
func (s *Store) PutAccount(a schema.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.AccountID] = a
}

// PutDevice seeds or replaces a device record.
func (s *Store) PutDevice(d schema.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceKey(d.AccountID, d.DeviceID)] = d
	s.byUnique[d.UniqueID] = deviceKey(d.AccountID, d.DeviceID)
}

// AccountStore is the schema.AccountStore view over a shared Store.
type AccountStore struct{ S *Store }

func NewAccountStore(s *Store) AccountStore { return AccountStore{S: s} }

func (a AccountStore) Get(accountID string) (schema.Account, schema.Result, error) {
	a.S.mu.Lock()
	defer a.S.mu.Unlock()
	acc, ok := a.S.accounts[accountID]
	if !ok {
		return schema.Account{}, schema.ResultNotFound, nil
	}
	return acc, schema.ResultOK, nil
}

// DeviceStore is the schema.DeviceStore view over a shared Store.
type DeviceStore struct{ S *Store }

func NewDeviceStore(s *Store) DeviceStore { return DeviceStore{S: s} }

func (d DeviceStore) GetByUniqueID(uniqueID uint64) (schema.Device, schema.Result, error) {
	d.S.mu.Lock()
	defer d.S.mu.Unlock()
	key, ok := d.S.byUnique[uniqueID]
	if !ok {
		return schema.Device{}, schema.ResultNotFound, nil
	}
	return d.S.devices[key], schema.ResultOK, nil
}

func (d DeviceStore) Get(accountID, deviceID string) (schema.Device, schema.Result, error) {
	d.S.mu.Lock()
	defer d.S.mu.Unlock()
	dev, ok := d.S.devices[deviceKey(accountID, deviceID)]
	if !ok {
		return schema.Device{}, schema.ResultNotFound, nil
	}
	return dev, schema.ResultOK, nil
}

// EventStore is the schema.EventStore view over a shared Store.
type EventStore struct{ S *Store }

func NewEventStore(s *Store) EventStore { return EventStore{S: s} }

func (e EventStore) Insert(rec schema.EventRecord) (schema.Result, error) {
	e.S.mu.Lock()
	defer e.S.mu.Unlock()
	key := rec.Key()
	if _, exists := e.S.events[key]; exists {
		return schema.ResultDuplicate, nil
	}
	e.S.events[key] = rec
	return schema.ResultOK, nil
}

// TemplateStore is the schema.TemplateStore view over a shared Store.
type TemplateStore struct{ S *Store }

func NewTemplateStore(s *Store) TemplateStore { return TemplateStore{S: s} }

func (t TemplateStore) Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error) {
	t.S.mu.Lock()
	defer t.S.mu.Unlock()
	tmpl, ok := t.S.templates[templateKey(accountID, deviceID, packetType)]
	return tmpl, ok, nil
}

func (t TemplateStore) Put(accountID, deviceID string, tmpl schema.Template) error {
	t.S.mu.Lock()
	defer t.S.mu.Unlock()
	t.S.templates[templateKey(accountID, deviceID, tmpl.PacketType)] = tmpl
	return nil
}
