package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opendmtp/dmtp-backend/internal/dmtp"
	"github.com/opendmtp/dmtp-backend/internal/listener"
	"github.com/opendmtp/dmtp-backend/internal/template"
	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// fakeAccounts/fakeDevices/fakeEvents/fakeLimiter/fakeTemplateStore give
// the state machine minimal, deterministic collaborators so its protocol
// logic can be exercised without a real backing store.

type fakeAccounts struct{ accounts map[string]schema.Account }

func (f *fakeAccounts) Get(id string) (schema.Account, schema.Result, error) {
	a, ok := f.accounts[id]
	if !ok {
		return schema.Account{}, schema.ResultNotFound, nil
	}
	return a, schema.ResultOK, nil
}

type fakeDevices struct{ devices map[string]schema.Device }

func (f *fakeDevices) GetByUniqueID(uid uint64) (schema.Device, schema.Result, error) {
	for _, d := range f.devices {
		if d.UniqueID == uid {
			return d, schema.ResultOK, nil
		}
	}
	return schema.Device{}, schema.ResultNotFound, nil
}

func (f *fakeDevices) Get(accountID, deviceID string) (schema.Device, schema.Result, error) {
	d, ok := f.devices[accountID+"/"+deviceID]
	if !ok {
		return schema.Device{}, schema.ResultNotFound, nil
	}
	return d, schema.ResultOK, nil
}

type fakeEvents struct {
	mu      sync.Mutex
	seen    map[string]bool
	insertedCount int
}

func (f *fakeEvents) Insert(rec schema.EventRecord) (schema.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[rec.Key()] {
		return schema.ResultDuplicate, nil
	}
	f.seen[rec.Key()] = true
	f.insertedCount++
	return schema.ResultOK, nil
}

type fakeLimiter struct {
	allowConn  bool
	allowEvent bool
}

func (f *fakeLimiter) AllowConnection(accountID, deviceID string) bool { return f.allowConn }
func (f *fakeLimiter) AllowEvent(accountID, deviceID string) bool      { return f.allowEvent }

type fakeTemplateStore struct {
	mu    sync.Mutex
	byKey map[string]schema.Template
}

func key(accountID, deviceID string, packetType uint8) string {
	return accountID + "/" + deviceID + "/" + string(rune(packetType))
}

func (f *fakeTemplateStore) Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byKey[key(accountID, deviceID, packetType)]
	return t, ok, nil
}

func (f *fakeTemplateStore) Put(accountID, deviceID string, t schema.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byKey == nil {
		f.byKey = map[string]schema.Template{}
	}
	f.byKey[key(accountID, deviceID, t.PacketType)] = t
	return nil
}

func newDeps(accounts map[string]schema.Account, devices map[string]schema.Device, allowConn, allowEvent bool) (Deps, *fakeEvents) {
	events := &fakeEvents{}
	engine := template.NewEngine(&fakeTemplateStore{}, template.NewCache(64, time.Hour), 2048)
	return Deps{
		Accounts:  &fakeAccounts{accounts: accounts},
		Devices:   &fakeDevices{devices: devices},
		Events:    events,
		Limiter:   &fakeLimiter{allowConn: allowConn, allowEvent: allowEvent},
		Templates: engine,
	}, events
}

func pipeSockets() (listener.ClientSocket, net.Conn) {
	a, b := net.Pipe()
	return listener.NewTCPSocket(a), b
}

func defaultCfg() Config {
	return Config{
		IdleTimeout:    time.Second,
		PacketTimeout:  time.Second,
		SessionTimeout: 2 * time.Second,
	}
}

func encodePacket(t *testing.T, typ byte, payload []byte) []byte {
	t.Helper()
	pkt := wire.NewPacket(wire.DefaultHeader, typ, payload, wire.FramingBinary)
	b, err := wire.Encode(pkt, wire.DefaultConfig())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func idPacket(t *testing.T, kind byte, text string) []byte {
	t.Helper()
	payload := append([]byte{byte(len(text))}, []byte(text)...)
	return encodePacket(t, kind, payload)
}

// TestAuthAccountDeviceThenTerminate drives a full ACCOUNT_ID/DEVICE_ID
// identification followed by TERMINATE, and checks the session exits
// cleanly with no nacks on the wire.
func TestAuthAccountDeviceThenTerminate(t *testing.T) {
	sock, peer := pipeSockets()
	defer peer.Close()

	deps, _ := newDeps(
		map[string]schema.Account{"acct1": {AccountID: "acct1", IsActive: true}},
		map[string]schema.Device{"acct1/dev1": {AccountID: "acct1", DeviceID: "dev1", IsActive: true}},
		true, true)

	s := New(sock, wire.DefaultConfig(), defaultCfg(), deps)
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	peer.Write(idPacket(t, dmtp.OpAccountID, "acct1"))
	peer.Write(idPacket(t, dmtp.OpDeviceID, "dev1"))
	peer.Write(encodePacket(t, dmtp.OpTerminate, nil))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}

	if s.accountID != "acct1" || s.deviceID != "dev1" {
		t.Fatalf("identity not resolved: %q/%q", s.accountID, s.deviceID)
	}
}

// TestAuthUnknownDeviceNacksAndCloses checks an unresolvable identity is
// rejected with DEVICE_INVALID and the session ends without entering
// ACTIVE.
func TestAuthUnknownDeviceNacksAndCloses(t *testing.T) {
	sock, peer := pipeSockets()
	defer peer.Close()

	deps, _ := newDeps(map[string]schema.Account{}, map[string]schema.Device{}, true, true)
	s := New(sock, wire.DefaultConfig(), defaultCfg(), deps)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	peer.Write(idPacket(t, dmtp.OpAccountID, "ghost"))
	peer.Write(idPacket(t, dmtp.OpDeviceID, "ghost-dev"))

	buf := make([]byte, 256)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("expected a nack reply, got: %v", err)
	}
	if n < 4 || buf[2] != dmtp.OpNack {
		t.Fatalf("expected a NACK frame, got % x", buf[:n])
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after fatal nack")
	}
}

// TestEventBlockAckCarriesHighestSeq exercises the common path: identify,
// send one event packet inside a block, close the block, and check that an
// ack carrying the block's highest sequence number comes back and that the
// event was inserted. The standard layout has no sequence field, so the
// highest sequence stays 0.
func TestEventBlockAckCarriesHighestSeq(t *testing.T) {
	sock, peer := pipeSockets()
	defer peer.Close()

	deps, events := newDeps(
		map[string]schema.Account{"acct1": {AccountID: "acct1", IsActive: true}},
		map[string]schema.Device{"acct1/dev1": {AccountID: "acct1", DeviceID: "dev1", IsActive: true}},
		true, true)

	s := New(sock, wire.DefaultConfig(), defaultCfg(), deps)
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	peer.Write(idPacket(t, dmtp.OpAccountID, "acct1"))
	peer.Write(idPacket(t, dmtp.OpDeviceID, "dev1"))

	// One standard-layout event packet: timestamp, status, lat, lon,
	// speed, heading, altitude (4+4+4+4+2+2+2 = 22 bytes).
	payload := make([]byte, 22)
	eventFrame := encodePacket(t, 0x00, payload)
	peer.Write(eventFrame)

	// Block checksum is the rolling XOR-fold over the payload bytes the
	// session just folded in handleEvent's caller.
	var b block
	b.foldChecksum(payload)
	eobPayload := []byte{byte(b.checksum >> 8), byte(b.checksum)}
	peer.Write(encodePacket(t, dmtp.OpEndOfBlock16, eobPayload))

	buf := make([]byte, 256)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("expected an ack reply, got: %v", err)
	}
	if n < 4 || buf[2] != dmtp.OpAck {
		t.Fatalf("expected an ACK frame, got % x", buf[:n])
	}
	if n < 8 {
		t.Fatalf("expected a 4-byte ack sequence, got % x", buf[:n])
	}
	if seq := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7]); seq != 0 {
		t.Fatalf("expected ack sequence 0, got %d", seq)
	}

	peer.Write(encodePacket(t, dmtp.OpTerminate, nil))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}

	if events.insertedCount != 1 {
		t.Fatalf("expected exactly one inserted event, got %d", events.insertedCount)
	}
}

// TestBlockChecksumRetryBudget checks that a bad block checksum is
// tolerated once (nack, no terminate) and becomes fatal the second time
// in a row, matching the default retry budget of 1 (spec.md §7).
func TestBlockChecksumRetryBudget(t *testing.T) {
	sock, peer := pipeSockets()
	defer peer.Close()

	deps, events := newDeps(
		map[string]schema.Account{"acct1": {AccountID: "acct1", IsActive: true}},
		map[string]schema.Device{"acct1/dev1": {AccountID: "acct1", DeviceID: "dev1", IsActive: true}},
		true, true)

	s := New(sock, wire.DefaultConfig(), defaultCfg(), deps)
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	peer.Write(idPacket(t, dmtp.OpAccountID, "acct1"))
	peer.Write(idPacket(t, dmtp.OpDeviceID, "dev1"))

	badEOB := encodePacket(t, dmtp.OpEndOfBlock16, []byte{0xFF, 0xFF})
	peer.Write(badEOB)

	buf := make([]byte, 256)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := peer.Read(buf)
	if err != nil || n < 4 || buf[2] != dmtp.OpNack {
		t.Fatalf("expected first BLOCK_CHECKSUM nack, got % x err=%v", buf[:n], err)
	}

	peer.Write(badEOB)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = peer.Read(buf)
	if err != nil || n < 4 || buf[2] != dmtp.OpNack {
		t.Fatalf("expected second BLOCK_CHECKSUM nack, got % x err=%v", buf[:n], err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after exhausting the retry budget")
	}

	if events.insertedCount != 0 {
		t.Fatalf("expected no events persisted from a failed block, got %d", events.insertedCount)
	}
}
