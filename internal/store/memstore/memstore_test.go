package memstore

import (
	"testing"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStoreGetNotFound(t *testing.T) {
	s := New()
	accounts := NewAccountStore(s)
	_, result, err := accounts.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, schema.ResultNotFound, result)
}

func TestDeviceStoreGetByUniqueID(t *testing.T) {
	s := New()
	s.PutDevice(schema.Device{AccountID: "acme", DeviceID: "dev1", UniqueID: 99, IsActive: true})

	devices := NewDeviceStore(s)
	dev, result, err := devices.GetByUniqueID(99)
	require.NoError(t, err)
	assert.Equal(t, schema.ResultOK, result)
	assert.Equal(t, "dev1", dev.DeviceID)

	_, result, err = devices.GetByUniqueID(1)
	require.NoError(t, err)
	assert.Equal(t, schema.ResultNotFound, result)
}

func TestEventStoreInsertDetectsDuplicate(t *testing.T) {
	s := New()
	events := NewEventStore(s)
	rec := schema.EventRecord{Account: "acme", Device: "dev1", Timestamp: 100, Status: 1}

	result, err := events.Insert(rec)
	require.NoError(t, err)
	assert.Equal(t, schema.ResultOK, result)

	result, err = events.Insert(rec)
	require.NoError(t, err)
	assert.Equal(t, schema.ResultDuplicate, result)
}

func TestTemplateStoreRoundTrip(t *testing.T) {
	s := New()
	templates := NewTemplateStore(s)
	tmpl := schema.Template{AccountID: "acme", DeviceID: "dev1", PacketType: 0x21}

	require.NoError(t, templates.Put("acme", "dev1", tmpl))

	got, ok, err := templates.Get("acme", "dev1", 0x21)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tmpl.PacketType, got.PacketType)

	_, ok, err = templates.Get("acme", "dev1", 0x22)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiterUnlimitedWithoutDeviceRecord(t *testing.T) {
	s := New()
	l := NewRateLimiter(s)
	assert.True(t, l.AllowConnection("acme", "ghost"))
	assert.True(t, l.AllowEvent("acme", "ghost"))
}

func TestRateLimiterEnforcesEventLimit(t *testing.T) {
	s := New()
	s.PutDevice(schema.Device{AccountID: "acme", DeviceID: "dev1", EventRateLimit: 1, EventRateWindow: 60})
	l := NewRateLimiter(s)

	assert.True(t, l.AllowEvent("acme", "dev1"))
	assert.False(t, l.AllowEvent("acme", "dev1"))
}
