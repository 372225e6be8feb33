package template

import (
	"testing"
	"time"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTemplate() schema.Template {
	return schema.Template{
		AccountID:  "acme",
		DeviceID:   "dev1",
		PacketType: 0x21,
		Fields: []schema.FieldDef{
			{Type: schema.FieldTimestamp, Length: 4},
			{Type: schema.FieldStatus, Length: 1},
		},
	}
}

func TestEncodeDecodeDefineRoundTrip(t *testing.T) {
	tmpl := sampleTemplate()
	payload := EncodeDefine(tmpl)

	decoded, err := DecodeDefine("acme", "dev1", payload)
	require.NoError(t, err)
	assert.Equal(t, tmpl.PacketType, decoded.PacketType)
	assert.Equal(t, tmpl.Fields, decoded.Fields)
}

func TestDecodeDefineShortPayload(t *testing.T) {
	_, err := DecodeDefine("acme", "dev1", []byte{0x21})
	assert.ErrorIs(t, err, ErrDefInvalid)
}

type memStore struct {
	data map[string]schema.Template
}

func newMemStore() *memStore { return &memStore{data: map[string]schema.Template{}} }

func (m *memStore) Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error) {
	k := cacheKey(accountID, deviceID, packetType)
	t, ok := m.data[k]
	return t, ok, nil
}

func (m *memStore) Put(accountID, deviceID string, t schema.Template) error {
	m.data[cacheKey(accountID, deviceID, t.PacketType)] = t
	return nil
}

func TestEngineDefineRejectsUnrecognisedField(t *testing.T) {
	e := NewEngine(newMemStore(), NewCache(16, time.Minute), 2048)
	bad := sampleTemplate()
	bad.Fields = append(bad.Fields, schema.FieldDef{Type: schema.FieldType(99), Length: 1})
	assert.ErrorIs(t, e.Define(bad), ErrDefInvalid)
}

func TestEngineDefineThenLookupHitsCache(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, NewCache(16, time.Minute), 2048)
	tmpl := sampleTemplate()

	require.NoError(t, e.Define(tmpl))

	got, err := e.Lookup("acme", "dev1", tmpl.PacketType)
	require.NoError(t, err)
	assert.Equal(t, tmpl.PacketType, got.PacketType)
}

func TestEngineLookupFallsThroughToStore(t *testing.T) {
	store := newMemStore()
	tmpl := sampleTemplate()
	require.NoError(t, store.Put(tmpl.AccountID, tmpl.DeviceID, tmpl))

	e := NewEngine(store, NewCache(16, time.Minute), 2048)
	got, err := e.Lookup("acme", "dev1", tmpl.PacketType)
	require.NoError(t, err)
	assert.Equal(t, tmpl.PacketType, got.PacketType)
}

func TestEngineLookupNotRecognized(t *testing.T) {
	e := NewEngine(newMemStore(), NewCache(16, time.Minute), 2048)
	_, err := e.Lookup("acme", "dev1", 0x99)
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestApplySingleRecord(t *testing.T) {
	tmpl := sampleTemplate()
	payload := []byte{0, 0, 1, 0, 7}
	records, err := Apply(tmpl, payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(256), records[0][schema.FieldTimestamp])
	assert.Equal(t, uint64(7), records[0][schema.FieldStatus])
}

func TestApplyRepeatLastConsumesAllOccurrences(t *testing.T) {
	tmpl := sampleTemplate()
	tmpl.RepeatLast = true
	payload := []byte{0, 0, 0, 1, 1, 0, 0, 0, 2, 2}
	records, err := Apply(tmpl, payload)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0][schema.FieldTimestamp])
	assert.Equal(t, uint64(2), records[1][schema.FieldTimestamp])
}

func TestCachePruneExpired(t *testing.T) {
	c := NewCache(16, time.Millisecond)
	c.Put(sampleTemplate())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, c.PruneExpired())
}

func TestCacheEvictsLRUAtCapacity(t *testing.T) {
	c := NewCache(1, time.Minute)
	first := sampleTemplate()
	second := sampleTemplate()
	second.PacketType = 0x22

	c.Put(first)
	c.Put(second)

	_, ok := c.Get("acme", "dev1", first.PacketType)
	assert.False(t, ok)
	_, ok = c.Get("acme", "dev1", second.PacketType)
	assert.True(t, ok)
}
