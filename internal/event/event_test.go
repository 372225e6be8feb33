package event

import (
	"testing"

	"github.com/opendmtp/dmtp-backend/internal/template"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestStandardTemplateFieldDefs(t *testing.T) {
	tmpl := StandardTemplate(0x02)
	assert.Equal(t, uint8(0x02), tmpl.PacketType)
	assert.False(t, tmpl.RepeatLast)
	assert.Equal(t, FieldDefs(), tmpl.Fields)
}

func TestAssembleDefaultsTimestampWhenAbsent(t *testing.T) {
	rec := template.Record{schema.FieldStatus: uint64(3)}
	out := Assemble("acme", "dev1", rec)
	assert.Equal(t, "acme", out.Account)
	assert.Equal(t, "dev1", out.Device)
	assert.Equal(t, uint32(3), out.Status)
	assert.Zero(t, out.Timestamp)
}

func TestAssembleCoercesGeoAndSpeedFields(t *testing.T) {
	rec := template.Record{
		schema.FieldTimestamp: uint64(1000),
		schema.FieldLatitude:  float64(37.5),
		schema.FieldLongitude: float64(-122.2),
		schema.FieldSpeed:     float32(55.5),
	}
	out := Assemble("acme", "dev1", rec)
	assert.Equal(t, int64(1000), out.Timestamp)
	assert.InDelta(t, 37.5, out.Latitude, 0.0001)
	assert.InDelta(t, -122.2, out.Longitude, 0.0001)
	assert.InDelta(t, 55.5, out.SpeedKph, 0.0001)
}

func TestSequenceAbsentReturnsFalse(t *testing.T) {
	_, ok := Sequence(template.Record{})
	assert.False(t, ok)
}

func TestSequencePresent(t *testing.T) {
	seq, ok := Sequence(template.Record{schema.FieldSequence: uint64(42)})
	assert.True(t, ok)
	assert.Equal(t, uint32(42), seq)
}
