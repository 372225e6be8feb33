package lineexport

import (
	"bytes"
	"testing"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestWriteEncodesMeasurementLine(t *testing.T) {
	var buf bytes.Buffer
	tap := New(&buf)

	tap.Write(schema.EventRecord{
		Account:   "acme",
		Device:    "dev1",
		Status:    3,
		Latitude:  37.5,
		Longitude: -122.2,
		Timestamp: 1700000000,
	})

	out := buf.String()
	assert.Contains(t, out, "dmtp_event")
	assert.Contains(t, out, "account=acme")
	assert.Contains(t, out, "device=dev1")
	assert.Contains(t, out, "status=3u")
}

func TestWriteMultipleRecordsAppend(t *testing.T) {
	var buf bytes.Buffer
	tap := New(&buf)

	tap.Write(schema.EventRecord{Account: "a", Device: "1", Timestamp: 1})
	tap.Write(schema.EventRecord{Account: "a", Device: "2", Timestamp: 2})

	occurrences := bytes.Count(buf.Bytes(), []byte("dmtp_event"))
	assert.Equal(t, 2, occurrences)
}
