// Package lineexport taps inserted event records out to an InfluxDB
// line-protocol sink (a file or any io.Writer), grounded on the teacher
// repository's metric ingestion path, which decodes line-protocol; here the
// core goes the other direction, encoding DMTP events for consumption by
// external time-series tooling.
package lineexport

import (
	"io"
	"sync"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// Tap writes one line-protocol line per event record to w. Safe for
// concurrent use; callers typically hang one Tap off the session event
// pipeline alongside the EventStore.
type Tap struct {
	mu  sync.Mutex
	w   io.Writer
	enc *lineprotocol.Encoder
}

// New wraps w for line-protocol encoding. Precision is fixed at seconds to
// match EventRecord.Timestamp.
func New(w io.Writer) *Tap {
	enc := &lineprotocol.Encoder{}
	enc.SetPrecision(lineprotocol.Second)
	return &Tap{w: w, enc: enc}
}

// Write encodes rec as a single "dmtp_event" measurement line and flushes
// it to the underlying writer. Encoding errors are logged and swallowed:
// the export tap is observability, not part of the durability path, so a
// malformed line must never fail the insert it is shadowing.
func (t *Tap) Write(rec schema.EventRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enc.Reset()
	t.enc.StartLine("dmtp_event")
	t.enc.AddTag("account", rec.Account)
	t.enc.AddTag("device", rec.Device)
	if rec.DataSrc != "" {
		t.enc.AddTag("source", rec.DataSrc)
	}
	t.enc.AddField("status", lineprotocol.UintValue(uint64(rec.Status)))
	t.enc.AddField("latitude", lineprotocol.FloatValue(rec.Latitude))
	t.enc.AddField("longitude", lineprotocol.FloatValue(rec.Longitude))
	t.enc.AddField("speed_kph", lineprotocol.FloatValue(rec.SpeedKph))
	t.enc.AddField("heading_deg", lineprotocol.FloatValue(rec.HeadingDeg))
	t.enc.AddField("altitude_m", lineprotocol.FloatValue(rec.AltitudeM))
	t.enc.EndTime(time.Unix(rec.Timestamp, 0).UTC())

	if err := t.enc.Err(); err != nil {
		log.Warnf("lineexport: encode failed: %v", err)
		return
	}

	if _, err := t.w.Write(t.enc.Bytes()); err != nil {
		log.Warnf("lineexport: write failed: %v", err)
	}
}
