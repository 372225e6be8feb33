// Package avroarchive batch-archives event records to dated Avro
// object-container files, grounded on the teacher repository's
// avroCheckpoint.go OCF writer usage. Unlike the teacher, the schema here
// is fixed (EventRecord's shape never varies), so there is no dynamic
// per-batch schema generation/merge step.
package avroarchive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

const eventSchema = `{
	"type": "record",
	"name": "DmtpEvent",
	"fields": [
		{"name": "account", "type": "string"},
		{"name": "device", "type": "string"},
		{"name": "timestamp", "type": "long"},
		{"name": "status", "type": "long"},
		{"name": "dataSource", "type": "string"},
		{"name": "latitude", "type": "double"},
		{"name": "longitude", "type": "double"},
		{"name": "speedKph", "type": "double"},
		{"name": "headingDeg", "type": "double"},
		{"name": "altitudeM", "type": "double"},
		{"name": "distanceKm", "type": "double"},
		{"name": "topSpeedKph", "type": "double"},
		{"name": "geofenceId1", "type": "long"},
		{"name": "geofenceId2", "type": "long"},
		{"name": "rawData", "type": "bytes"}
	]
}`

// Archiver appends event records to one Avro OCF file per UTC calendar
// day under dir.
type Archiver struct {
	dir   string
	codec *goavro.Codec

	mu      sync.Mutex
	day     string
	file    *os.File
	writer  *goavro.OCFWriter
}

// New prepares an archiver rooted at dir, creating it if necessary.
func New(dir string) (*Archiver, error) {
	codec, err := goavro.NewCodec(eventSchema)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Archiver{dir: dir, codec: codec}, nil
}

func toRecord(rec schema.EventRecord) map[string]interface{} {
	raw := rec.RawData
	if raw == nil {
		raw = []byte{}
	}
	return map[string]interface{}{
		"account":     rec.Account,
		"device":      rec.Device,
		"timestamp":   rec.Timestamp,
		"status":      int64(rec.Status),
		"dataSource":  rec.DataSrc,
		"latitude":    rec.Latitude,
		"longitude":   rec.Longitude,
		"speedKph":    rec.SpeedKph,
		"headingDeg":  rec.HeadingDeg,
		"altitudeM":   rec.AltitudeM,
		"distanceKm":  rec.DistanceKm,
		"topSpeedKph": rec.TopSpeedKph,
		"geofenceId1": int64(rec.GeofenceID[0]),
		"geofenceId2": int64(rec.GeofenceID[1]),
		"rawData":     raw,
	}
}

// Append writes rec to the archive file for the current UTC day, rolling
// over to a new file at day boundaries.
func (a *Archiver) Append(rec schema.EventRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != a.day {
		if a.file != nil {
			a.file.Close()
		}
		path := filepath.Join(a.dir, fmt.Sprintf("events-%s.avro", day))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			return err
		}
		w, err := goavro.NewOCFWriter(goavro.OCFConfig{
			W:               f,
			Codec:           a.codec,
			CompressionName: goavro.CompressionDeflateLabel,
		})
		if err != nil {
			f.Close()
			return err
		}
		a.file, a.writer, a.day = f, w, day
	}

	if err := a.writer.Append([]interface{}{toRecord(rec)}); err != nil {
		return err
	}
	return nil
}

// Close flushes and closes the currently open archive file, if any.
func (a *Archiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	if err != nil {
		log.Warnf("avroarchive: close failed: %v", err)
	}
	return err
}
