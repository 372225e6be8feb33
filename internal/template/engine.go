package template

import (
	"errors"

	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// ErrDefInvalid reports a template-definition packet that failed
// validation (spec.md §4.C): maps to dmtp.FormatDefInvalid on the wire.
var ErrDefInvalid = errors.New("template: definition invalid")

// ErrNotRecognized reports a custom event type with no matching template:
// maps to dmtp.FormatNotRecognized.
var ErrNotRecognized = errors.New("template: no definition for packet type")

// ErrNotSupported reports that the device record or listener configuration
// disables custom types: maps to dmtp.FormatNotSupported.
var ErrNotSupported = errors.New("template: custom types disabled")

const maxPacketType = 0xEF

// Store is the persistence contract the engine reads from and writes
// through to (component G's TemplateStore, spec.md §6).
type Store interface {
	Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error)
	Put(accountID, deviceID string, t schema.Template) error
}

// Engine validates, stores and applies device-declared templates. One
// Engine is shared by every session on a listener, and so is the cache it
// holds: Lookup fills it from the store on a miss.
type Engine struct {
	store      Store
	cache      *Cache
	maxPayload int
}

// NewEngine wires a backing store, a shared triple cache and the
// configured maximum payload length used to validate Σfield.length.
func NewEngine(store Store, cache *Cache, maxPayload int) *Engine {
	return &Engine{store: store, cache: cache, maxPayload: maxPayload}
}

// Define validates a freshly parsed template and flushes it to the store,
// replacing any prior definition for the same (account, device,
// packet_type) triple (spec.md §3: "storing a new template with the same
// triple replaces the prior one").
func (e *Engine) Define(t schema.Template) error {
	if t.PacketType > maxPacketType {
		return ErrDefInvalid
	}
	if len(t.Fields) == 0 || len(t.Fields) > 255 {
		return ErrDefInvalid
	}
	if t.TotalLength() > e.maxPayload {
		return ErrDefInvalid
	}
	for _, f := range t.Fields {
		if !f.Type.IsRecognised() {
			return ErrDefInvalid
		}
		if f.Length < 0 || f.Length > 255 {
			return ErrDefInvalid
		}
	}

	if err := e.store.Put(t.AccountID, t.DeviceID, t); err != nil {
		return err
	}
	e.cache.Put(t)
	return nil
}

// Lookup resolves a custom packet type to its template, consulting the
// shared cache before falling through to the store.
func (e *Engine) Lookup(accountID, deviceID string, packetType uint8) (schema.Template, error) {
	if t, ok := e.cache.Get(accountID, deviceID, packetType); ok {
		return t, nil
	}
	t, ok, err := e.store.Get(accountID, deviceID, packetType)
	if err != nil {
		return schema.Template{}, err
	}
	if !ok {
		return schema.Template{}, ErrNotRecognized
	}
	e.cache.Put(t)
	return t, nil
}

// CachePruneExpired evicts expired entries from the shared cache, returning
// the number removed. Called by the scheduler's template-cache-prune job.
func (e *Engine) CachePruneExpired() int {
	return e.cache.PruneExpired()
}

// Record is one decoded occurrence produced by Apply: a sparse map from
// field type to raw decoded value (the event assembler, component E,
// coerces these into a canonical EventRecord).
type Record map[schema.FieldType]interface{}

// Apply decodes payload according to t, producing one Record per
// occurrence. When t.RepeatLast is true and bytes remain after the first
// record, decoding restarts at the first field for each subsequent
// occurrence (spec.md §4.C): the caller is responsible for carrying
// forward any "key" fields (identity) that are not re-encoded per
// occurrence, since the template only describes what is actually on the
// wire.
func Apply(t schema.Template, payload []byte) ([]Record, error) {
	cur := wire.NewCursor(payload)
	var records []Record

	for {
		rec, err := applyOnce(t, cur)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)

		if !t.RepeatLast || cur.Remaining() == 0 {
			break
		}
	}

	return records, nil
}

func applyOnce(t schema.Template, cur *wire.Cursor) (Record, error) {
	rec := make(Record, len(t.Fields))
	for _, f := range t.Fields {
		v, err := decodeField(cur, f)
		if err != nil {
			return nil, err
		}
		rec[f.Type] = v
	}
	return rec, nil
}

func decodeField(cur *wire.Cursor, f schema.FieldDef) (interface{}, error) {
	switch f.Type {
	case schema.FieldLatitude, schema.FieldLongitude:
		if f.Length == 4 {
			return cur.GeoCoord32()
		}
		return cur.GeoCoord24()
	case schema.FieldTimestamp, schema.FieldSequence:
		return readUnsignedWidth(cur, f.Length)
	case schema.FieldStatus, schema.FieldGeofence1, schema.FieldGeofence2:
		return readUnsignedWidth(cur, f.Length)
	case schema.FieldSpeed, schema.FieldHeading, schema.FieldAltitude,
		schema.FieldDistance, schema.FieldTopSpeed:
		if f.HiRes {
			return cur.Float32()
		}
		v, err := readUnsignedWidth(cur, f.Length)
		return float64(v), err
	case schema.FieldDataSrc:
		b, err := cur.Fixed(f.Length)
		return string(b), err
	case schema.FieldRawData:
		return cur.Fixed(f.Length)
	default:
		return readUnsignedWidth(cur, f.Length)
	}
}

func readUnsignedWidth(cur *wire.Cursor, length int) (uint64, error) {
	switch length {
	case 1:
		v, err := cur.U8()
		return uint64(v), err
	case 2:
		v, err := cur.U16()
		return uint64(v), err
	case 3:
		v, err := cur.U24()
		return uint64(v), err
	case 4:
		v, err := cur.U32()
		return uint64(v), err
	case 8:
		return cur.U64()
	default:
		b, err := cur.Fixed(length)
		if err != nil {
			return 0, err
		}
		var v uint64
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		return v, nil
	}
}
