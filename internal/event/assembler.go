package event

import (
	"github.com/opendmtp/dmtp-backend/internal/template"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// Assemble coerces one decoded field map into a canonical EventRecord,
// defaulting any recognised-but-absent field to its typed zero value
// (spec.md §4.E). accountID/deviceID are always the session's authenticated
// identity (invariant #5, spec.md §8), never taken from the payload.
func Assemble(accountID, deviceID string, rec template.Record) schema.EventRecord {
	out := schema.EventRecord{Account: accountID, Device: deviceID}

	if v, ok := rec[schema.FieldTimestamp]; ok {
		out.Timestamp = toInt64(v)
	}
	if v, ok := rec[schema.FieldStatus]; ok {
		out.Status = uint32(toInt64(v))
	}
	if v, ok := rec[schema.FieldDataSrc]; ok {
		if s, ok := v.(string); ok {
			out.DataSrc = s
		}
	}
	out.Latitude = toFloat64(rec[schema.FieldLatitude])
	out.Longitude = toFloat64(rec[schema.FieldLongitude])
	out.SpeedKph = toFloat64(rec[schema.FieldSpeed])
	out.HeadingDeg = toFloat64(rec[schema.FieldHeading])
	out.AltitudeM = toFloat64(rec[schema.FieldAltitude])
	out.DistanceKm = toFloat64(rec[schema.FieldDistance])
	out.TopSpeedKph = toFloat64(rec[schema.FieldTopSpeed])

	if v, ok := rec[schema.FieldGeofence1]; ok {
		out.GeofenceID[0] = uint32(toInt64(v))
	}
	if v, ok := rec[schema.FieldGeofence2]; ok {
		out.GeofenceID[1] = uint32(toInt64(v))
	}
	if v, ok := rec[schema.FieldRawData]; ok {
		if b, ok := v.([]byte); ok {
			out.RawData = b
		}
	}

	return out
}

// Sequence extracts the device-assigned event sequence number from a
// decoded record, if the template carried one; absent that it reports
// false, and the caller leaves the block's highest sequence unchanged for
// that record.
func Sequence(rec template.Record) (uint32, bool) {
	v, ok := rec[schema.FieldSequence]
	if !ok {
		return 0, false
	}
	return uint32(toInt64(v)), true
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case float32:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return 0
	}
}
