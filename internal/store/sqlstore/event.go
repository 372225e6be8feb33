package sqlstore

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// EventStore is the SQL-backed schema.EventStore implementation. Duplicate
// detection relies on the event table's primary key
// (account_id, device_id, timestamp, status) rather than a prior SELECT,
// so a race between two inserts for the same key deterministically
// produces one winner and one DUPLICATE (spec.md §5).
type EventStore struct {
	conn *Connection
}

func NewEventStore(conn *Connection) *EventStore {
	return &EventStore{conn: conn}
}

func (s *EventStore) Insert(rec schema.EventRecord) (schema.Result, error) {
	query, args, err := sq.Insert("event").
		Columns("account_id", "device_id", "timestamp", "status", "data_source",
			"latitude", "longitude", "speed_kph", "heading_deg", "altitude_m",
			"distance_km", "top_speed_kph", "geofence_id1", "geofence_id2", "raw_data").
		Values(rec.Account, rec.Device, rec.Timestamp, rec.Status, rec.DataSrc,
			rec.Latitude, rec.Longitude, rec.SpeedKph, rec.HeadingDeg, rec.AltitudeM,
			rec.DistanceKm, rec.TopSpeedKph, rec.GeofenceID[0], rec.GeofenceID[1], rec.RawData).
		ToSql()
	if err != nil {
		return schema.ResultError, err
	}

	if _, err := s.conn.DB.Exec(query, args...); err != nil {
		if isDuplicateKey(err) {
			return schema.ResultDuplicate, nil
		}
		log.Errorf("sqlstore: event insert failed: %v", err)
		return schema.ResultError, err
	}
	return schema.ResultOK, nil
}

func isDuplicateKey(err error) bool {
	if me, ok := err.(*mysql.MySQLError); ok {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
