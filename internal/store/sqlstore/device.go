package sqlstore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// DeviceStore is the SQL-backed schema.DeviceStore implementation.
type DeviceStore struct {
	conn *Connection
}

func NewDeviceStore(conn *Connection) *DeviceStore {
	return &DeviceStore{conn: conn}
}

var deviceColumns = []string{
	"account_id", "device_id", "unique_id", "is_active", "supports_custom_types",
	"connection_rate_limit", "connection_rate_window", "event_rate_limit", "event_rate_window",
}

func scanDevice(row interface{ Scan(...interface{}) error }) (schema.Device, error) {
	var d schema.Device
	err := row.Scan(&d.AccountID, &d.DeviceID, &d.UniqueID, &d.IsActive, &d.SupportsCustomTypes,
		&d.ConnectionRateLimit, &d.ConnectionRateWindow, &d.EventRateLimit, &d.EventRateWindow)
	return d, err
}

func (s *DeviceStore) GetByUniqueID(uniqueID uint64) (schema.Device, schema.Result, error) {
	query, args, err := sq.Select(deviceColumns...).From("device").
		Where(sq.Eq{"unique_id": uniqueID}).ToSql()
	if err != nil {
		return schema.Device{}, schema.ResultError, err
	}

	d, err := scanDevice(s.conn.DB.QueryRowx(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return schema.Device{}, schema.ResultNotFound, nil
		}
		log.Errorf("sqlstore: device-by-unique-id lookup failed: %v", err)
		return schema.Device{}, schema.ResultError, err
	}
	return d, schema.ResultOK, nil
}

func (s *DeviceStore) Get(accountID, deviceID string) (schema.Device, schema.Result, error) {
	query, args, err := sq.Select(deviceColumns...).From("device").
		Where(sq.Eq{"account_id": accountID, "device_id": deviceID}).ToSql()
	if err != nil {
		return schema.Device{}, schema.ResultError, err
	}

	d, err := scanDevice(s.conn.DB.QueryRowx(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return schema.Device{}, schema.ResultNotFound, nil
		}
		log.Errorf("sqlstore: device lookup failed: %v", err)
		return schema.Device{}, schema.ResultError, err
	}
	return d, schema.ResultOK, nil
}
