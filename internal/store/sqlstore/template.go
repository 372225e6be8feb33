package sqlstore

import (
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// TemplateStore is the SQL-backed schema.TemplateStore implementation.
// Field lists are stored as JSON; they are small, variable-shape and read
// far less often than they are looked up from the in-memory cache
// (internal/template.Cache), so a normalised per-field table would add
// join overhead the access pattern does not reward.
type TemplateStore struct {
	conn *Connection
}

func NewTemplateStore(conn *Connection) *TemplateStore {
	return &TemplateStore{conn: conn}
}

func (s *TemplateStore) Get(accountID, deviceID string, packetType uint8) (schema.Template, bool, error) {
	query, args, err := sq.Select("repeat_last", "fields_json").From("payload_template").
		Where(sq.Eq{"account_id": accountID, "device_id": deviceID, "packet_type": packetType}).ToSql()
	if err != nil {
		return schema.Template{}, false, err
	}

	var repeatLast bool
	var fieldsJSON string
	row := s.conn.DB.QueryRowx(query, args...)
	if err := row.Scan(&repeatLast, &fieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return schema.Template{}, false, nil
		}
		log.Errorf("sqlstore: template lookup failed: %v", err)
		return schema.Template{}, false, err
	}

	var fields []schema.FieldDef
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return schema.Template{}, false, err
	}

	return schema.Template{
		AccountID:  accountID,
		DeviceID:   deviceID,
		PacketType: packetType,
		RepeatLast: repeatLast,
		Fields:     fields,
	}, true, nil
}

func (s *TemplateStore) Put(accountID, deviceID string, t schema.Template) error {
	fieldsJSON, err := json.Marshal(t.Fields)
	if err != nil {
		return err
	}

	query, args, err := sq.Replace("payload_template").
		Columns("account_id", "device_id", "packet_type", "repeat_last", "fields_json").
		Values(accountID, deviceID, t.PacketType, t.RepeatLast, string(fieldsJSON)).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.conn.DB.Exec(query, args...); err != nil {
		log.Errorf("sqlstore: template put failed: %v", err)
		return err
	}
	return nil
}
