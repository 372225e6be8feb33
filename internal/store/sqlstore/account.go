package sqlstore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/opendmtp/dmtp-backend/pkg/log"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// AccountStore is the SQL-backed schema.AccountStore implementation.
type AccountStore struct {
	conn *Connection
}

func NewAccountStore(conn *Connection) *AccountStore {
	return &AccountStore{conn: conn}
}

func (s *AccountStore) Get(accountID string) (schema.Account, schema.Result, error) {
	query, args, err := sq.Select("account_id", "is_active", "contact_email", "notify_email").
		From("account").Where(sq.Eq{"account_id": accountID}).ToSql()
	if err != nil {
		return schema.Account{}, schema.ResultError, err
	}

	var a schema.Account
	row := s.conn.DB.QueryRowx(query, args...)
	if err := row.Scan(&a.AccountID, &a.IsActive, &a.ContactEmail, &a.NotifyEmail); err != nil {
		if err == sql.ErrNoRows {
			return schema.Account{}, schema.ResultNotFound, nil
		}
		log.Errorf("sqlstore: account lookup failed: %v", err)
		return schema.Account{}, schema.ResultError, err
	}
	return a, schema.ResultOK, nil
}
