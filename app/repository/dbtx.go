package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const mysqlDuplicateEntry = 1062

var ErrDuplicate = errors.New("duplicate entry")

// DuplicateError reports which unique key a write collided with.
type DuplicateError struct {
	Key string
	Err error
}

func (e *DuplicateError) Error() string {
	return "duplicate entry for key " + e.Key
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

// Unique index names from migrations/00001_create_accounts.sql.
const (
	KeyUsername = "uq_accounts_username"
	KeyEmail    = "uq_accounts_canonical_email"
)

func translateWriteError(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlDuplicateEntry {
		return err
	}

	key := ""
	switch {
	case strings.Contains(mysqlErr.Message, KeyUsername):
		key = KeyUsername
	case strings.Contains(mysqlErr.Message, KeyEmail):
		key = KeyEmail
	}
	return &DuplicateError{Key: key, Err: err}
}
