package repository

import (
	"context"
	"database/sql"
)

// Directory hands out AccountStores. Atomic runs fn so that its reads and
// writes commit together or not at all and concurrent transitions on the same
// account serialize. View runs read-only work without taking locks.
type Directory interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
	View(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
}

type MySQLDirectory struct {
	db *sql.DB
}

func NewMySQLDirectory(db *sql.DB) *MySQLDirectory {
	return &MySQLDirectory{db: db}
}

func (d *MySQLDirectory) Atomic(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err = fn(ctx, NewAccountRepository(tx).ForUpdate()); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *MySQLDirectory) View(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error {
	return fn(ctx, NewAccountRepository(d.db))
}
