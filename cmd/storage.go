package cmd

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

var errMySQLRequired = errors.New("this command requires STORAGE_DRIVER=mysql")

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openDirectory returns the account directory selected by STORAGE_DRIVER and a
// func releasing whatever it holds.
func openDirectory(cfg *config.Config) (repository.Directory, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		logrus.Warn("Using in-memory storage, accounts are lost on restart")
		return repository.NewMemoryDirectory(), func() {}, nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewMySQLDirectory(db), func() { _ = db.Close() }, nil
}
