package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/repository"
)

const (
	insertAccountQuery     = `(?s)INSERT INTO accounts \(\s+id, username, email, canonical_email, password_hash, email_verified,.*\) VALUES \((\?, ){17}\?\)`
	updateAccountQuery     = `(?s)UPDATE accounts SET\s+username = \?,.*updated_at = \?\s+WHERE id = \?`
	findByUsernameQuery    = `(?s)SELECT id, username, email, canonical_email, .*FROM accounts WHERE username = \?$`
	findByIDForUpdateQuery = `(?s)SELECT id, username, .*FROM accounts WHERE id = \? FOR UPDATE`
	findByRefreshQuery     = `(?s)SELECT id, .*FROM accounts WHERE refresh_token = \?`
	findByLoginQuery       = `(?s)SELECT id, .*FROM accounts WHERE username = \? OR canonical_email = \? ORDER BY username = \? DESC LIMIT 1`
	listAccountsQuery      = `(?s)SELECT id, .*FROM accounts ORDER BY created_at, id LIMIT \? OFFSET \?`
	deleteAccountQuery     = `DELETE FROM accounts WHERE id = \?`
)

var accountColumns = []string{
	"id",
	"username",
	"email",
	"canonical_email",
	"password_hash",
	"email_verified",
	"verification_token",
	"verification_token_expires_at",
	"password_reset_token",
	"password_reset_expires_at",
	"refresh_token",
	"refresh_token_expires_at",
	"last_login",
	"streak_days",
	"is_premium",
	"is_guest",
	"created_at",
	"updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func accountRow(id, username string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(
		id,
		username,
		"Ann@Example.com",
		"ann@example.com",
		"hash",
		false,
		"verify",
		now.Add(time.Hour),
		nil,
		nil,
		"refresh",
		now.Add(24*time.Hour),
		nil,
		0,
		false,
		false,
		now,
		now,
	)
}

func TestAccountRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()
	acc := &entity.Account{
		ID:             "id-1",
		Username:       "ann",
		Email:          sql.NullString{String: "Ann@Example.com", Valid: true},
		CanonicalEmail: sql.NullString{String: "ann@example.com", Valid: true},
		PasswordHash:   "hash",
		Verification:   entity.NewTokenPair("verify", now.Add(time.Hour)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec(insertAccountQuery).
		WithArgs(
			acc.ID,
			acc.Username,
			acc.Email,
			acc.CanonicalEmail,
			acc.PasswordHash,
			acc.EmailVerified,
			acc.Verification.Token,
			acc.Verification.ExpiresAt,
			acc.PasswordReset.Token,
			acc.PasswordReset.ExpiresAt,
			acc.Refresh.Token,
			acc.Refresh.ExpiresAt,
			acc.LastLogin,
			acc.StreakDays,
			acc.IsPremium,
			acc.IsGuest,
			acc.CreatedAt,
			acc.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), acc); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_CreateDuplicateUsername(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	mock.ExpectExec(insertAccountQuery).
		WillReturnError(&mysql.MySQLError{
			Number:  1062,
			Message: "Duplicate entry 'ann' for key 'accounts.uq_accounts_username'",
		})

	err := repo.Create(context.Background(), &entity.Account{ID: "id-2", Username: "ann"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	var dup *repository.DuplicateError
	if !errors.As(err, &dup) || dup.Key != repository.KeyUsername {
		t.Fatalf("expected username key, got %+v", dup)
	}
}

func TestAccountRepository_FindByUsername(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery(findByUsernameQuery).
		WithArgs("ann").
		WillReturnRows(accountRow("id-1", "ann", now))

	acc, err := repo.FindByUsername(context.Background(), "ann")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if acc == nil || acc.ID != "id-1" {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if !acc.Verification.Present() || acc.PasswordReset.Present() || !acc.Refresh.Present() {
		t.Fatalf("unexpected token pairs: %+v", acc)
	}
	if acc.LastLogin.Valid {
		t.Fatalf("expected null last login")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_FindByUsernameNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	mock.ExpectQuery(findByUsernameQuery).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	acc, err := repo.FindByUsername(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if acc != nil {
		t.Fatalf("expected nil account, got %+v", acc)
	}
}

func TestAccountRepository_ForUpdateLocksRows(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db).ForUpdate()
	mock.ExpectQuery(findByIDForUpdateQuery).
		WithArgs("id-1").
		WillReturnRows(accountRow("id-1", "ann", time.Now()))

	if _, err := repo.FindByID(context.Background(), "id-1"); err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_FindByToken(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	mock.ExpectQuery(findByRefreshQuery).
		WithArgs("refresh").
		WillReturnRows(accountRow("id-1", "ann", time.Now()))

	acc, err := repo.FindByToken(context.Background(), entity.TokenRefresh, "refresh")
	if err != nil || acc == nil {
		t.Fatalf("expected account, got %+v (%v)", acc, err)
	}

	if _, err = repo.FindByToken(context.Background(), entity.TokenKind("bogus"), "x"); err == nil {
		t.Fatalf("expected error for unknown token kind")
	}
}

func TestAccountRepository_FindByLogin(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	mock.ExpectQuery(findByLoginQuery).
		WithArgs("ann", "ann", "ann").
		WillReturnRows(accountRow("id-1", "ann", time.Now()))

	if _, err := repo.FindByLogin(context.Background(), "ann", "ann"); err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Save(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()
	acc := &entity.Account{
		ID:            "id-1",
		Username:      "ann",
		PasswordHash:  "hash",
		EmailVerified: true,
		LastLogin:     sql.NullTime{Time: now, Valid: true},
		StreakDays:    3,
		UpdatedAt:     now,
	}

	mock.ExpectExec(updateAccountQuery).
		WithArgs(
			acc.Username,
			acc.Email,
			acc.CanonicalEmail,
			acc.PasswordHash,
			acc.EmailVerified,
			acc.Verification.Token,
			acc.Verification.ExpiresAt,
			acc.PasswordReset.Token,
			acc.PasswordReset.ExpiresAt,
			acc.Refresh.Token,
			acc.Refresh.ExpiresAt,
			acc.LastLogin,
			acc.StreakDays,
			acc.IsPremium,
			acc.IsGuest,
			acc.UpdatedAt,
			acc.ID,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), acc); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_ListAndDelete(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery(listAccountsQuery).
		WithArgs(10, 0).
		WillReturnRows(accountRow("id-1", "ann", now))
	mock.ExpectExec(deleteAccountQuery).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	accounts, err := repo.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected one account, got %d", len(accounts))
	}
	if err = repo.Delete(context.Background(), "id-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLDirectory_AtomicCommits(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	dir := repository.NewMySQLDirectory(db)

	mock.ExpectBegin()
	mock.ExpectQuery(findByIDForUpdateQuery).
		WithArgs("id-1").
		WillReturnRows(accountRow("id-1", "ann", time.Now()))
	mock.ExpectExec(updateAccountQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := dir.Atomic(context.Background(), func(ctx context.Context, store repository.AccountStore) error {
		acc, err := store.FindByID(ctx, "id-1")
		if err != nil {
			return err
		}
		acc.EmailVerified = true
		return store.Save(ctx, acc)
	})
	if err != nil {
		t.Fatalf("atomic failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLDirectory_AtomicRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	dir := repository.NewMySQLDirectory(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := dir.Atomic(context.Background(), func(context.Context, repository.AccountStore) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
