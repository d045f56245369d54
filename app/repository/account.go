package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

// AccountStore is the record-level contract the account service works against.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindByUsername(ctx context.Context, username string) (*entity.Account, error)
	FindByEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error)
	FindByLogin(ctx context.Context, username, canonicalEmail string) (*entity.Account, error)
	FindByToken(ctx context.Context, kind entity.TokenKind, value string) (*entity.Account, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Account, error)
	Create(ctx context.Context, account *entity.Account) error
	Save(ctx context.Context, account *entity.Account) error
	Delete(ctx context.Context, id string) error
}

const selectAccount = `
		SELECT id, username, email, canonical_email, password_hash, email_verified,
		       verification_token, verification_token_expires_at,
		       password_reset_token, password_reset_expires_at,
		       refresh_token, refresh_token_expires_at,
		       last_login, streak_days, is_premium, is_guest, created_at, updated_at
		FROM accounts`

type AccountRepository struct {
	db        DBTX
	forUpdate bool
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// ForUpdate returns a copy whose single-row reads take row locks. Only
// meaningful when the underlying DBTX is a transaction.
func (r *AccountRepository) ForUpdate() *AccountRepository {
	return &AccountRepository{db: r.db, forUpdate: true}
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return r.findOne(ctx, selectAccount+` WHERE id = ?`, id)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	return r.findOne(ctx, selectAccount+` WHERE username = ?`, username)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error) {
	return r.findOne(ctx, selectAccount+` WHERE canonical_email = ?`, canonicalEmail)
}

// FindByLogin prefers an exact username match over an email match.
func (r *AccountRepository) FindByLogin(ctx context.Context, username, canonicalEmail string) (*entity.Account, error) {
	return r.findOne(ctx,
		selectAccount+` WHERE username = ? OR canonical_email = ? ORDER BY username = ? DESC LIMIT 1`,
		username, canonicalEmail, username,
	)
}

func (r *AccountRepository) FindByToken(ctx context.Context, kind entity.TokenKind, value string) (*entity.Account, error) {
	column, err := tokenColumn(kind)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, selectAccount+` WHERE `+column+` = ?`, value)
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*entity.Account, error) {
	rows, err := r.db.QueryContext(ctx, selectAccount+` ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*entity.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (
			id, username, email, canonical_email, password_hash, email_verified,
			verification_token, verification_token_expires_at,
			password_reset_token, password_reset_expires_at,
			refresh_token, refresh_token_expires_at,
			last_login, streak_days, is_premium, is_guest, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		account.CanonicalEmail,
		account.PasswordHash,
		account.EmailVerified,
		account.Verification.Token,
		account.Verification.ExpiresAt,
		account.PasswordReset.Token,
		account.PasswordReset.ExpiresAt,
		account.Refresh.Token,
		account.Refresh.ExpiresAt,
		account.LastLogin,
		account.StreakDays,
		account.IsPremium,
		account.IsGuest,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return translateWriteError(err)
}

func (r *AccountRepository) Save(ctx context.Context, account *entity.Account) error {
	query := `
		UPDATE accounts SET
			username = ?,
			email = ?,
			canonical_email = ?,
			password_hash = ?,
			email_verified = ?,
			verification_token = ?,
			verification_token_expires_at = ?,
			password_reset_token = ?,
			password_reset_expires_at = ?,
			refresh_token = ?,
			refresh_token_expires_at = ?,
			last_login = ?,
			streak_days = ?,
			is_premium = ?,
			is_guest = ?,
			updated_at = ?
		WHERE id = ?
	`
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
		account.Username,
		account.Email,
		account.CanonicalEmail,
		account.PasswordHash,
		account.EmailVerified,
		account.Verification.Token,
		account.Verification.ExpiresAt,
		account.PasswordReset.Token,
		account.PasswordReset.ExpiresAt,
		account.Refresh.Token,
		account.Refresh.ExpiresAt,
		account.LastLogin,
		account.StreakDays,
		account.IsPremium,
		account.IsGuest,
		account.UpdatedAt,
		account.ID,
	)
	return translateWriteError(err)
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func (r *AccountRepository) findOne(ctx context.Context, query string, args ...any) (*entity.Account, error) {
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

type rowScanner func(dest ...any) error

func scanAccount(scan rowScanner) (*entity.Account, error) {
	account := &entity.Account{}
	if err := scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.CanonicalEmail,
		&account.PasswordHash,
		&account.EmailVerified,
		&account.Verification.Token,
		&account.Verification.ExpiresAt,
		&account.PasswordReset.Token,
		&account.PasswordReset.ExpiresAt,
		&account.Refresh.Token,
		&account.Refresh.ExpiresAt,
		&account.LastLogin,
		&account.StreakDays,
		&account.IsPremium,
		&account.IsGuest,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return account, nil
}

func tokenColumn(kind entity.TokenKind) (string, error) {
	switch kind {
	case entity.TokenVerification:
		return "verification_token", nil
	case entity.TokenPasswordReset:
		return "password_reset_token", nil
	case entity.TokenRefresh:
		return "refresh_token", nil
	}
	return "", fmt.Errorf("unknown token kind %q", kind)
}
