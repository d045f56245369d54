package entity

import (
	"database/sql"
	"time"
)

type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
	TokenRefresh       TokenKind = "refresh"
)

// TokenPair holds an opaque token and its expiry. Both fields are either set or
// unset together; build pairs with NewTokenPair or the zero value.
type TokenPair struct {
	Token     sql.NullString
	ExpiresAt sql.NullTime
}

func NewTokenPair(token string, expiresAt time.Time) TokenPair {
	return TokenPair{
		Token:     sql.NullString{String: token, Valid: true},
		ExpiresAt: sql.NullTime{Time: expiresAt, Valid: true},
	}
}

func (p TokenPair) Present() bool {
	return p.Token.Valid && p.ExpiresAt.Valid
}

// Live reports whether the pair is present and now is strictly before its expiry.
func (p TokenPair) Live(now time.Time) bool {
	return p.Present() && now.Before(p.ExpiresAt.Time)
}

type Account struct {
	ID             string
	Username       string
	Email          sql.NullString
	CanonicalEmail sql.NullString
	PasswordHash   string
	EmailVerified  bool
	Verification   TokenPair
	PasswordReset  TokenPair
	Refresh        TokenPair
	LastLogin      sql.NullTime
	StreakDays     int
	IsPremium      bool
	IsGuest        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Account) Pair(kind TokenKind) TokenPair {
	switch kind {
	case TokenVerification:
		return a.Verification
	case TokenPasswordReset:
		return a.PasswordReset
	case TokenRefresh:
		return a.Refresh
	}
	return TokenPair{}
}

func (a *Account) SetPair(kind TokenKind, pair TokenPair) {
	switch kind {
	case TokenVerification:
		a.Verification = pair
	case TokenPasswordReset:
		a.PasswordReset = pair
	case TokenRefresh:
		a.Refresh = pair
	}
}

func (a *Account) HasEmail() bool {
	return a.Email.Valid && a.Email.String != ""
}
