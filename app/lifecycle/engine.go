// Package lifecycle holds the credential state machine. Every transition takes
// an account by value plus the request's "now" and returns the next account
// state; nothing here touches storage, email or the wall clock.
package lifecycle

import (
	"crypto/subtle"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/token"
)

type PairState int

const (
	Absent PairState = iota
	Live
	Expired
)

func (s PairState) String() string {
	switch s {
	case Live:
		return "live"
	case Expired:
		return "expired"
	}
	return "absent"
}

type Policy struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	RefreshTTL      time.Duration
}

func (p Policy) TTL(kind entity.TokenKind) time.Duration {
	switch kind {
	case entity.TokenVerification:
		return p.VerificationTTL
	case entity.TokenPasswordReset:
		return p.ResetTTL
	case entity.TokenRefresh:
		return p.RefreshTTL
	}
	return 0
}

type TokenSource interface {
	Opaque(kind entity.TokenKind) (string, error)
}

type Engine struct {
	policy Policy
	tokens TokenSource
}

func New(policy Policy, tokens TokenSource) *Engine {
	return &Engine{policy: policy, tokens: tokens}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func State(pair entity.TokenPair, now time.Time) PairState {
	if !pair.Present() {
		return Absent
	}
	if pair.Live(now) {
		return Live
	}
	return Expired
}

// Issue mints a fresh pair of the given kind, replacing any outstanding one.
func (e *Engine) Issue(acc entity.Account, kind entity.TokenKind, now time.Time) (entity.Account, string, error) {
	value, err := e.tokens.Opaque(kind)
	if err != nil {
		return acc, "", err
	}

	acc.SetPair(kind, entity.NewTokenPair(value, now.Add(e.policy.TTL(kind))))
	acc.UpdatedAt = now
	return acc, value, nil
}

// Consume checks the presented value against the stored pair and clears the
// pair whenever it was present: on success, and also when it had expired.
// The returned account must be persisted in both of those cases.
func Consume(acc entity.Account, kind entity.TokenKind, presented string, now time.Time) (entity.Account, error) {
	pair := acc.Pair(kind)
	if !pair.Present() || !sameToken(pair.Token.String, presented) {
		return acc, token.ErrInvalid
	}

	acc.SetPair(kind, entity.TokenPair{})
	acc.UpdatedAt = now
	if !pair.Live(now) {
		return acc, token.ErrExpired
	}
	return acc, nil
}

func (e *Engine) VerifyEmail(acc entity.Account, presented string, now time.Time) (entity.Account, error) {
	next, err := Consume(acc, entity.TokenVerification, presented, now)
	if err != nil {
		return next, err
	}

	next.EmailVerified = true
	return next, nil
}

func (e *Engine) ResetPassword(acc entity.Account, presented, passwordHash string, now time.Time) (entity.Account, error) {
	next, err := Consume(acc, entity.TokenPasswordReset, presented, now)
	if err != nil {
		return next, err
	}

	next.PasswordHash = passwordHash
	next.Refresh = entity.TokenPair{}
	return next, nil
}

// RotateRefresh redeems the presented refresh token and issues its successor.
// The old value stops validating as soon as the returned account is stored.
func (e *Engine) RotateRefresh(acc entity.Account, presented string, now time.Time) (entity.Account, string, error) {
	next, err := Consume(acc, entity.TokenRefresh, presented, now)
	if err != nil {
		return next, "", err
	}
	return e.Issue(next, entity.TokenRefresh, now)
}

func RevokeRefresh(acc entity.Account, now time.Time) entity.Account {
	if !acc.Refresh.Present() {
		return acc
	}
	acc.Refresh = entity.TokenPair{}
	acc.UpdatedAt = now
	return acc
}

// RecordLogin updates the streak from the previous login and stamps lastLogin.
func RecordLogin(acc entity.Account, now time.Time) entity.Account {
	acc.StreakDays = NextStreak(acc.StreakDays, acc.LastLogin, now)
	acc.LastLogin = sql.NullTime{Time: now, Valid: true}
	acc.UpdatedAt = now
	return acc
}

// ChangeEmail swaps the address and drops verification state. An empty email
// removes the address entirely.
func ChangeEmail(acc entity.Account, email, canonical string, now time.Time) entity.Account {
	if email == "" {
		acc.Email = sql.NullString{}
		acc.CanonicalEmail = sql.NullString{}
	} else {
		acc.Email = sql.NullString{String: email, Valid: true}
		acc.CanonicalEmail = sql.NullString{String: canonical, Valid: true}
	}
	acc.EmailVerified = false
	acc.Verification = entity.TokenPair{}
	acc.UpdatedAt = now
	return acc
}

func SetPassword(acc entity.Account, passwordHash string, now time.Time) entity.Account {
	acc.PasswordHash = passwordHash
	acc.PasswordReset = entity.TokenPair{}
	acc.Refresh = entity.TokenPair{}
	acc.UpdatedAt = now
	return acc
}

func sameToken(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
