package lifecycle_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/lifecycle"
	"github.com/vibast-solutions/ms-go-account/app/token"
)

type sequenceTokens struct {
	n int
}

func (s *sequenceTokens) Opaque(kind entity.TokenKind) (string, error) {
	s.n++
	return fmt.Sprintf("%s-%d", kind, s.n), nil
}

type failingTokens struct{}

func (failingTokens) Opaque(entity.TokenKind) (string, error) {
	return "", errors.New("entropy unavailable")
}

func newEngine() *lifecycle.Engine {
	return lifecycle.New(lifecycle.Policy{
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
		RefreshTTL:      30 * 24 * time.Hour,
	}, &sequenceTokens{})
}

func assertPairAtomic(t *testing.T, acc entity.Account) {
	t.Helper()

	for _, kind := range []entity.TokenKind{entity.TokenVerification, entity.TokenPasswordReset, entity.TokenRefresh} {
		pair := acc.Pair(kind)
		if pair.Token.Valid != pair.ExpiresAt.Valid {
			t.Fatalf("%s pair is half set: %+v", kind, pair)
		}
	}
}

func TestIssue_SetsPairWithTTL(t *testing.T) {
	engine := newEngine()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	acc, value, err := engine.Issue(entity.Account{ID: "a"}, entity.TokenVerification, now)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if value == "" || acc.Verification.Token.String != value {
		t.Fatalf("expected stored token %q, got %+v", value, acc.Verification)
	}
	if !acc.Verification.ExpiresAt.Time.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", acc.Verification.ExpiresAt.Time)
	}
	assertPairAtomic(t, acc)
}

func TestIssue_OverwritesOutstandingPair(t *testing.T) {
	engine := newEngine()
	now := time.Now()

	acc, first, _ := engine.Issue(entity.Account{}, entity.TokenVerification, now)
	acc, second, _ := engine.Issue(acc, entity.TokenVerification, now)
	if first == second {
		t.Fatalf("expected a new token value")
	}

	if _, err := lifecycle.Consume(acc, entity.TokenVerification, first, now); !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected the replaced token to be invalid, got %v", err)
	}
}

func TestIssue_GeneratorFailureLeavesAccountUntouched(t *testing.T) {
	engine := lifecycle.New(lifecycle.Policy{RefreshTTL: time.Hour}, failingTokens{})
	orig := entity.Account{ID: "a", Refresh: entity.NewTokenPair("keep", time.Now().Add(time.Hour))}

	acc, _, err := engine.Issue(orig, entity.TokenRefresh, time.Now())
	if err == nil {
		t.Fatalf("expected error")
	}
	if acc.Refresh.Token.String != "keep" {
		t.Fatalf("expected original pair to survive")
	}
}

func TestState(t *testing.T) {
	now := time.Now()

	if got := lifecycle.State(entity.TokenPair{}, now); got != lifecycle.Absent {
		t.Fatalf("expected absent, got %s", got)
	}
	if got := lifecycle.State(entity.NewTokenPair("x", now.Add(time.Second)), now); got != lifecycle.Live {
		t.Fatalf("expected live, got %s", got)
	}
	if got := lifecycle.State(entity.NewTokenPair("x", now), now); got != lifecycle.Expired {
		t.Fatalf("expected expired at the boundary, got %s", got)
	}
}

func TestConsume_ExpiryBoundary(t *testing.T) {
	engine := newEngine()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc, value, _ := engine.Issue(entity.Account{}, entity.TokenPasswordReset, issued)

	justBefore := issued.Add(time.Hour - time.Nanosecond)
	if _, err := lifecycle.Consume(acc, entity.TokenPasswordReset, value, justBefore); err != nil {
		t.Fatalf("expected success just before expiry, got %v", err)
	}

	atExpiry := issued.Add(time.Hour)
	next, err := lifecycle.Consume(acc, entity.TokenPasswordReset, value, atExpiry)
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected ErrExpired at T+d, got %v", err)
	}
	if next.PasswordReset.Present() {
		t.Fatalf("expected expired pair to be cleared")
	}
	assertPairAtomic(t, next)
}

func TestConsume_WrongValueIsInvalid(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc, _, _ := engine.Issue(entity.Account{}, entity.TokenVerification, now)

	next, err := lifecycle.Consume(acc, entity.TokenVerification, "other", now)
	if !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !next.Verification.Present() {
		t.Fatalf("a mismatched token must not clear the pair")
	}
}

func TestVerifyEmail(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc, value, _ := engine.Issue(entity.Account{}, entity.TokenVerification, now)

	verified, err := engine.VerifyEmail(acc, value, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verified.EmailVerified || verified.Verification.Present() {
		t.Fatalf("unexpected state: %+v", verified)
	}

	if _, err = engine.VerifyEmail(verified, value, now.Add(time.Hour)); !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected second use to be invalid, got %v", err)
	}
}

func TestVerifyEmail_ExpiredDoesNotVerify(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc, value, _ := engine.Issue(entity.Account{}, entity.TokenVerification, now)

	next, err := engine.VerifyEmail(acc, value, now.Add(25*time.Hour))
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if next.EmailVerified {
		t.Fatalf("expired token must not verify the email")
	}
}

func TestResetPassword_ReplacesHashAndRevokesSession(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc := entity.Account{PasswordHash: "old", Refresh: entity.NewTokenPair("r", now.Add(time.Hour))}
	acc, value, _ := engine.Issue(acc, entity.TokenPasswordReset, now)

	next, err := engine.ResetPassword(acc, value, "new", now)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if next.PasswordHash != "new" || next.PasswordReset.Present() || next.Refresh.Present() {
		t.Fatalf("unexpected state: %+v", next)
	}
}

func TestRotateRefresh_SingleUse(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc, r1, _ := engine.Issue(entity.Account{}, entity.TokenRefresh, now)

	acc, r2, err := engine.RotateRefresh(acc, r1, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if r1 == r2 {
		t.Fatalf("expected a new refresh token")
	}
	if !acc.Refresh.ExpiresAt.Time.Equal(now.Add(time.Minute).Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", acc.Refresh.ExpiresAt.Time)
	}

	if _, _, err = engine.RotateRefresh(acc, r1, now.Add(2*time.Minute)); !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected old token to be rejected, got %v", err)
	}
	if _, _, err = engine.RotateRefresh(acc, r2, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("expected new token to validate, got %v", err)
	}
}

func TestRotateRefresh_Expired(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	acc, r1, _ := engine.Issue(entity.Account{}, entity.TokenRefresh, now)

	next, _, err := engine.RotateRefresh(acc, r1, now.Add(31*24*time.Hour))
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if next.Refresh.Present() {
		t.Fatalf("expected pair to be cleared")
	}
}

func TestRevokeRefresh_Idempotent(t *testing.T) {
	now := time.Now()
	acc := entity.Account{Refresh: entity.NewTokenPair("r", now.Add(time.Hour))}

	once := lifecycle.RevokeRefresh(acc, now)
	twice := lifecycle.RevokeRefresh(once, now)
	if once.Refresh.Present() || twice.Refresh.Present() {
		t.Fatalf("expected refresh pair to stay absent")
	}
}

func TestChangeEmail_ResetsVerification(t *testing.T) {
	now := time.Now()
	acc := entity.Account{
		Email:         sql.NullString{String: "old@x.com", Valid: true},
		EmailVerified: true,
		Verification:  entity.NewTokenPair("v", now.Add(time.Hour)),
	}

	next := lifecycle.ChangeEmail(acc, "New@x.com", "new@x.com", now)
	if next.EmailVerified || next.Verification.Present() {
		t.Fatalf("expected verification state to reset: %+v", next)
	}
	if next.Email.String != "New@x.com" || next.CanonicalEmail.String != "new@x.com" {
		t.Fatalf("unexpected email fields: %+v", next)
	}

	cleared := lifecycle.ChangeEmail(next, "", "", now)
	if cleared.Email.Valid || cleared.CanonicalEmail.Valid {
		t.Fatalf("expected email to be removed")
	}
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	orig, value, _ := engine.Issue(entity.Account{}, entity.TokenVerification, now)

	if _, err := engine.VerifyEmail(orig, value, now); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !orig.Verification.Present() || orig.EmailVerified {
		t.Fatalf("input account was mutated")
	}
}
