package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-account/app/secret"
	"github.com/vibast-solutions/ms-go-account/app/token"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrWeakPassword         = errors.New("password does not meet policy requirements")
	ErrUsernameTaken        = errors.New("username is already in use")
	ErrEmailTaken           = errors.New("email is already in use")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrPasswordMismatch     = errors.New("old password is incorrect")
	ErrAccountNotFound      = errors.New("account not found")
	ErrEmailAlreadyVerified = errors.New("email is already verified")
	ErrNoEmailOnFile        = errors.New("account has no email address")
	ErrNotAuthorized        = errors.New("not authorized")

	// Token failures share identity with the token package so that callers
	// can match either name.
	ErrInvalidToken = token.ErrInvalid
	ErrTokenExpired = token.ErrExpired
)

// Outcome is the transport-neutral classification of an operation result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidInput
	OutcomeConflict
	OutcomeInvalidToken
	OutcomeExpiredToken
	OutcomeNotAuthorized
	OutcomeNotFound
	OutcomeInternalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidInput:
		return "invalid_input"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInvalidToken:
		return "invalid_token"
	case OutcomeExpiredToken:
		return "expired_token"
	case OutcomeNotAuthorized:
		return "not_authorized"
	case OutcomeNotFound:
		return "not_found"
	}
	return "internal_error"
}

// OutcomeOf classifies err. Anything not recognised as a domain error is an
// internal error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrEmailAlreadyVerified),
		errors.Is(err, ErrNoEmailOnFile),
		errors.Is(err, secret.ErrEmptySecret),
		errors.Is(err, secret.ErrTooLong):
		return OutcomeInvalidInput
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken):
		return OutcomeConflict
	case errors.Is(err, ErrTokenExpired):
		return OutcomeExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return OutcomeInvalidToken
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrNotAuthorized):
		return OutcomeNotAuthorized
	case errors.Is(err, ErrAccountNotFound):
		return OutcomeNotFound
	}
	return OutcomeInternalError
}
