// Package mailer delivers verification and password-reset links. Delivery is
// best effort: every send reports success as a bool and never returns an error.
package mailer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

type Dispatcher interface {
	SendVerification(ctx context.Context, acc *entity.Account, token string) bool
	SendPasswordReset(ctx context.Context, acc *entity.Account, token string) bool
	SendEmailChangeVerification(ctx context.Context, acc *entity.Account, token string) bool
}

// DisabledDispatcher is used when no SMTP relay is configured. It logs the
// skipped delivery and reports failure so callers can surface it.
type DisabledDispatcher struct{}

func NewDisabledDispatcher() DisabledDispatcher {
	return DisabledDispatcher{}
}

func (DisabledDispatcher) SendVerification(_ context.Context, acc *entity.Account, _ string) bool {
	return skip(acc, KindVerification)
}

func (DisabledDispatcher) SendPasswordReset(_ context.Context, acc *entity.Account, _ string) bool {
	return skip(acc, KindPasswordReset)
}

func (DisabledDispatcher) SendEmailChangeVerification(_ context.Context, acc *entity.Account, _ string) bool {
	return skip(acc, KindEmailChange)
}

func skip(acc *entity.Account, kind Kind) bool {
	logrus.WithFields(logrus.Fields{
		"account_id": acc.ID,
		"kind":       string(kind),
	}).Warn("email delivery is not configured, message skipped")
	return false
}
