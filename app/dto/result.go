package dto

import (
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

// AccountView is the only shape an account leaves the service in. Secrets and
// token pairs are never copied into it.
type AccountView struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         *string    `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	IsPremium     bool       `json:"is_premium"`
	IsGuest       bool       `json:"is_guest"`
	StreakDays    int        `json:"streak_days"`
	LastLogin     *time.Time `json:"last_login"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewAccountView(acc *entity.Account) *AccountView {
	if acc == nil {
		return nil
	}

	view := &AccountView{
		ID:            acc.ID,
		Username:      acc.Username,
		EmailVerified: acc.EmailVerified,
		IsPremium:     acc.IsPremium,
		IsGuest:       acc.IsGuest,
		StreakDays:    acc.StreakDays,
		CreatedAt:     acc.CreatedAt,
	}
	if acc.HasEmail() {
		email := acc.Email.String
		view.Email = &email
	}
	if acc.LastLogin.Valid {
		lastLogin := acc.LastLogin.Time
		view.LastLogin = &lastLogin
	}
	return view
}

func NewAccountViews(accounts []*entity.Account) []*AccountView {
	views := make([]*AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, NewAccountView(acc))
	}
	return views
}

// AuthResult is returned by every operation that starts or continues a session.
type AuthResult struct {
	AccessToken     string
	RefreshToken    string
	ExpiresIn       int64
	Account         *AccountView
	EmailDispatched bool
}

type DispatchResult struct {
	EmailDispatched bool
}

type ProfileResult struct {
	Account         *AccountView
	EmailDispatched bool
}

type TokenInfo struct {
	AccountID string
	Username  string
	ExpiresAt time.Time
}
