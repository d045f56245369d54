package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-account/app/dto"
)

type AuthResponse struct {
	AccessToken     string           `json:"access_token"`
	RefreshToken    string           `json:"refresh_token"`
	ExpiresIn       int64            `json:"expires_in"`
	Account         *dto.AccountView `json:"account,omitempty"`
	EmailDispatched *bool            `json:"email_dispatched,omitempty"`
	Message         string           `json:"message,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type DispatchResponse struct {
	Message         string `json:"message"`
	EmailDispatched bool   `json:"email_dispatched"`
}

type AccountResponse struct {
	Account         *dto.AccountView `json:"account"`
	EmailDispatched *bool            `json:"email_dispatched,omitempty"`
}

type AccountListResponse struct {
	Accounts []*dto.AccountView `json:"accounts"`
	Count    int                `json:"count"`
}

type ValidateTokenResponse struct {
	Valid     bool       `json:"valid"`
	AccountID string     `json:"account_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
