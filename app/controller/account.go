package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const forgotPasswordMessage = "if the email exists, a password reset link has been sent"

type AccountController struct {
	accountService service.AccountService
}

func NewAccountController(accountService service.AccountService) *AccountController {
	return &AccountController{accountService: accountService}
}

func (c *AccountController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("username", req.GetUsername()).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("username", req.GetUsername()).Info("Register request received")
	result, err := c.accountService.Register(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, "register", err)
	}

	res := newAuthResponse(result)
	if req.GetEmail() != "" {
		res.EmailDispatched = &result.EmailDispatched
		res.Message = "registration successful, please verify your email"
	} else {
		res.Message = "registration successful"
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (c *AccountController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.accountService.Login(ctx.Request().Context(), req)
	if err != nil {
		if service.OutcomeOf(err) == service.OutcomeNotAuthorized {
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: service.ErrInvalidCredentials.Error()})
		}
		return respondError(ctx, "login", err)
	}

	logrus.WithField("account_id", result.Account.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, newAuthResponse(result))
}

func (c *AccountController) VerifyEmail(ctx echo.Context) error {
	req, err := types.NewVerifyEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verify email request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	view, err := c.accountService.VerifyEmail(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, "verify_email", err)
	}

	logrus.WithField("account_id", view.ID).Info("Email verified")
	return ctx.JSON(http.StatusOK, httpdto.AccountResponse{Account: view})
}

func (c *AccountController) ResendVerification(ctx echo.Context) error {
	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		logrus.Warn("Resend verification failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	result, err := c.accountService.ResendVerification(ctx.Request().Context(), accountID)
	if err != nil {
		return respondError(ctx, "resend_verification", err)
	}

	message := "verification email sent"
	if !result.EmailDispatched {
		message = "verification email could not be sent"
	}
	return ctx.JSON(http.StatusOK, httpdto.DispatchResponse{Message: message, EmailDispatched: result.EmailDispatched})
}

func (c *AccountController) ForgotPassword(ctx echo.Context) error {
	req, err := types.NewForgotPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind forgot password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if err = c.accountService.ForgotPassword(ctx.Request().Context(), req); err != nil {
		return respondError(ctx, "forgot_password", err)
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: forgotPasswordMessage})
}

func (c *AccountController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if err = c.accountService.ResetPassword(ctx.Request().Context(), req); err != nil {
		return respondError(ctx, "reset_password", err)
	}

	logrus.Info("Password reset successful")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password reset successfully"})
}

func (c *AccountController) RefreshToken(ctx echo.Context) error {
	req, err := types.NewRefreshTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh token request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.accountService.RefreshToken(ctx.Request().Context(), req)
	if err != nil {
		switch service.OutcomeOf(err) {
		case service.OutcomeInvalidToken, service.OutcomeExpiredToken:
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: err.Error()})
		}
		return respondError(ctx, "refresh_token", err)
	}

	return ctx.JSON(http.StatusOK, newAuthResponse(result))
}

func (c *AccountController) Logout(ctx echo.Context) error {
	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		logrus.Warn("Logout failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	if err := c.accountService.Logout(ctx.Request().Context(), accountID); err != nil {
		return respondError(ctx, "logout", err)
	}

	logrus.WithField("account_id", accountID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out successfully"})
}

func (c *AccountController) Me(ctx echo.Context) error {
	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	view, err := c.accountService.GetAccount(ctx.Request().Context(), accountID)
	if err != nil {
		return respondError(ctx, "get_account", err)
	}
	return ctx.JSON(http.StatusOK, httpdto.AccountResponse{Account: view})
}

func (c *AccountController) UpdateProfile(ctx echo.Context) error {
	req, err := types.NewUpdateProfileRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind update profile request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		logrus.Warn("Update profile failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	result, err := c.accountService.UpdateProfile(ctx.Request().Context(), accountID, req)
	if err != nil {
		return respondError(ctx, "update_profile", err)
	}

	res := httpdto.AccountResponse{Account: result.Account}
	if req.HasEmail() && req.GetEmail() != "" {
		res.EmailDispatched = &result.EmailDispatched
	}
	return ctx.JSON(http.StatusOK, res)
}

func (c *AccountController) ChangePassword(ctx echo.Context) error {
	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Change password validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		logrus.Warn("Change password failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	if err = c.accountService.ChangePassword(ctx.Request().Context(), accountID, req); err != nil {
		if errors.Is(err, service.ErrPasswordMismatch) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		return respondError(ctx, "change_password", err)
	}

	logrus.WithField("account_id", accountID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password changed successfully"})
}

func (c *AccountController) ValidateToken(ctx echo.Context) error {
	req, err := types.NewValidateTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind validate token request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	info, err := c.accountService.ValidateAccessToken(req.GetAccessToken())
	if err != nil {
		logrus.Debug("Validate token failed")
		return ctx.JSON(http.StatusOK, httpdto.ValidateTokenResponse{Valid: false, Error: err.Error()})
	}

	return ctx.JSON(http.StatusOK, httpdto.ValidateTokenResponse{
		Valid:     true,
		AccountID: info.AccountID,
		Username:  info.Username,
		ExpiresAt: &info.ExpiresAt,
	})
}

var outcomeStatus = map[service.Outcome]int{
	service.OutcomeInvalidInput:  http.StatusBadRequest,
	service.OutcomeConflict:      http.StatusConflict,
	service.OutcomeInvalidToken:  http.StatusBadRequest,
	service.OutcomeExpiredToken:  http.StatusBadRequest,
	service.OutcomeNotAuthorized: http.StatusUnauthorized,
	service.OutcomeNotFound:      http.StatusNotFound,
}

// respondError writes err using its outcome. Internal errors are logged and
// hidden behind a generic message.
func respondError(ctx echo.Context, operation string, err error) error {
	outcome := service.OutcomeOf(err)
	status, ok := outcomeStatus[outcome]
	if !ok {
		logrus.WithError(err).WithField("operation", operation).Error("Request failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"operation": operation,
		"outcome":   outcome.String(),
	}).Debug("Request rejected")
	return ctx.JSON(status, httpdto.ErrorResponse{Error: err.Error()})
}

func newAuthResponse(result *dto.AuthResult) *httpdto.AuthResponse {
	return &httpdto.AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		Account:      result.Account,
	}
}
