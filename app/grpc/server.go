package grpc

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-account/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/types"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewServer builds a gRPC server speaking the JSON codec with the account
// service registered behind the internal API key check.
func NewServer(accountService service.AccountService, apiKeys []string, opts ...gogrpc.ServerOption) *gogrpc.Server {
	opts = append([]gogrpc.ServerOption{
		gogrpc.ForceServerCodec(JSONCodec{}),
		gogrpc.UnaryInterceptor(APIKeyUnaryInterceptor(apiKeys)),
		gogrpc.StreamInterceptor(APIKeyStreamInterceptor(apiKeys)),
	}, opts...)

	srv := gogrpc.NewServer(opts...)
	RegisterAccountServiceServer(srv, NewAccountServer(accountService))
	return srv
}

type AccountServer struct {
	accountService service.AccountService
}

func NewAccountServer(accountService service.AccountService) *AccountServer {
	return &AccountServer{accountService: accountService}
}

func (s *AccountServer) Register(ctx context.Context, req *types.RegisterRequest) (*httpdto.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.WithField("username", req.GetUsername()).Debug("Register validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	logrus.WithField("username", req.GetUsername()).Info("Register request received (grpc)")
	res, err := s.accountService.Register(ctx, req)
	if err != nil {
		return nil, statusError("register", err)
	}

	out := authResponse(res)
	if req.GetEmail() != "" {
		out.EmailDispatched = &res.EmailDispatched
	}
	return out, nil
}

func (s *AccountServer) Login(ctx context.Context, req *types.LoginRequest) (*httpdto.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.Debug("Login validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.accountService.Login(ctx, req)
	if err != nil {
		if service.OutcomeOf(err) == service.OutcomeNotAuthorized {
			return nil, status.Error(codes.Unauthenticated, service.ErrInvalidCredentials.Error())
		}
		return nil, statusError("login", err)
	}

	logrus.WithField("account_id", res.Account.ID).Info("Login successful (grpc)")
	return authResponse(res), nil
}

func (s *AccountServer) VerifyEmail(ctx context.Context, req *types.VerifyEmailRequest) (*httpdto.AccountResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.accountService.VerifyEmail(ctx, req)
	if err != nil {
		return nil, statusError("verify_email", err)
	}
	return &httpdto.AccountResponse{Account: view}, nil
}

func (s *AccountServer) ResendVerification(ctx context.Context, req *AccessTokenRequest) (*httpdto.DispatchResponse, error) {
	accountID, err := s.authenticate(req.AccessToken)
	if err != nil {
		return nil, err
	}

	res, err := s.accountService.ResendVerification(ctx, accountID)
	if err != nil {
		return nil, statusError("resend_verification", err)
	}

	message := "verification email sent"
	if !res.EmailDispatched {
		message = "verification email could not be sent"
	}
	return &httpdto.DispatchResponse{Message: message, EmailDispatched: res.EmailDispatched}, nil
}

func (s *AccountServer) ForgotPassword(ctx context.Context, req *types.ForgotPasswordRequest) (*httpdto.MessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.accountService.ForgotPassword(ctx, req); err != nil {
		return nil, statusError("forgot_password", err)
	}
	return &httpdto.MessageResponse{Message: "if the email exists, a password reset link has been sent"}, nil
}

func (s *AccountServer) ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) (*httpdto.MessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.accountService.ResetPassword(ctx, req); err != nil {
		return nil, statusError("reset_password", err)
	}
	return &httpdto.MessageResponse{Message: "password reset successfully"}, nil
}

func (s *AccountServer) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*httpdto.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.accountService.RefreshToken(ctx, req)
	if err != nil {
		switch service.OutcomeOf(err) {
		case service.OutcomeInvalidToken, service.OutcomeExpiredToken:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return nil, statusError("refresh_token", err)
	}
	return authResponse(res), nil
}

func (s *AccountServer) Logout(ctx context.Context, req *AccessTokenRequest) (*httpdto.MessageResponse, error) {
	accountID, err := s.authenticate(req.AccessToken)
	if err != nil {
		return nil, err
	}

	if err = s.accountService.Logout(ctx, accountID); err != nil {
		return nil, statusError("logout", err)
	}

	logrus.WithField("account_id", accountID).Info("Logout successful (grpc)")
	return &httpdto.MessageResponse{Message: "logged out successfully"}, nil
}

func (s *AccountServer) GetAccount(ctx context.Context, req *AccessTokenRequest) (*httpdto.AccountResponse, error) {
	accountID, err := s.authenticate(req.AccessToken)
	if err != nil {
		return nil, err
	}

	view, err := s.accountService.GetAccount(ctx, accountID)
	if err != nil {
		return nil, statusError("get_account", err)
	}
	return &httpdto.AccountResponse{Account: view}, nil
}

func (s *AccountServer) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*httpdto.AccountResponse, error) {
	accountID, err := s.authenticate(req.AccessToken)
	if err != nil {
		return nil, err
	}
	if err = req.UpdateProfileRequest.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.accountService.UpdateProfile(ctx, accountID, &req.UpdateProfileRequest)
	if err != nil {
		return nil, statusError("update_profile", err)
	}

	out := &httpdto.AccountResponse{Account: res.Account}
	if req.HasEmail() && req.GetEmail() != "" {
		out.EmailDispatched = &res.EmailDispatched
	}
	return out, nil
}

func (s *AccountServer) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*httpdto.MessageResponse, error) {
	accountID, err := s.authenticate(req.AccessToken)
	if err != nil {
		return nil, err
	}
	if err = req.ChangePasswordRequest.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err = s.accountService.ChangePassword(ctx, accountID, &req.ChangePasswordRequest); err != nil {
		if errors.Is(err, service.ErrPasswordMismatch) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, statusError("change_password", err)
	}
	return &httpdto.MessageResponse{Message: "password changed successfully"}, nil
}

func (s *AccountServer) ValidateToken(_ context.Context, req *types.ValidateTokenRequest) (*httpdto.ValidateTokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	info, err := s.accountService.ValidateAccessToken(req.GetAccessToken())
	if err != nil {
		logrus.Debug("Validate token failed (grpc)")
		return &httpdto.ValidateTokenResponse{Valid: false, Error: err.Error()}, nil
	}

	return &httpdto.ValidateTokenResponse{
		Valid:     true,
		AccountID: info.AccountID,
		Username:  info.Username,
		ExpiresAt: &info.ExpiresAt,
	}, nil
}

func (s *AccountServer) authenticate(accessToken string) (string, error) {
	if accessToken == "" {
		return "", status.Error(codes.Unauthenticated, "access_token is required")
	}

	info, err := s.accountService.ValidateAccessToken(accessToken)
	if err != nil {
		logrus.Debug("Access token rejected (grpc)")
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return info.AccountID, nil
}

var outcomeCodes = map[service.Outcome]codes.Code{
	service.OutcomeInvalidInput:  codes.InvalidArgument,
	service.OutcomeConflict:      codes.AlreadyExists,
	service.OutcomeInvalidToken:  codes.InvalidArgument,
	service.OutcomeExpiredToken:  codes.InvalidArgument,
	service.OutcomeNotAuthorized: codes.Unauthenticated,
	service.OutcomeNotFound:      codes.NotFound,
}

func statusError(operation string, err error) error {
	code, ok := outcomeCodes[service.OutcomeOf(err)]
	if !ok {
		logrus.WithError(err).WithField("operation", operation).Error("Request failed (grpc)")
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, err.Error())
}

func authResponse(res *dto.AuthResult) *httpdto.AuthResponse {
	return &httpdto.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		Account:      res.Account,
	}
}
