package grpc

import (
	"context"

	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/types"

	gogrpc "google.golang.org/grpc"
)

// ServiceName and AccountServiceDesc mirror api/account/v1/account.proto.
// The descriptor is hand-written and serves the JSON codec, so request and
// response structs use the proto's field names as JSON keys. Keep the rpc
// list and message fields in step with the proto.
const ServiceName = "account.v1.AccountService"

// Requests for calls made on behalf of a signed-in account carry the access
// token in the message, the same way the HTTP surface reads it from the
// Authorization header.
type AccessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type UpdateProfileRequest struct {
	AccessToken string `json:"access_token"`
	types.UpdateProfileRequest
}

type ChangePasswordRequest struct {
	AccessToken string `json:"access_token"`
	types.ChangePasswordRequest
}

type AccountServiceServer interface {
	Register(context.Context, *types.RegisterRequest) (*httpdto.AuthResponse, error)
	Login(context.Context, *types.LoginRequest) (*httpdto.AuthResponse, error)
	VerifyEmail(context.Context, *types.VerifyEmailRequest) (*httpdto.AccountResponse, error)
	ResendVerification(context.Context, *AccessTokenRequest) (*httpdto.DispatchResponse, error)
	ForgotPassword(context.Context, *types.ForgotPasswordRequest) (*httpdto.MessageResponse, error)
	ResetPassword(context.Context, *types.ResetPasswordRequest) (*httpdto.MessageResponse, error)
	RefreshToken(context.Context, *types.RefreshTokenRequest) (*httpdto.AuthResponse, error)
	Logout(context.Context, *AccessTokenRequest) (*httpdto.MessageResponse, error)
	GetAccount(context.Context, *AccessTokenRequest) (*httpdto.AccountResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*httpdto.AccountResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*httpdto.MessageResponse, error)
	ValidateToken(context.Context, *types.ValidateTokenRequest) (*httpdto.ValidateTokenResponse, error)
}

var AccountServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		unaryMethod("Register", AccountServiceServer.Register),
		unaryMethod("Login", AccountServiceServer.Login),
		unaryMethod("VerifyEmail", AccountServiceServer.VerifyEmail),
		unaryMethod("ResendVerification", AccountServiceServer.ResendVerification),
		unaryMethod("ForgotPassword", AccountServiceServer.ForgotPassword),
		unaryMethod("ResetPassword", AccountServiceServer.ResetPassword),
		unaryMethod("RefreshToken", AccountServiceServer.RefreshToken),
		unaryMethod("Logout", AccountServiceServer.Logout),
		unaryMethod("GetAccount", AccountServiceServer.GetAccount),
		unaryMethod("UpdateProfile", AccountServiceServer.UpdateProfile),
		unaryMethod("ChangePassword", AccountServiceServer.ChangePassword),
		unaryMethod("ValidateToken", AccountServiceServer.ValidateToken),
	},
	Streams: []gogrpc.StreamDesc{},
}

func RegisterAccountServiceServer(registrar gogrpc.ServiceRegistrar, srv AccountServiceServer) {
	registrar.RegisterService(&AccountServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod[Req any, Res any](name string, call func(AccountServiceServer, context.Context, *Req) (*Res, error)) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AccountServiceServer), ctx, in)
			}

			info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AccountServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AccountServiceClient calls the account service with the JSON codec.
type AccountServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewAccountServiceClient(cc gogrpc.ClientConnInterface) *AccountServiceClient {
	return &AccountServiceClient{cc: cc}
}

// Invoke sends req to method and decodes the reply into res.
func (c *AccountServiceClient) Invoke(ctx context.Context, method string, req, res any, opts ...gogrpc.CallOption) error {
	opts = append([]gogrpc.CallOption{gogrpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, FullMethod(method), req, res, opts...)
}

func (c *AccountServiceClient) Register(ctx context.Context, req *types.RegisterRequest, opts ...gogrpc.CallOption) (*httpdto.AuthResponse, error) {
	res := new(httpdto.AuthResponse)
	if err := c.Invoke(ctx, "Register", req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *AccountServiceClient) Login(ctx context.Context, req *types.LoginRequest, opts ...gogrpc.CallOption) (*httpdto.AuthResponse, error) {
	res := new(httpdto.AuthResponse)
	if err := c.Invoke(ctx, "Login", req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *AccountServiceClient) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest, opts ...gogrpc.CallOption) (*httpdto.AuthResponse, error) {
	res := new(httpdto.AuthResponse)
	if err := c.Invoke(ctx, "RefreshToken", req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *AccountServiceClient) GetAccount(ctx context.Context, req *AccessTokenRequest, opts ...gogrpc.CallOption) (*httpdto.AccountResponse, error) {
	res := new(httpdto.AccountResponse)
	if err := c.Invoke(ctx, "GetAccount", req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *AccountServiceClient) ValidateToken(ctx context.Context, req *types.ValidateTokenRequest, opts ...gogrpc.CallOption) (*httpdto.ValidateTokenResponse, error) {
	res := new(httpdto.ValidateTokenResponse)
	if err := c.Invoke(ctx, "ValidateToken", req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}
