package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/controller"
	accountgrpc "github.com/vibast-solutions/ms-go-account/app/grpc"
	"github.com/vibast-solutions/ms-go-account/app/mailer"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/secret"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/token"
	"github.com/vibast-solutions/ms-go-account/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the account service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err = configureLogging(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	dir, release, err := openDirectory(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer release()

	hasher, err := secret.NewBcryptHasher(cfg.Password.HashCost)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure password hashing")
	}
	signer := token.NewAccessSigner(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	accountService := service.NewAccountService(dir, hasher, signer, mailer.NewDispatcher(cfg), cfg)
	adminService := service.NewAdminService(dir, hasher, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var grpcServer *grpc.Server
	if len(cfg.GRPC.APIKeys) > 0 {
		grpcServer = startGRPCServer(cfg, accountService)
	} else {
		logrus.Warn("INTERNAL_API_KEYS is empty, gRPC server not started")
	}

	e := newHTTPServer(accountService, adminService)
	go func() {
		logrus.WithField("addr", cfg.HTTP.Address()).Info("Starting HTTP server")
		if err := e.Start(cfg.HTTP.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

func newHTTPServer(accountService service.AccountService, adminService service.AdminService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	accountController := controller.NewAccountController(accountService)
	authMiddleware := middleware.NewAuthMiddleware(accountService)

	auth := e.Group("/auth")
	auth.POST("/register", accountController.Register)
	auth.POST("/login", accountController.Login)
	auth.GET("/verify-email", accountController.VerifyEmail)
	auth.POST("/verify-email", accountController.VerifyEmail)
	auth.POST("/forgot-password", accountController.ForgotPassword)
	auth.POST("/reset-password", accountController.ResetPassword)
	auth.POST("/refresh-token", accountController.RefreshToken)
	auth.POST("/validate-token", accountController.ValidateToken)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.POST("/resend-verification", accountController.ResendVerification)
	authProtected.POST("/logout", accountController.Logout)
	authProtected.GET("/me", accountController.Me)
	authProtected.PATCH("/profile", accountController.UpdateProfile)
	authProtected.PUT("/profile", accountController.UpdateProfile)
	authProtected.POST("/change-password", accountController.ChangePassword)

	adminController := controller.NewAdminController(adminService)
	adminMiddleware := middleware.NewAdminKeyMiddleware(adminService)

	admin := e.Group("/admin")
	admin.Use(adminMiddleware.RequireAdminKey)
	admin.GET("/accounts", adminController.ListAccounts)
	admin.GET("/accounts/by-email/:email", adminController.FindAccountByEmail)
	admin.POST("/reset-password", adminController.SetPassword)
	admin.DELETE("/accounts/:id", adminController.DeleteAccount)

	return e
}

func startGRPCServer(cfg *config.Config, accountService service.AccountService) *grpc.Server {
	grpcAddr := cfg.GRPC.Address()
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer := accountgrpc.NewServer(accountService, cfg.GRPC.APIKeys)
	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("Failed to start gRPC server")
		}
	}()
	return grpcServer
}
