package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/lifecycle"
	"github.com/vibast-solutions/ms-go-account/app/mailer"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/secret"
	"github.com/vibast-solutions/ms-go-account/app/token"
	"github.com/vibast-solutions/ms-go-account/app/types"
	"github.com/vibast-solutions/ms-go-account/config"
)

type AccountService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*dto.AuthResult, error)
	Login(ctx context.Context, req *types.LoginRequest) (*dto.AuthResult, error)
	VerifyEmail(ctx context.Context, req *types.VerifyEmailRequest) (*dto.AccountView, error)
	ResendVerification(ctx context.Context, accountID string) (*dto.DispatchResult, error)
	ForgotPassword(ctx context.Context, req *types.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*dto.AuthResult, error)
	Logout(ctx context.Context, accountID string) error
	GetAccount(ctx context.Context, accountID string) (*dto.AccountView, error)
	UpdateProfile(ctx context.Context, accountID string, req *types.UpdateProfileRequest) (*dto.ProfileResult, error)
	ChangePassword(ctx context.Context, accountID string, req *types.ChangePasswordRequest) error
	ValidateAccessToken(tokenString string) (*dto.TokenInfo, error)
}

type AccountServiceOption func(*accountService)

type accountService struct {
	dir        repository.Directory
	hasher     secret.Hasher
	signer     *token.AccessSigner
	engine     *lifecycle.Engine
	dispatcher mailer.Dispatcher
	cfg        *config.Config
	now        func() time.Time
	newID      func() string

	decoyOnce sync.Once
	decoyHash string
}

func NewAccountService(
	dir repository.Directory,
	hasher secret.Hasher,
	signer *token.AccessSigner,
	dispatcher mailer.Dispatcher,
	cfg *config.Config,
	opts ...AccountServiceOption,
) AccountService {
	svc := &accountService{
		dir:        dir,
		hasher:     hasher,
		signer:     signer,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	svc.engine = lifecycle.New(policyFromConfig(cfg), token.NewGenerator())
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithClock replaces the wall clock. Every operation reads it exactly once.
func WithClock(now func() time.Time) AccountServiceOption {
	return func(s *accountService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenSource replaces the opaque token generator.
func WithTokenSource(tokens lifecycle.TokenSource) AccountServiceOption {
	return func(s *accountService) {
		if tokens != nil {
			s.engine = lifecycle.New(policyFromConfig(s.cfg), tokens)
		}
	}
}

func WithIDGenerator(newID func() string) AccountServiceOption {
	return func(s *accountService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func policyFromConfig(cfg *config.Config) lifecycle.Policy {
	return lifecycle.Policy{
		VerificationTTL: cfg.Tokens.VerificationTTL,
		ResetTTL:        cfg.Tokens.ResetTTL,
		RefreshTTL:      cfg.Tokens.RefreshTTL,
	}
}

func (s *accountService) Register(ctx context.Context, req *types.RegisterRequest) (*dto.AuthResult, error) {
	now := s.now()
	username := strings.TrimSpace(req.GetUsername())
	email, canonical := NormalizeEmail(req.GetEmail())
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	if err := s.cfg.Password.Policy.Validate(req.GetPassword()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.GetPassword())
	if err != nil {
		return nil, err
	}

	var (
		created           entity.Account
		verificationToken string
		refreshToken      string
	)
	err = s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		existing, err := store.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrUsernameTaken
		}

		acc := entity.Account{
			ID:           s.newID(),
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if email != "" {
			if err = s.claimEmail(ctx, store, canonical, ""); err != nil {
				return err
			}

			acc = lifecycle.ChangeEmail(acc, email, canonical, now)
			if acc, verificationToken, err = s.engine.Issue(acc, entity.TokenVerification, now); err != nil {
				return err
			}
		}

		if acc, refreshToken, err = s.engine.Issue(acc, entity.TokenRefresh, now); err != nil {
			return err
		}

		if err = store.Create(ctx, &acc); err != nil {
			return translateWriteError(err)
		}
		created = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signer.Mint(created.ID, created.Username, now)
	if err != nil {
		return nil, err
	}

	dispatched := false
	if verificationToken != "" {
		dispatched = s.dispatcher.SendVerification(ctx, &created, verificationToken)
		if !dispatched {
			s.securityLog("register", "email_delivery_failed").WithField("account_id", created.ID).Warn("verification email was not delivered")
		}
	}

	logrus.WithField("account_id", created.ID).Info("account registered")

	return &dto.AuthResult{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		ExpiresIn:       int64(s.signer.TTL().Seconds()),
		Account:         dto.NewAccountView(&created),
		EmailDispatched: dispatched,
	}, nil
}

func (s *accountService) Login(ctx context.Context, req *types.LoginRequest) (*dto.AuthResult, error) {
	now := s.now()
	login := strings.TrimSpace(req.GetUsernameOrEmail())

	var found *entity.Account
	err := s.dir.View(ctx, func(ctx context.Context, store repository.AccountStore) error {
		var err error
		found, err = store.FindByLogin(ctx, login, CanonicalizeEmail(login))
		return err
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		// Spend the same hashing time as a real check.
		s.hasher.Verify(req.GetPassword(), s.decoy())
		s.securityLog("login", "account_not_found").Warn("login rejected")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(req.GetPassword(), found.PasswordHash) {
		s.securityLog("login", "password_mismatch").WithField("account_id", found.ID).Warn("login rejected")
		return nil, ErrInvalidCredentials
	}

	var (
		acc          entity.Account
		refreshToken string
	)
	err = s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, found.ID)
		if err != nil {
			return err
		}
		// The password was checked outside the lock; refuse if it changed since.
		if current == nil || current.PasswordHash != found.PasswordHash {
			return ErrInvalidCredentials
		}

		next := lifecycle.RecordLogin(*current, now)
		if next, refreshToken, err = s.engine.Issue(next, entity.TokenRefresh, now); err != nil {
			return err
		}
		if err = store.Save(ctx, &next); err != nil {
			return translateWriteError(err)
		}
		acc = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signer.Mint(acc.ID, acc.Username, now)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.signer.TTL().Seconds()),
		Account:      dto.NewAccountView(&acc),
	}, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, req *types.VerifyEmailRequest) (*dto.AccountView, error) {
	now := s.now()
	presented := strings.TrimSpace(req.GetToken())

	acc, err := s.consume(ctx, "verify_email", entity.TokenVerification, presented, func(acc entity.Account) (entity.Account, error) {
		return s.engine.VerifyEmail(acc, presented, now)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewAccountView(acc), nil
}

func (s *accountService) ResendVerification(ctx context.Context, accountID string) (*dto.DispatchResult, error) {
	now := s.now()

	var (
		acc               entity.Account
		verificationToken string
	)
	err := s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrAccountNotFound
		}
		if current.EmailVerified {
			return ErrEmailAlreadyVerified
		}
		if !current.HasEmail() {
			return ErrNoEmailOnFile
		}

		next, value, err := s.engine.Issue(*current, entity.TokenVerification, now)
		if err != nil {
			return err
		}
		if err = store.Save(ctx, &next); err != nil {
			return translateWriteError(err)
		}
		acc, verificationToken = next, value
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispatched := s.dispatcher.SendVerification(ctx, &acc, verificationToken)
	if !dispatched {
		s.securityLog("resend_verification", "email_delivery_failed").WithField("account_id", acc.ID).Warn("verification email was not delivered")
	}
	return &dto.DispatchResult{EmailDispatched: dispatched}, nil
}

// ForgotPassword reports success whether or not the email belongs to an
// account; only the logs tell the cases apart.
func (s *accountService) ForgotPassword(ctx context.Context, req *types.ForgotPasswordRequest) error {
	now := s.now()
	canonical := CanonicalizeEmail(req.GetEmail())

	var (
		acc        entity.Account
		resetToken string
	)
	err := s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByEmail(ctx, canonical)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}

		next, value, err := s.engine.Issue(*current, entity.TokenPasswordReset, now)
		if err != nil {
			return err
		}
		if err = store.Save(ctx, &next); err != nil {
			return translateWriteError(err)
		}
		acc, resetToken = next, value
		return nil
	})
	if err != nil {
		return err
	}

	if resetToken == "" {
		s.securityLog("forgot_password", "account_not_found").Warn("password reset requested for unknown email")
		return nil
	}

	if !s.dispatcher.SendPasswordReset(ctx, &acc, resetToken) {
		s.securityLog("forgot_password", "email_delivery_failed").WithField("account_id", acc.ID).Warn("password reset email was not delivered")
	}
	return nil
}

func (s *accountService) ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error {
	now := s.now()
	presented := strings.TrimSpace(req.GetToken())

	if err := s.cfg.Password.Policy.Validate(req.GetNewPassword()); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.GetNewPassword())
	if err != nil {
		return err
	}

	_, err = s.consume(ctx, "reset_password", entity.TokenPasswordReset, presented, func(acc entity.Account) (entity.Account, error) {
		return s.engine.ResetPassword(acc, presented, passwordHash, now)
	})
	return err
}

func (s *accountService) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*dto.AuthResult, error) {
	now := s.now()
	presented := strings.TrimSpace(req.GetRefreshToken())

	var refreshToken string
	acc, err := s.consume(ctx, "refresh_token", entity.TokenRefresh, presented, func(acc entity.Account) (entity.Account, error) {
		next, value, err := s.engine.RotateRefresh(acc, presented, now)
		refreshToken = value
		return next, err
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signer.Mint(acc.ID, acc.Username, now)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.signer.TTL().Seconds()),
		Account:      dto.NewAccountView(acc),
	}, nil
}

// Logout drops the refresh pair. Access tokens already issued stay valid
// until they expire on their own.
func (s *accountService) Logout(ctx context.Context, accountID string) error {
	now := s.now()

	return s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, accountID)
		if err != nil || current == nil {
			return err
		}
		if !current.Refresh.Present() {
			return nil
		}

		next := lifecycle.RevokeRefresh(*current, now)
		return translateWriteError(store.Save(ctx, &next))
	})
}

func (s *accountService) GetAccount(ctx context.Context, accountID string) (*dto.AccountView, error) {
	var acc *entity.Account
	err := s.dir.View(ctx, func(ctx context.Context, store repository.AccountStore) error {
		var err error
		acc, err = store.FindByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return dto.NewAccountView(acc), nil
}

func (s *accountService) UpdateProfile(ctx context.Context, accountID string, req *types.UpdateProfileRequest) (*dto.ProfileResult, error) {
	now := s.now()

	var (
		acc               entity.Account
		verificationToken string
	)
	err := s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrAccountNotFound
		}
		next := *current

		if req.HasUsername() {
			username := strings.TrimSpace(req.GetUsername())
			if username == "" {
				return fmt.Errorf("%w: username must not be empty", ErrInvalidInput)
			}
			if username != next.Username {
				holder, err := store.FindByUsername(ctx, username)
				if err != nil {
					return err
				}
				if holder != nil {
					return ErrUsernameTaken
				}
				next.Username = username
				next.UpdatedAt = now
			}
		}

		if req.HasEmail() {
			email, canonical := NormalizeEmail(req.GetEmail())

			switch {
			case canonical == next.CanonicalEmail.String && next.CanonicalEmail.Valid == (email != ""):
				// Same mailbox; only the stored spelling may differ.
				if email != "" && email != next.Email.String {
					next.Email.String = email
					next.UpdatedAt = now
				}
			default:
				if email != "" {
					if err = s.claimEmail(ctx, store, canonical, next.ID); err != nil {
						return err
					}
				}
				next = lifecycle.ChangeEmail(next, email, canonical, now)
				if email != "" {
					if next, verificationToken, err = s.engine.Issue(next, entity.TokenVerification, now); err != nil {
						return err
					}
				}
			}
		}

		if err = store.Save(ctx, &next); err != nil {
			return translateWriteError(err)
		}
		acc = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispatched := false
	if verificationToken != "" {
		dispatched = s.dispatcher.SendEmailChangeVerification(ctx, &acc, verificationToken)
		if !dispatched {
			s.securityLog("update_profile", "email_delivery_failed").WithField("account_id", acc.ID).Warn("email change verification was not delivered")
		}
	}

	return &dto.ProfileResult{
		Account:         dto.NewAccountView(&acc),
		EmailDispatched: dispatched,
	}, nil
}

func (s *accountService) ChangePassword(ctx context.Context, accountID string, req *types.ChangePasswordRequest) error {
	now := s.now()

	var found *entity.Account
	err := s.dir.View(ctx, func(ctx context.Context, store repository.AccountStore) error {
		var err error
		found, err = store.FindByID(ctx, accountID)
		return err
	})
	if err != nil {
		return err
	}
	if found == nil {
		return ErrAccountNotFound
	}

	if !s.hasher.Verify(req.GetOldPassword(), found.PasswordHash) {
		s.securityLog("change_password", "password_mismatch").WithField("account_id", found.ID).Warn("password change rejected")
		return ErrPasswordMismatch
	}
	if err = s.cfg.Password.Policy.Validate(req.GetNewPassword()); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.GetNewPassword())
	if err != nil {
		return err
	}

	return s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrAccountNotFound
		}
		if current.PasswordHash != found.PasswordHash {
			return ErrPasswordMismatch
		}

		next := lifecycle.SetPassword(*current, passwordHash, now)
		return translateWriteError(store.Save(ctx, &next))
	})
}

func (s *accountService) ValidateAccessToken(tokenString string) (*dto.TokenInfo, error) {
	claims, err := s.signer.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	info := &dto.TokenInfo{
		AccountID: claims.AccountID(),
		Username:  claims.Username,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// consume looks an account up by an opaque token and applies transition to it.
// An expired token still clears its pair, so that record is committed before
// the expiry is reported.
func (s *accountService) consume(
	ctx context.Context,
	operation string,
	kind entity.TokenKind,
	presented string,
	transition func(acc entity.Account) (entity.Account, error),
) (*entity.Account, error) {
	if presented == "" {
		return nil, ErrInvalidToken
	}

	var (
		result  entity.Account
		expired error
	)
	err := s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByToken(ctx, kind, presented)
		if err != nil {
			return err
		}
		if current == nil {
			s.securityLog(operation, "token_not_found").Warn("token rejected")
			return ErrInvalidToken
		}

		next, err := transition(*current)
		switch {
		case errors.Is(err, ErrTokenExpired):
			s.securityLog(operation, "token_expired").WithField("account_id", current.ID).Warn("token rejected")
			expired = err
		case err != nil:
			return err
		}

		if err = store.Save(ctx, &next); err != nil {
			return translateWriteError(err)
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired != nil {
		return nil, expired
	}
	return &result, nil
}

// claimEmail makes canonical available to ownerID. An unverified holder is
// deleted when reclamation is enabled; a verified holder always wins.
func (s *accountService) claimEmail(ctx context.Context, store repository.AccountStore, canonical, ownerID string) error {
	holder, err := store.FindByEmail(ctx, canonical)
	if err != nil {
		return err
	}
	if holder == nil || holder.ID == ownerID {
		return nil
	}
	if holder.EmailVerified || !s.cfg.Registration.ReclaimUnverifiedEmail {
		return ErrEmailTaken
	}

	if err = store.Delete(ctx, holder.ID); err != nil {
		return err
	}
	logrus.WithField("account_id", holder.ID).Info("deleted unverified account to reclaim its email")
	return nil
}

// fallbackDecoyDigest is a well-formed cost 10 bcrypt digest. Unknown logins
// compare against it when the decoy could not be hashed, so they still pay for
// one full bcrypt run.
const fallbackDecoyDigest = "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga"

func (s *accountService) decoy() string {
	s.decoyOnce.Do(func() {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			logrus.WithError(err).Error("failed to hash login decoy, using fallback digest")
			digest = fallbackDecoyDigest
		}
		s.decoyHash = digest
	})
	return s.decoyHash
}

func (s *accountService) securityLog(operation, reason string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"operation": operation,
		"reason":    reason,
	})
}

func translateWriteError(err error) error {
	var dup *repository.DuplicateError
	if !errors.As(err, &dup) {
		return err
	}

	switch dup.Key {
	case repository.KeyUsername:
		return ErrUsernameTaken
	case repository.KeyEmail:
		return ErrEmailTaken
	}
	return err
}
