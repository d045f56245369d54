package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/lifecycle"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/secret"
	"github.com/vibast-solutions/ms-go-account/app/types"
	"github.com/vibast-solutions/ms-go-account/config"
)

const DefaultPageSize = 50

// AdminService backs the operator surfaces: the /admin routes and the admin
// CLI commands.
type AdminService interface {
	Authorize(apiKey string) error
	ListAccounts(ctx context.Context, req *types.ListAccountsRequest) ([]*dto.AccountView, error)
	FindAccountByEmail(ctx context.Context, email string) (*dto.AccountView, error)
	SetPassword(ctx context.Context, req *types.AdminSetPasswordRequest) error
	DeleteAccount(ctx context.Context, accountID string) error
}

type adminService struct {
	dir    repository.Directory
	hasher secret.Hasher
	cfg    *config.Config
	now    func() time.Time
}

func NewAdminService(dir repository.Directory, hasher secret.Hasher, cfg *config.Config) AdminService {
	return &adminService{dir: dir, hasher: hasher, cfg: cfg, now: time.Now}
}

// Authorize fails when no admin key is configured.
func (s *adminService) Authorize(apiKey string) error {
	if !KeyMatches(apiKey, []string{s.cfg.Admin.APIKey}) {
		return ErrNotAuthorized
	}
	return nil
}

func (s *adminService) ListAccounts(ctx context.Context, req *types.ListAccountsRequest) ([]*dto.AccountView, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > types.MaxPageSize {
		limit = types.MaxPageSize
	}
	offset := req.GetOffset()
	if offset < 0 {
		offset = 0
	}

	var accounts []*entity.Account
	err := s.dir.View(ctx, func(ctx context.Context, store repository.AccountStore) error {
		var err error
		accounts, err = store.List(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dto.NewAccountViews(accounts), nil
}

func (s *adminService) FindAccountByEmail(ctx context.Context, email string) (*dto.AccountView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	var acc *entity.Account
	err := s.dir.View(ctx, func(ctx context.Context, store repository.AccountStore) error {
		var err error
		acc, err = store.FindByEmail(ctx, CanonicalizeEmail(email))
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

// SetPassword replaces the password of the account owning the email and ends
// its refresh session.
func (s *adminService) SetPassword(ctx context.Context, req *types.AdminSetPasswordRequest) error {
	now := s.now()
	email := strings.TrimSpace(req.GetEmail())
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := s.cfg.Password.Policy.Validate(req.GetNewPassword()); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.GetNewPassword())
	if err != nil {
		return err
	}

	var accountID string
	err = s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByEmail(ctx, CanonicalizeEmail(email))
		if err != nil {
			return err
		}
		if current == nil {
			return ErrAccountNotFound
		}

		next := lifecycle.SetPassword(*current, passwordHash, now)
		accountID = next.ID
		return translateWriteError(store.Save(ctx, &next))
	})
	if err != nil {
		return err
	}

	logrus.WithField("account_id", accountID).Info("password set by operator")
	return nil
}

func (s *adminService) DeleteAccount(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	err := s.dir.Atomic(ctx, func(ctx context.Context, store repository.AccountStore) error {
		current, err := store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrAccountNotFound
		}
		return store.Delete(ctx, accountID)
	})
	if err != nil {
		return err
	}

	logrus.WithField("account_id", accountID).Info("account deleted by operator")
	return nil
}

// KeyMatches reports whether presented equals one of the configured keys.
// Blank keys never match.
func KeyMatches(presented string, keys []string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}

	presentedHash := hashAPIKey(presented)
	matched := false
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keyHash := hashAPIKey(key)
		if subtle.ConstantTimeCompare(presentedHash[:], keyHash[:]) == 1 {
			matched = true
		}
	}
	return matched
}

func hashAPIKey(rawKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(rawKey))
}
