package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

// MemoryDirectory keeps accounts in process memory. It enforces the same
// unique keys as the MySQL schema and serializes all access behind one mutex,
// which is enough for tests and single-instance development runs.
type MemoryDirectory struct {
	mu       sync.Mutex
	accounts map[string]entity.Account
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string]entity.Account)}
}

func (d *MemoryDirectory) Atomic(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := make(map[string]entity.Account, len(d.accounts))
	for id, acc := range d.accounts {
		snapshot[id] = acc
	}

	if err := fn(ctx, &memoryStore{accounts: d.accounts}); err != nil {
		d.accounts = snapshot
		return err
	}
	return nil
}

func (d *MemoryDirectory) View(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fn(ctx, &memoryStore{accounts: d.accounts, readOnly: true})
}

// Len reports how many accounts are stored.
func (d *MemoryDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.accounts)
}

type memoryStore struct {
	accounts map[string]entity.Account
	readOnly bool
}

var errReadOnly = errors.New("write attempted inside a read-only view")

func (s *memoryStore) FindByID(_ context.Context, id string) (*entity.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (s *memoryStore) FindByUsername(_ context.Context, username string) (*entity.Account, error) {
	return s.find(func(acc entity.Account) bool { return acc.Username == username }), nil
}

func (s *memoryStore) FindByEmail(_ context.Context, canonicalEmail string) (*entity.Account, error) {
	return s.find(func(acc entity.Account) bool {
		return acc.CanonicalEmail.Valid && acc.CanonicalEmail.String == canonicalEmail
	}), nil
}

func (s *memoryStore) FindByLogin(ctx context.Context, username, canonicalEmail string) (*entity.Account, error) {
	if acc, _ := s.FindByUsername(ctx, username); acc != nil {
		return acc, nil
	}
	return s.FindByEmail(ctx, canonicalEmail)
}

func (s *memoryStore) FindByToken(_ context.Context, kind entity.TokenKind, value string) (*entity.Account, error) {
	if _, err := tokenColumn(kind); err != nil {
		return nil, err
	}
	return s.find(func(acc entity.Account) bool {
		pair := acc.Pair(kind)
		return pair.Token.Valid && pair.Token.String == value
	}), nil
}

func (s *memoryStore) List(_ context.Context, limit, offset int) ([]*entity.Account, error) {
	all := make([]entity.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		all = append(all, acc)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	accounts := make([]*entity.Account, 0)
	for i := offset; i < len(all) && len(accounts) < limit; i++ {
		acc := all[i]
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

func (s *memoryStore) Create(_ context.Context, account *entity.Account) error {
	if s.readOnly {
		return errReadOnly
	}
	if err := s.checkUnique(account); err != nil {
		return err
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *memoryStore) Save(_ context.Context, account *entity.Account) error {
	if s.readOnly {
		return errReadOnly
	}
	if _, ok := s.accounts[account.ID]; !ok {
		return nil
	}
	if err := s.checkUnique(account); err != nil {
		return err
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	if s.readOnly {
		return errReadOnly
	}
	delete(s.accounts, id)
	return nil
}

func (s *memoryStore) checkUnique(account *entity.Account) error {
	for id, other := range s.accounts {
		if id == account.ID {
			continue
		}
		if other.Username == account.Username {
			return &DuplicateError{Key: KeyUsername}
		}
		if account.CanonicalEmail.Valid && other.CanonicalEmail.Valid &&
			other.CanonicalEmail.String == account.CanonicalEmail.String {
			return &DuplicateError{Key: KeyEmail}
		}
	}
	return nil
}

func (s *memoryStore) find(match func(entity.Account) bool) *entity.Account {
	for _, acc := range s.accounts {
		if match(acc) {
			found := acc
			return &found
		}
	}
	return nil
}
