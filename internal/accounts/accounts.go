// Package accounts handles registration and authentication. There is
// no session token: every request line carries its own USER/PASS, so
// each command re-authenticates against the stored bcrypt hash.
package accounts

import (
	"context"
	"fmt"
	"unicode"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"golang.org/x/crypto/bcrypt"
)

// maxUsernameLen is spec's username length ceiling.
const maxUsernameLen = 15

// Service registers and authenticates accounts against the durable
// store. It holds no in-memory user cache: account rows don't need
// the matching engine's latency guarantees.
type Service struct {
	repo port.Repository
}

func New(repo port.Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new Account with a bcrypt hash of password,
// returning ErrUsernameTaken if username already exists.
func (s *Service) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", xerrors.ErrValidation)
	}
	if len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username exceeds %d bytes", xerrors.ErrValidation, maxUsernameLen)
	}
	for _, r := range username {
		if !unicode.IsPrint(r) {
			return nil, fmt.Errorf("%w: username must be printable", xerrors.ErrValidation)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateAccount(ctx, username, string(hash))
}

// Authenticate verifies username/password against the stored hash,
// returning the Account on success or ErrAuth otherwise.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.Account, error) {
	acct, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrAuth, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, xerrors.ErrAuth
	}
	return acct, nil
}
