package accounts

import (
	"context"
	"testing"

	"github.com/nkrasner/ledger-exchange/internal/adapter/memory"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := New(memory.NewRepo())
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.NotEmpty(t, acct.PasswordHash)
	assert.NotEqual(t, "hunter2", acct.PasswordHash)

	got, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := New(memory.NewRepo())
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, xerrors.ErrAuth)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := New(memory.NewRepo())
	_, err := svc.Authenticate(context.Background(), "ghost", "x")
	require.ErrorIs(t, err, xerrors.ErrAuth)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := New(memory.NewRepo())
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "different")
	require.ErrorIs(t, err, xerrors.ErrUsernameTaken)
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	svc := New(memory.NewRepo())
	ctx := context.Background()
	_, err := svc.Register(ctx, "", "hunter2")
	require.ErrorIs(t, err, xerrors.ErrValidation)

	_, err = svc.Register(ctx, "alice", "")
	require.ErrorIs(t, err, xerrors.ErrValidation)
}
