package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatworks/pettycash/auth"
	"github.com/floatworks/pettycash/ledger"
	"github.com/floatworks/pettycash/store/sqlite"
)

func newAuthenticator(t *testing.T) *auth.PasswordAuthenticator {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return auth.NewPasswordAuthenticator(store)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	a := newAuthenticator(t)
	ctx := context.Background()

	user, err := a.Register(ctx, auth.Registration{
		Username: "alice",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleCustodian, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash, "password is never stored in the clear")

	got, err := a.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = a.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	a := newAuthenticator(t)
	ctx := context.Background()

	_, err := a.Register(ctx, auth.Registration{Username: " ", Password: "correct-horse"})
	assert.ErrorIs(t, err, auth.ErrUsernameRequired)

	_, err = a.Register(ctx, auth.Registration{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	_, err = a.Register(ctx, auth.Registration{Username: "carol", Password: "correct-horse"})
	require.NoError(t, err)
	_, err = a.Register(ctx, auth.Registration{Username: "carol", Password: "correct-horse"})
	assert.ErrorIs(t, err, auth.ErrUsernameExists)
}

func TestJWT_RoundTrip(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour)

	user := &ledger.User{ID: "u-1", Username: "alice", Role: ledger.RoleAccountant}
	token, err := m.Generate(user)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "accountant", claims.Role)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour)
	other := auth.NewJWTManager("different-secret", time.Hour)

	user := &ledger.User{ID: "u-1", Username: "alice", Role: ledger.RoleCustodian}
	token, err := other.Generate(user)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "wrong signing key")

	_, err = m.Validate("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := auth.NewJWTManager("secret", -time.Hour)
	token, err = expired.Generate(user)
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "expired token")
}
