package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/identity"
)

var (
	epoch  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	secret = []byte("test-secret")
)

func TestSignInGetSessionSignOut(t *testing.T) {
	ctx := t.Context()
	clk := clock.Fake(epoch)

	provider, err := identity.NewJWTProvider(secret, clk)
	require.NoError(t, err)

	var events []domain.AuthEvent
	cancel := provider.OnAuthStateChange(func(event domain.AuthEvent, _ *domain.Session) {
		events = append(events, event)
	})
	defer cancel()

	session, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	userID, email := gofakeit.UUID(), gofakeit.Email()
	token, err := identity.IssueToken(secret, userID, email, epoch, time.Hour)
	require.NoError(t, err)

	_, err = provider.SignIn(ctx, token)
	require.NoError(t, err)

	session, err = provider.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, domain.User{ID: userID, Email: email}, session.User)

	_, err = provider.SignIn(ctx, token)
	require.NoError(t, err)

	require.NoError(t, provider.SignOut(ctx))
	session, err = provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	assert.Equal(t, []domain.AuthEvent{domain.AuthSignedIn, domain.AuthTokenRefreshed, domain.AuthSignedOut}, events)
}

func TestExpiredTokenIsNoSession(t *testing.T) {
	ctx := t.Context()
	clk := clock.Fake(epoch)

	provider, err := identity.NewJWTProvider(secret, clk)
	require.NoError(t, err)

	token, err := identity.IssueToken(secret, "u1", "u1@example.com", epoch, time.Minute)
	require.NoError(t, err)
	_, err = provider.SignIn(ctx, token)
	require.NoError(t, err)

	clk.Advance(time.Minute)

	session, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSignInRejectsForeignToken(t *testing.T) {
	provider, err := identity.NewJWTProvider(secret, clock.Fake(epoch))
	require.NoError(t, err)

	token, err := identity.IssueToken([]byte("other"), "u1", "u1@example.com", epoch, time.Hour)
	require.NoError(t, err)

	_, err = provider.SignIn(t.Context(), token)
	assert.Error(t, err)
}

func TestGetSessionCanceled(t *testing.T) {
	provider, err := identity.NewJWTProvider(secret, clock.Fake(epoch))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = provider.GetSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewJWTProviderEmptySecret(t *testing.T) {
	_, err := identity.NewJWTProvider(nil, clock.Real())
	assert.EqualError(t, err, "secret is empty")
}
