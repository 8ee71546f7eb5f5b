// Package session exposes whether identity state is known yet. Every other
// component reads identity through the Gate, never from the provider.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

// Gate becomes ready once the identity provider has confirmed or denied a
// session. The provider is authoritative; the durable mirror is consulted
// only when the provider does not answer within the timeout.
type Gate struct {
	provider port.IdentityProvider
	mirror   kv.Store
	bus      *signal.Bus
	clk      clock.Clock
	timeout  time.Duration
	logger   *zap.Logger

	mirrorUserIDKey    string
	mirrorUserEmailKey string
	mirrorUserKey      string

	group singleflight.Group

	mu        sync.RWMutex
	state     domain.SessionState
	attempted bool
}

// NewGate builds a gate whose mirror keys are scoped to clientID, the device
// or install the gate runs on.
func NewGate(
	provider port.IdentityProvider,
	mirror kv.Store,
	clientID string,
	bus *signal.Bus,
	clk clock.Clock,
	timeout time.Duration,
	logger *zap.Logger,
) *Gate {
	return &Gate{
		provider: provider,
		mirror:   mirror,
		bus:      bus,
		clk:      clk,
		timeout:  timeout,
		logger:   logger.Named("session").With(zap.String("client_id", clientID)),

		mirrorUserIDKey:    kv.Key(kv.NamespaceAuth, kv.MirrorScope(clientID), kv.NameUserID),
		mirrorUserEmailKey: kv.Key(kv.NamespaceAuth, kv.MirrorScope(clientID), kv.NameUserEmail),
		mirrorUserKey:      kv.Key(kv.NamespaceAuth, kv.MirrorScope(clientID), kv.NameUser),
	}
}

func (g *Gate) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Hydrated
}

// CurrentUser returns nil until the gate is ready and a user is signed in.
func (g *Gate) CurrentUser() *domain.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.User()
}

func (g *Gate) State() domain.SessionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Resolve asks the provider for the current session. Concurrent callers
// share a single provider call.
func (g *Gate) Resolve(ctx context.Context) (domain.SessionState, error) {
	v, err, _ := g.group.Do("resolve", func() (any, error) {
		return g.resolve(ctx)
	})
	state, _ := v.(domain.SessionState)
	return state, err
}

// RequireUser resolves the gate if it is not ready yet and returns the
// signed-in user. It fails with apperr.ErrSessionNotReady while identity is
// unknown and apperr.ErrUnauthenticated when nobody is signed in.
func (g *Gate) RequireUser(ctx context.Context) (domain.User, error) {
	state := g.State()
	if !state.Hydrated {
		var err error
		if state, err = g.Resolve(ctx); err != nil {
			return domain.User{}, err
		}
	}
	if !state.Authenticated {
		return domain.User{}, apperr.ErrUnauthenticated
	}
	return domain.User{ID: state.UserID, Email: state.UserEmail}, nil
}

func (g *Gate) resolve(ctx context.Context) (domain.SessionState, error) {
	g.setChecking(true)
	defer g.setChecking(false)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	session, err := g.provider.GetSession(callCtx)
	cancel()

	if err == nil {
		next := domain.SessionState{Hydrated: true}
		if session != nil {
			next.Authenticated = true
			next.UserID = session.User.ID
			next.UserEmail = session.User.Email
			g.writeMirror(ctx, session.User)
		} else {
			g.clearMirror(ctx)
		}
		g.apply(next)
		return next, nil
	}

	g.logger.Warn("identity provider did not answer, trying mirror", zap.Error(err))

	if user, ok := g.readMirror(ctx); ok {
		next := domain.SessionState{
			Hydrated:      true,
			Authenticated: true,
			UserID:        user.ID,
			UserEmail:     user.Email,
			FromMirror:    true,
		}
		g.apply(next)
		return next, nil
	}

	g.apply(domain.SessionState{})
	return domain.SessionState{}, fmt.Errorf("provider.GetSession: %w", errors.Join(apperr.ErrSessionNotReady, err))
}

// Watch follows the provider's auth state changes until the returned
// function is called.
func (g *Gate) Watch() (stop func()) {
	return g.provider.OnAuthStateChange(func(event domain.AuthEvent, session *domain.Session) {
		ctx := context.Background()

		switch event {
		case domain.AuthSignedIn, domain.AuthTokenRefreshed:
			if session == nil {
				return
			}
			g.writeMirror(ctx, session.User)
			g.apply(domain.SessionState{
				Hydrated:      true,
				Authenticated: true,
				UserID:        session.User.ID,
				UserEmail:     session.User.Email,
			})

		case domain.AuthSignedOut:
			g.clearMirror(ctx)
			g.apply(domain.SessionState{Hydrated: true})
		}
	})
}

func (g *Gate) setChecking(checking bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Checking = checking
}

// apply stores next and publishes SessionRestored when the provider confirms
// a user after the gate was degraded, signed out, or serving the mirror. The
// very first resolution is not a restoration.
func (g *Gate) apply(next domain.SessionState) {
	g.mu.Lock()
	prev := g.state
	attempted := g.attempted
	next.Checking = prev.Checking
	g.state = next
	g.attempted = true
	g.mu.Unlock()

	sameProviderUser := prev.Authenticated && !prev.FromMirror && prev.UserID == next.UserID
	if !attempted || !next.Authenticated || next.FromMirror || sameProviderUser {
		return
	}

	g.logger.Info("session restored", zap.String("user_id", next.UserID))
	if g.bus != nil {
		g.bus.Publish(signal.Event{
			Kind:   signal.SessionRestored,
			UserID: next.UserID,
			Origin: "session",
			At:     g.clk.Now(),
		})
	}
}

func (g *Gate) writeMirror(ctx context.Context, user domain.User) {
	record, err := json.Marshal(user)
	if err != nil {
		g.logger.Warn("encode identity mirror", zap.Error(err))
		return
	}

	err = errors.Join(
		g.mirror.Set(ctx, g.mirrorUserIDKey, []byte(user.ID), 0),
		g.mirror.Set(ctx, g.mirrorUserEmailKey, []byte(user.Email), 0),
		g.mirror.Set(ctx, g.mirrorUserKey, record, 0),
	)
	if err != nil {
		g.logger.Warn("write identity mirror", zap.Error(err))
	}
}

func (g *Gate) clearMirror(ctx context.Context) {
	if err := g.mirror.Delete(ctx, g.mirrorUserIDKey, g.mirrorUserEmailKey, g.mirrorUserKey); err != nil {
		g.logger.Warn("clear identity mirror", zap.Error(err))
	}
}

// readMirror accepts the mirror only when id, email and the user record are
// all present and agree with each other.
func (g *Gate) readMirror(ctx context.Context) (domain.User, bool) {
	id, okID, errID := g.mirror.Get(ctx, g.mirrorUserIDKey)
	email, okEmail, errEmail := g.mirror.Get(ctx, g.mirrorUserEmailKey)
	record, okRecord, errRecord := g.mirror.Get(ctx, g.mirrorUserKey)

	if err := errors.Join(errID, errEmail, errRecord); err != nil {
		g.logger.Warn("read identity mirror", zap.Error(err))
		return domain.User{}, false
	}
	if !okID || !okEmail || !okRecord || len(id) == 0 || len(email) == 0 {
		return domain.User{}, false
	}

	var user domain.User
	if err := json.Unmarshal(record, &user); err != nil {
		g.logger.Debug("identity mirror record corrupt", zap.Error(err))
		return domain.User{}, false
	}
	if user.ID != string(id) || user.Email != string(email) {
		g.logger.Debug("identity mirror inconsistent")
		return domain.User{}, false
	}

	return user, true
}
