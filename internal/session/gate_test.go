package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/session"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const clientID = "laptop"

func mirrorKey(name string) string {
	return kv.Key(kv.NamespaceAuth, kv.MirrorScope(clientID), name)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	mu       sync.Mutex
	session  *domain.Session
	err      error
	block    chan struct{}
	calls    atomic.Int32
	listener func(domain.AuthEvent, *domain.Session)
}

func (p *fakeProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	p.calls.Add(1)

	p.mu.Lock()
	block, session, err := p.block, p.session, p.err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return session, err
}

func (p *fakeProvider) OnAuthStateChange(fn func(domain.AuthEvent, *domain.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listener = nil
	}
}

func (p *fakeProvider) SignOut(context.Context) error { return nil }

func (p *fakeProvider) set(session *domain.Session, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session, p.err = session, err
}

func (p *fakeProvider) emit(event domain.AuthEvent, session *domain.Session) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(event, session)
	}
}

type fixture struct {
	provider *fakeProvider
	mirror   *kv.Memory
	bus      *signal.Bus
	gate     *session.Gate
	restored []signal.Event
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	clk := clock.Fake(epoch)
	f := &fixture{
		provider: &fakeProvider{},
		mirror:   kv.NewMemory(clk),
		bus:      signal.NewBus(),
	}
	f.gate = session.NewGate(f.provider, f.mirror, clientID, f.bus, clk, timeout, zaptest.NewLogger(t))
	cancel := f.bus.Subscribe(signal.SessionRestored, func(e signal.Event) {
		f.restored = append(f.restored, e)
	})
	t.Cleanup(cancel)
	return f
}

func fakeSession() *domain.Session {
	return &domain.Session{User: domain.User{ID: gofakeit.UUID(), Email: gofakeit.Email()}}
}

func TestGateNotReadyBeforeResolve(t *testing.T) {
	f := newFixture(t, time.Second)

	assert.False(t, f.gate.IsReady())
	assert.Nil(t, f.gate.CurrentUser())
}

func TestGateResolveSignedIn(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)
	s := fakeSession()
	f.provider.set(s, nil)

	state, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	assert.True(t, state.Hydrated)
	assert.True(t, state.Authenticated)
	assert.False(t, state.FromMirror)
	assert.False(t, state.Checking)
	assert.Equal(t, &s.User, f.gate.CurrentUser())
	assert.Empty(t, f.restored, "first resolution is not a restoration")

	id, ok, err := f.mirror.Get(ctx, mirrorKey(kv.NameUserID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.User.ID, string(id))
}

func TestGateResolveSignedOutClearsMirror(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)

	f.provider.set(fakeSession(), nil)
	_, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	f.provider.set(nil, nil)
	state, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	assert.True(t, state.Hydrated)
	assert.False(t, state.Authenticated)
	assert.Nil(t, f.gate.CurrentUser())

	_, ok, err := f.mirror.Get(ctx, mirrorKey(kv.NameUser))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateTimeoutFallsBackToMirror(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, 20*time.Millisecond)
	s := fakeSession()

	f.provider.set(s, nil)
	_, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	f.provider.mu.Lock()
	f.provider.block = make(chan struct{})
	f.provider.mu.Unlock()

	state, err := f.gate.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, state.Hydrated)
	assert.True(t, state.FromMirror)
	assert.Equal(t, s.User.ID, state.UserID)
	assert.Empty(t, f.restored)
}

func TestGateTimeoutWithoutMirrorIsNotReady(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.provider.block = make(chan struct{})

	_, err := f.gate.Resolve(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSessionNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.gate.IsReady())
	assert.Nil(t, f.gate.CurrentUser())
}

func TestGateMirrorIsScopedPerClient(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, 20*time.Millisecond)
	f.provider.set(fakeSession(), nil)
	_, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	offline := &fakeProvider{block: make(chan struct{})}
	clk := clock.Fake(epoch)

	phone := session.NewGate(offline, f.mirror, "phone", f.bus, clk, 20*time.Millisecond, zaptest.NewLogger(t))
	_, err = phone.Resolve(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotReady)
	assert.False(t, phone.IsReady(), "another client's mirror is never used")

	laptop := session.NewGate(offline, f.mirror, clientID, f.bus, clk, 20*time.Millisecond, zaptest.NewLogger(t))
	state, err := laptop.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, state.FromMirror)
}

func TestGateRejectsInconsistentMirror(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)

	require.NoError(t, f.mirror.Set(ctx, mirrorKey(kv.NameUserID), []byte("a"), 0))
	require.NoError(t, f.mirror.Set(ctx, mirrorKey(kv.NameUserEmail), []byte("a@example.com"), 0))
	require.NoError(t, f.mirror.Set(ctx, mirrorKey(kv.NameUser), []byte(`{"id":"b","email":"a@example.com"}`), 0))

	f.provider.set(nil, errors.New("network down"))

	_, err := f.gate.Resolve(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotReady)
	assert.False(t, f.gate.IsReady())
}

func TestGatePublishesSessionRestored(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)
	s := fakeSession()

	f.provider.set(nil, errors.New("network down"))
	_, err := f.gate.Resolve(ctx)
	require.Error(t, err)

	f.provider.set(s, nil)
	_, err = f.gate.Resolve(ctx)
	require.NoError(t, err)

	require.Len(t, f.restored, 1)
	assert.Equal(t, s.User.ID, f.restored[0].UserID)

	_, err = f.gate.Resolve(ctx)
	require.NoError(t, err)
	assert.Len(t, f.restored, 1, "same user again is not a restoration")
}

func TestGateResolveCoalesces(t *testing.T) {
	f := newFixture(t, time.Second)
	f.provider.set(fakeSession(), nil)
	release := make(chan struct{})
	f.provider.block = release

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.gate.Resolve(context.Background())
		}()
	}

	assert.Eventually(t, func() bool { return f.provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.gate.State().Checking)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, f.provider.calls.Load(), int32(5))
	assert.True(t, f.gate.IsReady())
	assert.False(t, f.gate.State().Checking)
}

func TestGateWatch(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)

	_, err := f.gate.Resolve(ctx)
	require.NoError(t, err)

	stop := f.gate.Watch()
	defer stop()

	s := fakeSession()
	f.provider.emit(domain.AuthSignedIn, s)
	assert.Equal(t, &s.User, f.gate.CurrentUser())
	require.Len(t, f.restored, 1)

	f.provider.emit(domain.AuthSignedOut, nil)
	assert.True(t, f.gate.IsReady())
	assert.Nil(t, f.gate.CurrentUser())
}

func TestRequireUser(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, time.Second)

	_, err := f.gate.RequireUser(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	s := fakeSession()
	f.provider.emit(domain.AuthSignedIn, s)
	stop := f.gate.Watch()
	defer stop()
	f.provider.emit(domain.AuthSignedIn, s)

	user, err := f.gate.RequireUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.User, user)
}
