// Package refresh reconciles cached client state with the record store when
// the tab becomes visible again or the session comes back.
package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

// Reconciler is anything that can reload itself without a loading state,
// e.g. the cart store.
type Reconciler interface {
	Refetch(ctx context.Context, background bool) error
}

type Session interface {
	Resolve(ctx context.Context) (domain.SessionState, error)
}

type Options struct {
	Session     Session
	Reconcilers []Reconciler
	Bus         *signal.Bus
	Clock       clock.Clock
	Logger      *zap.Logger

	Cooldown           time.Duration
	ForegroundWatchdog time.Duration
	// OnRetryVisible runs when the foreground watchdog fires.
	OnRetryVisible func()
}

// Controller runs at most one reconciliation per cooldown. Triggers arriving
// while one is in flight are dropped, not queued.
type Controller struct {
	session     Session
	reconcilers []Reconciler
	bus         *signal.Bus
	clk         clock.Clock
	logger      *zap.Logger
	watchdog    time.Duration
	onRetry     func()

	limiter  *rate.Limiter
	inFlight atomic.Bool

	mu          sync.Mutex
	runs        sync.WaitGroup
	baseCtx     context.Context
	stop        context.CancelFunc
	unsubscribe func()
	fgTimer     *clock.Timer
	retry       bool
}

func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Controller{
		session:     opts.Session,
		reconcilers: opts.Reconcilers,
		bus:         opts.Bus,
		clk:         opts.Clock,
		logger:      opts.Logger.Named("refresh"),
		watchdog:    opts.ForegroundWatchdog,
		onRetry:     opts.OnRetryVisible,
		limiter:     rate.NewLimiter(rate.Every(opts.Cooldown), 1),
	}
}

// Start subscribes to SessionRestored. Runs it triggers are bound to ctx.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	c.baseCtx, c.stop = context.WithCancel(ctx)

	if c.bus != nil {
		c.unsubscribe = c.bus.Subscribe(signal.SessionRestored, func(signal.Event) {
			c.triggerAsync("session restored")
		})
	}
}

// Stop unsubscribes, cancels and waits for runs in flight.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.fgTimer != nil {
		c.fgTimer.Stop()
		c.fgTimer = nil
	}
	c.mu.Unlock()

	c.runs.Wait()
}

// VisibilityChanged triggers a reconciliation when the tab becomes visible.
func (c *Controller) VisibilityChanged(ctx context.Context, visible bool) bool {
	if !visible {
		return false
	}
	return c.Trigger(ctx, "visible")
}

// Trigger runs a reconciliation synchronously unless one is in flight or the
// cooldown has not elapsed. It reports whether a run happened.
func (c *Controller) Trigger(ctx context.Context, reason string) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("refresh skipped, already running", zap.String("reason", reason))
		return false
	}
	defer c.inFlight.Store(false)

	if !c.limiter.AllowN(c.clk.Now(), 1) {
		c.logger.Debug("refresh throttled", zap.String("reason", reason))
		return false
	}

	c.run(ctx, reason)
	return true
}

func (c *Controller) triggerAsync(reason string) {
	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		c.Trigger(ctx, reason)
	}()
}

// run re-resolves the session, then refetches every reconciler in the
// background in parallel. Failures are logged and never surfaced.
func (c *Controller) run(ctx context.Context, reason string) {
	started := c.clk.Now()

	if c.session != nil {
		if _, err := c.session.Resolve(ctx); err != nil {
			c.logger.Info("session not confirmed during refresh", zap.Error(err))
		}
	}

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range c.reconcilers {
		g.Go(func() error {
			if err := r.Refetch(gctx, true); err != nil {
				failed.Add(1)
				c.logger.Warn("background refetch failed", zap.String("reason", reason), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed.Load() == 0 {
		c.clearRetry()
	}

	c.logger.Debug("refresh finished",
		zap.String("reason", reason),
		zap.Int32("failed", failed.Load()),
		zap.Duration("took", c.clk.Now().Sub(started)))
}

// BeginForeground arms the watchdog for a user-visible load. If the load is
// still pending when it fires, RetryVisible becomes true.
func (c *Controller) BeginForeground() {
	if c.watchdog <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fgTimer != nil {
		c.fgTimer.Stop()
	}
	c.fgTimer = c.clk.AfterFunc(c.watchdog, func() {
		c.mu.Lock()
		c.retry = true
		c.fgTimer = nil
		c.mu.Unlock()

		c.logger.Info("foreground load still pending", zap.Duration("after", c.watchdog))
		if c.onRetry != nil {
			c.onRetry()
		}
	})
}

// EndForeground disarms the watchdog. A successful load also clears the
// retry affordance.
func (c *Controller) EndForeground(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fgTimer != nil {
		c.fgTimer.Stop()
		c.fgTimer = nil
	}
	if success {
		c.retry = false
	}
}

// Foreground runs a user-visible load under the watchdog.
func (c *Controller) Foreground(ctx context.Context, load func(ctx context.Context) error) error {
	c.BeginForeground()
	err := load(ctx)
	c.EndForeground(err == nil)
	return err
}

func (c *Controller) RetryVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry
}

func (c *Controller) clearRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retry = false
}
