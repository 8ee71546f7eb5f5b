package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/cart"
	"github.com/Travelintrips/travelpage-sub004/internal/catalog"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/config"
	"github.com/Travelintrips/travelpage-sub004/internal/identity"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/logging"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
	"github.com/Travelintrips/travelpage-sub004/internal/refresh"
	"github.com/Travelintrips/travelpage-sub004/internal/repository"
	"github.com/Travelintrips/travelpage-sub004/internal/session"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

// app holds every component a subcommand may need, wired from config.
type app struct {
	cfg      config.Config
	currency currency.Unit
	logger   *zap.Logger
	clk      clock.Clock
	bus      *signal.Bus

	pool  *pgxpool.Pool
	redis *redis.Client

	tab    kv.Store
	shared kv.Store

	provider *identity.JWTProvider
	gate     *session.Gate
	bookings port.BookingRepository
	cart     *cart.Store
	catalog  *catalog.Catalog
	refresh  *refresh.Controller
}

func newApp(ctx context.Context, configPath string) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	unit, err := cfg.CurrencyUnit()
	if err != nil {
		return nil, fmt.Errorf("cfg.CurrencyUnit: %w", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logging.New: %w", err)
	}

	a := &app{
		cfg:      cfg,
		currency: unit,
		logger:   logger,
		clk:      clock.Real(),
		bus:      signal.NewBus(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	a.tab = kv.NewMemory(a.clk)
	a.shared = kv.NewRedis(a.redis, cfg.Redis.KeyPrefix)

	a.provider, err = identity.NewJWTProvider([]byte(cfg.JWTSecret), a.clk)
	if err != nil {
		return nil, fmt.Errorf("identity.NewJWTProvider: %w", err)
	}

	clientID := cfg.Session.ClientID
	if clientID == "" {
		if clientID, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("os.Hostname: %w", err)
		}
	}
	a.gate = session.NewGate(a.provider, a.shared, clientID, a.bus, a.clk, cfg.Session.Timeout, logger)

	cartRepo, err := repository.NewCart(a.pool)
	if err != nil {
		return nil, fmt.Errorf("repository.NewCart: %w", err)
	}

	a.bookings, err = repository.NewBooking(a.pool)
	if err != nil {
		return nil, fmt.Errorf("repository.NewBooking: %w", err)
	}

	priceRepo, err := repository.NewPrice(a.pool)
	if err != nil {
		return nil, fmt.Errorf("repository.NewPrice: %w", err)
	}

	a.cart, err = cart.NewStore(cart.Options{
		Repo:     cartRepo,
		Bookings: a.bookings,
		Identity: a.gate,
		Tab:      a.tab,
		Shared:   a.shared,
		Currency: unit,
		Clock:    a.clk,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cart.NewStore: %w", err)
	}

	a.catalog = catalog.New(priceRepo, a.shared, cfg.Catalog.TTL, logger)

	a.refresh = refresh.New(refresh.Options{
		Session:            a.gate,
		Reconcilers:        []refresh.Reconciler{a.cart},
		Bus:                a.bus,
		Clock:              a.clk,
		Logger:             logger,
		Cooldown:           cfg.Refresh.Cooldown,
		ForegroundWatchdog: cfg.Refresh.ForegroundWatchdog,
		OnRetryVisible: func() {
			fmt.Fprintln(os.Stderr, "cart is taking long to load, interrupt and run again to retry")
		},
	})

	return a, nil
}

// signIn hands the bearer token to the identity provider and resolves the
// gate.
func (a *app) signIn(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token is empty, pass --token or set CARTSYNC_TOKEN")
	}

	if _, err := a.provider.SignIn(ctx, token); err != nil {
		return fmt.Errorf("provider.SignIn: %w", err)
	}

	if _, err := a.gate.Resolve(ctx); err != nil {
		return fmt.Errorf("gate.Resolve: %w", err)
	}

	return nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
