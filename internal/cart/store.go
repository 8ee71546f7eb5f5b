// Package cart keeps the signed-in user's pending cart in memory, mirrors it
// into both storage tiers and reconciles it with the record store.
package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

// Identity is the part of the session gate the cart depends on.
type Identity interface {
	IsReady() bool
	CurrentUser() *domain.User
}

type Store struct {
	repo     port.CartRepository
	bookings port.BookingRepository
	identity Identity
	tab      kv.Store
	shared   kv.Store
	currency currency.Unit
	clk      clock.Clock
	logger   *zap.Logger

	adds singleflight.Group

	mu      sync.Mutex
	owner   string
	items   []domain.CartItem
	loading bool
	// mutations counts local changes to items. A refetch that started before
	// a change carries a stale snapshot.
	mutations uint64
}

type Options struct {
	Repo     port.CartRepository
	Bookings port.BookingRepository
	Identity Identity
	Tab      kv.Store
	Shared   kv.Store
	Currency currency.Unit
	Clock    clock.Clock
	Logger   *zap.Logger
}

func NewStore(opts Options) (*Store, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("repo is nil")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("identity is nil")
	}
	if opts.Tab == nil || opts.Shared == nil {
		return nil, fmt.Errorf("storage tier is nil")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		repo:     opts.Repo,
		bookings: opts.Bookings,
		identity: opts.Identity,
		tab:      opts.Tab,
		shared:   opts.Shared,
		currency: opts.Currency,
		clk:      opts.Clock,
		logger:   opts.Logger.Named("cart"),
	}, nil
}

// Add puts item into the cart unless a pending item with the same
// (ItemType, ItemID) is already there, in which case that item is returned.
// Concurrent adds for one key share a single remote call.
func (s *Store) Add(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	owner, err := s.requireOwner()
	if err != nil {
		return domain.CartItem{}, err
	}

	if item.UnitPrice.Currency != s.currency {
		return domain.CartItem{}, fmt.Errorf("%w: currency[%s] differs from cart currency[%s]",
			apperr.ErrValidation, item.UnitPrice.Currency, s.currency)
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Status == "" {
		item.Status = domain.ItemStatusPending
	}

	if existing, ok := s.findPending(item.Key()); ok {
		return existing, nil
	}

	flightKey := owner + ":" + string(item.ItemType) + ":" + item.ItemID
	v, err, _ := s.adds.Do(flightKey, func() (any, error) {
		if existing, ok := s.findPending(item.Key()); ok {
			return existing, nil
		}

		stored, created, err := s.repo.AddItem(ctx, owner, item)
		if err != nil {
			return nil, fmt.Errorf("repo.AddItem: %w",
				errors.Join(apperr.ErrRemoteMutation, fmt.Errorf("could not add %s to cart: %w", item.ServiceName, err)))
		}

		s.logger.Debug("item added",
			zap.String("item_type", string(stored.ItemType)),
			zap.String("item_id", stored.ItemID),
			zap.Bool("created", created))

		s.mu.Lock()
		if s.owner == owner && !slices.ContainsFunc(s.items, func(i domain.CartItem) bool { return i.ID == stored.ID }) {
			s.items = append(s.items, stored)
			s.mutations++
		}
		snapshot := slices.Clone(s.items)
		s.mu.Unlock()

		s.persist(ctx, owner, snapshot)
		return stored, nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	return v.(domain.CartItem), nil
}

// Remove drops the item locally before the remote delete and puts it back
// when the delete fails.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	owner, err := s.requireOwner()
	if err != nil {
		return err
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.items, func(i domain.CartItem) bool { return i.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := s.items[idx]
	s.items = slices.Delete(slices.Clone(s.items), idx, idx+1)
	s.mutations++
	s.mu.Unlock()

	if _, err := s.repo.DeleteItem(ctx, owner, id); err != nil {
		s.mu.Lock()
		if s.owner == owner && !slices.ContainsFunc(s.items, func(i domain.CartItem) bool { return i.ID == id }) {
			pos := min(idx, len(s.items))
			s.items = slices.Insert(s.items, pos, removed)
			s.mutations++
		}
		s.mu.Unlock()

		return fmt.Errorf("repo.DeleteItem: %w",
			errors.Join(apperr.ErrRemoteMutation, fmt.Errorf("could not remove %s from cart: %w", removed.ServiceName, err)))
	}

	s.persist(ctx, owner, s.snapshot())
	return nil
}

// Clear empties the cart locally before the remote delete and restores the
// previous items when the delete fails.
func (s *Store) Clear(ctx context.Context) error {
	owner, err := s.requireOwner()
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.items
	s.items = nil
	s.mutations++
	s.mu.Unlock()

	if _, err := s.repo.ClearCart(ctx, owner); err != nil {
		s.mu.Lock()
		if s.owner == owner {
			restored := slices.Clone(previous)
			for _, item := range s.items {
				if !slices.ContainsFunc(restored, func(i domain.CartItem) bool { return i.ID == item.ID }) {
					restored = append(restored, item)
				}
			}
			s.items = restored
			s.mutations++
		}
		s.mu.Unlock()

		return fmt.Errorf("repo.ClearCart: %w",
			errors.Join(apperr.ErrRemoteMutation, fmt.Errorf("could not clear cart: %w", err)))
	}

	s.persist(ctx, owner, nil)
	return nil
}

// List returns a snapshot of the items and their total.
func (s *Store) List() ([]domain.CartItem, domain.Money) {
	items := s.snapshot()
	return items, domain.Cart{Items: items}.Total(s.currency)
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Owner is the user the in-memory cart belongs to.
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Load renders the cached cart first, then refetches with the loading
// indicator on.
func (s *Store) Load(ctx context.Context) error {
	s.Hydrate(ctx)
	return s.Refetch(ctx, false)
}

// Refetch replaces the in-memory cart with the record store's. A background
// refetch leaves the loading indicator alone and keeps the last known items
// on failure. A result read before a local mutation is discarded; the
// mutation already reflects the record store.
func (s *Store) Refetch(ctx context.Context, background bool) error {
	owner, err := s.requireOwner()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !background {
		s.loading = true
	}
	generation := s.mutations
	s.mu.Unlock()

	cart, err := s.repo.GetCart(ctx, owner)
	if err != nil {
		if background {
			s.logger.Warn("background refetch failed, keeping last known cart", zap.Error(err))
		} else {
			s.setLoading(false)
		}
		return fmt.Errorf("repo.GetCart: %w", err)
	}

	s.mu.Lock()
	stale := s.mutations != generation
	if s.owner == owner && !stale {
		s.items = cart.Items
	}
	s.loading = false
	snapshot := slices.Clone(s.items)
	s.mu.Unlock()

	if stale {
		s.logger.Debug("refetch result superseded by a local change")
		return nil
	}

	s.persist(ctx, owner, snapshot)
	return nil
}

// Hydrate restores the cart from the tab tier, falling back to the
// cross-session tier. A cached empty list counts as a hit.
func (s *Store) Hydrate(ctx context.Context) bool {
	user := s.identity.CurrentUser()
	if user == nil {
		return false
	}
	s.bindOwner(user.ID)

	key := itemsKey(user.ID)
	for _, tier := range []kv.Store{s.tab, s.shared} {
		items, ok := s.readTier(ctx, tier, key, user.ID)
		if !ok {
			continue
		}

		s.mu.Lock()
		if s.owner == user.ID {
			s.items = items
		}
		s.mu.Unlock()

		if tier == s.shared {
			s.writeTier(ctx, s.tab, key, user.ID, items)
		}
		return true
	}

	return false
}

// ImportUnpaid adds every unpaid booking recorded for the user that is not
// already in the cart and returns how many were added.
func (s *Store) ImportUnpaid(ctx context.Context) (int, error) {
	owner, err := s.requireOwner()
	if err != nil {
		return 0, err
	}
	if s.bookings == nil {
		return 0, nil
	}

	bookings, err := s.bookings.ListUnpaid(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("bookings.ListUnpaid: %w", err)
	}

	var (
		imported int
		errs     []error
	)
	for _, booking := range bookings {
		item := booking.CartItem()
		if _, ok := s.findPending(item.Key()); ok {
			continue
		}

		if _, err := s.Add(ctx, item); err != nil {
			errs = append(errs, fmt.Errorf("booking[%s]: %w", booking.BookingCode, err))
			continue
		}
		imported++
	}

	if imported > 0 {
		s.logger.Info("imported unpaid bookings", zap.Int("count", imported))
	}
	return imported, errors.Join(errs...)
}

// Watch drops the local cart after checkout. Paid items are no longer
// pending, so the next refetch starts from an empty list.
func (s *Store) Watch(bus *signal.Bus) (cancel func()) {
	return bus.Subscribe(signal.CheckoutCompleted, func(e signal.Event) {
		s.mu.Lock()
		if e.UserID != "" && e.UserID != s.owner {
			s.mu.Unlock()
			return
		}
		owner := s.owner
		s.items = nil
		s.mutations++
		s.mu.Unlock()

		if owner != "" {
			s.persist(context.Background(), owner, nil)
		}
	})
}

func (s *Store) requireOwner() (string, error) {
	if !s.identity.IsReady() {
		return "", apperr.ErrSessionNotReady
	}
	user := s.identity.CurrentUser()
	if user == nil {
		return "", apperr.ErrUnauthenticated
	}
	s.bindOwner(user.ID)
	return user.ID, nil
}

// bindOwner switches the in-memory cart to owner, discarding another user's
// items.
func (s *Store) bindOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == owner {
		return
	}
	s.owner = owner
	s.items = nil
	s.loading = false
	s.mutations++
}

func (s *Store) findPending(key domain.ItemKey) (domain.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Cart{Items: s.items}.FindPending(key)
}

func (s *Store) snapshot() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Store) persist(ctx context.Context, owner string, items []domain.CartItem) {
	key := itemsKey(owner)
	s.writeTier(ctx, s.tab, key, owner, items)
	s.writeTier(ctx, s.shared, key, owner, items)
}

func (s *Store) writeTier(ctx context.Context, tier kv.Store, key, owner string, items []domain.CartItem) {
	record := mapItemsToCache(owner, items, s.clk.Now())
	if err := kv.SetRecord(ctx, tier, key, record, 0); err != nil {
		s.logger.Warn("write cart cache", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) readTier(ctx context.Context, tier kv.Store, key, owner string) ([]domain.CartItem, bool) {
	var record cachedCart
	ok, err := kv.GetRecord(ctx, tier, key, &record)
	if err != nil {
		s.dropCorrupt(ctx, tier, key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if record.Owner != owner {
		s.dropCorrupt(ctx, tier, key, fmt.Errorf("owner[%s] mismatch", record.Owner))
		return nil, false
	}

	items, err := mapCacheToItems(record)
	if err != nil {
		s.dropCorrupt(ctx, tier, key, err)
		return nil, false
	}
	return items, true
}

func (s *Store) dropCorrupt(ctx context.Context, tier kv.Store, key string, cause error) {
	s.logger.Debug("dropping unreadable cart cache", zap.String("key", key), zap.Error(cause))
	if err := tier.Delete(ctx, key); err != nil {
		s.logger.Warn("delete cart cache", zap.String("key", key), zap.Error(err))
	}
}

func itemsKey(owner string) string {
	return kv.Key(kv.NamespaceCart, owner, kv.NameCartItems)
}
