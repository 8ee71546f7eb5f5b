// Package draft persists the in-progress state of one booking form so it can
// be restored after a reload.
package draft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/codec"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

type resetMarker struct {
	At time.Time `cbor:"at"`
}

type Options struct {
	ItemType domain.ItemType
	// Origin names the owner of this store on the signal bus.
	Origin string
	Tab    kv.Store
	Shared kv.Store
	Bus    *signal.Bus
	Clock  clock.Clock
	Logger *zap.Logger

	TTL            time.Duration
	Debounce       time.Duration
	ResetMarkerTTL time.Duration
}

// Store owns the draft of a single item type. The draft lives in the
// cross-session tier; reset markers are written to both tiers.
type Store struct {
	itemType  domain.ItemType
	origin    string
	tab       kv.Store
	shared    kv.Store
	bus       *signal.Bus
	clk       clock.Clock
	logger    *zap.Logger
	ttl       time.Duration
	debounce  time.Duration
	markerTTL time.Duration

	draftKey  string
	markerKey string

	mu          sync.Mutex
	pending     *domain.BookingDraft
	timer       *clock.Timer
	generation  uint64
	lastEncoded []byte
	lastWritten time.Time
}

func NewStore(opts Options) (*Store, error) {
	if _, err := domain.ParseItemType(string(opts.ItemType)); err != nil {
		return nil, fmt.Errorf("domain.ParseItemType: %w", err)
	}
	if opts.Tab == nil || opts.Shared == nil {
		return nil, fmt.Errorf("storage tier is nil")
	}
	if opts.TTL <= 0 || opts.Debounce <= 0 || opts.ResetMarkerTTL <= 0 {
		return nil, fmt.Errorf("draft timings must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		itemType:  opts.ItemType,
		origin:    opts.Origin,
		tab:       opts.Tab,
		shared:    opts.Shared,
		bus:       opts.Bus,
		clk:       opts.Clock,
		logger:    opts.Logger.Named("draft").With(zap.String("item_type", string(opts.ItemType))),
		ttl:       opts.TTL,
		debounce:  opts.Debounce,
		markerTTL: opts.ResetMarkerTTL,
		draftKey:  kv.Key(kv.NamespaceBooking, string(opts.ItemType), kv.NameDraft),
		markerKey: kv.Key(kv.NamespaceBooking, string(opts.ItemType), kv.NameResetMarker),
	}, nil
}

func (s *Store) Origin() string { return s.origin }

// Save schedules d to be written once no further Save arrives within the
// debounce window. The latest draft wins. A zero Timestamp is stamped with
// the current time.
func (s *Store) Save(d domain.BookingDraft) {
	d = d.Clone()
	if d.Timestamp.IsZero() {
		d.Timestamp = s.clk.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	generation := s.generation
	s.pending = &d
	s.timer = s.clk.AfterFunc(s.debounce, func() {
		s.fire(generation)
	})
}

// Pending reports whether a debounced save has not been written yet.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Flush writes a pending save immediately.
func (s *Store) Flush(ctx context.Context) error {
	d, ok := s.takePending(0)
	if !ok {
		return nil
	}
	return s.write(ctx, d)
}

func (s *Store) fire(generation uint64) {
	d, ok := s.takePending(generation)
	if !ok {
		return
	}
	if err := s.write(context.Background(), d); err != nil {
		s.logger.Warn("debounced draft save failed", zap.Error(err))
	}
}

// takePending detaches the pending draft. A non-zero generation must match
// the latest Save, so a superseded timer does nothing.
func (s *Store) takePending(generation uint64) (domain.BookingDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || (generation != 0 && generation != s.generation) {
		return domain.BookingDraft{}, false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	d := *s.pending
	s.pending = nil
	return d, true
}

func (s *Store) write(ctx context.Context, d domain.BookingDraft) error {
	marker, err := s.activeMarker(ctx)
	if err != nil {
		return fmt.Errorf("s.activeMarker: %w", err)
	}
	if marker != nil {
		if d.Timestamp.Before(marker.At) {
			s.logger.Debug("dropping draft stamped before reset",
				zap.Time("draft_at", d.Timestamp), zap.Time("reset_at", marker.At))
			return nil
		}
		if err := s.clearMarkers(ctx); err != nil {
			return fmt.Errorf("s.clearMarkers: %w", err)
		}
	}

	fingerprint, err := codec.Marshal(withoutTimestamp(d))
	if err != nil {
		return fmt.Errorf("codec.Marshal: %w", err)
	}

	// An unchanged draft is still rewritten once half its TTL has passed so
	// an active form does not expire.
	s.mu.Lock()
	unchanged := bytes.Equal(fingerprint, s.lastEncoded) && s.clk.Now().Sub(s.lastWritten) < s.ttl/2
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	if err := kv.SetRecord(ctx, s.shared, s.draftKey, d, s.ttl); err != nil {
		return fmt.Errorf("kv.SetRecord: %w", err)
	}

	s.mu.Lock()
	s.lastEncoded = fingerprint
	s.lastWritten = s.clk.Now()
	s.mu.Unlock()
	return nil
}

// Restore returns the saved draft if it may be applied to a form showing
// category. Checks run in order: reset marker, TTL, category, terminal step.
// A draft failing any check is deleted and nil is returned.
func (s *Store) Restore(ctx context.Context, category string) (*domain.BookingDraft, error) {
	marker, err := s.activeMarker(ctx)
	if err != nil {
		return nil, fmt.Errorf("s.activeMarker: %w", err)
	}
	if marker != nil {
		s.logger.Debug("reset marker present, not restoring", zap.Time("reset_at", marker.At))
		if err := errors.Join(s.clearMarkers(ctx), s.deleteDraft(ctx)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var d domain.BookingDraft
	ok, err := kv.GetRecord(ctx, s.shared, s.draftKey, &d)
	if errors.Is(err, apperr.ErrCacheCorrupt) {
		s.logger.Debug("draft record corrupt", zap.Error(err))
		return nil, s.deleteDraft(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("kv.GetRecord: %w", err)
	}
	if !ok {
		return nil, nil
	}

	if reason := s.staleReason(d, category); reason != "" {
		s.logger.Info("discarding draft", zap.Error(fmt.Errorf("%w: %s", apperr.ErrStaleDraft, reason)))
		return nil, s.deleteDraft(ctx)
	}

	restored := d.Clone()
	restored.Submitting = false

	fingerprint, err := codec.Marshal(withoutTimestamp(restored))
	if err == nil {
		s.mu.Lock()
		s.lastEncoded = fingerprint
		s.lastWritten = d.Timestamp
		s.mu.Unlock()
	}

	return &restored, nil
}

func (s *Store) staleReason(d domain.BookingDraft, category string) string {
	switch {
	case s.clk.Now().Sub(d.Timestamp) > s.ttl:
		return "expired"
	case d.Category != category:
		return fmt.Sprintf("category[%s] does not match[%s]", d.Category, category)
	case d.Step >= domain.StepSubmitted:
		return "already submitted"
	case d.Step < domain.StepPersonalInfo:
		return fmt.Sprintf("step[%d] is not valid", d.Step)
	default:
		return ""
	}
}

// Invalidate drops any pending save, deletes the draft and sets reset
// markers in both tiers, then announces the reset on the bus.
func (s *Store) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	s.pending = nil
	s.lastEncoded = nil
	s.mu.Unlock()

	now := s.clk.Now()
	var errs []error
	errs = append(errs, s.deleteDraft(ctx))
	for _, tier := range []kv.Store{s.tab, s.shared} {
		if err := kv.SetRecord(ctx, tier, s.markerKey, resetMarker{At: now}, s.markerTTL); err != nil {
			errs = append(errs, fmt.Errorf("kv.SetRecord: %w", err))
		}
	}

	if s.bus != nil {
		s.bus.Publish(signal.Event{
			Kind:   signal.BookingFormCleared,
			Scope:  string(s.itemType),
			Origin: s.origin,
			At:     now,
		})
	}

	return errors.Join(errs...)
}

// activeMarker returns the newest unexpired reset marker from either tier.
// Corrupt markers are removed and ignored.
func (s *Store) activeMarker(ctx context.Context) (*resetMarker, error) {
	var newest *resetMarker
	for _, tier := range []kv.Store{s.tab, s.shared} {
		var m resetMarker
		ok, err := kv.GetRecord(ctx, tier, s.markerKey, &m)
		if errors.Is(err, apperr.ErrCacheCorrupt) {
			s.logger.Debug("reset marker corrupt", zap.Error(err))
			if err := tier.Delete(ctx, s.markerKey); err != nil {
				return nil, fmt.Errorf("tier.Delete: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kv.GetRecord: %w", err)
		}
		if !ok {
			continue
		}
		if newest == nil || m.At.After(newest.At) {
			newest = &m
		}
	}
	return newest, nil
}

func (s *Store) clearMarkers(ctx context.Context) error {
	return errors.Join(
		s.tab.Delete(ctx, s.markerKey),
		s.shared.Delete(ctx, s.markerKey),
	)
}

func (s *Store) deleteDraft(ctx context.Context) error {
	s.mu.Lock()
	s.lastEncoded = nil
	s.mu.Unlock()

	if err := s.shared.Delete(ctx, s.draftKey); err != nil {
		return fmt.Errorf("shared.Delete: %w", err)
	}
	return nil
}

func withoutTimestamp(d domain.BookingDraft) domain.BookingDraft {
	d.Timestamp = time.Time{}
	return d
}
