package draft_test

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/draft"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/signal"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	debounce  = 300 * time.Millisecond
	ttl       = 30 * time.Minute
	markerTTL = 60 * time.Second
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	clk     *clock.FakeClock
	tab     *kv.Memory
	shared  *kv.Memory
	bus     *signal.Bus
	store   *draft.Store
	cleared []signal.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.Fake(epoch)
	f := &fixture{
		clk:    clk,
		tab:    kv.NewMemory(clk),
		shared: kv.NewMemory(clk),
		bus:    signal.NewBus(),
	}
	f.store = f.newStore(t)

	cancel := f.bus.Subscribe(signal.BookingFormCleared, func(e signal.Event) {
		f.cleared = append(f.cleared, e)
	})
	t.Cleanup(cancel)
	return f
}

// newStore simulates a reload: a fresh store over the same tiers.
func (f *fixture) newStore(t *testing.T) *draft.Store {
	t.Helper()

	store, err := draft.NewStore(draft.Options{
		ItemType:       domain.ItemTypeBaggage,
		Origin:         "wizard-test",
		Tab:            f.tab,
		Shared:         f.shared,
		Bus:            f.bus,
		Clock:          f.clk,
		Logger:         zap.NewNop(),
		TTL:            ttl,
		Debounce:       debounce,
		ResetMarkerTTL: markerTTL,
	})
	require.NoError(t, err)
	return store
}

func fakeDraft(category string) domain.BookingDraft {
	return domain.BookingDraft{
		Step:         domain.StepDurationSelection,
		DurationMode: domain.DurationHours,
		Hours:        2,
		StartDate:    "2026-03-01",
		StartTime:    "13:00",
		Fields: map[string]string{
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
			"phone": "081234567890",
		},
		Category: category,
	}
}

var draftCmpOpts = []cmp.Option{
	cmpopts.IgnoreFields(domain.BookingDraft{}, "Timestamp"),
	cmpopts.EquateEmpty(),
}

func TestSaveIsDebounced(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	key := kv.Key(kv.NamespaceBooking, string(domain.ItemTypeBaggage), kv.NameDraft)

	first := fakeDraft("small")
	f.store.Save(first)
	f.clk.Advance(200 * time.Millisecond)

	second := first.Clone()
	second.Hours = 3
	f.store.Save(second)
	f.clk.Advance(200 * time.Millisecond)

	_, ok, err := f.shared.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "nothing written inside the debounce window")
	assert.True(t, f.store.Pending())

	f.clk.Advance(100 * time.Millisecond)
	assert.False(t, f.store.Pending())

	got, err := f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, cmp.Diff(second, *got, draftCmpOpts...))
}

func TestFlushWritesImmediately(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	d := fakeDraft("small")

	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))
	assert.False(t, f.store.Pending())
	assert.Zero(t, f.clk.PendingCount())

	got, err := f.store.Restore(ctx, "small")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, epoch, got.Timestamp.UTC())
}

func TestRestoreClearsSubmitting(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	d := fakeDraft("small")
	d.Step = domain.StepReview
	d.Submitting = true

	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))

	got, err := f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StepReview, got.Step)
	assert.False(t, got.Submitting)
}

func TestRestoreRejectsExpired(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	f.store.Save(fakeDraft("small"))
	require.NoError(t, f.store.Flush(ctx))

	f.clk.Advance(ttl + time.Second)
	got, err := f.store.Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRestoreVariantIsolation(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	f.store.Save(fakeDraft("small"))
	require.NoError(t, f.store.Flush(ctx))

	got, err := f.newStore(t).Restore(ctx, "large")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got, "mismatched draft was discarded")
}

func TestRestoreRejectsTerminalStep(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	d := fakeDraft("small")
	d.Step = domain.StepSubmitted

	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))

	got, err := f.store.Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRestoreCorruptRecordIsMiss(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	key := kv.Key(kv.NamespaceBooking, string(domain.ItemTypeBaggage), kv.NameDraft)
	require.NoError(t, f.shared.Set(ctx, key, []byte{0xff}, 0))

	got, err := f.store.Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok, err := f.shared.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateBlocksRestore(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	f.store.Save(fakeDraft("small"))
	require.NoError(t, f.store.Flush(ctx))

	f.store.Save(fakeDraft("small"))
	require.NoError(t, f.store.Invalidate(ctx))
	assert.False(t, f.store.Pending())

	f.clk.Advance(debounce)
	got, err := f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.Len(t, f.cleared, 1)
	assert.Equal(t, string(domain.ItemTypeBaggage), f.cleared[0].Scope)
	assert.Equal(t, "wizard-test", f.cleared[0].Origin)
}

func TestInvalidateWritesMarkersToBothTiers(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	key := kv.Key(kv.NamespaceBooking, string(domain.ItemTypeBaggage), kv.NameResetMarker)

	require.NoError(t, f.store.Invalidate(ctx))

	for _, tier := range []*kv.Memory{f.tab, f.shared} {
		_, ok, err := tier.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	f.clk.Advance(markerTTL)
	for _, tier := range []*kv.Memory{f.tab, f.shared} {
		_, ok, err := tier.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "markers expire")
	}
}

func TestSaveStampedBeforeResetIsDropped(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	stale := fakeDraft("small")
	stale.Timestamp = epoch

	f.clk.Advance(time.Second)
	require.NoError(t, f.store.Invalidate(ctx))

	f.store.Save(stale)
	require.NoError(t, f.store.Flush(ctx))

	key := kv.Key(kv.NamespaceBooking, string(domain.ItemTypeBaggage), kv.NameDraft)
	_, ok, err := f.shared.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewerSaveClearsMarkers(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	require.NoError(t, f.store.Invalidate(ctx))
	f.clk.Advance(5 * time.Second)

	fresh := fakeDraft("large")
	f.store.Save(fresh)
	f.clk.Advance(debounce)

	got, err := f.newStore(t).Restore(ctx, "large")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, cmp.Diff(fresh, *got, draftCmpOpts...))
}

func TestMarkerExpiryUnblocksLaterDraft(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	require.NoError(t, f.store.Invalidate(ctx))
	f.clk.Advance(markerTTL + time.Second)

	got, err := f.store.Restore(ctx, "small")
	require.NoError(t, err)
	assert.Nil(t, got)

	f.store.Save(fakeDraft("small"))
	require.NoError(t, f.store.Flush(ctx))

	got, err = f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestIdenticalSaveIsNotRewritten(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	key := kv.Key(kv.NamespaceBooking, string(domain.ItemTypeBaggage), kv.NameDraft)
	d := fakeDraft("small")

	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))
	first, _, err := f.shared.Get(ctx, key)
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))
	second, _, err := f.shared.Get(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIdenticalSavesKeepDraftAlive(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	d := fakeDraft("small")

	f.store.Save(d)
	require.NoError(t, f.store.Flush(ctx))

	for range 5 {
		f.clk.Advance(10 * time.Minute)
		f.store.Save(d)
		require.NoError(t, f.store.Flush(ctx))
	}

	got, err := f.newStore(t).Restore(ctx, "small")
	require.NoError(t, err)
	require.NotNil(t, got, "a draft saved within its TTL is restorable")
	assert.Empty(t, cmp.Diff(d, *got, draftCmpOpts...))
}
