package domain_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestCartTotal(t *testing.T) {
	cart := domain.Cart{
		OwnerID: "owner",
		Items: []domain.CartItem{
			{UnitPrice: money("12.50"), Quantity: 2},
			{UnitPrice: money("5"), Quantity: 1},
		},
	}

	total := cart.Total(currency.IDR)
	assert.True(t, total.Amount.Equal(decimal.RequireFromString("30")), total.String())
	assert.Equal(t, currency.IDR, total.Currency)

	empty := domain.Cart{}.Total(currency.IDR)
	assert.True(t, empty.Amount.IsZero())
}

func TestFindPending(t *testing.T) {
	paid := domain.CartItem{ItemType: domain.ItemTypeCar, ItemID: "x", Status: domain.ItemStatusPaid}
	pending := domain.CartItem{ItemType: domain.ItemTypeCar, ItemID: "x", Status: domain.ItemStatusPending, ServiceName: "pending"}
	cart := domain.Cart{Items: []domain.CartItem{paid, pending}}

	got, ok := cart.FindPending(domain.ItemKey{ItemType: domain.ItemTypeCar, ItemID: "x"})
	require.True(t, ok)
	assert.Equal(t, "pending", got.ServiceName)

	_, ok = cart.FindPending(domain.ItemKey{ItemType: domain.ItemTypeBaggage, ItemID: "x"})
	assert.False(t, ok)
}

func TestParseItemType(t *testing.T) {
	got, err := domain.ParseItemType("airport_transfer")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemTypeAirportTransfer, got)

	_, err = domain.ParseItemType("hotel")
	assert.EqualError(t, err, "item type[hotel] is not valid")
}

func TestDetailsEnvelope(t *testing.T) {
	in := domain.BaggageDetails{
		BookingCode: "BG20260301090000-ABCDEF",
		Contact:     domain.Contact{CustomerName: "Ana Putri", Email: "ana@example.com", Phone: "081234567890"},
		Schedule: domain.Schedule{
			DurationMode: domain.DurationHours,
			Hours:        2,
			StartDate:    "2026-03-01",
			StartTime:    "10:00",
		},
		Category: "small",
	}

	raw, err := domain.EncodeDetails(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"baggage"`)

	out, err := domain.DecodeDetails(raw)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(&in, out))
}

func TestEncodeDetailsRejectsInvalidShape(t *testing.T) {
	_, err := domain.EncodeDetails(domain.TransferDetails{BookingCode: "AT1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pickup or dropoff location is empty")

	_, err = domain.EncodeDetails(nil)
	assert.Error(t, err)

	_, err = domain.DecodeDetails([]byte(`{"type":"hotel","data":{}}`))
	assert.Error(t, err)
}

func TestNewBookingCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)

	a := domain.NewBookingCode(domain.ItemTypeBaggage, now)
	b := domain.NewBookingCode(domain.ItemTypeBaggage, now)

	assert.Regexp(t, regexp.MustCompile(`^BG20260301093015-[0-9A-F]{6}$`), a)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^CR`, domain.NewBookingCode(domain.ItemTypeCar, now))
}

func TestBookingCartItem(t *testing.T) {
	id := uuid.New()
	booking := domain.Booking{ID: id, ItemType: domain.ItemTypeHandling, ServiceName: "Handling", Total: money("40")}

	item := booking.CartItem()
	assert.Equal(t, id.String(), item.ItemID, "falls back to the row id without a code")
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, domain.ItemStatusPending, item.Status)

	booking.BookingCode = "HS20260301090000-ABCDEF"
	assert.Equal(t, booking.BookingCode, booking.CartItem().ItemID)
}

func TestDraftClone(t *testing.T) {
	in := domain.BookingDraft{Fields: map[string]string{"name": "a"}}
	out := in.Clone()
	out.Fields["name"] = "b"
	assert.Equal(t, "a", in.Fields["name"])
}

func money(amount string) domain.Money {
	return domain.Money{Amount: decimal.RequireFromString(amount), Currency: currency.IDR}
}
