package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Booking is an order recorded outside the cart, e.g. by an agent on the
// traveler's behalf. Unpaid bookings are imported into the traveler's cart.
type Booking struct {
	ID            uuid.UUID
	OwnerID       string
	BookingCode   string
	ItemType      ItemType
	ServiceName   string
	Total         Money
	Details       []byte
	PaymentStatus PaymentStatus
	CreatedBy     string

	CreatedAt time.Time
}

// CartItem converts the booking into the cart line that represents it. The
// line is keyed by booking code, the same ItemID a booking form submits with.
func (b Booking) CartItem() CartItem {
	itemID := b.BookingCode
	if itemID == "" {
		itemID = b.ID.String()
	}
	return CartItem{
		ItemType:    b.ItemType,
		ItemID:      itemID,
		ServiceName: b.ServiceName,
		UnitPrice:   b.Total,
		Quantity:    1,
		Details:     b.Details,
		Status:      ItemStatusPending,
	}
}

var codePrefixes = map[ItemType]string{
	ItemTypeBaggage:         "BG",
	ItemTypeAirportTransfer: "AT",
	ItemTypeHandling:        "HS",
	ItemTypeCar:             "CR",
}

// NewBookingCode returns prefix + timestamp + random suffix, e.g.
// BG20260301090000-3F9A1C.
func NewBookingCode(itemType ItemType, now time.Time) string {
	prefix, ok := codePrefixes[itemType]
	if !ok {
		prefix = "BK"
	}

	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]

	return prefix + now.UTC().Format("20060102150405") + "-" + suffix
}

type Price struct {
	ItemType ItemType
	Category string
	Amount   Money
}
