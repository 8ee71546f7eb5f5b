package port

import (
	"context"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

type BookingRepository interface {
	ListUnpaid(ctx context.Context, ownerID string) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error)
}

type PriceRepository interface {
	ListPrices(ctx context.Context, itemType domain.ItemType) ([]domain.Price, error)
}
