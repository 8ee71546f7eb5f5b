package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/db"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
)

type bookingRepository struct {
	q *db.Queries
}

func NewBooking(pool *pgxpool.Pool) (port.BookingRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &bookingRepository{q: db.New(pool)}, nil
}

func NewBookingWithTx(tx pgx.Tx) port.BookingRepository {
	return &bookingRepository{q: db.New(tx)}
}

func (r *bookingRepository) ListUnpaid(ctx context.Context, ownerID string) ([]domain.Booking, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.ListUnpaidBookings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("q.ListUnpaidBookings: %w", err)
	}

	bookings := make([]domain.Booking, 0, len(rows))
	for _, row := range rows {
		booking, err := mapBookingToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapBookingToDomain: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, nil
}

func (r *bookingRepository) CreateBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	if booking.OwnerID == "" {
		return domain.Booking{}, fmt.Errorf("ownerID is empty")
	}
	if booking.BookingCode == "" {
		return domain.Booking{}, fmt.Errorf("bookingCode is empty")
	}

	details := booking.Details
	if len(details) == 0 {
		details = emptyDetails
	}

	status := booking.PaymentStatus
	if status == "" {
		status = domain.PaymentUnpaid
	}

	row, err := r.q.CreateBooking(ctx, db.CreateBookingParams{
		OwnerID:       booking.OwnerID,
		BookingCode:   booking.BookingCode,
		ItemType:      string(booking.ItemType),
		ServiceName:   booking.ServiceName,
		TotalAmount:   booking.Total.Amount,
		TotalCurrency: booking.Total.Currency.String(),
		Details:       details,
		PaymentStatus: string(status),
		CreatedBy:     booking.CreatedBy,
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("q.CreateBooking: %w", err)
	}

	return mapBookingToDomain(row)
}

func mapBookingToDomain(row db.Booking) (domain.Booking, error) {
	parsedCurrency, err := currency.ParseISO(row.TotalCurrency)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("currency[%s] is not valid: %w", row.TotalCurrency, err)
	}

	itemType, err := domain.ParseItemType(row.ItemType)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("domain.ParseItemType: %w", err)
	}

	return domain.Booking{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		BookingCode:   row.BookingCode,
		ItemType:      itemType,
		ServiceName:   row.ServiceName,
		Total:         domain.Money{Amount: row.TotalAmount, Currency: parsedCurrency},
		Details:       row.Details,
		PaymentStatus: domain.PaymentStatus(row.PaymentStatus),
		CreatedBy:     row.CreatedBy,
		CreatedAt:     row.CreatedAt,
	}, nil
}
