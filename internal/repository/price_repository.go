package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/db"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
)

type priceRepository struct {
	q *db.Queries
}

func NewPrice(pool *pgxpool.Pool) (port.PriceRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &priceRepository{q: db.New(pool)}, nil
}

func (r *priceRepository) ListPrices(ctx context.Context, itemType domain.ItemType) ([]domain.Price, error) {
	rows, err := r.q.ListPrices(ctx, string(itemType))
	if err != nil {
		return nil, fmt.Errorf("q.ListPrices: %w", err)
	}

	prices := make([]domain.Price, 0, len(rows))
	for _, row := range rows {
		parsedCurrency, err := currency.ParseISO(row.Currency)
		if err != nil {
			return nil, fmt.Errorf("currency[%s] is not valid: %w", row.Currency, err)
		}

		prices = append(prices, domain.Price{
			ItemType: domain.ItemType(row.ItemType),
			Category: row.Category,
			Amount:   domain.Money{Amount: row.Amount, Currency: parsedCurrency},
		})
	}

	return prices, nil
}
