package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/db"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
)

var emptyDetails = []byte("{}")

type cartRepository struct {
	q  *db.Queries
	tx txRunner
}

func NewCart(pool *pgxpool.Pool) (port.CartRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	q := db.New(pool)
	return &cartRepository{q: q, tx: newTxRunner(pool, q)}, nil
}

// NewCartWithTx builds a repository whose writes join tx.
func NewCartWithTx(tx pgx.Tx) port.CartRepository {
	q := db.New(tx)
	return &cartRepository{q: q, tx: newTxRunner(nil, q)}
}

func (r *cartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if ownerID == "" {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	dbCartItems, err := r.q.GetCart(ctx, ownerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("q.GetCart: %w", err)
	}

	items, err := mapGetCartRowsToDomain(dbCartItems)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("mapGetCartRowsToDomain: %w", err)
	}

	return domain.Cart{
		OwnerID: ownerID,
		Items:   items,
	}, nil
}

// AddItem is a logical upsert: the insert is skipped by the partial unique
// index when a pending item with the same (item_type, item_id) exists, and
// the existing row is returned instead.
func (r *cartRepository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) (domain.CartItem, bool, error) {
	if ownerID == "" {
		return domain.CartItem{}, false, fmt.Errorf("ownerID is empty")
	}
	if item.ItemID == "" {
		return domain.CartItem{}, false, fmt.Errorf("itemID is empty")
	}
	if item.Quantity < 1 {
		return domain.CartItem{}, false, fmt.Errorf("quantity[%d] is not positive", item.Quantity)
	}

	details := item.Details
	if len(details) == 0 {
		details = emptyDetails
	}

	var (
		stored  domain.CartItem
		created bool
	)
	err := r.tx.run(ctx, func(q *db.Queries) error {
		inserted, err := q.InsertItem(ctx, db.InsertItemParams{
			OwnerID:           ownerID,
			ItemType:          string(item.ItemType),
			ItemID:            item.ItemID,
			ServiceName:       item.ServiceName,
			UnitPriceAmount:   item.UnitPrice.Amount,
			UnitPriceCurrency: item.UnitPrice.Currency.String(),
			Quantity:          int32(item.Quantity),
			Details:           details,
		})
		if err == nil {
			stored = item
			stored.ID = inserted.ID
			stored.CreatedAt = inserted.CreatedAt
			stored.Details = details
			stored.Status = domain.ItemStatusPending
			created = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("q.InsertItem: %w", err)
		}

		row, err := q.GetPendingItem(ctx, db.GetPendingItemParams{
			OwnerID:  ownerID,
			ItemType: string(item.ItemType),
			ItemID:   item.ItemID,
		})
		if err != nil {
			return fmt.Errorf("q.GetPendingItem: %w", err)
		}

		stored, err = mapGetCartRowToDomain(db.GetCartRow(row))
		if err != nil {
			return fmt.Errorf("mapGetCartRowToDomain: %w", err)
		}

		return nil
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}

	return stored, created, nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, ownerID string, id uuid.UUID) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}

	rowsAffected, err := r.q.DeleteItem(ctx, db.DeleteItemParams{
		OwnerID: ownerID,
		ID:      id,
	})
	if err != nil {
		return false, fmt.Errorf("q.DeleteItem: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *cartRepository) ClearCart(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("ownerID is empty")
	}

	rowsAffected, err := r.q.ClearCart(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("q.ClearCart: %w", err)
	}

	return rowsAffected, nil
}

func mapGetCartRowToDomain(row db.GetCartRow) (domain.CartItem, error) {
	parsedCurrency, err := currency.ParseISO(row.UnitPriceCurrency)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("currency[%s] is not valid: %w", row.UnitPriceCurrency, err)
	}

	itemType, err := domain.ParseItemType(row.ItemType)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("domain.ParseItemType: %w", err)
	}

	return domain.CartItem{
		ID:          row.ID,
		ItemType:    itemType,
		ItemID:      row.ItemID,
		ServiceName: row.ServiceName,
		UnitPrice:   domain.Money{Amount: row.UnitPriceAmount, Currency: parsedCurrency},
		Quantity:    int(row.Quantity),
		Details:     row.Details,
		Status:      domain.ItemStatus(row.Status),
		CreatedAt:   row.CreatedAt,
	}, nil
}

func mapGetCartRowsToDomain(rows []db.GetCartRow) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(rows))

	for _, row := range rows {
		item, err := mapGetCartRowToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapGetCartRowToDomain: %w", err)
		}

		items = append(items, item)
	}

	return items, nil
}
