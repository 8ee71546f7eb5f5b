package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

// cachedCart is the storage form of the item list. Money is kept as
// primitive fields so the record stays decodable without domain types.
type cachedCart struct {
	Owner   string       `cbor:"owner"`
	Items   []cachedItem `cbor:"items"`
	SavedAt time.Time    `cbor:"saved_at"`
}

type cachedItem struct {
	ID          string    `cbor:"id"`
	ItemType    string    `cbor:"item_type"`
	ItemID      string    `cbor:"item_id"`
	ServiceName string    `cbor:"service_name"`
	Amount      string    `cbor:"amount"`
	Currency    string    `cbor:"currency"`
	Quantity    int       `cbor:"quantity"`
	Details     []byte    `cbor:"details"`
	Status      string    `cbor:"status"`
	CreatedAt   time.Time `cbor:"created_at"`
}

func mapItemsToCache(owner string, items []domain.CartItem, now time.Time) cachedCart {
	out := cachedCart{
		Owner:   owner,
		Items:   make([]cachedItem, 0, len(items)),
		SavedAt: now,
	}
	for _, item := range items {
		out.Items = append(out.Items, cachedItem{
			ID:          item.ID.String(),
			ItemType:    string(item.ItemType),
			ItemID:      item.ItemID,
			ServiceName: item.ServiceName,
			Amount:      item.UnitPrice.Amount.String(),
			Currency:    item.UnitPrice.Currency.String(),
			Quantity:    item.Quantity,
			Details:     item.Details,
			Status:      string(item.Status),
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}

func mapCacheToItems(c cachedCart) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(c.Items))
	for i, cached := range c.Items {
		id, err := uuid.Parse(cached.ID)
		if err != nil {
			return nil, fmt.Errorf("item[%d] uuid.Parse: %w", i, err)
		}

		itemType, err := domain.ParseItemType(cached.ItemType)
		if err != nil {
			return nil, fmt.Errorf("item[%d] domain.ParseItemType: %w", i, err)
		}

		amount, err := decimal.NewFromString(cached.Amount)
		if err != nil {
			return nil, fmt.Errorf("item[%d] decimal.NewFromString: %w", i, err)
		}

		unit, err := currency.ParseISO(cached.Currency)
		if err != nil {
			return nil, fmt.Errorf("item[%d] currency.ParseISO: %w", i, err)
		}

		items = append(items, domain.CartItem{
			ID:          id,
			ItemType:    itemType,
			ItemID:      cached.ItemID,
			ServiceName: cached.ServiceName,
			UnitPrice:   domain.Money{Amount: amount, Currency: unit},
			Quantity:    cached.Quantity,
			Details:     cached.Details,
			Status:      domain.ItemStatus(cached.Status),
			CreatedAt:   cached.CreatedAt,
		})
	}
	return items, nil
}
