package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

type ItemType string

const (
	ItemTypeBaggage         ItemType = "baggage"
	ItemTypeAirportTransfer ItemType = "airport_transfer"
	ItemTypeHandling        ItemType = "handling"
	ItemTypeCar             ItemType = "car"
)

func ParseItemType(s string) (ItemType, error) {
	switch t := ItemType(s); t {
	case ItemTypeBaggage, ItemTypeAirportTransfer, ItemTypeHandling, ItemTypeCar:
		return t, nil
	default:
		return "", fmt.Errorf("item type[%s] is not valid", s)
	}
}

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusPaid    ItemStatus = "paid"
)

type Cart struct {
	OwnerID string
	Items   []CartItem
}

// CartItem is one priced service booking awaiting checkout. Details is an
// opaque document produced by the booking flow; the cart never reads it.
type CartItem struct {
	ID          uuid.UUID
	ItemType    ItemType
	ItemID      string
	ServiceName string
	UnitPrice   Money
	Quantity    int
	Details     []byte
	Status      ItemStatus

	CreatedAt time.Time
}

// ItemKey identifies a pending item for deduplication.
type ItemKey struct {
	ItemType ItemType
	ItemID   string
}

func (i CartItem) Key() ItemKey {
	return ItemKey{ItemType: i.ItemType, ItemID: i.ItemID}
}

func (i CartItem) Subtotal() Money {
	return i.UnitPrice.Mul(int64(i.Quantity))
}

// Total folds UnitPrice*Quantity over all items.
func (c Cart) Total(cur currency.Unit) Money {
	total := Zero(cur)
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// FindPending returns the pending item with the given key.
func (c Cart) FindPending(key ItemKey) (CartItem, bool) {
	for _, item := range c.Items {
		if item.Status == ItemStatusPending && item.Key() == key {
			return item, true
		}
	}
	return CartItem{}, false
}
