package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (domain.Cart, error)
	// AddItem inserts item unless a pending item with the same key exists.
	// It returns the stored item and whether it was created by this call.
	AddItem(ctx context.Context, ownerID string, item domain.CartItem) (domain.CartItem, bool, error)
	DeleteItem(ctx context.Context, ownerID string, id uuid.UUID) (bool, error)
	ClearCart(ctx context.Context, ownerID string) (int64, error)
}
