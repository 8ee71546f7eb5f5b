package port

import (
	"context"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

// IdentityProvider is the authoritative source of session state.
type IdentityProvider interface {
	// GetSession returns nil with no error when nobody is signed in.
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(fn func(event domain.AuthEvent, session *domain.Session)) (cancel func())
	SignOut(ctx context.Context) error
}
