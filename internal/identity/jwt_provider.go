// Package identity implements the identity provider port with HMAC-signed
// bearer tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type listener func(event domain.AuthEvent, session *domain.Session)

// JWTProvider holds at most one signed-in token. An expired token reads as
// "no session", not as an error.
type JWTProvider struct {
	secret []byte
	clk    clock.Clock

	mu        sync.Mutex
	token     string
	nextID    int
	listeners map[int]listener
}

func NewJWTProvider(secret []byte, clk clock.Clock) (*JWTProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}

	return &JWTProvider{
		secret:    secret,
		clk:       clk,
		listeners: make(map[int]listener),
	}, nil
}

// IssueToken signs a session token for userID.
func IssueToken(secret []byte, userID, email string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (p *JWTProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	if token == "" {
		return nil, nil
	}

	session, err := p.parse(token)
	if errors.Is(err, errExpired) {
		return nil, nil
	}
	return session, err
}

// SignIn validates token, stores it and notifies listeners.
func (p *JWTProvider) SignIn(_ context.Context, token string) (*domain.Session, error) {
	session, err := p.parse(token)
	if err != nil {
		return nil, fmt.Errorf("p.parse: %w", err)
	}

	p.mu.Lock()
	event := domain.AuthSignedIn
	if p.token != "" {
		event = domain.AuthTokenRefreshed
	}
	p.token = token
	p.mu.Unlock()

	p.notify(event, session)
	return session, nil
}

func (p *JWTProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()

	p.notify(domain.AuthSignedOut, nil)
	return nil
}

func (p *JWTProvider) OnAuthStateChange(fn func(event domain.AuthEvent, session *domain.Session)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *JWTProvider) notify(event domain.AuthEvent, session *domain.Session) {
	p.mu.Lock()
	targets := make([]listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(event, session)
	}
}

var errExpired = errors.New("token expired")

func (p *JWTProvider) parse(token string) (*domain.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("jwt.ParseWithClaims: %w", err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("token does not carry sub and email")
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
		if !p.clk.Now().Before(expiresAt) {
			return nil, errExpired
		}
	}

	return &domain.Session{
		User:      domain.User{ID: claims.Subject, Email: claims.Email},
		ExpiresAt: expiresAt,
	}, nil
}
