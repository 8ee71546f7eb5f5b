package domain

import "time"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is what the identity provider reports for a signed-in user.
type Session struct {
	User      User
	ExpiresAt time.Time
}

type SessionState struct {
	Hydrated      bool
	Authenticated bool
	UserID        string
	UserEmail     string
	Checking      bool
	// FromMirror is set when the state came from the durable mirror because
	// the provider did not answer in time.
	FromMirror bool
}

func (s SessionState) User() *User {
	if !s.Hydrated || !s.Authenticated {
		return nil
	}
	return &User{ID: s.UserID, Email: s.UserEmail}
}

type AuthEvent string

const (
	AuthSignedIn       AuthEvent = "SIGNED_IN"
	AuthSignedOut      AuthEvent = "SIGNED_OUT"
	AuthTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
