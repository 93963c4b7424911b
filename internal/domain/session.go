package domain

import "time"

// Role values carried in access tokens.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleSeller   = "seller"
)

// SessionKind tags the three navigation-relevant identities.
type SessionKind int

const (
	KindGuest SessionKind = iota
	KindUser
	KindAdmin
)

func (k SessionKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// Session is the shopper identity for one request. The zero value is a guest.
// Admin-ness is decided once, when the session is built, through Kind.
type Session struct {
	Kind      SessionKind
	UserID    string
	Name      string
	Email     string
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Guest returns the anonymous session.
func Guest() Session {
	return Session{Kind: KindGuest}
}

// NewSession builds an authenticated session from token claims.
func NewSession(userID, name, email, role string) Session {
	kind := KindUser
	if role == RoleAdmin {
		kind = KindAdmin
	}
	if name == "" {
		name = email
	}
	return Session{Kind: kind, UserID: userID, Name: name, Email: email}
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool {
	return s.Kind != KindGuest
}
