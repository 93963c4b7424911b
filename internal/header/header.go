package header

import (
	"context"
	"log/slog"

	"github.com/cengoxius/ecommerce01/internal/domain"
	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// Brand is the storefront name shown in the navigation bar.
const Brand = "CENGOXIUS"

// State is the navigation variant rendered for a session.
type State string

const (
	StateGuest State = "guest"
	StateUser  State = "user"
	StateAdmin State = "admin"
)

// Link is a navigation entry.
type Link struct {
	Label string       `json:"label"`
	Route domain.Route `json:"route"`
}

// Menu is a titled dropdown.
type Menu struct {
	Title string `json:"title"`
	Items []Link `json:"items"`
}

// View is the header render model. Exactly one of SignIn and Account is
// set; Admin is only set for administrators.
type View struct {
	State  State        `json:"state"`
	Brand  Link         `json:"brand"`
	Search domain.Route `json:"search"`
	Cart   Link         `json:"cart"`
	// SignIn is the guest sign-in link.
	SignIn *Link `json:"sign_in,omitempty"`
	// Account is the user dropdown, titled with the display name.
	Account *Menu `json:"account,omitempty"`
	// Logout is the action target inside Account.
	Logout domain.Route `json:"logout,omitempty"`
	Admin  *Menu        `json:"admin,omitempty"`
}

// Build returns the navigation state for session. The session kind is
// inspected once; every variant shares the fixed brand, search and cart
// entries.
func Build(session domain.Session) View {
	v := View{
		Brand:  Link{Label: Brand, Route: domain.RouteHome},
		Search: domain.RouteSearch,
		Cart:   Link{Label: "Cart", Route: domain.RouteCart},
	}

	switch session.Kind {
	case domain.KindAdmin:
		v.State = StateAdmin
		v.Account, v.Logout = accountMenu(session)
		v.Admin = &Menu{
			Title: "Admin",
			Items: []Link{
				{Label: "Users", Route: domain.RouteAdminUsers},
				{Label: "Products", Route: domain.RouteAdminProducts},
				{Label: "Orders", Route: domain.RouteAdminOrders},
			},
		}
	case domain.KindUser:
		v.State = StateUser
		v.Account, v.Logout = accountMenu(session)
	default:
		v.State = StateGuest
		v.SignIn = &Link{Label: "Sign In", Route: domain.RouteLogin}
	}
	return v
}

func accountMenu(session domain.Session) (*Menu, domain.Route) {
	return &Menu{
		Title: session.Name,
		Items: []Link{{Label: "Profile", Route: domain.RouteProfile}},
	}, domain.RouteLogout
}

// SessionStore is the part of the identity store the header needs.
type SessionStore interface {
	CurrentSession(ctx context.Context) domain.Session
	Logout(ctx context.Context) error
}

// Navigation renders the header for a request and performs logout.
type Navigation struct {
	store  SessionStore
	logger *slog.Logger
}

// NewNavigation creates a Navigation backed by store.
func NewNavigation(store SessionStore, logger *slog.Logger) *Navigation {
	return &Navigation{store: store, logger: logger}
}

// View builds the header for the session bound to ctx.
func (n *Navigation) View(ctx context.Context) View {
	return Build(n.store.CurrentSession(ctx))
}

// Logout clears the current session. It has no error path: a failure to
// clear the server-side session is logged and otherwise ignored.
func (n *Navigation) Logout(ctx context.Context) {
	if err := n.store.Logout(ctx); err != nil {
		logger.WithContext(ctx, n.logger).Warn("logout failed", slog.String("error", err.Error()))
	}
}
