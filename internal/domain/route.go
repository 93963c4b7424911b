package domain

import "net/url"

// Route is a navigation destination token understood by the transport.
type Route string

const (
	RouteHome          Route = "/"
	RouteCart          Route = "/cart"
	RouteLogin         Route = "/login"
	RouteProfile       Route = "/profile"
	RouteSearch        Route = "/search"
	RouteLogout        Route = "/logout"
	RouteAdminUsers    Route = "/admin/users"
	RouteAdminProducts Route = "/admin/products"
	RouteAdminOrders   Route = "/admin/orders"
)

// ProductRoute returns the detail page route for a product.
func ProductRoute(id string) Route {
	return Route("/products/" + url.PathEscape(id))
}

func (r Route) String() string {
	return string(r)
}
