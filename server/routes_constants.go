package server

// Route path constants
// The login entry point and landing page are configurable; everything else is fixed here.
const (
	RouteIndex = "/{$}"

	// Auth Routes - Login & Logout
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	RouteAuthSSO    = "/auth/sso"
	RouteCallback   = "/callback"

	// Dashboard sub-routes, relative to the landing path
	RouteSecuritySuffix = "/security"
	RouteEventsSuffix   = "/events"

	RouteHealth = "/healthz"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/static/css/{file}"
)
