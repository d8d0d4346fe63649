// Package server is the wallet's web front end: the login page, the
// dashboard and the routes around them. Each browser is identified by an
// opaque cookie and owns one session store in the registry; every protected
// navigation goes through the route guard.
package server

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"filippo.io/csrf"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/jrsteele09/go-wallet-web/internal/config"
	"github.com/jrsteele09/go-wallet-web/server/authflowrepo"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/jrsteele09/go-wallet-web/users"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the server is assembled from.
type Deps struct {
	Authority gateway.Authority
	Limiter   gateway.AttemptLimiter // shared by every browser's gateway
	Browsers  *session.Registry
	Routes    *guard.Table
	AuthState authflowrepo.Repo

	// Users resolves display names on the dashboard. Optional.
	Users users.UserRepo
	// AuthorityEndpoints is mounted under /oauth2/ when set.
	AuthorityEndpoints http.Handler
}

type Server struct {
	env         string
	mux         *http.ServeMux
	routes      []string
	config      config.Config
	deps        Deps
	loginPath   string
	landingPath string

	csrf *csrf.CrossOriginProtection
	cors *cors.Cors
	gzip func(http.Handler) http.HandlerFunc
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Authority == nil {
		return nil, fmt.Errorf("[Server New] authority is required")
	}
	if deps.Browsers == nil {
		return nil, fmt.Errorf("[Server New] browser registry is required")
	}
	if deps.Limiter == nil {
		deps.Limiter = gateway.NewMemoryLimiter(cfg.GetMaxLoginAttempts(), cfg.GetLoginAttemptWindow())
	}
	loginPath, err := routePath("login", cfg.GetLoginPath())
	if err != nil {
		return nil, err
	}
	landingPath, err := routePath("landing", cfg.GetLandingPath())
	if err != nil {
		return nil, err
	}
	if loginPath == landingPath {
		return nil, fmt.Errorf("[Server New] login and landing paths are both %q", loginPath)
	}
	if deps.Routes == nil {
		if deps.Routes, err = guard.DefaultTable(loginPath, landingPath); err != nil {
			return nil, fmt.Errorf("[Server New] %w", err)
		}
	}
	if deps.AuthState == nil {
		deps.AuthState = authflowrepo.NewInMemoryRepo()
	}

	gz, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
	if err != nil {
		return nil, fmt.Errorf("[Server New] gzhttp.NewWrapper: %w", err)
	}

	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		deps:        deps,
		loginPath:   loginPath,
		landingPath: landingPath,
		csrf:        csrf.New(),
		cors: cors.New(cors.Options{
			AllowedOrigins: cfg.GetAllowedOrigins().List(),
			AllowedMethods: cfg.GetAllowedMethods(),
			AllowedHeaders: cfg.GetAllowedHeaders(),
		}),
		gzip: gz,
	}
	if err := s.csrf.AddTrustedOrigin(cfg.GetBaseURL()); err != nil {
		log.Warn().Err(err).Str("base_url", cfg.GetBaseURL()).Msg("base url is not a valid trusted origin")
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+s.loginPath, ChainMiddleware(s.LoginPageHandler(), s.PageMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthSSO, ChainMiddleware(s.SSOStartHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.SSOCallbackHandler(), s.HTMLMiddleWare()...))

	// DASHBOARD (guarded)
	s.RegisterRouteHandler("GET "+s.landingPath, ChainMiddleware(s.DashboardHandler(), s.PageMiddleWare(s.RequireRoute())...))
	s.RegisterRouteHandler("GET "+s.landingPath+RouteSecuritySuffix, ChainMiddleware(s.SecurityHandler(), s.PageMiddleWare(s.RequireRoute())...))
	// no compression: events are flushed one by one
	s.RegisterRouteHandler("GET "+s.landingPath+RouteEventsSuffix, ChainMiddleware(s.EventsHandler(), s.HTMLMiddleWare(s.RequireRoute())...))

	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleWare()...))

	if s.deps.AuthorityEndpoints != nil {
		// OAuth2 API routes
		s.RegisterRouteHandler("/oauth2/", ChainMiddleware(s.deps.AuthorityEndpoints.ServeHTTP, s.APIMiddleware()...))
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// routePath cleans a configured page path, which must be absolute and not
// the site root.
func routePath(name, p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("[Server New] %s path %q must start with /", name, p)
	}
	p = path.Clean(p)
	if p == "/" {
		return "", fmt.Errorf("[Server New] %s path cannot be /", name)
	}
	return p, nil
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
