package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cartogra/cartogra/internal/api/ratelimit"
	"github.com/cartogra/cartogra/internal/api/revocation"
	"github.com/cartogra/cartogra/internal/api/service"
	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/pkg/httpx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store       store.Store
	revocations *revocation.Store

	TokenService *service.TokenService
	UserService  *service.UserService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	revocations *revocation.Store,
	tokens *service.TokenService,
	users *service.UserService,
	limiter *ratelimit.Limiter,
	anon, auth ratelimit.Policy,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		revocations:  revocations,
		TokenService: tokens,
		UserService:  users,
	}

	// Global chain: request logging first, then tenant resolution so the
	// rate limiter can pick the per-user tier.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		TenantMiddleware(tokens),
		RateLimitMiddleware(limiter, anon, auth),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerOrganizations()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	auth := &AuthHandler{
		TokenService: r.TokenService,
		UserService:  r.UserService,
	}

	r.Mux.Handle("POST /v1/auth/register", http.HandlerFunc(auth.HandleRegister))
	r.Mux.Handle("POST /v1/auth/login", http.HandlerFunc(auth.HandleLogin))
	r.Mux.Handle("POST /v1/auth/refresh", http.HandlerFunc(auth.HandleRefresh))

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(auth.HandleLogout), httpx.RequireAuth()))
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(auth.HandleMe), httpx.RequireAuth()))
}

func (r *Router) registerOrganizations() {
	h := &OrganizationHandler{UserService: r.UserService}

	r.Mux.Handle("GET /v1/organizations/current",
		httpx.Chain(http.HandlerFunc(h.HandleCurrent), httpx.RequireAuth()))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.revocations))
}
