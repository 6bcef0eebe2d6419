// Package httpapi exposes AuthService over HTTP/JSON using a chi router.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Authenticator is the part of services.AuthService the handlers need.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, userID, refreshToken string) (*services.TokenPair, error)
	ValidateAccessToken(token string) (*auth.Claims, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// NewRouter wires the auth routes, the admin lookup and the health check.
func NewRouter(a Authenticator, l logging.Logger, allowedOrigins []string) http.Handler {
	h := &handler{auth: a, logger: l.With("module", "http_api")}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh-token", h.RefreshToken)

			r.With(h.bearerAuth, RequireCapability(auth.CapabilityReadSelf)).Get("/me", h.Me)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.bearerAuth)
			r.Use(RequireCapability(auth.CapabilityReadAnyUser))
			r.Get("/users/{id}", h.GetUser)
		})
	})

	return r
}
