package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-notify/internal/transport/http/handler"
	appmiddleware "github.com/go-notify/internal/transport/http/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps holds the router's logger and the readiness checks, keyed by name.
type Deps struct {
	Checks map[string]handler.Checker
	Logger *zap.Logger
}

// NewRouter builds the operational HTTP surface of the worker process.
func NewRouter(deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(log.Named("http")))
	r.Use(chimiddleware.Recoverer)

	// Readiness hits the database and cache; 5 requests/second per caller, burst of 10.
	readyRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Checks)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(readyRL.Limit).Get("/ready", healthH.Ready)
	})
	return r
}
