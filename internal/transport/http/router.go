// Package httptransport is the thin HTTP layer over the trading core. It
// delegates to domain services without embedding business logic so transport
// concerns remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"papernet/internal/identity"
	"papernet/internal/platform/middleware"
)

// Deps carries everything the router needs.
type Deps struct {
	Trading   TradingService
	Companies CompanyService
	Resolver  identity.Resolver
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Everything except health and metrics sits
// behind caller authentication.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestClock)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(deps.Resolver, deps.Logger))
		NewTradingHandler(deps.Trading, deps.Logger).Register(r)
		NewCompanyHandler(deps.Companies, deps.Logger).Register(r)
	})

	return r
}
