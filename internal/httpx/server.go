package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Registrar mounts a handler's routes. Admin routes go on the second router,
// which is already gated on the admin role.
type Registrar interface {
	Register(public, admin chi.Router)
}

func NewRouter(handlers ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(Identify)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		admin := api.With(RequireRole(RoleAdmin))
		for _, h := range handlers {
			h.Register(api, admin)
		}
	})
	return r
}
