package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/servimarket-system/internal/middleware"
	"github.com/mmeshcher/servimarket-system/internal/model"
)

// pathParam извлекает параметр пути из маршрута chi.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// SetupRouter настраивает HTTP-маршруты и middleware маркетплейса услуг.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.ListServices)
				r.With(custommiddleware.RequireRole(model.RoleRequester)).Post("/", h.CreateService)

				r.Route("/{serviceID}", func(r chi.Router) {
					r.Get("/", h.GetService)
					r.Get("/quotes", h.ListQuotes)

					r.Group(func(r chi.Router) {
						r.Use(custommiddleware.RequireRole(model.RoleServiceProvider))

						r.Post("/quotes", h.SubmitQuote)
						r.Put("/quotes/{quoteID}", h.EditQuote)
						r.Delete("/quotes/{quoteID}", h.WithdrawQuote)
					})

					r.Group(func(r chi.Router) {
						r.Use(custommiddleware.RequireRole(model.RoleRequester))

						r.Post("/evaluation", h.BeginEvaluation)
						r.Post("/selection", h.SelectQuote)
						r.Post("/completion", h.CompleteService)
					})
				})
			})

			r.Route("/supplies", func(r chi.Router) {
				r.Get("/", h.ListSupplies)
				r.With(custommiddleware.RequireRole(model.RoleSupplyProvider)).Post("/", h.CreateSupply)
			})

			r.Get("/providers/{providerID}", h.GetProvider)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
