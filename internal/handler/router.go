package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/orderdesk-system/internal/metrics"
	custommiddleware "github.com/mmeshcher/orderdesk-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса приёма заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.identity.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/stats", h.Stats)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.SubmitOrder)
			r.Get("/", h.ListOrders)
			r.Get("/export", h.ExportOrders)
			r.Get("/my", h.ListMyOrders)

			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}/status", h.UpdateStatus)
			r.Delete("/{id}", h.DeleteOrder)
		})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}
