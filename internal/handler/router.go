package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/merchplan-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса мерчендайзинга.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			// Справочники: чтение любому аутентифицированному пользователю.
			r.Get("/stores", h.ListStores)
			r.Get("/stores/{id}", h.GetStore)
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)

			r.Get("/orders", h.ListOrders)
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Patch("/orders/{id}", h.UpdateOrder)

			r.Get("/daily_plans", h.ListPlans)
			r.Get("/daily_plans/{id}", h.GetPlan)
			r.Get("/daily_plans/{id}/stores", h.ListPlanStores)

			r.Post("/route", h.CalculateRoute)
			r.Get("/map/stores", h.ListMapStores)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireManager)

				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Get("/users/{id}", h.GetUser)
				r.Patch("/users/{id}", h.UpdateUser)
				r.Delete("/users/{id}", h.DeleteUser)

				r.Post("/stores", h.CreateStore)
				r.Patch("/stores/{id}", h.UpdateStore)
				r.Delete("/stores/{id}", h.DeleteStore)

				r.Post("/products", h.CreateProduct)
				r.Patch("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)

				r.Delete("/orders/{id}", h.DeleteOrder)

				r.Post("/daily_plans", h.CreatePlan)
				r.Patch("/daily_plans/{id}", h.UpdatePlan)
				r.Delete("/daily_plans/{id}", h.DeletePlan)

				r.Get("/metrics", h.ListStoreMetrics)
				r.Get("/metrics/{id}", h.GetStoreMetric)
				r.Post("/metrics/calculate", h.CalculateMetrics)
				r.Post("/metrics/save", h.SaveMetrics)

				r.Get("/logs", h.ListLogs)
			})
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
