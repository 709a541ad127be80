/*
server.go - Route table and middleware

PURPOSE:
  Builds the chi router for the back-office API: request logging, panic
  recovery, CORS for the front office, and the resource routes.

ROUTES:
  /api/customers, /api/agents, /api/partners   entity CRUD
  /api/transactions/{kind}                     payments, receipts, refunds,
                                               wallet transfers
  /api/tickets, /api/services                  bookings with /cancel actions
  /api/company/{mode}/balance|ledger           company account reads
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/agency-ledger/engine"
)

// NewRouter builds the API router. allowedOrigins configures CORS; empty
// means same-origin only.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		entityRoutes(r, "/customers", h, engine.KindCustomer)
		entityRoutes(r, "/agents", h, engine.KindAgent)
		entityRoutes(r, "/partners", h, engine.KindPartner)

		r.Route("/transactions/{kind}", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", h.ListTickets)
			r.Post("/", h.BookTicket)
			r.Get("/{id}", h.GetTicket)
			r.Patch("/{id}", h.UpdateTicket)
			r.Post("/{id}/cancel", h.CancelTicket)
			r.Delete("/{id}", h.DeleteTicket)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Post("/", h.BookService)
			r.Get("/{id}", h.GetService)
			r.Patch("/{id}", h.UpdateService)
			r.Post("/{id}/cancel", h.CancelService)
			r.Delete("/{id}", h.DeleteService)
		})

		r.Route("/company/{mode}", func(r chi.Router) {
			r.Get("/balance", h.CompanyBalance)
			r.Get("/ledger", h.CompanyLedger)
		})
	})

	return r
}

func entityRoutes(r chi.Router, path string, h *Handler, kind engine.Kind) {
	r.Route(path, func(r chi.Router) {
		r.Get("/", h.ListEntities(kind))
		r.Post("/", h.CreateEntity(kind))
		r.Patch("/{id}", h.UpdateEntity(kind))
		r.Delete("/{id}", h.DeleteEntity(kind))
	})
}
