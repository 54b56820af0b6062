package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/cardspend/internal/bulkimport"
	"github.com/frahmantamala/cardspend/internal/card"
	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/notification"
	"github.com/frahmantamala/cardspend/internal/renewal"
	"github.com/frahmantamala/cardspend/internal/transport/middleware"
	"github.com/frahmantamala/cardspend/internal/user"
)

// RegisterAllRoutes wires the HTTP surface. Identity comes from the
// gateway via headers; only the renewal token action is public, since
// its JWT carries its own proof.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	users user.Repository,
	userHandler *user.Handler,
	entryHandler *entry.Handler,
	cardHandler *card.Handler,
	renewalHandler *renewal.Handler,
	importHandler *bulkimport.Handler,
	notificationHandler *notification.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Email action links land here with only a token.
		if renewalHandler != nil {
			r.Get("/renewals/action", renewalHandler.TokenAction)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.UserContext(users))

			if userHandler != nil {
				pr.Get("/users/me", userHandler.GetCurrentUser)
				pr.Group(func(mr chi.Router) {
					mr.Use(middleware.RequireRoles(user.RoleSuperAdmin, user.RoleMISManager))
					mr.Get("/users", userHandler.ListUsers)
				})
			}

			if entryHandler != nil {
				pr.Route("/entries", func(er chi.Router) {
					er.Post("/", entryHandler.CreateEntry)
					er.Get("/", entryHandler.ListEntries)
					er.Get("/{id}", entryHandler.GetEntry)
					er.Patch("/{id}", entryHandler.UpdateEntry)

					er.Group(func(mr chi.Router) {
						mr.Use(middleware.RequireRoles(user.RoleSuperAdmin, user.RoleMISManager))
						mr.Delete("/{id}", entryHandler.DeleteEntry)
						mr.Post("/bulk-delete", entryHandler.BulkDeleteEntries)
					})
				})
			}

			if cardHandler != nil {
				pr.Route("/cards", func(cr chi.Router) {
					cr.Get("/", cardHandler.ListCards)
					cr.Group(func(mr chi.Router) {
						mr.Use(middleware.RequireRoles(user.RoleSuperAdmin, user.RoleMISManager))
						mr.Post("/", cardHandler.RegisterCard)
					})
				})
			}

			if renewalHandler != nil {
				pr.Route("/renewals", func(rr chi.Router) {
					rr.Post("/{id}/continue", renewalHandler.ContinueRenewal)
					rr.Post("/{id}/cancel", renewalHandler.CancelRenewal)
					rr.Get("/{id}/logs", renewalHandler.EntryLogs)

					rr.Group(func(mr chi.Router) {
						mr.Use(middleware.RequireRoles(user.RoleSuperAdmin, user.RoleMISManager))
						mr.Get("/logs", renewalHandler.AllLogs)
					})
				})
			}

			if importHandler != nil {
				pr.Route("/imports", func(ir chi.Router) {
					ir.Get("/template", importHandler.DownloadTemplate)
					ir.Get("/export", importHandler.Export)
					ir.Group(func(mr chi.Router) {
						mr.Use(middleware.RequireRoles(user.RoleSuperAdmin, user.RoleMISManager))
						mr.Post("/", importHandler.Upload)
					})
				})
			}

			if notificationHandler != nil {
				pr.Route("/notifications", func(nr chi.Router) {
					nr.Get("/", notificationHandler.ListMine)
					nr.Patch("/{id}/read", notificationHandler.MarkRead)
				})
			}
		})
	})
}
