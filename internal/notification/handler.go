package notification

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/transport"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// ListMine returns the caller's notifications, newest first.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	notifications, err := h.Service.ListForUser(caller.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListMine: lookup failed", "error", err, "user_id", caller.ID)
		h.WriteError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	h.WriteJSON(w, http.StatusOK, notifications)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Service.MarkRead(id); err != nil {
		h.Logger.Error("MarkRead: update failed", "error", err, "notification_id", id)
		h.WriteError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
