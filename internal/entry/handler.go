package entry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/transport"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

type ServiceAPI interface {
	CreateEntry(actor Actor, dto CreateEntryDTO) (*Entry, error)
	GetEntry(id string) (*Entry, error)
	ListEntries(actor Actor, query ListQuery) (*ListResult, error)
	UpdateEntry(actor Actor, id string, dto UpdateEntryDTO) (*Entry, error)
	DeleteEntry(actor Actor, id, reason string) error
	BulkDeleteEntries(actor Actor, dto BulkDeleteDTO) (int, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func actorFromRequest(r *http.Request) (Actor, bool) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		return Actor{}, false
	}
	return Actor{
		UserID:       caller.ID,
		Name:         caller.Name,
		Role:         caller.Role,
		BusinessUnit: caller.BusinessUnit,
	}, true
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateEntry: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Service.CreateEntry(actor, dto)
	if err != nil {
		h.Logger.Error("CreateEntry: service error", "error", err, "user_id", actor.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromRequest(r); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	found, err := h.Service.GetEntry(id)
	if err != nil {
		h.Logger.Error("GetEntry: service error", "error", err, "entry_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, found)
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	query := ListQuery{
		BusinessUnit:    q.Get("business_unit"),
		CostCenter:      q.Get("cost_center"),
		Status:          q.Get("status"),
		EntryStatus:     q.Get("entry_status"),
		Month:           q.Get("month"),
		CardNumber:      q.Get("card_number"),
		ServiceHandler:  q.Get("service_handler"),
		Search:          q.Get("search"),
		DuplicateFilter: q.Get("duplicate_status"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			query.Limit = l
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			query.Offset = o
		}
	}

	result, err := h.Service.ListEntries(actor, query)
	if err != nil {
		h.Logger.Error("ListEntries: service error", "error", err, "user_id", actor.UserID)
		h.WriteError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")

	var dto UpdateEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateEntry: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Service.UpdateEntry(actor, id, dto)
	if err != nil {
		h.Logger.Error("UpdateEntry: service error", "error", err, "entry_id", id, "user_id", actor.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	reason := r.URL.Query().Get("reason")

	if err := h.Service.DeleteEntry(actor, id, reason); err != nil {
		h.Logger.Error("DeleteEntry: service error", "error", err, "entry_id", id, "user_id", actor.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) BulkDeleteEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto BulkDeleteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("BulkDeleteEntries: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deleted, err := h.Service.BulkDeleteEntries(actor, dto)
	if err != nil {
		h.Logger.Error("BulkDeleteEntries: service error", "error", err, "user_id", actor.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "deleted",
		"deleted": deleted,
	})
}
