package renewal

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
	Continue(entryID, handler, reason string) error
	Cancel(entryID, handler, reason string) error
	LogsForEntry(entryID string) ([]*RenewalLog, error)
	AllLogs(limit, offset int) ([]*RenewalLog, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Signer  *auth.ActionTokenSigner
}

func NewHandler(service ServiceAPI, signer *auth.ActionTokenSigner) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		Signer:      signer,
	}
}

type actionDTO struct {
	Reason string `json:"reason,omitempty"`
}

// ContinueRenewal handles an authenticated continue decision.
func (h *Handler) ContinueRenewal(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, ActionContinue)
}

// CancelRenewal handles an authenticated cancel decision.
func (h *Handler) CancelRenewal(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, ActionCancel)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, action string) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entryID := chi.URLParam(r, "id")

	var dto actionDTO
	if r.Body != nil {
		// Body is optional for decisions; a bare POST means no reason.
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}

	var err error
	switch action {
	case ActionContinue:
		err = h.Service.Continue(entryID, caller.Name, dto.Reason)
	case ActionCancel:
		err = h.Service.Cancel(entryID, caller.Name, dto.Reason)
	}
	if err != nil {
		h.Logger.Error("renewal decision failed", "error", err, "entry_id", entryID, "action", action)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": action})
}

// TokenAction resolves a signed action link from a reminder email. The
// token pins entry, action, handler and the cycle's renewal date, so a
// stale link for an already-advanced cycle fails the gate naturally.
func (h *Handler) TokenAction(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.WriteError(w, http.StatusBadRequest, "missing token")
		return
	}

	claims, err := h.Signer.Validate(tokenString)
	if err != nil {
		h.Logger.Warn("invalid action token", "error", err)
		h.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	switch claims.Action {
	case ActionContinue:
		err = h.Service.Continue(claims.EntryID, claims.Handler, "continued via email link")
	case ActionCancel:
		err = h.Service.Cancel(claims.EntryID, claims.Handler, "cancelled via email link")
	default:
		h.WriteError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		h.Logger.Error("token action failed", "error", err, "entry_id", claims.EntryID, "action", claims.Action)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   claims.Action,
		"entry_id": claims.EntryID,
	})
}

// EntryLogs returns the audit trail of one entry.
func (h *Handler) EntryLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entryID := chi.URLParam(r, "id")
	logs, err := h.Service.LogsForEntry(entryID)
	if err != nil {
		h.Logger.Error("EntryLogs: service error", "error", err, "entry_id", entryID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

// AllLogs returns the audit trail across entries.
func (h *Handler) AllLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	logs, err := h.Service.AllLogs(limit, offset)
	if err != nil {
		h.Logger.Error("AllLogs: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list renewal logs")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}
