package user

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/transport"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Repo Repository
}

func NewHandler(repo Repository) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Repo:        repo,
	}
}

// GetCurrentUser returns the account behind the authenticated request.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.Repo.GetByID(caller.ID)
	if err != nil {
		h.Logger.Error("GetCurrentUser: lookup failed", "error", err, "user_id", caller.ID)
		h.WriteError(w, http.StatusNotFound, "user not found")
		return
	}

	h.WriteJSON(w, http.StatusOK, account)
}

// ListUsers returns every account; route access is restricted to
// managing roles.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Repo.GetAll()
	if err != nil {
		h.Logger.Error("ListUsers: lookup failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	h.WriteJSON(w, http.StatusOK, users)
}
