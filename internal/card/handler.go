package card

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/cardspend/internal/transport"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

type ServiceAPI interface {
	RegisterCard(dto RegisterCardDTO) (*Card, error)
	ListCards() ([]*Card, error)
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

func (h *Handler) RegisterCard(w http.ResponseWriter, r *http.Request) {
	var dto RegisterCardDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RegisterCard: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Service.RegisterCard(dto)
	if err != nil {
		h.Logger.Error("RegisterCard: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Service.ListCards()
	if err != nil {
		h.Logger.Error("ListCards: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}

	h.WriteJSON(w, http.StatusOK, cards)
}
