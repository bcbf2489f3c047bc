package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{id}", h.handleItemSummary)
	r.Get("/godowns/{id}", h.handleGodownStocks)
}

func (h *Handler) handleItemSummary(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be a positive integer")
		return
	}
	summary, err := h.service.ItemSummary(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "item not found")
			return
		}
		h.logger.Error("item summary", slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGodownStocks(w http.ResponseWriter, r *http.Request) {
	godownID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || godownID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "godown id must be a positive integer")
		return
	}
	stocks, err := h.service.GodownStocks(r.Context(), godownID)
	if err != nil {
		h.logger.Error("godown stocks", slog.Int64("godown_id", godownID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"godownId": godownID, "stocks": stocks})
}
