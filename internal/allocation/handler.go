package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type decisionService interface {
	GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error)
	ApprovalHistory(ctx context.Context, requestID int64) ([]shared.ApprovalLog, error)
	Approve(ctx context.Context, input ApproveInput) (ApproveResult, error)
	Reject(ctx context.Context, input RejectInput) (RejectResult, error)
}

// Handler wires HTTP endpoints for the allocation module.
type Handler struct {
	logger    *slog.Logger
	service   decisionService
	validator *validator.Validate
	env       string
}

// NewHandler constructs an allocation handler.
func NewHandler(logger *slog.Logger, service decisionService, env string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		env:       env,
	}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.showRequest)
	r.Get("/{id}/approvals", h.showApprovals)
	r.Post("/{id}/decision", h.handleDecision)
}

type decisionPayload struct {
	Action        string                `json:"action" validate:"required,oneof=approve reject"`
	ApproverID    int64                 `json:"approverId" validate:"required,gt=0"`
	Notes         string                `json:"notes"`
	Reason        string                `json:"reason"`
	ItemApprovals []itemDecisionPayload `json:"itemApprovals" validate:"omitempty,dive"`
}

type itemDecisionPayload struct {
	RequestItemID int64   `json:"requestItemId" validate:"required,gt=0"`
	ApprovedQty   float64 `json:"approvedQty" validate:"gte=0"`
	Notes         string  `json:"notes"`
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request id must be a positive integer")
		return
	}
	detail, err := h.service.GetRequestDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("allocation request %d not found", id))
			return
		}
		h.logger.Error("get allocation request", slog.Int64("request_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", h.detail(err))
		return
	}
	// Approval state changes between rounds; never let intermediaries cache it.
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, newRequestDetailView(detail))
}

type approvalLogView struct {
	ActorID int64     `json:"actorId"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

func (h *Handler) showApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request id must be a positive integer")
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("allocation request %d not found", id))
			return
		}
		h.logger.Error("list approvals", slog.Int64("request_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", h.detail(err))
		return
	}
	views := make([]approvalLogView, 0, len(logs))
	for _, log := range logs {
		views = append(views, approvalLogView{
			ActorID: log.ActorID,
			Action:  string(log.Action),
			Note:    log.Note,
			At:      log.At,
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, map[string]any{"requestId": id, "approvals": views})
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request id must be a positive integer")
		return
	}

	var payload decisionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	switch payload.Action {
	case "approve":
		h.approve(w, r, id, payload)
	case "reject":
		h.reject(w, r, id, payload)
	}
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request, id int64, payload decisionPayload) {
	input := ApproveInput{
		RequestID:  id,
		ApproverID: payload.ApproverID,
		Notes:      payload.Notes,
		Decisions:  make([]Decision, 0, len(payload.ItemApprovals)),
	}
	for _, item := range payload.ItemApprovals {
		input.Decisions = append(input.Decisions, Decision{
			RequestItemID: item.RequestItemID,
			ApprovedQty:   item.ApprovedQty,
			Notes:         item.Notes,
		})
	}

	result, err := h.service.Approve(r.Context(), input)
	if err != nil {
		h.respondDecisionError(w, id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, id int64, payload decisionPayload) {
	result, err := h.service.Reject(r.Context(), RejectInput{
		RequestID:  id,
		ApproverID: payload.ApproverID,
		Reason:     payload.Reason,
	})
	if err != nil {
		h.respondDecisionError(w, id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondDecisionError(w http.ResponseWriter, id int64, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("allocation request %d not found", id))
	case errors.Is(err, ErrTerminalStatus), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrEmptyDecisions),
		errors.Is(err, ErrNegativeQuantity),
		errors.Is(err, ErrLineNotFound),
		errors.Is(err, ErrApproverRequired),
		errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error())
	default:
		h.logger.Error("allocation decision failed", slog.Int64("request_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", h.detail(err))
	}
}

// detail hides internal error text outside development.
func (h *Handler) detail(err error) string {
	if h.env == "production" {
		return ""
	}
	return err.Error()
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
