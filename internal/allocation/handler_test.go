package allocation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type stubService struct {
	detail     RequestDetail
	detailErr  error
	history    []shared.ApprovalLog
	historyErr error
	approveIn  ApproveInput
	approveOut ApproveResult
	approveErr error
	rejectIn   RejectInput
	rejectOut  RejectResult
	rejectErr  error
}

func (s *stubService) GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error) {
	if s.detailErr != nil {
		return RequestDetail{}, s.detailErr
	}
	return s.detail, nil
}

func (s *stubService) ApprovalHistory(ctx context.Context, requestID int64) ([]shared.ApprovalLog, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.history, nil
}

func (s *stubService) Approve(ctx context.Context, input ApproveInput) (ApproveResult, error) {
	s.approveIn = input
	if s.approveErr != nil {
		return ApproveResult{}, s.approveErr
	}
	return s.approveOut, nil
}

func (s *stubService) Reject(ctx context.Context, input RejectInput) (RejectResult, error) {
	s.rejectIn = input
	if s.rejectErr != nil {
		return RejectResult{}, s.rejectErr
	}
	return s.rejectOut, nil
}

func newTestRouter(svc *stubService) chi.Router {
	handler := NewHandler(nil, svc, "test")
	r := chi.NewRouter()
	r.Route("/allocations", handler.MountRoutes)
	return r
}

func TestShowRequest(t *testing.T) {
	svc := &stubService{detail: RequestDetail{
		Request: Request{
			ID:          40,
			Ref:         uuid.New(),
			ProjectID:   12,
			RequestedBy: 7,
			Status:      StatusPending,
			CreatedAt:   time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		},
		ProjectName: "Riverside Tower",
		Items: []RequestItemDetail{
			{RequestItem: RequestItem{ID: 100, ItemID: 1, RequestedQty: 8, PendingQty: 8, Status: StatusPending}, ItemName: "Cement", Unit: "bag"},
		},
	}}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocations/40", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		ID          int64  `json:"id"`
		ProjectName string `json:"projectName"`
		Status      string `json:"status"`
		Items       []struct {
			ItemName   string  `json:"itemName"`
			PendingQty float64 `json:"pendingQty"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(40), body.ID)
	require.Equal(t, "Riverside Tower", body.ProjectName)
	require.Equal(t, "PENDING", body.Status)
	require.Len(t, body.Items, 1)
	require.Equal(t, "Cement", body.Items[0].ItemName)
	require.InDelta(t, 8, body.Items[0].PendingQty, 0.0001)
}

func TestShowRequestNotFound(t *testing.T) {
	router := newTestRouter(&stubService{detailErr: ErrNotFound})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocations/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestShowRequestBadID(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocations/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShowApprovals(t *testing.T) {
	svc := &stubService{history: []shared.ApprovalLog{
		{ActorID: 9, Action: shared.ApprovalApprove, Note: "first round", At: time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)},
	}}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocations/40/approvals", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RequestID int64 `json:"requestId"`
		Approvals []struct {
			ActorID int64  `json:"actorId"`
			Action  string `json:"action"`
			Note    string `json:"note"`
		} `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(40), body.RequestID)
	require.Len(t, body.Approvals, 1)
	require.Equal(t, "APPROVE", body.Approvals[0].Action)
	require.Equal(t, "first round", body.Approvals[0].Note)
}

func TestDecisionApprove(t *testing.T) {
	svc := &stubService{approveOut: ApproveResult{
		RequestID:  40,
		Status:     StatusApproved,
		TotalValue: decimal.NewFromInt(1010),
	}}
	router := newTestRouter(svc)

	payload := `{"action":"approve","approverId":9,"notes":"ok","itemApprovals":[{"requestItemId":100,"approvedQty":8}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/allocations/40/decision", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(40), svc.approveIn.RequestID)
	require.Equal(t, int64(9), svc.approveIn.ApproverID)
	require.Len(t, svc.approveIn.Decisions, 1)
	require.InDelta(t, 8, svc.approveIn.Decisions[0].ApprovedQty, 0.0001)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "APPROVED", body["status"])
}

func TestDecisionReject(t *testing.T) {
	svc := &stubService{rejectOut: RejectResult{RequestID: 40, Status: StatusRejected, Reason: "over budget"}}
	router := newTestRouter(svc)

	payload := `{"action":"reject","approverId":9,"reason":"over budget"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/allocations/40/decision", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "over budget", svc.rejectIn.Reason)
}

func TestDecisionValidation(t *testing.T) {
	router := newTestRouter(&stubService{})

	cases := []string{
		`{"approverId":9}`,
		`{"action":"escalate","approverId":9}`,
		`{"action":"approve"}`,
		`{"action":"approve","approverId":9,"itemApprovals":[{"requestItemId":0,"approvedQty":1}]}`,
		`{"action":"approve","approverId":9,"itemApprovals":[{"requestItemId":100,"approvedQty":-2}]}`,
	}
	for _, payload := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/allocations/40/decision", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}

func TestDecisionErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrTerminalStatus, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{ErrLineNotFound, http.StatusBadRequest},
		{&InsufficientStockError{ItemID: 2, ItemName: "Sand", Requested: 9, Available: 4}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		router := newTestRouter(&stubService{approveErr: tc.err})
		rec := httptest.NewRecorder()
		payload := `{"action":"approve","approverId":9,"itemApprovals":[{"requestItemId":100,"approvedQty":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/allocations/40/decision", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		require.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}
