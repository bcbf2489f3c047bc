package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decision is one per-line approval instruction supplied by the caller.
type Decision struct {
	RequestItemID int64
	ApprovedQty   float64
	Notes         string
}

// ApproveInput carries one approval round for a request.
type ApproveInput struct {
	RequestID  int64
	ApproverID int64
	Notes      string
	Decisions  []Decision
}

// RejectInput terminates a request without stock movement.
type RejectInput struct {
	RequestID  int64
	ApproverID int64
	Reason     string
}

// DrawResult reports one batch consumption inside a line summary.
type DrawResult struct {
	BatchID   int64           `json:"batchId"`
	GodownID  int64           `json:"godownId"`
	Qty       float64         `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineResult is the processed summary for one decided line.
type LineResult struct {
	RequestItemID     int64           `json:"requestItemId"`
	ItemID            int64           `json:"itemId"`
	ItemName          string          `json:"itemName"`
	RequestedQty      float64         `json:"requestedQty"`
	ApprovedThisRound float64         `json:"approvedThisRound"`
	ApprovedQty       float64         `json:"approvedQty"`
	PendingQty        float64         `json:"pendingQty"`
	Status            Status          `json:"status"`
	TransactionID     int64           `json:"transactionId,omitempty"`
	ReferenceNo       string          `json:"referenceNo,omitempty"`
	Value             decimal.Decimal `json:"value"`
	Draws             []DrawResult    `json:"draws,omitempty"`
}

// ApproveResult is the orchestrator's response for one approval round.
type ApproveResult struct {
	RequestID       int64           `json:"requestId"`
	Status          Status          `json:"status"`
	HasPendingItems bool            `json:"hasPendingItems"`
	TotalValue      decimal.Decimal `json:"totalAllocationValue"`
	Lines           []LineResult    `json:"items"`
}

// RejectResult is the response for a terminal rejection.
type RejectResult struct {
	RequestID int64  `json:"requestId"`
	Status    Status `json:"status"`
	Reason    string `json:"reason"`
}

// RequestItemDetail joins a line with item-master metadata for reads.
type RequestItemDetail struct {
	RequestItem
	ItemCode     string
	ItemName     string
	Unit         string
	ItemStockQty float64
}

// RequestDetail joins the request with project/requester metadata and lines.
type RequestDetail struct {
	Request
	ProjectName   string
	RequesterName string
	Items         []RequestItemDetail
}

// requestDetailView shapes RequestDetail for JSON responses.
type requestDetailView struct {
	ID              int64                   `json:"id"`
	Ref             string                  `json:"ref"`
	ProjectID       int64                   `json:"projectId"`
	ProjectName     string                  `json:"projectName"`
	RequestedBy     int64                   `json:"requestedBy"`
	RequesterName   string                  `json:"requesterName"`
	Status          Status                  `json:"status"`
	ApprovedBy      int64                   `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time              `json:"approvedAt,omitempty"`
	HasPendingItems bool                    `json:"hasPendingItems"`
	Notes           string                  `json:"notes,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	Items           []requestItemDetailView `json:"items"`
}

type requestItemDetailView struct {
	ID           int64   `json:"id"`
	ItemID       int64   `json:"itemId"`
	ItemCode     string  `json:"itemCode"`
	ItemName     string  `json:"itemName"`
	Unit         string  `json:"unit"`
	RequestedQty float64 `json:"requestedQty"`
	ApprovedQty  float64 `json:"approvedQty"`
	PendingQty   float64 `json:"pendingQty"`
	Status       Status  `json:"status"`
	StockQty     float64 `json:"currentStockQty"`
	Notes        string  `json:"notes,omitempty"`
}

func newRequestDetailView(detail RequestDetail) requestDetailView {
	view := requestDetailView{
		ID:              detail.ID,
		Ref:             detail.Ref.String(),
		ProjectID:       detail.ProjectID,
		ProjectName:     detail.ProjectName,
		RequestedBy:     detail.RequestedBy,
		RequesterName:   detail.RequesterName,
		Status:          detail.Status,
		ApprovedBy:      detail.ApprovedBy,
		HasPendingItems: detail.HasPendingItems,
		Notes:           detail.Notes,
		CreatedAt:       detail.CreatedAt,
		Items:           make([]requestItemDetailView, 0, len(detail.Items)),
	}
	// approved_at comes back as epoch when the request was never decided.
	if detail.ApprovedAt.Unix() > 0 {
		at := detail.ApprovedAt
		view.ApprovedAt = &at
	}
	for _, item := range detail.Items {
		view.Items = append(view.Items, requestItemDetailView{
			ID:           item.ID,
			ItemID:       item.ItemID,
			ItemCode:     item.ItemCode,
			ItemName:     item.ItemName,
			Unit:         item.Unit,
			RequestedQty: item.RequestedQty,
			ApprovedQty:  item.ApprovedQty,
			PendingQty:   item.PendingQty,
			Status:       item.Status,
			StockQty:     item.ItemStockQty,
			Notes:        item.Notes,
		})
	}
	return view
}
