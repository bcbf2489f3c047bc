package allocation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalPostedLine carries per-line movement values for integration mapping.
type ApprovalPostedLine struct {
	ItemID int64
	Qty    float64
	Value  decimal.Decimal
}

// ApprovalPostedEvent captures a committed approval round for downstream
// ledger consumers.
type ApprovalPostedEvent struct {
	RequestID  int64
	ProjectID  int64
	Status     Status
	TotalValue decimal.Decimal
	PostedAt   time.Time
	Lines      []ApprovalPostedLine
}

// IntegrationHandler receives allocation events for financial integration.
type IntegrationHandler interface {
	HandleAllocationApproved(ctx context.Context, evt ApprovalPostedEvent) error
}
