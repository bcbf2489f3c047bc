package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is shared by requests and their line items.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
)

// approvable reports whether an approval round may still run against the status.
func (s Status) approvable() bool {
	return s == StatusPending || s == StatusPartiallyApproved
}

// Request is a project's material allocation request. Created by the request
// step elsewhere; only the approval orchestrator mutates it, and it is never
// deleted.
type Request struct {
	ID              int64
	Ref             uuid.UUID
	CompanyID       int64
	ProjectID       int64
	RequestedBy     int64
	Status          Status
	ApprovedBy      int64
	ApprovedAt      time.Time
	HasPendingItems bool
	Notes           string
	CreatedAt       time.Time
}

// RequestItem is one requested line. ApprovedQty accumulates across approval
// rounds; once a line has been touched, ApprovedQty + PendingQty equals
// RequestedQty and PendingQty of zero is terminal for the line.
type RequestItem struct {
	ID           int64
	RequestID    int64
	ItemID       int64
	ProductID    int64
	RequestedQty float64
	ApprovedQty  float64
	PendingQty   float64
	Status       Status
	Notes        string
}

// ProjectAllocation records how much of one batch ended up assigned to one
// project. Keyed by (project, item, batch); repeated approvals against the
// same key increment the existing row.
type ProjectAllocation struct {
	ID           int64
	ProjectID    int64
	ItemID       int64
	BatchID      int64
	GodownID     int64
	Qty          float64
	RemainingQty float64
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	UpdatedAt    time.Time
}

// TransactionType enumerates ledger movement kinds.
type TransactionType string

const (
	// TransactionOutward marks stock issued to a project.
	TransactionOutward TransactionType = "OUTWARD"
)

// TransactionRecord is a write-once ledger entry describing the net movement
// of one approved line per round. ProductID is nullable (zero) when the line
// has no purchase-product reference.
type TransactionRecord struct {
	ID          int64
	CompanyID   int64
	GodownID    int64
	ItemID      int64
	ProductID   int64
	Type        TransactionType
	Qty         float64
	Unit        string
	ReferenceNo string
	Remarks     string
	ApprovedBy  int64
	RequestedBy int64
	CreatedAt   time.Time
}

// Domain errors.
var (
	// ErrNotFound indicates the allocation request was not found.
	ErrNotFound = errors.New("allocation request not found")
	// ErrTerminalStatus indicates the request is already fully approved or rejected.
	ErrTerminalStatus = errors.New("allocation request already finalised")
	// ErrEmptyDecisions indicates an approve call without item decisions.
	ErrEmptyDecisions = errors.New("at least one item decision is required")
	// ErrNegativeQuantity indicates an approved quantity below zero.
	ErrNegativeQuantity = errors.New("approved quantity must not be negative")
	// ErrLineNotFound indicates a decision referencing an unknown request item.
	ErrLineNotFound = errors.New("request item not found")
	// ErrApproverRequired indicates a missing approver identity.
	ErrApproverRequired = errors.New("approver is required")
	// ErrReasonRequired indicates a reject call without a reason.
	ErrReasonRequired = errors.New("rejection reason is required")
)

// InsufficientStockError names the offending item and the available versus
// requested quantities, per the stock-integrity abort contract.
type InsufficientStockError struct {
	ItemID    int64
	ItemName  string
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d (%s): requested %.3f, available %.3f",
		e.ItemID, e.ItemName, e.Requested, e.Available)
}

const qtyEpsilon = 1e-4

// lineStatus derives a line's status from its cumulative approved quantity.
func lineStatus(requestedQty, cumulativeApproved float64) Status {
	switch {
	case cumulativeApproved <= qtyEpsilon:
		return StatusRejected
	case cumulativeApproved >= requestedQty-qtyEpsilon:
		return StatusApproved
	default:
		return StatusPartiallyApproved
	}
}

// requestStatus derives the overall status after a round: any surviving
// pending quantity keeps the request partially approved, and a request whose
// every line ended rejected is rejected as a whole.
func requestStatus(items []RequestItem) (Status, bool) {
	pending := false
	anyApproved := false
	for _, item := range items {
		if item.PendingQty > qtyEpsilon {
			pending = true
		}
		if item.ApprovedQty > qtyEpsilon {
			anyApproved = true
		}
	}
	if pending {
		return StatusPartiallyApproved, true
	}
	if !anyApproved {
		return StatusRejected, false
	}
	return StatusApproved, false
}

// referenceNo encodes project and request for traceability.
func referenceNo(projectID, requestID int64) string {
	return fmt.Sprintf("ALO/P%d/R%d", projectID, requestID)
}
