package integration

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/allocation"
)

// Hooks wires domain events from operational modules into the project cost
// ledger. Runs after the source transaction commits; duplicate deliveries of
// the same request round are absorbed by the unique source key.
type Hooks struct {
	pool *pgxpool.Pool
}

// NewHooks constructs integration hooks.
func NewHooks(pool *pgxpool.Pool) *Hooks {
	return &Hooks{pool: pool}
}

// HandleAllocationApproved records per-line material cost entries for the
// project once an approval round is committed.
func (h *Hooks) HandleAllocationApproved(ctx context.Context, evt allocation.ApprovalPostedEvent) error {
	if h == nil || h.pool == nil {
		return nil
	}
	if evt.RequestID == 0 {
		return errors.New("integration: request id required")
	}
	for i, line := range evt.Lines {
		if line.Value.Equal(decimal.Zero) {
			continue
		}
		_, err := h.pool.Exec(ctx, `INSERT INTO project_cost_entries
(project_id, item_id, source_request_id, source_line_no, qty, amount, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (source_request_id, source_line_no, posted_at) DO NOTHING`,
			evt.ProjectID, line.ItemID, evt.RequestID, i, line.Qty, line.Value, evt.PostedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
