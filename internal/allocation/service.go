package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error)
}

// GodownLedgerPort applies aggregate deltas outside the primary transaction.
type GodownLedgerPort interface {
	ApplyGodownDeltas(ctx context.Context, deltas []stock.GodownDelta) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalHistoryPort persists and lists approval history entries.
type ApprovalHistoryPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

const approvalModule = "ALLOCATION"

// IdempotencyPort refuses duplicate submissions of one approval round.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// StockCachePort invalidates cached stock summaries after movements.
type StockCachePort interface {
	InvalidateItem(ctx context.Context, itemID int64) error
}

// ReconcileScheduler enqueues godown aggregate reconciliation.
type ReconcileScheduler interface {
	EnqueueGodownReconcile(ctx context.Context, itemID, godownID int64) error
}

// MetricsPort counts approval outcomes and tolerated sync failures.
type MetricsPort interface {
	ApprovalProcessed(status string)
	GodownSyncFailure()
}

// Service orchestrates allocation approvals. One Approve or Reject call is
// one synchronous unit of work on one transaction: any failure before commit
// leaves no partial state.
type Service struct {
	repo        RepositoryPort
	godowns     GodownLedgerPort
	approvals   ApprovalHistoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       StockCachePort
	scheduler   ReconcileScheduler
	integration IntegrationHandler
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// Deps groups the orchestrator's collaborators. Only Repo is mandatory;
// the rest degrade to no-ops when absent.
type Deps struct {
	Repo        RepositoryPort
	Godowns     GodownLedgerPort
	Approvals   ApprovalHistoryPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       StockCachePort
	Scheduler   ReconcileScheduler
	Integration IntegrationHandler
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		godowns:     deps.Godowns,
		approvals:   deps.Approvals,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		scheduler:   deps.Scheduler,
		integration: deps.Integration,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// GetRequestDetail resolves the request with joined metadata. Read-only.
func (s *Service) GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error) {
	if requestID == 0 {
		return RequestDetail{}, ErrNotFound
	}
	return s.repo.GetRequestDetail(ctx, requestID)
}

// ApprovalHistory lists the decision trail recorded for the request.
func (s *Service) ApprovalHistory(ctx context.Context, requestID int64) ([]shared.ApprovalLog, error) {
	detail, err := s.repo.GetRequestDetail(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, approvalModule, detail.Ref)
}

// Approve applies one approval round. Decisions are processed in caller
// order; batch draws within one item are strictly FIFO by purchase date.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (ApproveResult, error) {
	if input.ApproverID == 0 {
		return ApproveResult{}, ErrApproverRequired
	}
	if len(input.Decisions) == 0 {
		return ApproveResult{}, ErrEmptyDecisions
	}
	for _, d := range input.Decisions {
		if d.ApprovedQty < 0 {
			return ApproveResult{}, fmt.Errorf("%w: item %d", ErrNegativeQuantity, d.RequestItemID)
		}
	}

	var key string
	insertedKey := false

	var (
		result       ApproveResult
		req          Request
		godownDeltas []stock.GodownDelta
		eventLines   []ApprovalPostedLine
		touchedItems []int64
	)
	now := s.now().UTC()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequestForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if !req.Status.approvable() {
			return fmt.Errorf("%w: request %d is %s", ErrTerminalStatus, req.ID, req.Status)
		}

		items, err := tx.ListRequestItems(ctx, req.ID)
		if err != nil {
			return err
		}

		// The fingerprint covers each line's already-approved quantity, so a
		// double-submit of this round conflicts while a later round granting
		// the same quantities again reads as a new decision.
		if s.idempotency != nil {
			key = approvalKey(input, items)
			if err := s.idempotency.CheckAndInsert(ctx, key, "allocation"); err != nil {
				return err
			}
			insertedKey = true
		}

		byID := make(map[int64]int, len(items))
		for i, item := range items {
			byID[item.ID] = i
		}

		total := decimal.Zero
		lines := make([]LineResult, 0, len(input.Decisions))

		for _, decision := range input.Decisions {
			idx, ok := byID[decision.RequestItemID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrLineNotFound, decision.RequestItemID)
			}
			line := items[idx]

			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}

			qty := decision.ApprovedQty
			if qty > item.StockQty+qtyEpsilon {
				return &InsufficientStockError{
					ItemID:    item.ID,
					ItemName:  item.Name,
					Requested: qty,
					Available: item.StockQty,
				}
			}

			cumulative := line.ApprovedQty + qty
			pending := line.RequestedQty - cumulative
			if pending < qtyEpsilon {
				pending = 0
			}

			lineResult := LineResult{
				RequestItemID:     line.ID,
				ItemID:            item.ID,
				ItemName:          item.Name,
				RequestedQty:      line.RequestedQty,
				ApprovedThisRound: qty,
				Value:             decimal.Zero,
			}

			if qty > qtyEpsilon {
				batches, err := tx.ListOpenBatchesForUpdate(ctx, line.ItemID)
				if err != nil {
					return err
				}
				plan := stock.PlanFIFO(batches, qty)
				if plan.Shortfall > qtyEpsilon {
					return fmt.Errorf("%w: item %d short %.3f", stock.ErrBatchShortfall, item.ID, plan.Shortfall)
				}

				for _, draw := range plan.Draws {
					if err := tx.DecrementBatch(ctx, draw.BatchID, draw.Qty); err != nil {
						return err
					}
					godownDeltas = appendDelta(godownDeltas, stock.GodownDelta{
						GodownID: draw.GodownID,
						ItemID:   item.ID,
						Qty:      -draw.Qty,
					})
					if err := tx.UpsertProjectAllocation(ctx, ProjectAllocation{
						ProjectID:    req.ProjectID,
						ItemID:       item.ID,
						BatchID:      draw.BatchID,
						GodownID:     draw.GodownID,
						Qty:          draw.Qty,
						RemainingQty: draw.Qty,
						UnitPrice:    draw.UnitPrice,
						TotalPrice:   decimal.NewFromFloat(draw.Qty).Mul(draw.UnitPrice),
					}); err != nil {
						return err
					}
					lineResult.Draws = append(lineResult.Draws, DrawResult{
						BatchID:   draw.BatchID,
						GodownID:  draw.GodownID,
						Qty:       draw.Qty,
						UnitPrice: draw.UnitPrice,
					})
				}

				if err := tx.AdjustItemStock(ctx, item.ID, qty, stock.DirectionOutward); err != nil {
					return err
				}

				refNo := referenceNo(req.ProjectID, req.ID)
				remarks := decision.Notes
				if remarks == "" {
					remarks = input.Notes
				}
				// One record per approved line per round, not one per batch.
				txnID, err := tx.InsertTransactionRecord(ctx, TransactionRecord{
					CompanyID:   item.CompanyID,
					GodownID:    plan.Draws[0].GodownID,
					ItemID:      item.ID,
					ProductID:   line.ProductID,
					Type:        TransactionOutward,
					Qty:         qty,
					Unit:        item.Unit,
					ReferenceNo: refNo,
					Remarks:     remarks,
					ApprovedBy:  input.ApproverID,
					RequestedBy: req.RequestedBy,
				})
				if err != nil {
					return err
				}

				lineResult.TransactionID = txnID
				lineResult.ReferenceNo = refNo
				lineResult.Value = plan.Value()
				total = total.Add(lineResult.Value)
				eventLines = append(eventLines, ApprovalPostedLine{ItemID: item.ID, Qty: qty, Value: lineResult.Value})
				touchedItems = append(touchedItems, item.ID)
			}

			line.ApprovedQty = cumulative
			line.PendingQty = pending
			line.Status = lineStatus(line.RequestedQty, cumulative)
			if line.Status == StatusRejected {
				// Rejected is terminal for the line; nothing stays pending
				// on it, so the request can still close this round.
				line.PendingQty = 0
			}
			if decision.Notes != "" {
				line.Notes = decision.Notes
			}
			if err := tx.UpdateRequestItem(ctx, line); err != nil {
				return err
			}
			items[idx] = line

			lineResult.ApprovedQty = line.ApprovedQty
			lineResult.PendingQty = line.PendingQty
			lineResult.Status = line.Status
			lines = append(lines, lineResult)
		}

		overall, hasPending := requestStatus(items)
		req.Status = overall
		req.ApprovedBy = input.ApproverID
		req.ApprovedAt = now
		req.HasPendingItems = hasPending
		if input.Notes != "" {
			req.Notes = input.Notes
		}
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}

		result = ApproveResult{
			RequestID:       req.ID,
			Status:          overall,
			HasPendingItems: hasPending,
			TotalValue:      total,
			Lines:           lines,
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return ApproveResult{}, err
	}

	s.syncGodownAggregates(ctx, godownDeltas)
	s.afterApproval(ctx, req, input.ApproverID, shared.ApprovalApprove, input.Notes, touchedItems)
	if s.metrics != nil {
		s.metrics.ApprovalProcessed(string(result.Status))
	}
	if s.integration != nil {
		evt := ApprovalPostedEvent{
			RequestID:  req.ID,
			ProjectID:  req.ProjectID,
			Status:     result.Status,
			TotalValue: result.TotalValue,
			PostedAt:   now,
			Lines:      eventLines,
		}
		if err := s.integration.HandleAllocationApproved(ctx, evt); err != nil {
			// The primary transaction is committed; integration is retried
			// downstream, never rolled back here.
			s.logger.Warn("allocation integration failed",
				slog.Int64("request_id", req.ID), slog.Any("error", err))
		}
	}
	return result, nil
}

// Reject terminates the request. No stock movement occurs and a rejected
// request cannot be reopened.
func (s *Service) Reject(ctx context.Context, input RejectInput) (RejectResult, error) {
	if input.ApproverID == 0 {
		return RejectResult{}, ErrApproverRequired
	}
	if strings.TrimSpace(input.Reason) == "" {
		return RejectResult{}, ErrReasonRequired
	}

	var req Request
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequestForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if !req.Status.approvable() {
			return fmt.Errorf("%w: request %d is %s", ErrTerminalStatus, req.ID, req.Status)
		}
		items, err := tx.ListRequestItems(ctx, req.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			item.Status = StatusRejected
			item.PendingQty = 0
			if err := tx.UpdateRequestItem(ctx, item); err != nil {
				return err
			}
		}
		req.Status = StatusRejected
		req.ApprovedBy = input.ApproverID
		req.ApprovedAt = now
		req.HasPendingItems = false
		req.Notes = input.Reason
		return tx.UpdateRequest(ctx, req)
	})
	if err != nil {
		return RejectResult{}, err
	}

	s.afterApproval(ctx, req, input.ApproverID, shared.ApprovalReject, input.Reason, nil)
	if s.metrics != nil {
		s.metrics.ApprovalProcessed(string(StatusRejected))
	}
	return RejectResult{RequestID: req.ID, Status: StatusRejected, Reason: input.Reason}, nil
}

// syncGodownAggregates applies secondary-cache deltas after commit. Failures
// are logged and tolerated: batch rows are ground truth and the worker
// reconciles the aggregate.
func (s *Service) syncGodownAggregates(ctx context.Context, deltas []stock.GodownDelta) {
	if len(deltas) == 0 || s.godowns == nil {
		return
	}
	if err := s.godowns.ApplyGodownDeltas(ctx, deltas); err != nil {
		s.logger.Warn("godown aggregate update failed, scheduling reconcile", slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.GodownSyncFailure()
		}
		if s.scheduler != nil {
			for _, d := range deltas {
				if err := s.scheduler.EnqueueGodownReconcile(ctx, d.ItemID, d.GodownID); err != nil {
					s.logger.Error("enqueue godown reconcile",
						slog.Int64("item_id", d.ItemID),
						slog.Int64("godown_id", d.GodownID),
						slog.Any("error", err))
				}
			}
		}
	}
}

func (s *Service) afterApproval(ctx context.Context, req Request, actorID int64, action shared.ApprovalAction, note string, touchedItems []int64) {
	if s.cache != nil {
		for _, itemID := range touchedItems {
			if err := s.cache.InvalidateItem(ctx, itemID); err != nil {
				s.logger.Warn("invalidate stock cache", slog.Int64("item_id", itemID), slog.Any("error", err))
			}
		}
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   req.Ref,
			ActorID: actorID,
			Action:  action,
			Note:    note,
			At:      s.now().UTC(),
		})
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("allocation:%s", action),
			Entity:   "allocation_request",
			EntityID: fmt.Sprintf("%d", req.ID),
			Meta: map[string]any{
				"project_id": req.ProjectID,
				"status":     string(req.Status),
			},
		})
	}
}

func approvalKey(input ApproveInput, items []RequestItem) string {
	prior := make(map[int64]float64, len(items))
	for _, item := range items {
		prior[item.ID] = item.ApprovedQty
	}
	parts := make([]string, 0, len(input.Decisions))
	for _, d := range input.Decisions {
		parts = append(parts, fmt.Sprintf("%d=%.4f@%.4f", d.RequestItemID, d.ApprovedQty, prior[d.RequestItemID]))
	}
	return fmt.Sprintf("allocation:%d:%d:%s", input.RequestID, input.ApproverID, strings.Join(parts, ","))
}

func appendDelta(deltas []stock.GodownDelta, delta stock.GodownDelta) []stock.GodownDelta {
	for i, d := range deltas {
		if d.GodownID == delta.GodownID && d.ItemID == delta.ItemID {
			deltas[i].Qty += delta.Qty
			return deltas
		}
	}
	return append(deltas, delta)
}
