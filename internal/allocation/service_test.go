package allocation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

type memoryState struct {
	request     Request
	items       []RequestItem
	stockItems  map[int64]stock.Item
	batches     []stock.Batch
	allocations map[[3]int64]ProjectAllocation
	txRecords   []TransactionRecord
	nextTxID    int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		request:     s.request,
		items:       append([]RequestItem(nil), s.items...),
		stockItems:  make(map[int64]stock.Item, len(s.stockItems)),
		batches:     append([]stock.Batch(nil), s.batches...),
		allocations: make(map[[3]int64]ProjectAllocation, len(s.allocations)),
		txRecords:   append([]TransactionRecord(nil), s.txRecords...),
		nextTxID:    s.nextTxID,
	}
	for k, v := range s.stockItems {
		out.stockItems[k] = v
	}
	for k, v := range s.allocations {
		out.allocations[k] = v
	}
	return out
}

type memoryRepo struct {
	state *memoryState
}

type memoryTx struct {
	state *memoryState
}

// WithTx snapshots state and restores it on error, mirroring a rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{state: r.state}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error) {
	if r.state.request.ID != requestID {
		return RequestDetail{}, ErrNotFound
	}
	detail := RequestDetail{Request: r.state.request}
	for _, item := range r.state.items {
		detail.Items = append(detail.Items, RequestItemDetail{RequestItem: item})
	}
	return detail, nil
}

func (tx *memoryTx) GetRequestForUpdate(ctx context.Context, requestID int64) (Request, error) {
	if tx.state.request.ID != requestID {
		return Request{}, ErrNotFound
	}
	return tx.state.request, nil
}

func (tx *memoryTx) ListRequestItems(ctx context.Context, requestID int64) ([]RequestItem, error) {
	return append([]RequestItem(nil), tx.state.items...), nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (stock.Item, error) {
	item, ok := tx.state.stockItems[itemID]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) ListOpenBatchesForUpdate(ctx context.Context, itemID int64) ([]stock.Batch, error) {
	var open []stock.Batch
	for _, b := range tx.state.batches {
		if b.ItemID == itemID && b.QtyRemaining > 0 {
			open = append(open, b)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].PurchasedAt.Equal(open[j].PurchasedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].PurchasedAt.Before(open[j].PurchasedAt)
	})
	return open, nil
}

func (tx *memoryTx) DecrementBatch(ctx context.Context, batchID int64, qty float64) error {
	for i, b := range tx.state.batches {
		if b.ID == batchID {
			if b.QtyRemaining < qty {
				return stock.ErrBatchShortfall
			}
			tx.state.batches[i].QtyRemaining -= qty
			return nil
		}
	}
	return stock.ErrBatchShortfall
}

func (tx *memoryTx) AdjustItemStock(ctx context.Context, itemID int64, qty float64, direction stock.Direction) error {
	item, ok := tx.state.stockItems[itemID]
	if !ok {
		return stock.ErrItemNotFound
	}
	if direction == stock.DirectionInward {
		item.StockQty += qty
	} else {
		if item.StockQty < qty {
			return stock.ErrInsufficientStock
		}
		item.StockQty -= qty
	}
	tx.state.stockItems[itemID] = item
	return nil
}

func (tx *memoryTx) UpsertProjectAllocation(ctx context.Context, alloc ProjectAllocation) error {
	key := [3]int64{alloc.ProjectID, alloc.ItemID, alloc.BatchID}
	if existing, ok := tx.state.allocations[key]; ok {
		existing.Qty += alloc.Qty
		existing.RemainingQty += alloc.RemainingQty
		existing.TotalPrice = decimal.NewFromFloat(existing.Qty).Mul(alloc.UnitPrice)
		tx.state.allocations[key] = existing
		return nil
	}
	tx.state.allocations[key] = alloc
	return nil
}

func (tx *memoryTx) InsertTransactionRecord(ctx context.Context, rec TransactionRecord) (int64, error) {
	tx.state.nextTxID++
	rec.ID = tx.state.nextTxID
	tx.state.txRecords = append(tx.state.txRecords, rec)
	return rec.ID, nil
}

func (tx *memoryTx) UpdateRequestItem(ctx context.Context, item RequestItem) error {
	for i := range tx.state.items {
		if tx.state.items[i].ID == item.ID {
			tx.state.items[i] = item
			return nil
		}
	}
	return ErrLineNotFound
}

func (tx *memoryTx) UpdateRequest(ctx context.Context, req Request) error {
	tx.state.request = req
	return nil
}

type godownRecorder struct {
	deltas []stock.GodownDelta
	err    error
}

func (g *godownRecorder) ApplyGodownDeltas(ctx context.Context, deltas []stock.GodownDelta) error {
	if g.err != nil {
		return g.err
	}
	g.deltas = append(g.deltas, deltas...)
	return nil
}

type cacheRecorder struct {
	invalidated []int64
}

func (c *cacheRecorder) InvalidateItem(ctx context.Context, itemID int64) error {
	c.invalidated = append(c.invalidated, itemID)
	return nil
}

type schedulerRecorder struct {
	enqueued [][2]int64
}

func (s *schedulerRecorder) EnqueueGodownReconcile(ctx context.Context, itemID, godownID int64) error {
	s.enqueued = append(s.enqueued, [2]int64{itemID, godownID})
	return nil
}

type metricsRecorder struct {
	statuses     []string
	syncFailures int
}

func (m *metricsRecorder) ApprovalProcessed(status string) { m.statuses = append(m.statuses, status) }
func (m *metricsRecorder) GodownSyncFailure()              { m.syncFailures++ }

type idempotencyFake struct {
	keys []string
}

func (f *idempotencyFake) CheckAndInsert(ctx context.Context, key, module string) error {
	for _, k := range f.keys {
		if k == key {
			return shared.ErrIdempotencyConflict
		}
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *idempotencyFake) Delete(ctx context.Context, key string) error {
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
	return nil
}

type integrationRecorder struct {
	events []ApprovalPostedEvent
}

func (i *integrationRecorder) HandleAllocationApproved(ctx context.Context, evt ApprovalPostedEvent) error {
	i.events = append(i.events, evt)
	return nil
}

func day(d int) time.Time {
	return time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC)
}

func newTestState() *memoryState {
	return &memoryState{
		request: Request{
			ID:          40,
			Ref:         uuid.New(),
			CompanyID:   1,
			ProjectID:   12,
			RequestedBy: 7,
			Status:      StatusPending,
			CreatedAt:   day(1),
		},
		items: []RequestItem{
			{ID: 100, RequestID: 40, ItemID: 1, RequestedQty: 8, PendingQty: 8, Status: StatusPending},
			{ID: 101, RequestID: 40, ItemID: 2, RequestedQty: 3, PendingQty: 3, Status: StatusPending},
		},
		stockItems: map[int64]stock.Item{
			1: {ID: 1, CompanyID: 1, Code: "CEM-01", Name: "Cement", Unit: "bag", StockQty: 15},
			2: {ID: 2, CompanyID: 1, Code: "SND-01", Name: "Sand", Unit: "cft", StockQty: 4},
		},
		batches: []stock.Batch{
			{ID: 11, ItemID: 1, GodownID: 5, QtyRemaining: 5, UnitPrice: decimal.NewFromInt(100), PurchasedAt: day(1)},
			{ID: 12, ItemID: 1, GodownID: 6, QtyRemaining: 10, UnitPrice: decimal.NewFromInt(120), PurchasedAt: day(3)},
			{ID: 13, ItemID: 2, GodownID: 5, QtyRemaining: 4, UnitPrice: decimal.NewFromInt(50), PurchasedAt: day(2)},
		},
		allocations: make(map[[3]int64]ProjectAllocation),
	}
}

func newTestService(repo *memoryRepo) (*Service, *godownRecorder, *cacheRecorder, *metricsRecorder, *integrationRecorder) {
	godowns := &godownRecorder{}
	cache := &cacheRecorder{}
	metrics := &metricsRecorder{}
	integration := &integrationRecorder{}
	svc := NewService(Deps{
		Repo:        repo,
		Godowns:     godowns,
		Cache:       cache,
		Metrics:     metrics,
		Integration: integration,
	})
	return svc, godowns, cache, metrics, integration
}

func TestApproveFullRequest(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, godowns, cache, metrics, integration := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions: []Decision{
			{RequestItemID: 100, ApprovedQty: 8},
			{RequestItemID: 101, ApprovedQty: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Status)
	require.False(t, result.HasPendingItems)
	require.Len(t, result.Lines, 2)

	// 5@100 + 3@120 for cement, 3@50 for sand.
	require.True(t, result.TotalValue.Equal(decimal.NewFromInt(1010)), result.TotalValue.String())

	cement := result.Lines[0]
	require.Equal(t, StatusApproved, cement.Status)
	require.Len(t, cement.Draws, 2)
	require.Equal(t, int64(11), cement.Draws[0].BatchID)
	require.InDelta(t, 5, cement.Draws[0].Qty, 0.0001)
	require.Equal(t, int64(12), cement.Draws[1].BatchID)
	require.InDelta(t, 3, cement.Draws[1].Qty, 0.0001)
	require.Equal(t, "ALO/P12/R40", cement.ReferenceNo)

	// Batch rows drained oldest first.
	require.InDelta(t, 0, repo.state.batches[0].QtyRemaining, 0.0001)
	require.InDelta(t, 7, repo.state.batches[1].QtyRemaining, 0.0001)
	require.InDelta(t, 1, repo.state.batches[2].QtyRemaining, 0.0001)

	// Item master mirrors the movement.
	require.InDelta(t, 7, repo.state.stockItems[1].StockQty, 0.0001)
	require.InDelta(t, 1, repo.state.stockItems[2].StockQty, 0.0001)

	// One ledger record per approved line.
	require.Len(t, repo.state.txRecords, 2)
	require.Equal(t, TransactionOutward, repo.state.txRecords[0].Type)
	require.Equal(t, int64(9), repo.state.txRecords[0].ApprovedBy)
	require.Equal(t, int64(7), repo.state.txRecords[0].RequestedBy)

	require.Equal(t, StatusApproved, repo.state.request.Status)
	require.Equal(t, int64(9), repo.state.request.ApprovedBy)

	// Aggregates decremented per godown.
	require.Len(t, godowns.deltas, 3)
	require.InDelta(t, -5, godowns.deltas[0].Qty, 0.0001)

	require.ElementsMatch(t, []int64{1, 2}, cache.invalidated)
	require.Equal(t, []string{string(StatusApproved)}, metrics.statuses)

	require.Len(t, integration.events, 1)
	require.Equal(t, int64(12), integration.events[0].ProjectID)
	require.True(t, integration.events[0].TotalValue.Equal(decimal.NewFromInt(1010)))
}

func TestApprovePartialThenRemainder(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, _, _, _, _ := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyApproved, first.Status)
	require.True(t, first.HasPendingItems)
	require.Equal(t, StatusPartiallyApproved, first.Lines[0].Status)
	require.InDelta(t, 3, first.Lines[0].ApprovedQty, 0.0001)
	require.InDelta(t, 5, first.Lines[0].PendingQty, 0.0001)

	second, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions: []Decision{
			{RequestItemID: 100, ApprovedQty: 5},
			{RequestItemID: 101, ApprovedQty: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, second.Status)
	require.InDelta(t, 8, second.Lines[0].ApprovedQty, 0.0001)
	require.InDelta(t, 0, second.Lines[0].PendingQty, 0.0001)

	// Two rounds leave two ledger records for the cement line.
	var cementRecords int
	for _, rec := range repo.state.txRecords {
		if rec.ItemID == 1 {
			cementRecords++
		}
	}
	require.Equal(t, 2, cementRecords)

	// Batch 11 served both rounds; the project ledger accumulated one row.
	alloc, ok := repo.state.allocations[[3]int64{12, 1, 11}]
	require.True(t, ok)
	require.InDelta(t, 5, alloc.Qty, 0.0001)
	require.True(t, alloc.TotalPrice.Equal(decimal.NewFromInt(500)), alloc.TotalPrice.String())
}

func TestApproveInsufficientStockAbortsRound(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, godowns, _, metrics, integration := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions: []Decision{
			{RequestItemID: 100, ApprovedQty: 8},
			{RequestItemID: 101, ApprovedQty: 9},
		},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(2), insufficient.ItemID)
	require.Equal(t, "Sand", insufficient.ItemName)
	require.InDelta(t, 9, insufficient.Requested, 0.0001)
	require.InDelta(t, 4, insufficient.Available, 0.0001)

	// First line's movement rolled back with the round.
	require.InDelta(t, 5, repo.state.batches[0].QtyRemaining, 0.0001)
	require.InDelta(t, 15, repo.state.stockItems[1].StockQty, 0.0001)
	require.Empty(t, repo.state.txRecords)
	require.Equal(t, StatusPending, repo.state.request.Status)
	require.Empty(t, godowns.deltas)
	require.Empty(t, metrics.statuses)
	require.Empty(t, integration.events)
}

func TestApproveZeroQuantityRejectsLine(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, _, _, _, _ := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions: []Decision{
			{RequestItemID: 100, ApprovedQty: 8},
			{RequestItemID: 101, ApprovedQty: 0},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Status)

	sand := result.Lines[1]
	require.Equal(t, StatusRejected, sand.Status)
	require.InDelta(t, 0, sand.ApprovedQty, 0.0001)
	require.InDelta(t, 0, sand.PendingQty, 0.0001)
	require.Empty(t, sand.Draws)

	// No movement for the zero line.
	require.InDelta(t, 4, repo.state.stockItems[2].StockQty, 0.0001)
	require.Len(t, repo.state.txRecords, 1)
}

func TestApproveBatchLedgerShortfall(t *testing.T) {
	state := newTestState()
	// Item master claims more than the batch ledger holds.
	state.stockItems[2] = stock.Item{ID: 2, CompanyID: 1, Name: "Sand", Unit: "cft", StockQty: 20}
	repo := &memoryRepo{state: state}
	svc, _, _, _, _ := newTestService(repo)

	_, err := svc.Approve(context.Background(), ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 101, ApprovedQty: 3}},
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 8}},
	})
	require.NoError(t, err)

	state.items[1].RequestedQty = 10
	state.items[1].PendingQty = 7
	state.request.Status = StatusPartiallyApproved
	_, err = svc.Approve(context.Background(), ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 101, ApprovedQty: 5}},
	})
	require.ErrorIs(t, err, stock.ErrBatchShortfall)
}

func TestApproveValidation(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, _, _, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Approve(ctx, ApproveInput{RequestID: 40, Decisions: []Decision{{RequestItemID: 100, ApprovedQty: 1}}})
	require.ErrorIs(t, err, ErrApproverRequired)

	_, err = svc.Approve(ctx, ApproveInput{RequestID: 40, ApproverID: 9})
	require.ErrorIs(t, err, ErrEmptyDecisions)

	_, err = svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: -1}},
	})
	require.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 999, ApprovedQty: 1}},
	})
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = svc.Approve(ctx, ApproveInput{
		RequestID:  41,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 1}},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRejectIsTerminal(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, _, _, metrics, _ := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Reject(ctx, RejectInput{RequestID: 40, ApproverID: 9, Reason: "budget freeze"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Status)
	require.Equal(t, "budget freeze", result.Reason)

	require.Equal(t, StatusRejected, repo.state.request.Status)
	require.False(t, repo.state.request.HasPendingItems)
	for _, item := range repo.state.items {
		require.Equal(t, StatusRejected, item.Status)
		require.InDelta(t, 0, item.PendingQty, 0.0001)
	}

	// No stock movement occurred.
	require.InDelta(t, 15, repo.state.stockItems[1].StockQty, 0.0001)
	require.Empty(t, repo.state.txRecords)
	require.Equal(t, []string{string(StatusRejected)}, metrics.statuses)

	_, err = svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 1}},
	})
	require.ErrorIs(t, err, ErrTerminalStatus)

	_, err = svc.Reject(ctx, RejectInput{RequestID: 40, ApproverID: 9, Reason: "again"})
	require.ErrorIs(t, err, ErrTerminalStatus)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	svc, _, _, _, _ := newTestService(repo)

	_, err := svc.Reject(context.Background(), RejectInput{RequestID: 40, ApproverID: 9, Reason: "  "})
	require.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.Reject(context.Background(), RejectInput{RequestID: 40, Reason: "no approver"})
	require.ErrorIs(t, err, ErrApproverRequired)
}

func TestApproveRepeatQuantityRoundsAccepted(t *testing.T) {
	state := newTestState()
	state.items[0].RequestedQty = 10
	state.items[0].PendingQty = 10
	repo := &memoryRepo{state: state}
	idem := &idempotencyFake{}
	svc := NewService(Deps{Repo: repo, Idempotency: idem})
	ctx := context.Background()

	first, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyApproved, first.Status)

	// A later round granting the same quantity again is a new decision,
	// not a replay of the first one.
	second, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 3}},
	})
	require.NoError(t, err)
	require.InDelta(t, 6, second.Lines[0].ApprovedQty, 0.0001)
	require.InDelta(t, 4, second.Lines[0].PendingQty, 0.0001)

	require.Len(t, idem.keys, 2)
	require.NotEqual(t, idem.keys[0], idem.keys[1])

	var cementRecords int
	for _, rec := range repo.state.txRecords {
		if rec.ItemID == 1 {
			cementRecords++
		}
	}
	require.Equal(t, 2, cementRecords)
}

func TestApproveDoubleSubmitConflicts(t *testing.T) {
	state := newTestState()
	repo := &memoryRepo{state: state}
	idem := &idempotencyFake{}
	input := ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 8}},
	}
	idem.keys = append(idem.keys, approvalKey(input, state.items))
	svc := NewService(Deps{Repo: repo, Idempotency: idem})

	_, err := svc.Approve(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, StatusPending, repo.state.request.Status)
	require.Empty(t, repo.state.txRecords)
	require.Len(t, idem.keys, 1, "the original key must survive the refused replay")
}

func TestApproveFailedRoundReleasesKey(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	idem := &idempotencyFake{}
	svc := NewService(Deps{Repo: repo, Idempotency: idem})
	ctx := context.Background()

	_, err := svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 101, ApprovedQty: 9}},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Empty(t, idem.keys, "a rolled-back round must not hold its key")

	// Resubmitting a corrected round goes through.
	_, err = svc.Approve(ctx, ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 101, ApprovedQty: 3}},
	})
	require.NoError(t, err)
	require.Len(t, idem.keys, 1)
}

func TestGodownSyncFailureSchedulesReconcile(t *testing.T) {
	repo := &memoryRepo{state: newTestState()}
	godowns := &godownRecorder{err: errors.New("connection reset")}
	scheduler := &schedulerRecorder{}
	metrics := &metricsRecorder{}
	svc := NewService(Deps{
		Repo:      repo,
		Godowns:   godowns,
		Scheduler: scheduler,
		Metrics:   metrics,
	})

	result, err := svc.Approve(context.Background(), ApproveInput{
		RequestID:  40,
		ApproverID: 9,
		Decisions:  []Decision{{RequestItemID: 100, ApprovedQty: 8}},
	})
	require.NoError(t, err, "aggregate failure must not fail the approval")
	require.Equal(t, StatusPartiallyApproved, result.Status)

	require.Equal(t, 1, metrics.syncFailures)
	require.ElementsMatch(t, [][2]int64{{1, 5}, {1, 6}}, scheduler.enqueued)
}
