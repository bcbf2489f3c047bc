package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// Repository persists allocation data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the orchestrator.
// All methods run on one connection inside one repeatable-read transaction.
type TxRepository interface {
	GetRequestForUpdate(ctx context.Context, requestID int64) (Request, error)
	ListRequestItems(ctx context.Context, requestID int64) ([]RequestItem, error)
	GetItemForUpdate(ctx context.Context, itemID int64) (stock.Item, error)
	ListOpenBatchesForUpdate(ctx context.Context, itemID int64) ([]stock.Batch, error)
	DecrementBatch(ctx context.Context, batchID int64, qty float64) error
	AdjustItemStock(ctx context.Context, itemID int64, qty float64, direction stock.Direction) error
	UpsertProjectAllocation(ctx context.Context, alloc ProjectAllocation) error
	InsertTransactionRecord(ctx context.Context, rec TransactionRecord) (int64, error)
	UpdateRequestItem(ctx context.Context, item RequestItem) error
	UpdateRequest(ctx context.Context, req Request) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("allocation repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetRequestDetail returns the request joined with project/requester metadata
// and its lines joined with item/unit metadata. Read-only.
func (r *Repository) GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error) {
	if r == nil {
		return RequestDetail{}, errors.New("allocation repository not initialised")
	}
	var detail RequestDetail
	err := r.pool.QueryRow(ctx, `SELECT ar.id, ar.ref, ar.company_id, ar.project_id, ar.requested_by,
COALESCE(p.name, ''), COALESCE(u.name, ''), ar.status, COALESCE(ar.approved_by, 0),
COALESCE(ar.approved_at, 'epoch'), ar.has_pending_items, ar.notes, ar.created_at
FROM allocation_requests ar
LEFT JOIN projects p ON p.id = ar.project_id
LEFT JOIN users u ON u.id = ar.requested_by
WHERE ar.id = $1`, requestID).Scan(
		&detail.ID, &detail.Ref, &detail.CompanyID, &detail.ProjectID, &detail.RequestedBy,
		&detail.ProjectName, &detail.RequesterName, &detail.Status, &detail.ApprovedBy,
		&detail.ApprovedAt, &detail.HasPendingItems, &detail.Notes, &detail.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RequestDetail{}, ErrNotFound
		}
		return RequestDetail{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT ri.id, ri.request_id, ri.item_id, COALESCE(ri.product_id, 0),
ri.requested_qty, ri.approved_qty, ri.pending_qty, ri.status, ri.notes,
i.code, i.name, i.unit, i.stock_qty
FROM allocation_request_items ri
JOIN items i ON i.id = ri.item_id
WHERE ri.request_id = $1
ORDER BY ri.id ASC`, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item RequestItemDetail
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ItemID, &item.ProductID,
			&item.RequestedQty, &item.ApprovedQty, &item.PendingQty, &item.Status, &item.Notes,
			&item.ItemCode, &item.ItemName, &item.Unit, &item.ItemStockQty); err != nil {
			return RequestDetail{}, err
		}
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return RequestDetail{}, err
	}
	return detail, nil
}

func (r *txRepository) GetRequestForUpdate(ctx context.Context, requestID int64) (Request, error) {
	var req Request
	err := r.tx.QueryRow(ctx, `SELECT id, ref, company_id, project_id, requested_by, status,
COALESCE(approved_by, 0), COALESCE(approved_at, 'epoch'), has_pending_items, notes, created_at
FROM allocation_requests WHERE id=$1 FOR UPDATE`, requestID).Scan(
		&req.ID, &req.Ref, &req.CompanyID, &req.ProjectID, &req.RequestedBy, &req.Status,
		&req.ApprovedBy, &req.ApprovedAt, &req.HasPendingItems, &req.Notes, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

func (r *txRepository) ListRequestItems(ctx context.Context, requestID int64) ([]RequestItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, request_id, item_id, COALESCE(product_id, 0),
requested_qty, approved_qty, pending_qty, status, notes
FROM allocation_request_items WHERE request_id=$1 ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RequestItem
	for rows.Next() {
		var item RequestItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ItemID, &item.ProductID,
			&item.RequestedQty, &item.ApprovedQty, &item.PendingQty, &item.Status, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (stock.Item, error) {
	var item stock.Item
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, name, unit, stock_qty
FROM items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&item.ID, &item.CompanyID, &item.Code, &item.Name, &item.Unit, &item.StockQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Item{}, stock.ErrItemNotFound
		}
		return stock.Item{}, err
	}
	return item, nil
}

func (r *txRepository) ListOpenBatchesForUpdate(ctx context.Context, itemID int64) ([]stock.Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_id, godown_id, COALESCE(product_id, 0), qty_remaining, unit_price, purchased_at
FROM batches WHERE item_id=$1 AND qty_remaining > 0
ORDER BY purchased_at ASC, id ASC
FOR UPDATE`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []stock.Batch
	for rows.Next() {
		var b stock.Batch
		if err := rows.Scan(&b.ID, &b.ItemID, &b.GodownID, &b.ProductID, &b.QtyRemaining, &b.UnitPrice, &b.PurchasedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *txRepository) DecrementBatch(ctx context.Context, batchID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE batches SET qty_remaining = qty_remaining - $2
WHERE id=$1 AND qty_remaining >= $2`, batchID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch %d", stock.ErrBatchShortfall, batchID)
	}
	return nil
}

func (r *txRepository) AdjustItemStock(ctx context.Context, itemID int64, qty float64, direction stock.Direction) error {
	if qty < 0 {
		return stock.ErrInvalidQuantity
	}
	if direction == stock.DirectionInward {
		_, err := r.tx.Exec(ctx, `UPDATE items SET stock_qty = stock_qty + $2 WHERE id=$1`, itemID, qty)
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE items SET stock_qty = stock_qty - $2
WHERE id=$1 AND stock_qty >= $2`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrInsufficientStock
	}
	return nil
}

func (r *txRepository) UpsertProjectAllocation(ctx context.Context, alloc ProjectAllocation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO project_allocations
(project_id, item_id, batch_id, godown_id, qty, remaining_qty, unit_price, total_price, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (project_id, item_id, batch_id) DO UPDATE SET
qty = project_allocations.qty + EXCLUDED.qty,
remaining_qty = project_allocations.remaining_qty + EXCLUDED.remaining_qty,
total_price = (project_allocations.qty + EXCLUDED.qty) * EXCLUDED.unit_price,
updated_at = NOW()`,
		alloc.ProjectID, alloc.ItemID, alloc.BatchID, alloc.GodownID,
		alloc.Qty, alloc.RemainingQty, alloc.UnitPrice, alloc.TotalPrice)
	return err
}

func (r *txRepository) InsertTransactionRecord(ctx context.Context, rec TransactionRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transaction_records
(company_id, godown_id, item_id, product_id, tx_type, qty, unit, reference_no, remarks, approved_by, requested_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
RETURNING id`,
		rec.CompanyID, rec.GodownID, rec.ItemID, nullInt(rec.ProductID), string(rec.Type),
		rec.Qty, rec.Unit, rec.ReferenceNo, rec.Remarks, rec.ApprovedBy, rec.RequestedBy).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateRequestItem(ctx context.Context, item RequestItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocation_request_items
SET approved_qty=$2, pending_qty=$3, status=$4, notes=$5
WHERE id=$1`, item.ID, item.ApprovedQty, item.PendingQty, string(item.Status), item.Notes)
	return err
}

func (r *txRepository) UpdateRequest(ctx context.Context, req Request) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocation_requests
SET status=$2, approved_by=$3, approved_at=$4, has_pending_items=$5, notes=$6
WHERE id=$1`, req.ID, string(req.Status), nullInt(req.ApprovedBy), req.ApprovedAt, req.HasPendingItems, req.Notes)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
