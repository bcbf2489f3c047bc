package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists batch ledger and aggregate data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem loads an item-master row.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	if r == nil {
		return Item{}, errors.New("stock repository not initialised")
	}
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, name, unit, stock_qty FROM items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.CompanyID, &item.Code, &item.Name, &item.Unit, &item.StockQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// ListOpenBatches returns batches with remaining quantity in FIFO order.
func (r *Repository) ListOpenBatches(ctx context.Context, itemID int64) ([]Batch, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, godown_id, COALESCE(product_id, 0), qty_remaining, unit_price, purchased_at
FROM batches WHERE item_id=$1 AND qty_remaining > 0
ORDER BY purchased_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ListItemGodownStocks returns the per-godown aggregate rows for an item.
func (r *Repository) ListItemGodownStocks(ctx context.Context, itemID int64) ([]GodownStock, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT godown_id, item_id, qty, updated_at
FROM godown_stocks WHERE item_id=$1 ORDER BY godown_id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGodownStocks(rows)
}

// ListGodownStocks returns aggregate rows for one godown.
func (r *Repository) ListGodownStocks(ctx context.Context, godownID int64) ([]GodownStock, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT godown_id, item_id, qty, updated_at
FROM godown_stocks WHERE godown_id=$1 ORDER BY item_id ASC`, godownID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGodownStocks(rows)
}

// ApplyGodownDeltas adjusts the (godown, item) aggregate cache. Runs outside
// the approval transaction: the aggregate is secondary and a failure here is
// tolerated by the caller, not propagated into the primary unit of work.
func (r *Repository) ApplyGodownDeltas(ctx context.Context, deltas []GodownDelta) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	for _, d := range deltas {
		if d.Qty == 0 {
			continue
		}
		_, err := r.pool.Exec(ctx, `INSERT INTO godown_stocks (godown_id, item_id, qty, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (godown_id, item_id) DO UPDATE SET qty=godown_stocks.qty+EXCLUDED.qty, updated_at=NOW()`, d.GodownID, d.ItemID, d.Qty)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecomputeGodownStock rebuilds aggregate rows from the batch ledger.
// itemID/godownID of zero widen the scope to all items/godowns.
func (r *Repository) RecomputeGodownStock(ctx context.Context, itemID, godownID int64) (int64, error) {
	if r == nil {
		return 0, errors.New("stock repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `INSERT INTO godown_stocks (godown_id, item_id, qty, updated_at)
SELECT godown_id, item_id, SUM(qty_remaining), NOW()
FROM batches
WHERE ($1 = 0 OR item_id = $1) AND ($2 = 0 OR godown_id = $2)
GROUP BY godown_id, item_id
ON CONFLICT (godown_id, item_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, itemID, godownID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	var batches []Batch
	for rows.Next() {
		var b Batch
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

func scanGodownStocks(rows pgx.Rows) ([]GodownStock, error) {
	var stocks []GodownStock
	for rows.Next() {
		var g GodownStock
		if err := rows.Scan(&g.GodownID, &g.ItemID, &g.Qty, &g.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stocks, nil
}
