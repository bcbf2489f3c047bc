package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListOpenBatches(ctx context.Context, itemID int64) ([]Batch, error)
	ListItemGodownStocks(ctx context.Context, itemID int64) ([]GodownStock, error)
	ListGodownStocks(ctx context.Context, godownID int64) ([]GodownStock, error)
	RecomputeGodownStock(ctx context.Context, itemID, godownID int64) (int64, error)
}

// Service serves stock summary reads and reconciliation.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// BatchView is the read model of one open batch.
type BatchView struct {
	ID           int64           `json:"id"`
	GodownID     int64           `json:"godownId"`
	QtyRemaining float64         `json:"qtyRemaining"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	PurchasedAt  time.Time       `json:"purchasedAt"`
}

// GodownStockView is the read model of one aggregate row.
type GodownStockView struct {
	GodownID  int64     `json:"godownId"`
	ItemID    int64     `json:"itemId"`
	Qty       float64   `json:"qty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ItemSummary joins the item master with its godown aggregates and open batches.
type ItemSummary struct {
	ItemID      int64             `json:"itemId"`
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	Unit        string            `json:"unit"`
	StockQty    float64           `json:"stockQty"`
	BatchTotal  float64           `json:"batchTotal"`
	Godowns     []GodownStockView `json:"godowns"`
	OpenBatches []BatchView       `json:"openBatches"`
}

// ItemSummary resolves the stock position of one item, cached per item.
// Concurrent misses for the same item collapse into one repository load.
func (s *Service) ItemSummary(ctx context.Context, itemID int64) (ItemSummary, error) {
	if itemID == 0 {
		return ItemSummary{}, errors.New("stock: item id required")
	}
	var summary ItemSummary
	err := s.cache.FetchItemJSON(ctx, itemID, &summary, func(ctx context.Context) (any, error) {
		resultChan := s.group.DoChan(fmt.Sprintf("item:%d", itemID), func() (any, error) {
			return s.loadItemSummary(ctx, itemID)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-resultChan:
			return res.Val, res.Err
		}
	})
	return summary, err
}

func (s *Service) loadItemSummary(ctx context.Context, itemID int64) (ItemSummary, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return ItemSummary{}, err
	}
	batches, err := s.repo.ListOpenBatches(ctx, itemID)
	if err != nil {
		return ItemSummary{}, err
	}
	godowns, err := s.repo.ListItemGodownStocks(ctx, itemID)
	if err != nil {
		return ItemSummary{}, err
	}
	summary := ItemSummary{
		ItemID:   item.ID,
		Code:     item.Code,
		Name:     item.Name,
		Unit:     item.Unit,
		StockQty: item.StockQty,
		Godowns:  make([]GodownStockView, 0, len(godowns)),
	}
	for _, g := range godowns {
		summary.Godowns = append(summary.Godowns, GodownStockView{GodownID: g.GodownID, ItemID: g.ItemID, Qty: g.Qty, UpdatedAt: g.UpdatedAt})
	}
	for _, b := range batches {
		summary.BatchTotal += b.QtyRemaining
		summary.OpenBatches = append(summary.OpenBatches, BatchView{
			ID:           b.ID,
			GodownID:     b.GodownID,
			QtyRemaining: b.QtyRemaining,
			UnitPrice:    b.UnitPrice,
			PurchasedAt:  b.PurchasedAt,
		})
	}
	return summary, nil
}

// GodownStocks lists aggregate rows for one godown. Not cached: the rows are
// already a cache and callers want the latest reconciled values.
func (s *Service) GodownStocks(ctx context.Context, godownID int64) ([]GodownStockView, error) {
	if godownID == 0 {
		return nil, errors.New("stock: godown id required")
	}
	stocks, err := s.repo.ListGodownStocks(ctx, godownID)
	if err != nil {
		return nil, err
	}
	views := make([]GodownStockView, 0, len(stocks))
	for _, g := range stocks {
		views = append(views, GodownStockView{GodownID: g.GodownID, ItemID: g.ItemID, Qty: g.Qty, UpdatedAt: g.UpdatedAt})
	}
	return views, nil
}

// InvalidateItem drops the cached summary after a stock movement.
func (s *Service) InvalidateItem(ctx context.Context, itemID int64) error {
	return s.cache.InvalidateItem(ctx, itemID)
}

// Reconcile rebuilds godown aggregates from the batch ledger.
func (s *Service) Reconcile(ctx context.Context, itemID, godownID int64) (int64, error) {
	rows, err := s.repo.RecomputeGodownStock(ctx, itemID, godownID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("godown aggregates reconciled",
		slog.Int64("item_id", itemID),
		slog.Int64("godown_id", godownID),
		slog.Int64("rows", rows))
	return rows, nil
}
