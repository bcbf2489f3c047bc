package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// GodownReconciler rebuilds godown aggregates from batch rows.
type GodownReconciler struct {
	stocks *stock.Service
	logger *slog.Logger
}

// NewGodownReconciler constructs the reconcile task handler.
func NewGodownReconciler(stocks *stock.Service, logger *slog.Logger) *GodownReconciler {
	return &GodownReconciler{stocks: stocks, logger: logger}
}

// Handle processes TaskGodownReconcile tasks. Batch rows are the source of
// truth; this overwrites the aggregate so a lost post-commit delta heals on
// the next run.
func (g *GodownReconciler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GodownReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	rows, err := g.stocks.Reconcile(ctx, payload.ItemID, payload.GodownID)
	if err != nil {
		g.logger.Error("godown reconcile failed",
			slog.Int64("item_id", payload.ItemID),
			slog.Int64("godown_id", payload.GodownID),
			slog.Any("error", err))
		return err
	}
	g.logger.Info("godown reconcile done",
		slog.Int64("item_id", payload.ItemID),
		slog.Int64("godown_id", payload.GodownID),
		slog.Int64("rows", rows))
	return nil
}
