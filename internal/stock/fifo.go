package stock

import "sort"

// PlanFIFO walks batches oldest purchase first and greedily draws
// min(batch remaining, still needed) from each until the requested quantity
// is satisfied or batches run out. Ties on purchase date break by insertion
// order, so for a fixed batch set and quantity the breakdown is deterministic.
//
// The plan only describes what to draw; persisting the decrements is the
// caller's transaction. A shortfall is reported, never over-drawn.
func PlanFIFO(batches []Batch, qty float64) Plan {
	if qty <= 0 {
		return Plan{Shortfall: 0}
	}

	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].PurchasedAt.Equal(ordered[j].PurchasedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].PurchasedAt.Before(ordered[j].PurchasedAt)
	})

	plan := Plan{}
	remaining := qty
	for _, batch := range ordered {
		if remaining <= 0 {
			break
		}
		if batch.QtyRemaining <= 0 {
			continue
		}
		draw := batch.QtyRemaining
		if remaining < draw {
			draw = remaining
		}
		plan.Draws = append(plan.Draws, Draw{
			BatchID:   batch.ID,
			GodownID:  batch.GodownID,
			ProductID: batch.ProductID,
			Qty:       draw,
			UnitPrice: batch.UnitPrice,
		})
		plan.Allocated += draw
		remaining -= draw
	}
	if remaining > 0 {
		plan.Shortfall = remaining
	}
	return plan
}
