package stock

import "context"

// EvaluateLowStock compares available stock (notDried + dried) against the
// configured minimum for every record carrying one. Stateless: alerts are
// recomputed per call and never persisted; delivery and de-duplication belong
// to the notification collaborator.
func (l *Ledger) EvaluateLowStock(ctx context.Context) ([]LowStockAlert, error) {
	records, err := l.repo.ListWithMinimum(ctx)
	if err != nil {
		return nil, err
	}

	alerts := []LowStockAlert{}
	for _, rec := range records {
		if rec.MinimumStockLevel == nil {
			continue
		}
		minimum := *rec.MinimumStockLevel
		available := rec.Available()
		if available < minimum {
			alerts = append(alerts, LowStockAlert{
				WarehouseID:       rec.WarehouseID,
				WoodTypeID:        rec.WoodTypeID,
				Thickness:         rec.Thickness,
				Available:         available,
				MinimumStockLevel: minimum,
				Shortfall:         minimum - available,
			})
		}
	}
	return alerts, nil
}
