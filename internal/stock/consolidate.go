package stock

import (
	"context"
	"sort"
)

// IncomingTransit is the open-transfer quantity headed for a destination,
// grouped per (warehouse, wood type, thickness).
type IncomingTransit struct {
	WarehouseID int64 `json:"warehouse_id"`
	WoodTypeID  int64 `json:"wood_type_id"`
	Thickness   int   `json:"thickness"`
	Quantity    int64 `json:"quantity"`
}

// BucketTotals sums every bucket across a group of records.
type BucketTotals struct {
	NotDried     int64 `json:"not_dried"`
	UnderDrying  int64 `json:"under_drying"`
	Dried        int64 `json:"dried"`
	Damaged      int64 `json:"damaged"`
	InTransitOut int64 `json:"in_transit_out"`
	InTransitIn  int64 `json:"in_transit_in"`
	Total        int64 `json:"total"`
	Available    int64 `json:"available"`
}

func (t *BucketTotals) add(rec StockRecord) {
	t.NotDried += rec.NotDried
	t.UnderDrying += rec.UnderDrying
	t.Dried += rec.Dried
	t.Damaged += rec.Damaged
	t.InTransitOut += rec.InTransitOut
	t.InTransitIn += rec.InTransitIn
	t.Total += rec.Total()
	t.Available += rec.Available()
}

// WarehouseBreakdown is the per-warehouse slice of a summary row.
type WarehouseBreakdown struct {
	WarehouseID int64        `json:"warehouse_id"`
	Record      StockRecord  `json:"record"`
	Totals      BucketTotals `json:"totals"`
}

// SummaryRow aggregates one (wood type, thickness) combination across all
// active warehouses.
type SummaryRow struct {
	WoodTypeID int64                `json:"wood_type_id"`
	Thickness  int                  `json:"thickness"`
	Totals     BucketTotals         `json:"totals"`
	Warehouses []WarehouseBreakdown `json:"warehouses"`
}

// Consolidation is the cross-warehouse stock projection.
type Consolidation struct {
	Detailed []StockRecord `json:"detailed"`
	Summary  []SummaryRow  `json:"summary"`
}

// Consolidate projects the stock records of all active warehouses into
// per-(wood type, thickness) summaries. Recomputed per call; the record set is
// small relative to read frequency. A short-TTL cache fronts it when wired.
func (l *Ledger) Consolidate(ctx context.Context) (Consolidation, error) {
	if l.cache != nil {
		if cached, ok, err := l.cache.Get(ctx); err == nil && ok {
			return cached, nil
		}
	}

	records, err := l.repo.ListActive(ctx)
	if err != nil {
		return Consolidation{}, err
	}
	incoming, err := l.repo.IncomingInTransit(ctx)
	if err != nil {
		return Consolidation{}, err
	}

	// in_transit_in is derived from open transfers, never stored, so stock
	// cannot be double-credited at completion.
	incomingByKey := make(map[[3]int64]int64, len(incoming))
	for _, in := range incoming {
		incomingByKey[[3]int64{in.WarehouseID, in.WoodTypeID, int64(in.Thickness)}] += in.Quantity
	}
	for i := range records {
		rec := &records[i]
		rec.InTransitIn = incomingByKey[[3]int64{rec.WarehouseID, rec.WoodTypeID, int64(rec.Thickness)}]
	}

	type groupKey struct {
		woodTypeID int64
		thickness  int
	}
	groups := make(map[groupKey]*SummaryRow)
	order := []groupKey{}
	for _, rec := range records {
		key := groupKey{rec.WoodTypeID, rec.Thickness}
		row, ok := groups[key]
		if !ok {
			row = &SummaryRow{WoodTypeID: rec.WoodTypeID, Thickness: rec.Thickness}
			groups[key] = row
			order = append(order, key)
		}
		row.Totals.add(rec)
		var whTotals BucketTotals
		whTotals.add(rec)
		row.Warehouses = append(row.Warehouses, WarehouseBreakdown{
			WarehouseID: rec.WarehouseID,
			Record:      rec,
			Totals:      whTotals,
		})
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].woodTypeID != order[j].woodTypeID {
			return order[i].woodTypeID < order[j].woodTypeID
		}
		return order[i].thickness < order[j].thickness
	})

	summary := make([]SummaryRow, 0, len(order))
	for _, key := range order {
		summary = append(summary, *groups[key])
	}

	result := Consolidation{Detailed: records, Summary: summary}
	if l.cache != nil {
		if err := l.cache.Set(ctx, result); err != nil {
			l.logger.Warn("cache consolidation", "error", err)
		}
	}
	return result, nil
}
