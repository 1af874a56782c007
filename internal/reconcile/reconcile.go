// Package reconcile decides when two sale records describe the same
// transaction and folds per-source sale histories into a single ledger.
package reconcile

import (
	"fmt"
	"math"
	"sort"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
)

// Duplicate reports whether two records describe the same sale. The check
// is symmetric: Duplicate(a, b) == Duplicate(b, a) for every pair.
//
// Rules, in order: different units are never the same sale; identical date
// and price always are; prices apart by more than both tolerances are
// distinct transactions; otherwise the records match when their dates fall
// within the duplicate window. Records whose dates cannot be parsed are
// kept apart rather than guessed about.
func Duplicate(a, b models.SaleRecord) bool {
	if a.Unit != b.Unit {
		return false
	}
	if a.Date == b.Date && a.Price == b.Price {
		return true
	}

	priceDiff := math.Abs(a.Price - b.Price)
	pctDiff := priceDiff / math.Max(math.Max(a.Price, b.Price), 1) * 100
	if priceDiff > config.PriceToleranceAbs && pctDiff > config.PriceTolerancePct {
		return false
	}

	dateA, errA := a.ParsedDate()
	dateB, errB := b.ParsedDate()
	if errA != nil || errB != nil {
		return false
	}
	days := int(math.Abs(dateA.Sub(dateB).Hours() / 24))
	return days <= config.DuplicateWindowDays
}

// Merge combines the authoritative sale history with any number of
// supplementary ones. Authoritative records are always kept; a
// supplementary record is added only when it duplicates nothing already
// accepted, including records accepted from earlier supplementary sets.
// The result is sorted by date, then unit, and the inputs are not mutated.
//
// Every record must carry a positive price; that invariant is what lets
// percentage math downstream skip zero guards.
func Merge(authoritative []models.SaleRecord, supplementary ...[]models.SaleRecord) ([]models.SaleRecord, error) {
	if err := checkPrices(authoritative); err != nil {
		return nil, err
	}
	merged := make([]models.SaleRecord, len(authoritative))
	copy(merged, authoritative)

	for _, records := range supplementary {
		if err := checkPrices(records); err != nil {
			return nil, err
		}
		for _, rec := range records {
			if !duplicatesAny(merged, rec) {
				merged = append(merged, rec)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].Unit < merged[j].Unit
	})
	return merged, nil
}

func duplicatesAny(accepted []models.SaleRecord, rec models.SaleRecord) bool {
	for _, existing := range accepted {
		if Duplicate(existing, rec) {
			return true
		}
	}
	return false
}

func checkPrices(records []models.SaleRecord) error {
	for _, rec := range records {
		if rec.Price <= 0 {
			return fmt.Errorf("sale record for unit %d on %s: price must be positive, got %.2f",
				rec.Unit, rec.Date, rec.Price)
		}
	}
	return nil
}
