// Package analysis pairs sales with the estimates that preceded them and
// summarizes how far each provider's valuations land from realized prices.
package analysis

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
)

// MatchEstimate returns the most recent estimate captured on or before the
// sale date, comparing at day granularity so a same-day capture still
// counts. The estimates are expected to belong to one property and source.
// The bool is false when no estimate predates the sale.
func MatchEstimate(sale models.Sale, estimates []models.Estimate) (models.Estimate, bool) {
	var best models.Estimate
	found := false
	for _, est := range estimates {
		captured := est.CaptureDate()
		if captured > sale.SaleDate {
			continue
		}
		if !found || captured > best.CaptureDate() ||
			(captured == best.CaptureDate() && est.CapturedAt.After(best.CapturedAt)) {
			best = est
			found = true
		}
	}
	return best, found
}

// Pairs matches every sale against every configured estimate source and
// returns the resulting pairs. A sale with no prior estimate from a source
// simply contributes nothing for that source. Output order is stable:
// sales in input order, sources in table order.
func Pairs(sales []models.Sale, estimates []models.Estimate) []models.MatchedPair {
	type key struct {
		propertyID uint
		source     models.EstimateSource
	}
	grouped := make(map[key][]models.Estimate)
	for _, est := range estimates {
		k := key{propertyID: est.PropertyID, source: est.Source}
		grouped[k] = append(grouped[k], est)
	}

	var pairs []models.MatchedPair
	for _, sale := range sales {
		for _, spec := range config.EstimateSources {
			candidates := grouped[key{propertyID: sale.PropertyID, source: spec.Source}]
			if est, ok := MatchEstimate(sale, candidates); ok {
				pairs = append(pairs, models.NewMatchedPair(sale, est))
			}
		}
	}
	return pairs
}

// Aggregate computes per-source accuracy statistics over matched pairs.
// Sources with no pairs are absent from the result. Standard deviations
// use the sample (n-1) definition and are nil when only one pair exists.
func Aggregate(pairs []models.MatchedPair) map[models.EstimateSource]models.SourceStats {
	grouped := make(map[models.EstimateSource][]models.MatchedPair)
	for _, pair := range pairs {
		grouped[pair.Estimate.Source] = append(grouped[pair.Estimate.Source], pair)
	}

	out := make(map[models.EstimateSource]models.SourceStats, len(grouped))
	for source, group := range grouped {
		errs := make([]float64, len(group))
		pcts := make([]float64, len(group))
		for i, pair := range group {
			errs[i] = pair.Error
			pcts[i] = pair.PctError
		}

		stats := models.SourceStats{
			Count:          len(group),
			MeanError:      stat.Mean(errs, nil),
			MedianError:    median(errs),
			MeanPctError:   stat.Mean(pcts, nil),
			MedianPctError: median(pcts),
		}
		if len(group) >= 2 {
			stdErr := stat.StdDev(errs, nil)
			stdPct := stat.StdDev(pcts, nil)
			stats.StdError = &stdErr
			stats.StdPctError = &stdPct
		}
		out[source] = stats
	}
	return out
}

// NeedsRefresh reports whether a unit's latest sale postdates the last
// estimate capture for a source. A source never captured is always due.
// Comparison is at day granularity, so a capture on the sale date itself
// is current.
func NeedsRefresh(latestSaleDate string, latestCapture *time.Time) bool {
	if latestCapture == nil {
		return true
	}
	return latestCapture.Format(models.DateLayout) < latestSaleDate
}

// StaleAlerts flags every (unit, source) whose most recent sale is newer
// than the source's last captured estimate. Sources a property has no URL
// for are a roster gap, not staleness, and are skipped. Alerts come back
// sorted by unit, then source.
func StaleAlerts(properties []models.Property, sales []models.Sale, estimates []models.Estimate) []models.StaleAlert {
	latestSale := make(map[uint]models.Sale)
	for _, sale := range sales {
		current, ok := latestSale[sale.PropertyID]
		if !ok || sale.SaleDate > current.SaleDate {
			latestSale[sale.PropertyID] = sale
		}
	}

	type key struct {
		propertyID uint
		source     models.EstimateSource
	}
	latestCapture := make(map[key]time.Time)
	for _, est := range estimates {
		k := key{propertyID: est.PropertyID, source: est.Source}
		if current, ok := latestCapture[k]; !ok || est.CapturedAt.After(current) {
			latestCapture[k] = est.CapturedAt
		}
	}

	var alerts []models.StaleAlert
	for _, prop := range properties {
		sale, ok := latestSale[prop.ID]
		if !ok {
			continue
		}
		for _, spec := range config.EstimateSources {
			if prop.SourceURL(spec.Source) == "" {
				continue
			}
			var captured *time.Time
			if t, ok := latestCapture[key{propertyID: prop.ID, source: spec.Source}]; ok {
				captured = &t
			}
			if !NeedsRefresh(sale.SaleDate, captured) {
				continue
			}
			alert := models.StaleAlert{
				UnitNumber: prop.UnitNumber,
				Address:    prop.Address,
				Source:     spec.Source,
				SaleDate:   sale.SaleDate,
				SalePrice:  sale.SalePrice,
			}
			if captured != nil {
				date := captured.Format(models.DateLayout)
				alert.EstimateDate = &date
			}
			alerts = append(alerts, alert)
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].UnitNumber != alerts[j].UnitNumber {
			return alerts[i].UnitNumber < alerts[j].UnitNumber
		}
		return alerts[i].Source < alerts[j].Source
	})
	return alerts
}

// median follows the usual convention: middle value for odd counts, mean
// of the two middle values for even counts.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
