// Package export writes the dashboard feed the static site is built from:
// data.json with the latest estimates, merged sales, staleness alerts, and
// a capped capture changelog, plus units.geojson with geocoded unit
// locations.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/analysis"
	"woodgate/tracker/internal/collector"
	"woodgate/tracker/internal/metrics"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/storage"
)

// SourceEstimate is the newest captured value for one provider.
type SourceEstimate struct {
	Price float64 `json:"price"`
	Date  string  `json:"date"`
}

// PropertyEntry is one unit in the dashboard feed.
type PropertyEntry struct {
	Unit         int                                      `json:"unit"`
	Address      string                                   `json:"address"`
	Estimates    map[models.EstimateSource]SourceEstimate `json:"estimates"`
	EstimateDate *string                                  `json:"estimate_date"`
}

// ChangelogEntry records one capture run in the feed.
type ChangelogEntry struct {
	Date        string                            `json:"date"`
	Type        string                            `json:"type"`
	Updated     int                               `json:"updated"`
	Failed      int                               `json:"failed"`
	AvgEstimate map[models.EstimateSource]float64 `json:"avg_estimate"`
	NewSales    int                               `json:"new_sales"`
	TotalSales  int                               `json:"total_sales"`
}

// Feed is the data.json document.
type Feed struct {
	ExportedAt  string              `json:"exported_at"`
	Properties  []PropertyEntry     `json:"properties"`
	Sales       []models.SaleRecord `json:"sales"`
	StaleAlerts []models.StaleAlert `json:"stale_alerts"`
	Changelog   []ChangelogEntry    `json:"changelog"`
}

type Exporter struct {
	store  *storage.Store
	cfg    *config.Config
	logger *logrus.Logger
}

func NewExporter(store *storage.Store, cfg *config.Config, logger *logrus.Logger) *Exporter {
	return &Exporter{store: store, cfg: cfg, logger: logger}
}

// Run refreshes both feed files from one store snapshot. A non-nil
// summary appends its capture run to the changelog.
func (e *Exporter) Run(summary *collector.BatchSummary) error {
	snap, err := e.store.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot store: %v", err)
	}
	feed := e.buildFeed(snap)
	if summary != nil {
		e.appendChangelog(feed, summary)
	}
	if err := e.WriteFeed(feed); err != nil {
		return err
	}
	return e.WriteGeoJSON(snap.Properties)
}

// BuildFeed assembles the feed from a fresh store snapshot, carrying the
// changelog over from the feed already on disk.
func (e *Exporter) BuildFeed() (*Feed, error) {
	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %v", err)
	}
	return e.buildFeed(snap), nil
}

func (e *Exporter) buildFeed(snap *storage.Snapshot) *Feed {
	return &Feed{
		ExportedAt:  time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Properties:  buildProperties(snap),
		Sales:       buildSales(snap),
		StaleAlerts: analysis.StaleAlerts(snap.Properties, snap.Sales, snap.Estimates),
		Changelog:   e.loadChangelog(),
	}
}

// WriteFeed writes data.json under the docs directory.
func (e *Exporter) WriteFeed(feed *Feed) error {
	if err := os.MkdirAll(e.cfg.Export.DocsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create docs dir: %v", err)
	}
	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feed: %v", err)
	}
	if err := os.WriteFile(e.feedPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write feed: %v", err)
	}

	metrics.LastExport.Set(float64(time.Now().Unix()))
	e.logger.WithFields(logrus.Fields{
		"properties": len(feed.Properties),
		"sales":      len(feed.Sales),
		"stale":      len(feed.StaleAlerts),
		"path":       e.feedPath(),
	}).Info("Exported dashboard feed")
	return nil
}

// WriteGeoJSON writes units.geojson with one point per geocoded unit.
// Units without coordinates are left out; the map only shows what has
// been geocoded.
func (e *Exporter) WriteGeoJSON(properties []models.Property) error {
	fc := geojson.NewFeatureCollection()
	for _, prop := range properties {
		if prop.Latitude == nil || prop.Longitude == nil {
			continue
		}
		feature := geojson.NewFeature(orb.Point{*prop.Longitude, *prop.Latitude})
		feature.Properties = geojson.Properties{
			"unit":    prop.UnitNumber,
			"address": prop.Address,
		}
		fc.Append(feature)
	}

	if err := os.MkdirAll(e.cfg.Export.DocsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create docs dir: %v", err)
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feature collection: %v", err)
	}
	path := filepath.Join(e.cfg.Export.DocsDir, "units.geojson")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write geojson: %v", err)
	}

	e.logger.WithFields(logrus.Fields{
		"features": len(fc.Features),
		"path":     path,
	}).Info("Exported unit locations")
	return nil
}

func buildProperties(snap *storage.Snapshot) []PropertyEntry {
	latest := make(map[uint]map[models.EstimateSource]models.Estimate)
	for _, est := range snap.Estimates {
		bySource, ok := latest[est.PropertyID]
		if !ok {
			bySource = make(map[models.EstimateSource]models.Estimate)
			latest[est.PropertyID] = bySource
		}
		if cur, ok := bySource[est.Source]; !ok || est.CapturedAt.After(cur.CapturedAt) {
			bySource[est.Source] = est
		}
	}

	entries := make([]PropertyEntry, 0, len(snap.Properties))
	for _, prop := range snap.Properties {
		entry := PropertyEntry{
			Unit:      prop.UnitNumber,
			Address:   prop.Address,
			Estimates: make(map[models.EstimateSource]SourceEstimate),
		}
		for source, est := range latest[prop.ID] {
			date := est.CaptureDate()
			entry.Estimates[source] = SourceEstimate{Price: est.Price, Date: date}
			if entry.EstimateDate == nil || date > *entry.EstimateDate {
				entry.EstimateDate = &date
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// buildSales flattens persisted sales to records in the merged ledger
// order, (date, unit) ascending.
func buildSales(snap *storage.Snapshot) []models.SaleRecord {
	unitOf := make(map[uint]int, len(snap.Properties))
	for _, prop := range snap.Properties {
		unitOf[prop.ID] = prop.UnitNumber
	}
	records := make([]models.SaleRecord, 0, len(snap.Sales))
	for _, sale := range snap.Sales {
		records = append(records, models.SaleRecord{
			Unit:   unitOf[sale.PropertyID],
			Date:   sale.SaleDate,
			Price:  sale.SalePrice,
			Source: sale.Source,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Unit < records[j].Unit
	})
	return records
}

// loadChangelog carries the changelog over from the feed on disk. A
// missing or unreadable feed starts a fresh changelog.
func (e *Exporter) loadChangelog() []ChangelogEntry {
	data, err := os.ReadFile(e.feedPath())
	if err != nil {
		return nil
	}
	var existing struct {
		Changelog []ChangelogEntry `json:"changelog"`
	}
	if err := json.Unmarshal(data, &existing); err != nil {
		e.logger.WithError(err).Warn("Could not parse existing feed, starting a fresh changelog")
		return nil
	}
	return existing.Changelog
}

// appendChangelog records a capture run: per-source average of the latest
// estimates, and sales growth relative to the previous entry.
func (e *Exporter) appendChangelog(feed *Feed, summary *collector.BatchSummary) {
	sum := make(map[models.EstimateSource]float64)
	count := make(map[models.EstimateSource]int)
	for _, p := range feed.Properties {
		for source, est := range p.Estimates {
			sum[source] += est.Price
			count[source]++
		}
	}
	avg := make(map[models.EstimateSource]float64, len(sum))
	for source, total := range sum {
		avg[source] = math.Round(total / float64(count[source]))
	}

	prevSales := len(feed.Sales)
	if n := len(feed.Changelog); n > 0 {
		prevSales = feed.Changelog[n-1].TotalSales
	}
	newSales := len(feed.Sales) - prevSales
	if newSales < 0 {
		newSales = 0
	}

	feed.Changelog = append(feed.Changelog, ChangelogEntry{
		Date:        time.Now().UTC().Format(models.DateLayout),
		Type:        "capture",
		Updated:     summary.Succeeded,
		Failed:      summary.Failed,
		AvgEstimate: avg,
		NewSales:    newSales,
		TotalSales:  len(feed.Sales),
	})
	if limit := e.cfg.Export.ChangelogLimit; limit > 0 && len(feed.Changelog) > limit {
		feed.Changelog = feed.Changelog[len(feed.Changelog)-limit:]
	}
}

func (e *Exporter) feedPath() string {
	return filepath.Join(e.cfg.Export.DocsDir, "data.json")
}
