// Package ledger loads the hand-maintained roster and sale history files
// and seeds the store from them. The two input channels follow different
// failure policies: the roster is small and curated, so any bad row fails
// the load; sale histories are bulk data, so bad rows are skipped and
// logged while the rest proceed.
package ledger

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/normalize"
	"woodgate/tracker/internal/storage"
)

// RosterEntry is one unit from the properties file.
type RosterEntry struct {
	UnitNumber int
	Address    string
	ZillowURL  *string
	RedfinURL  *string
}

// LoadRoster reads the property roster CSV. The file carries a header row
// with address, unit_number, zillow_url, and redfin_url columns. Any
// malformed row fails the whole load; the roster is curated by hand and a
// silent skip would hide a typo until captures go missing.
func LoadRoster(path string) ([]RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"address", "unit_number"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("roster is missing the %q column", required)
		}
	}

	var entries []RosterEntry
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster row %d: %w", line+1, err)
		}
		line++

		unit, err := normalize.UnitNumber(field(row, col, "unit_number"))
		if err != nil {
			return nil, fmt.Errorf("roster row %d: %w", line, err)
		}
		address := normalize.Address(field(row, col, "address"))
		if address == "" {
			return nil, fmt.Errorf("roster row %d: empty address", line)
		}

		entries = append(entries, RosterEntry{
			UnitNumber: unit,
			Address:    address,
			ZillowURL:  optional(field(row, col, "zillow_url")),
			RedfinURL:  optional(field(row, col, "redfin_url")),
		})
	}
	return entries, nil
}

// PopulateURLs fills empty listing URLs from the address, the way each
// site resolves address-only lookups. Existing URLs are left alone.
func PopulateURLs(entries []RosterEntry, logger *logrus.Logger) []RosterEntry {
	out := append([]RosterEntry(nil), entries...)
	for i := range out {
		if out[i].ZillowURL == nil {
			u := config.BuildZillowURL(out[i].Address)
			out[i].ZillowURL = &u
		}
		if out[i].RedfinURL == nil {
			u, err := config.BuildRedfinURL(out[i].Address)
			if err != nil {
				logger.WithError(err).WithField("unit", out[i].UnitNumber).
					Warn("Cannot derive Redfin URL from address")
				continue
			}
			out[i].RedfinURL = &u
		}
	}
	return out
}

// LoadSalesCSV reads the authoritative sale ledger. The file is headerless
// and multiplexes record types in its first column; only SALE rows become
// records. Rows that cannot be normalized are skipped and logged.
func LoadSalesCSV(path string, logger *logrus.Logger) ([]models.SaleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sales ledger: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records []models.SaleRecord
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.WithError(err).WithField("line", line).Warn("Skipping malformed ledger row")
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) != "SALE" {
			continue
		}
		if len(row) < 4 {
			logger.WithField("line", line).Warn("Skipping short SALE row")
			continue
		}

		rec, err := normalize.Record(normalize.RawSale{
			Unit:   row[1],
			Date:   row[2],
			Price:  row[3],
			Source: models.SaleSourceHOA,
		})
		if err != nil {
			logger.WithError(err).WithField("line", line).Warn("Skipping unparseable sale row")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

type scrapedSale struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// LoadScrapedHistory reads the per-source sale histories dump, keyed by
// source then unit number. A missing file is an empty history, not an
// error: scraping simply has not run yet. Output slices are sorted by
// unit, date, price so reloading the same file always merges identically.
func LoadScrapedHistory(path string, logger *logrus.Logger) (map[models.SaleSource][]models.SaleRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[models.SaleSource][]models.SaleRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped history: %w", err)
	}

	var raw map[string]map[string][]scrapedSale
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode scraped history: %w", err)
	}

	out := make(map[models.SaleSource][]models.SaleRecord, len(raw))
	for sourceKey, units := range raw {
		source := models.SaleSource(sourceKey)
		if !source.IsValid() {
			logger.WithField("source", sourceKey).Warn("Skipping unknown sale source in scraped history")
			continue
		}
		var records []models.SaleRecord
		for unitKey, sales := range units {
			unit, err := strconv.Atoi(unitKey)
			if err != nil || unit <= 0 {
				logger.WithFields(logrus.Fields{"source": sourceKey, "unit": unitKey}).
					Warn("Skipping invalid unit key in scraped history")
				continue
			}
			for _, sale := range sales {
				date, err := normalize.Date(sale.Date)
				if err != nil {
					logger.WithError(err).WithFields(logrus.Fields{"source": sourceKey, "unit": unit}).
						Warn("Skipping scraped sale with unparseable date")
					continue
				}
				if sale.Price <= 0 {
					logger.WithFields(logrus.Fields{"source": sourceKey, "unit": unit, "date": date}).
						Warn("Skipping scraped sale with non-positive price")
					continue
				}
				records = append(records, models.SaleRecord{
					Unit:   unit,
					Date:   date,
					Price:  sale.Price,
					Source: source,
				})
			}
		}
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].Unit != records[j].Unit {
				return records[i].Unit < records[j].Unit
			}
			if records[i].Date != records[j].Date {
				return records[i].Date < records[j].Date
			}
			return records[i].Price < records[j].Price
		})
		out[source] = records
	}
	return out, nil
}

// SeedStore upserts roster entries into the store and returns how many
// were processed.
func SeedStore(store *storage.Store, entries []RosterEntry, logger *logrus.Logger) (int, error) {
	count := 0
	for _, entry := range entries {
		if _, err := store.GetOrCreateProperty(entry.UnitNumber, entry.Address, entry.ZillowURL, entry.RedfinURL); err != nil {
			return count, fmt.Errorf("failed to seed unit %d: %w", entry.UnitNumber, err)
		}
		count++
	}
	logger.WithField("properties", count).Info("Seeded roster")
	return count, nil
}

// SeedSales records merged sale records against their units. Sales for
// units not on the roster are skipped and logged; duplicates already on
// record count as skips, not failures.
func SeedSales(store *storage.Store, records []models.SaleRecord, logger *logrus.Logger) (added, skipped int, err error) {
	for _, rec := range records {
		prop, ok, err := store.PropertyByUnit(rec.Unit)
		if err != nil {
			return added, skipped, err
		}
		if !ok {
			skipped++
			logger.WithFields(logrus.Fields{"unit": rec.Unit, "date": rec.Date}).
				Warn("Skipping sale for unit not on the roster")
			continue
		}

		sale := &models.Sale{
			PropertyID: prop.ID,
			SalePrice:  rec.Price,
			SaleDate:   rec.Date,
			Source:     rec.Source,
		}
		switch err := store.AddSale(sale); {
		case errors.Is(err, storage.ErrDuplicateSale):
			skipped++
		case err != nil:
			return added, skipped, fmt.Errorf("failed to record sale for unit %d on %s: %w", rec.Unit, rec.Date, err)
		default:
			added++
		}
	}
	logger.WithFields(logrus.Fields{"added": added, "skipped": skipped}).Info("Seeded sales")
	return added, skipped, nil
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
