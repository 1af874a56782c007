package report

import (
	"fmt"
	"sort"
	"strings"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/reconcile"
)

// Match pairs an authoritative ledger record with the scraped record that
// describes the same transaction.
type Match struct {
	Ledger  models.SaleRecord
	Scraped models.SaleRecord
}

// Mismatch reports whether the paired records disagree on date or price.
func (m Match) Mismatch() bool {
	return m.Ledger.Date != m.Scraped.Date || m.Ledger.Price != m.Scraped.Price
}

// NewSale is a scraped record with no counterpart in the ledger.
// Corroborated means at least one other scraped source reports the same
// transaction.
type NewSale struct {
	Record       models.SaleRecord
	Corroborated bool
}

// Comparison is the outcome of reconciling scraped sale histories against
// the authoritative ledger.
type Comparison struct {
	LedgerCount   int
	SourceCounts  map[models.SaleSource]int
	Matches       []Match
	NewSales      []NewSale
	MissingOnline []models.SaleRecord
}

// Compare reconciles scraped per-source sale histories against the
// authoritative ledger, unit by unit, using the same duplicate rule as the
// merger. Ledger records pair greedily with scraped records in source
// priority order; scraped records that pair with nothing become new-sale
// candidates, with later-source duplicates collapsed into the first
// report; ledger records that pair with nothing are flagged missing.
func Compare(ledger []models.SaleRecord, scraped map[models.SaleSource][]models.SaleRecord) Comparison {
	out := Comparison{
		LedgerCount:  len(ledger),
		SourceCounts: make(map[models.SaleSource]int),
	}

	var supplementary []models.SaleSource
	for _, spec := range config.SaleSources {
		if spec.Authoritative {
			continue
		}
		supplementary = append(supplementary, spec.Source)
		out.SourceCounts[spec.Source] = len(scraped[spec.Source])
	}

	ledgerByUnit := groupByUnit(ledger)
	scrapedByUnit := make(map[models.SaleSource]map[int][]models.SaleRecord, len(supplementary))
	unitSet := make(map[int]struct{})
	for unit := range ledgerByUnit {
		unitSet[unit] = struct{}{}
	}
	for _, source := range supplementary {
		perUnit := groupByUnit(dedupe(scraped[source]))
		scrapedByUnit[source] = perUnit
		for unit := range perUnit {
			unitSet[unit] = struct{}{}
		}
	}
	units := make([]int, 0, len(unitSet))
	for unit := range unitSet {
		units = append(units, unit)
	}
	sort.Ints(units)

	for _, unit := range units {
		ledgerRecs := ledgerByUnit[unit]
		ledgerMatched := make([]bool, len(ledgerRecs))
		unmatched := make(map[models.SaleSource][]models.SaleRecord, len(supplementary))

		for _, source := range supplementary {
			recs := scrapedByUnit[source][unit]
			matched := make([]bool, len(recs))
			for li, lrec := range ledgerRecs {
				if ledgerMatched[li] {
					continue
				}
				for ri, rec := range recs {
					if matched[ri] {
						continue
					}
					if reconcile.Duplicate(lrec, rec) {
						ledgerMatched[li] = true
						matched[ri] = true
						out.Matches = append(out.Matches, Match{Ledger: lrec, Scraped: rec})
						break
					}
				}
			}
			for ri, rec := range recs {
				if !matched[ri] {
					unmatched[source] = append(unmatched[source], rec)
				}
			}
		}

		var newForUnit []NewSale
		for _, source := range supplementary {
			for _, rec := range unmatched[source] {
				if duplicatesReported(newForUnit, rec) {
					continue
				}
				corroborated := false
				for _, other := range supplementary {
					if other == source || corroborated {
						continue
					}
					for _, cand := range scrapedByUnit[other][unit] {
						if reconcile.Duplicate(rec, cand) {
							corroborated = true
							break
						}
					}
				}
				newForUnit = append(newForUnit, NewSale{Record: rec, Corroborated: corroborated})
			}
		}
		out.NewSales = append(out.NewSales, newForUnit...)

		for li, lrec := range ledgerRecs {
			if !ledgerMatched[li] {
				out.MissingOnline = append(out.MissingOnline, lrec)
			}
		}
	}

	sort.SliceStable(out.Matches, func(i, j int) bool {
		if out.Matches[i].Ledger.Unit != out.Matches[j].Ledger.Unit {
			return out.Matches[i].Ledger.Unit < out.Matches[j].Ledger.Unit
		}
		return out.Matches[i].Ledger.Date < out.Matches[j].Ledger.Date
	})
	sort.SliceStable(out.NewSales, func(i, j int) bool {
		if out.NewSales[i].Record.Unit != out.NewSales[j].Record.Unit {
			return out.NewSales[i].Record.Unit < out.NewSales[j].Record.Unit
		}
		return out.NewSales[i].Record.Date < out.NewSales[j].Record.Date
	})
	sort.SliceStable(out.MissingOnline, func(i, j int) bool {
		if out.MissingOnline[i].Unit != out.MissingOnline[j].Unit {
			return out.MissingOnline[i].Unit < out.MissingOnline[j].Unit
		}
		return out.MissingOnline[i].Date < out.MissingOnline[j].Date
	})
	return out
}

// RenderComparison formats a Comparison as the sales comparison report.
func RenderComparison(c Comparison) string {
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("WOODGATE SALES COMPARISON REPORT\n")
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Ledger records: %d sales\n", c.LedgerCount)
	for _, spec := range config.SaleSources {
		if spec.Authoritative {
			continue
		}
		fmt.Fprintf(&b, "%s records: %d sales\n", titleCase(string(spec.Source)), c.SourceCounts[spec.Source])
	}
	b.WriteString("\n")

	exact := 0
	for _, m := range c.Matches {
		if !m.Mismatch() {
			exact++
		}
	}
	fmt.Fprintf(&b, "Exact matches: %d\n", exact)
	fmt.Fprintf(&b, "Mismatches (same sale, different date or price): %d\n", len(c.Matches)-exact)
	fmt.Fprintf(&b, "New sales (online but not in ledger): %d\n", len(c.NewSales))
	fmt.Fprintf(&b, "Missing online (in ledger but not found): %d\n", len(c.MissingOnline))
	b.WriteString("\n")

	var mismatches []Match
	for _, m := range c.Matches {
		if m.Mismatch() {
			mismatches = append(mismatches, m)
		}
	}
	if len(mismatches) > 0 {
		b.WriteString(thin + "\n")
		b.WriteString("MISMATCHES (date and/or price differ)\n")
		b.WriteString(thin + "\n")
		for _, m := range mismatches {
			source := titleCase(string(m.Scraped.Source))
			var notes []string
			if m.Ledger.Date != m.Scraped.Date {
				notes = append(notes, fmt.Sprintf("date: ledger %s vs %s %s", m.Ledger.Date, source, m.Scraped.Date))
			}
			if m.Ledger.Price != m.Scraped.Price {
				notes = append(notes, fmt.Sprintf("price: ledger $%s vs %s $%s",
					FormatPrice(m.Ledger.Price), source, FormatPrice(m.Scraped.Price)))
			}
			fmt.Fprintf(&b, "  Unit %3d | $%9s | %s\n",
				m.Ledger.Unit, FormatPrice(m.Ledger.Price), strings.Join(notes, " | "))
		}
		b.WriteString("\n")
	}

	if len(c.NewSales) > 0 {
		b.WriteString(thin + "\n")
		b.WriteString("NEW SALES (found online, not in the ledger)\n")
		b.WriteString(thin + "\n")
		for _, ns := range c.NewSales {
			corr := ""
			if ns.Corroborated {
				corr = " [corroborated]"
			}
			fmt.Fprintf(&b, "  Unit %3d | %s | $%9s | %s%s\n",
				ns.Record.Unit, ns.Record.Date, FormatPrice(ns.Record.Price),
				titleCase(string(ns.Record.Source)), corr)
		}
		b.WriteString("\n")
	}

	if len(c.MissingOnline) > 0 {
		b.WriteString(thin + "\n")
		b.WriteString("MISSING ONLINE (in the ledger but not found on any source)\n")
		b.WriteString(thin + "\n")
		for _, rec := range c.MissingOnline {
			fmt.Fprintf(&b, "  Unit %3d | %s | $%9s\n", rec.Unit, rec.Date, FormatPrice(rec.Price))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func groupByUnit(records []models.SaleRecord) map[int][]models.SaleRecord {
	grouped := make(map[int][]models.SaleRecord)
	for _, rec := range records {
		grouped[rec.Unit] = append(grouped[rec.Unit], rec)
	}
	return grouped
}

// dedupe drops repeated (unit, date, price) rows within one source,
// keeping first-occurrence order.
func dedupe(records []models.SaleRecord) []models.SaleRecord {
	type key struct {
		unit  int
		date  string
		price float64
	}
	seen := make(map[key]struct{}, len(records))
	out := make([]models.SaleRecord, 0, len(records))
	for _, rec := range records {
		k := key{rec.Unit, rec.Date, rec.Price}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func duplicatesReported(sales []NewSale, rec models.SaleRecord) bool {
	for _, ns := range sales {
		if reconcile.Duplicate(ns.Record, rec) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
