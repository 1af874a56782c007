// Package report renders computed statistics and reconciliation outcomes
// as terminal text. Everything here is a pure formatter: the inputs are
// already-computed values and nothing is fetched or persisted.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
)

// FormatPrice renders a dollar amount with thousands separators and no
// fraction digits.
func FormatPrice(v float64) string {
	digits := strconv.FormatFloat(math.Abs(v), 'f', 0, 64)
	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func signedPrice(v float64) string {
	if v >= 0 {
		return "+" + FormatPrice(v)
	}
	return FormatPrice(v)
}

// RenderAccuracy formats per-source accuracy statistics. Sources with no
// matched pairs are absent from the input map and are not printed; when
// nothing matched at all the report says so instead of printing blanks.
func RenderAccuracy(stats map[models.EstimateSource]models.SourceStats) string {
	var b strings.Builder
	b.WriteString("=== Woodgate Estimate Accuracy Report ===\n\n")
	if len(stats) == 0 {
		b.WriteString("No sales data with matching estimates yet.\n")
		b.WriteString("Record sales with 'tracker add-sale' and let a capture batch run first.\n")
		return b.String()
	}
	for _, spec := range config.EstimateSources {
		s, ok := stats[spec.Source]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n", spec.Label)
		fmt.Fprintf(&b, "  Comparisons:        %d\n", s.Count)
		fmt.Fprintf(&b, "  Mean Error:         $%s\n", signedPrice(s.MeanError))
		fmt.Fprintf(&b, "  Median Error:       $%s\n", signedPrice(s.MedianError))
		fmt.Fprintf(&b, "  Mean %% Error:       %+.1f%%\n", s.MeanPctError)
		fmt.Fprintf(&b, "  Median %% Error:     %+.1f%%\n", s.MedianPctError)
		if s.StdError != nil && s.StdPctError != nil {
			fmt.Fprintf(&b, "  Std Dev Error:      $%s\n", FormatPrice(*s.StdError))
			fmt.Fprintf(&b, "  Std Dev %% Error:    %.1f%%\n", *s.StdPctError)
		} else {
			b.WriteString("  Std Dev Error:      n/a (one comparison)\n")
			b.WriteString("  Std Dev % Error:    n/a (one comparison)\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderStaleAlerts formats the staleness flag list.
func RenderStaleAlerts(alerts []models.StaleAlert) string {
	if len(alerts) == 0 {
		return "No stale units: every recorded sale has a newer estimate capture.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Stale units (%d): latest sale postdates the latest estimate capture\n", len(alerts))
	for _, a := range alerts {
		capture := "never captured"
		if a.EstimateDate != nil {
			capture = "last captured " + *a.EstimateDate
		}
		fmt.Fprintf(&b, "  Unit %3d | sold %s for $%s | %s %s\n",
			a.UnitNumber, a.SaleDate, FormatPrice(a.SalePrice), a.Source.Label(), capture)
	}
	return b.String()
}

// Status summarizes what the store holds right now.
type Status struct {
	Properties  int        `json:"properties"`
	WithURLs    int        `json:"with_urls"`
	Estimates   int        `json:"estimates"`
	Sales       int        `json:"sales"`
	LastCapture *time.Time `json:"last_capture,omitempty"`
}

// BuildStatus folds store snapshots into a Status.
func BuildStatus(props []models.Property, sales, estimates int64, lastCaptures map[uint]*time.Time) Status {
	withURLs := 0
	for _, p := range props {
		if p.HasSourceURL() {
			withURLs++
		}
	}
	var latest *time.Time
	for _, t := range lastCaptures {
		if t == nil {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = t
		}
	}
	return Status{
		Properties:  len(props),
		WithURLs:    withURLs,
		Estimates:   int(estimates),
		Sales:       int(sales),
		LastCapture: latest,
	}
}

// RenderStatus formats a Status for the terminal.
func RenderStatus(s Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Properties:   %d (%d with URLs)\n", s.Properties, s.WithURLs)
	fmt.Fprintf(&b, "Estimates:    %d\n", s.Estimates)
	fmt.Fprintf(&b, "Sales:        %d\n", s.Sales)
	if s.LastCapture != nil {
		fmt.Fprintf(&b, "Last capture: %s\n", s.LastCapture.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// RenderSchedule formats the next capture batch. An empty batch is an
// explicit outcome, not an error.
func RenderSchedule(batch []models.Property, lastCaptures map[uint]*time.Time) string {
	if len(batch) == 0 {
		return "Nothing eligible for capture: no properties with source URLs configured.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Next capture batch (%d properties):\n", len(batch))
	for i, p := range batch {
		capture := "never captured"
		if t := lastCaptures[p.ID]; t != nil {
			capture = "last captured " + t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "  %2d. Unit %3d | %s | %s\n", i+1, p.UnitNumber, p.Address, capture)
	}
	return b.String()
}
