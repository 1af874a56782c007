// Package normalize canonicalizes raw sale rows before they enter the
// ledger. Every helper is idempotent: feeding its own output back in
// yields the same value, so records can be re-normalized safely.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"woodgate/tracker/internal/models"
)

// ErrAmbiguousInput marks a field that could not be canonicalized. Manual
// entry paths surface it to the caller; bulk loaders skip the row and log.
var ErrAmbiguousInput = errors.New("ambiguous input")

// dateLayouts are tried in order. The canonical layout comes first so
// already-normal dates short-circuit.
var dateLayouts = []string{
	models.DateLayout,
	"2006-1-2",
	"1/2/2006",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
}

// RawSale is one unvalidated row as read from a ledger file or scrape dump.
type RawSale struct {
	Unit   string
	Date   string
	Price  string
	Source models.SaleSource
}

// Record canonicalizes a raw row into a SaleRecord. The source must already
// be one of the configured sale sources; tagging happens at the load site.
func Record(raw RawSale) (models.SaleRecord, error) {
	if !raw.Source.IsValid() {
		return models.SaleRecord{}, fmt.Errorf("%w: unknown sale source %q", ErrAmbiguousInput, raw.Source)
	}
	unit, err := UnitNumber(raw.Unit)
	if err != nil {
		return models.SaleRecord{}, err
	}
	date, err := Date(raw.Date)
	if err != nil {
		return models.SaleRecord{}, err
	}
	price, err := Price(raw.Price)
	if err != nil {
		return models.SaleRecord{}, err
	}
	return models.SaleRecord{
		Unit:   unit,
		Date:   date,
		Price:  price,
		Source: raw.Source,
	}, nil
}

// UnitNumber parses a unit designator ("5", "Unit 5", "#12") into its
// positive integer form.
func UnitNumber(raw string) (int, error) {
	cleaned := stripQuotes(raw)
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "#"))
	lower := strings.ToLower(cleaned)
	for _, prefix := range []string{"unit", "apt"} {
		if strings.HasPrefix(lower, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}
	unit, err := strconv.Atoi(cleaned)
	if err != nil || unit <= 0 {
		return 0, fmt.Errorf("%w: unit %q", ErrAmbiguousInput, raw)
	}
	return unit, nil
}

// Date parses a date in any of the accepted layouts and returns it in the
// canonical YYYY-MM-DD form.
func Date(raw string) (string, error) {
	cleaned := stripQuotes(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty date", ErrAmbiguousInput)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(models.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized date %q", ErrAmbiguousInput, raw)
}

// Price parses a price string into dollars. Handles currency symbols,
// thousands separators, and K/M shorthand ("$425K", "1.2M"). The result
// must be positive; zero and negative prices are rejected here so nothing
// downstream has to divide-by-zero guard.
func Price(raw string) (float64, error) {
	cleaned := stripQuotes(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, ",", ""))
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty price", ErrAmbiguousInput)
	}

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(cleaned, "K"), strings.HasSuffix(cleaned, "k"):
		multiplier = decimal.NewFromInt(1000)
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-1])
	case strings.HasSuffix(cleaned, "M"), strings.HasSuffix(cleaned, "m"):
		multiplier = decimal.NewFromInt(1000000)
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-1])
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable price %q", ErrAmbiguousInput, raw)
	}
	price := value.Mul(multiplier).InexactFloat64()
	if price <= 0 {
		return 0, fmt.Errorf("%w: price %q is not positive", ErrAmbiguousInput, raw)
	}
	return price, nil
}

// Address drops commas and collapses runs of whitespace so the same street
// address always keys the same property.
func Address(raw string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
}

func stripQuotes(raw string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
}
