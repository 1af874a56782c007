package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire format for sale dates. Keeping dates as
// ISO strings means lexicographic order is chronological order, which the
// merge and staleness logic rely on.
const DateLayout = "2006-01-02"

// EstimateSource identifies a third-party valuation provider.
type EstimateSource string

const (
	SourceZillow EstimateSource = "zillow"
	SourceRedfin EstimateSource = "redfin"
)

// AllEstimateSources returns every supported estimate provider.
func AllEstimateSources() []EstimateSource {
	return []EstimateSource{SourceZillow, SourceRedfin}
}

// IsValid checks if an estimate source is recognized.
func (s EstimateSource) IsValid() bool {
	for _, v := range AllEstimateSources() {
		if s == v {
			return true
		}
	}
	return false
}

// Label returns a human-readable label for the source.
func (s EstimateSource) Label() string {
	switch s {
	case SourceZillow:
		return "Zillow"
	case SourceRedfin:
		return "Redfin"
	default:
		return string(s)
	}
}

// SaleSource identifies where a sale record came from. The authoritative
// ledger always outranks scraped histories during merging; the priority
// table lives in config.SaleSources.
type SaleSource string

const (
	SaleSourceHOA    SaleSource = "hoa"
	SaleSourceRedfin SaleSource = "redfin"
	SaleSourceZillow SaleSource = "zillow"
)

// AllSaleSources returns every supported sale-record provenance tag.
func AllSaleSources() []SaleSource {
	return []SaleSource{SaleSourceHOA, SaleSourceRedfin, SaleSourceZillow}
}

// IsValid checks if a sale source is recognized.
func (s SaleSource) IsValid() bool {
	for _, v := range AllSaleSources() {
		if s == v {
			return true
		}
	}
	return false
}

// Property is one physical unit in the tracked complex. Created once from
// the roster; URLs may be updated in place; never deleted.
type Property struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UnitNumber int       `gorm:"uniqueIndex;not null" json:"unit_number"`
	Address    string    `gorm:"uniqueIndex;size:255;not null" json:"address"`
	ZillowURL  *string   `gorm:"size:512" json:"zillow_url,omitempty"`
	RedfinURL  *string   `gorm:"size:512" json:"redfin_url,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SourceURL returns the listing URL for the given estimate source, or ""
// when none is configured.
func (p *Property) SourceURL(source EstimateSource) string {
	switch source {
	case SourceZillow:
		if p.ZillowURL != nil {
			return *p.ZillowURL
		}
	case SourceRedfin:
		if p.RedfinURL != nil {
			return *p.RedfinURL
		}
	}
	return ""
}

// HasSourceURL reports whether at least one estimate source is configured.
// Properties without any URL are a configuration gap: excluded from
// scheduling, never an error.
func (p *Property) HasSourceURL() bool {
	for _, source := range AllEstimateSources() {
		if p.SourceURL(source) != "" {
			return true
		}
	}
	return false
}

// Estimate is one captured third-party valuation. Append-only: never
// mutated or deleted after creation.
type Estimate struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	PropertyID uint           `gorm:"index:idx_estimates_prop_source;not null" json:"property_id"`
	Source     EstimateSource `gorm:"index:idx_estimates_prop_source;size:16;not null" json:"source"`
	Price      float64        `gorm:"not null" json:"price"`
	CapturedAt time.Time      `gorm:"index;not null" json:"captured_at"`
}

// CaptureDate returns the capture timestamp truncated to the canonical
// date form used by sale records.
func (e *Estimate) CaptureDate() string {
	return e.CapturedAt.Format(DateLayout)
}

// Sale is one realized transaction. Immutable once the merge decision that
// produced it is final.
type Sale struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PropertyID  uint       `gorm:"index;not null" json:"property_id"`
	SalePrice   float64    `gorm:"not null" json:"sale_price"`
	AskingPrice *float64   `json:"asking_price,omitempty"`
	SaleDate    string     `gorm:"size:10;index;not null" json:"sale_date"`
	Source      SaleSource `gorm:"size:16;not null;default:hoa" json:"source"`
	RecordedAt  time.Time  `json:"recorded_at"`
}

// Validate enforces the entry invariants for a sale: positive price, a
// parseable date, and a sale date no later than the recorded time. Manual
// entry must reject on error; bulk ingest skips and logs instead.
func (s *Sale) Validate() error {
	if s.SalePrice <= 0 {
		return fmt.Errorf("sale price must be positive, got %.2f", s.SalePrice)
	}
	saleDate, err := time.Parse(DateLayout, s.SaleDate)
	if err != nil {
		return fmt.Errorf("invalid sale date %q: expected YYYY-MM-DD", s.SaleDate)
	}
	if s.AskingPrice != nil && *s.AskingPrice <= 0 {
		return fmt.Errorf("asking price must be positive, got %.2f", *s.AskingPrice)
	}
	if !s.RecordedAt.IsZero() && saleDate.After(s.RecordedAt) {
		return fmt.Errorf("sale date %s is after recorded time %s", s.SaleDate, s.RecordedAt.Format(DateLayout))
	}
	return nil
}

// SaleRecord is the normalized in-memory shape every raw sale row reduces
// to: {unit, date, price, source}. The merge and comparison logic operate
// exclusively on this form.
type SaleRecord struct {
	Unit   int        `json:"unit"`
	Date   string     `json:"date"`
	Price  float64    `json:"price"`
	Source SaleSource `json:"source"`
}

// ParsedDate parses the record's date in the canonical layout.
func (r SaleRecord) ParsedDate() (time.Time, error) {
	return time.Parse(DateLayout, r.Date)
}

// MatchedPair associates a sale with the estimate that was current when it
// happened. Derived on demand, never persisted, so it cannot drift from the
// records it references.
type MatchedPair struct {
	Sale     Sale     `json:"sale"`
	Estimate Estimate `json:"estimate"`
	Error    float64  `json:"error"`
	PctError float64  `json:"pct_error"`
}

// NewMatchedPair computes the error fields for a (sale, estimate) pair.
// Sale prices are validated positive at entry, so the percentage is always
// defined.
func NewMatchedPair(sale Sale, estimate Estimate) MatchedPair {
	diff := estimate.Price - sale.SalePrice
	return MatchedPair{
		Sale:     sale,
		Estimate: estimate,
		Error:    diff,
		PctError: diff / sale.SalePrice * 100,
	}
}

// SourceStats is the per-source accuracy summary. Std fields are pointers:
// with a single observation the sample deviation is undefined and reported
// as absent, never zero.
type SourceStats struct {
	Count          int      `json:"count"`
	MeanError      float64  `json:"mean_error"`
	MedianError    float64  `json:"median_error"`
	MeanPctError   float64  `json:"mean_pct_error"`
	MedianPctError float64  `json:"median_pct_error"`
	StdError       *float64 `json:"std_error,omitempty"`
	StdPctError    *float64 `json:"std_pct_error,omitempty"`
}

// StaleAlert flags a unit whose most recent sale postdates its most recent
// estimate capture for a source.
type StaleAlert struct {
	UnitNumber   int            `json:"unit"`
	Address      string         `json:"address,omitempty"`
	Source       EstimateSource `json:"source"`
	SaleDate     string         `json:"sale_date"`
	SalePrice    float64        `json:"sale_price"`
	EstimateDate *string        `json:"estimate_date"`
}

// CaptureResult is the outcome of one collector fetch. Failures are data,
// not errors: a failed fetch is recorded here and surfaced in the batch
// summary without aborting the rest of the batch.
type CaptureResult struct {
	RunID      string         `json:"run_id"`
	PropertyID uint           `json:"property_id"`
	UnitNumber int            `json:"unit_number"`
	Source     EstimateSource `json:"source"`
	Price      *float64       `json:"price,omitempty"`
	Success    bool           `json:"success"`
	ErrorMsg   string         `json:"error_msg,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
}
