package config

import (
	"fmt"
	"strings"

	"woodgate/tracker/internal/models"
)

// Merge tolerances for duplicate detection across sale sources. Two records
// with prices differing by more than both bounds are never the same sale;
// prices inside either bound extend date tolerance to DuplicateWindowDays.
// All call sites share this one rule.
const (
	DuplicateWindowDays = 90
	PriceToleranceAbs   = 1000.0
	PriceTolerancePct   = 1.0
)

// SaleSourceSpec describes one sale-record provenance and its merge rank.
// Adding a source is a single row here, not a hunt through the merge logic.
type SaleSourceSpec struct {
	Source        models.SaleSource
	Priority      int // lower merges earlier; 0 is the authoritative ledger
	Authoritative bool
}

// SaleSources is the closed table of supported sale provenances, in merge
// priority order.
var SaleSources = []SaleSourceSpec{
	{Source: models.SaleSourceHOA, Priority: 0, Authoritative: true},
	{Source: models.SaleSourceRedfin, Priority: 1},
	{Source: models.SaleSourceZillow, Priority: 2},
}

// OrderedSaleSources returns sale sources in merge priority order.
func OrderedSaleSources() []models.SaleSource {
	sources := make([]models.SaleSource, len(SaleSources))
	for i, spec := range SaleSources {
		sources[i] = spec.Source
	}
	return sources
}

// SaleSourcePriority returns the merge rank for a source; unknown sources
// rank after every configured one.
func SaleSourcePriority(source models.SaleSource) int {
	for _, spec := range SaleSources {
		if spec.Source == source {
			return spec.Priority
		}
	}
	return len(SaleSources)
}

// AuthoritativeSaleSource returns the ground-truth sale source.
func AuthoritativeSaleSource() models.SaleSource {
	for _, spec := range SaleSources {
		if spec.Authoritative {
			return spec.Source
		}
	}
	return SaleSources[0].Source
}

// EstimateSourceSpec describes one estimate provider.
type EstimateSourceSpec struct {
	Source models.EstimateSource
	Label  string
}

// EstimateSources is the closed table of supported estimate providers.
var EstimateSources = []EstimateSourceSpec{
	{Source: models.SourceZillow, Label: "Zillow"},
	{Source: models.SourceRedfin, Label: "Redfin"},
}

// BuildZillowURL constructs a Zillow listing URL from an address.
// "111 Woodgate Ln Paoli PA 19301" -> ".../homes/111-Woodgate-Ln-Paoli-PA-19301_rb/"
func BuildZillowURL(address string) string {
	cleaned := strings.Join(strings.Fields(strings.ReplaceAll(address, ",", "")), " ")
	slug := strings.ReplaceAll(cleaned, " ", "-")
	return fmt.Sprintf("https://www.zillow.com/homes/%s_rb/", slug)
}

// BuildRedfinURL constructs a Redfin listing URL from an address.
//
// Pattern: https://www.redfin.com/PA/Paoli/111-Woodgate-Ln-19301/home/
// Assumes the address ends with "... City ST ZIP". Without the numeric home
// ID Redfin still resolves the address slug.
func BuildRedfinURL(address string) (string, error) {
	parts := strings.Fields(strings.ReplaceAll(address, ",", ""))
	if len(parts) < 4 {
		return "", fmt.Errorf("address %q too short to derive a Redfin URL", address)
	}
	zip := parts[len(parts)-1]
	state := parts[len(parts)-2]
	city := parts[len(parts)-3]
	streetSlug := strings.Join(parts[:len(parts)-3], "-")
	return fmt.Sprintf("https://www.redfin.com/%s/%s/%s-%s/home/", state, city, streetSlug, zip), nil
}
