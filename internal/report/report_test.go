package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{410000, "410,000"},
		{410500.4, "410,500"},
		{1234567, "1,234,567"},
		{-5000, "-5,000"},
		{6666.67, "6,667"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.in), "FormatPrice(%v)", tt.in)
	}
}

func TestRenderAccuracy(t *testing.T) {
	stats := map[models.EstimateSource]models.SourceStats{
		models.SourceZillow: {
			Count:          3,
			MeanError:      6666.67,
			MedianError:    10000,
			MeanPctError:   1.6,
			MedianPctError: 2.4,
			StdError:       floatPtr(10408.33),
			StdPctError:    floatPtr(2.5),
		},
		models.SourceRedfin: {
			Count:          1,
			MeanError:      -5000,
			MedianError:    -5000,
			MeanPctError:   -1.2,
			MedianPctError: -1.2,
		},
	}

	out := RenderAccuracy(stats)

	assert.Contains(t, out, "=== Woodgate Estimate Accuracy Report ===")
	assert.Contains(t, out, "--- Zillow ---")
	assert.Contains(t, out, "Comparisons:        3")
	assert.Contains(t, out, "Mean Error:         $+6,667")
	assert.Contains(t, out, "Median Error:       $+10,000")
	assert.Contains(t, out, "Mean % Error:       +1.6%")
	assert.Contains(t, out, "Std Dev Error:      $10,408")
	assert.Contains(t, out, "Std Dev % Error:    2.5%")

	assert.Contains(t, out, "--- Redfin ---")
	assert.Contains(t, out, "Mean Error:         $-5,000")
	assert.Contains(t, out, "n/a (one comparison)")
}

func TestRenderAccuracyNoPairs(t *testing.T) {
	out := RenderAccuracy(nil)
	assert.Contains(t, out, "No sales data with matching estimates yet.")
	assert.NotContains(t, out, "---", "no per-source blocks when nothing matched")
}

func TestRenderStaleAlerts(t *testing.T) {
	alerts := []models.StaleAlert{
		{
			UnitNumber:   5,
			Source:       models.SourceZillow,
			SaleDate:     "2024-03-01",
			SalePrice:    410000,
			EstimateDate: strPtr("2024-01-15"),
		},
		{
			UnitNumber: 9,
			Source:     models.SourceRedfin,
			SaleDate:   "2023-07-10",
			SalePrice:  395000,
		},
	}

	out := RenderStaleAlerts(alerts)

	assert.Contains(t, out, "Stale units (2)")
	assert.Contains(t, out, "Unit   5 | sold 2024-03-01 for $410,000 | Zillow last captured 2024-01-15")
	assert.Contains(t, out, "Unit   9 | sold 2023-07-10 for $395,000 | Redfin never captured")
}

func TestRenderStaleAlertsEmpty(t *testing.T) {
	assert.Contains(t, RenderStaleAlerts(nil), "No stale units")
}

func TestBuildStatus(t *testing.T) {
	url := "https://www.zillow.com/homedetails/5_zpid/"
	props := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: &url},
		{ID: 2, UnitNumber: 7},
	}
	older := time.Date(2026, 8, 19, 6, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	captures := map[uint]*time.Time{1: &newer, 2: &older, 3: nil}

	s := BuildStatus(props, 31, 480, captures)

	assert.Equal(t, 2, s.Properties)
	assert.Equal(t, 1, s.WithURLs)
	assert.Equal(t, 31, s.Sales)
	assert.Equal(t, 480, s.Estimates)
	require.NotNil(t, s.LastCapture)
	assert.Equal(t, newer, *s.LastCapture)
}

func TestRenderStatus(t *testing.T) {
	last := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	out := RenderStatus(Status{Properties: 24, WithURLs: 20, Estimates: 480, Sales: 31, LastCapture: &last})

	assert.Contains(t, out, "Properties:   24 (20 with URLs)")
	assert.Contains(t, out, "Estimates:    480")
	assert.Contains(t, out, "Sales:        31")
	assert.Contains(t, out, "Last capture: 2026-08-20 06:00:00")

	assert.NotContains(t, RenderStatus(Status{}), "Last capture")
}

func TestRenderSchedule(t *testing.T) {
	last := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Property{
		{ID: 1, UnitNumber: 5, Address: "123 Woodgate Ln Unit 5"},
		{ID: 3, UnitNumber: 12, Address: "123 Woodgate Ln Unit 12"},
	}
	captures := map[uint]*time.Time{3: &last}

	out := RenderSchedule(batch, captures)

	assert.Contains(t, out, "Next capture batch (2 properties):")
	assert.Contains(t, out, " 1. Unit   5 | 123 Woodgate Ln Unit 5 | never captured")
	assert.Contains(t, out, " 2. Unit  12 | 123 Woodgate Ln Unit 12 | last captured 2023-06-01 00:00")
}

func TestRenderScheduleNothingEligible(t *testing.T) {
	assert.Contains(t, RenderSchedule(nil, nil), "Nothing eligible for capture")
}
