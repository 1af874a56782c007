package normalize

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/internal/models"
)

func TestDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "already canonical", raw: "2023-05-01", want: "2023-05-01"},
		{name: "us slash", raw: "5/1/2023", want: "2023-05-01"},
		{name: "us slash padded", raw: "05/01/2023", want: "2023-05-01"},
		{name: "two digit year", raw: "1/2/24", want: "2024-01-02"},
		{name: "long month", raw: "May 1, 2023", want: "2023-05-01"},
		{name: "csv quoted", raw: `"2023-05-01"`, want: "2023-05-01"},
		{name: "unpadded iso", raw: "2023-5-1", want: "2023-05-01"},
		{name: "garbage", raw: "next tuesday", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Date(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguousInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "plain", raw: "425000", want: 425000},
		{name: "dollar and commas", raw: "$425,000", want: 425000},
		{name: "csv quoted", raw: `"$425,000"`, want: 425000},
		{name: "thousands shorthand", raw: "425K", want: 425000},
		{name: "millions shorthand", raw: "$1.2M", want: 1200000},
		{name: "decimal dollars", raw: "410000.50", want: 410000.50},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "negative rejected", raw: "-5000", wantErr: true},
		{name: "words rejected", raw: "call for price", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Price(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguousInput)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestUnitNumber(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "bare number", raw: "5", want: 5},
		{name: "unit prefix", raw: "Unit 5", want: 5},
		{name: "lowercase prefix", raw: "unit 12", want: 12},
		{name: "hash prefix", raw: "#12", want: 12},
		{name: "apt prefix", raw: "Apt 3", want: 3},
		{name: "letter suffix rejected", raw: "5B", wantErr: true},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnitNumber(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguousInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord(t *testing.T) {
	rec, err := Record(RawSale{
		Unit:   "Unit 5",
		Date:   "5/1/2023",
		Price:  `"$410,000"`,
		Source: models.SaleSourceHOA,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SaleRecord{
		Unit:   5,
		Date:   "2023-05-01",
		Price:  410000,
		Source: models.SaleSourceHOA,
	}, rec)

	_, err = Record(RawSale{Unit: "5", Date: "2023-05-01", Price: "410000", Source: "mls"})
	assert.ErrorIs(t, err, ErrAmbiguousInput)
}

// Normalization must be a fixed point: running a canonical record back
// through the parser returns it unchanged.
func TestRecordIdempotent(t *testing.T) {
	first, err := Record(RawSale{
		Unit:   "#7",
		Date:   "January 3, 2024",
		Price:  "$512,500",
		Source: models.SaleSourceRedfin,
	})
	require.NoError(t, err)

	second, err := Record(RawSale{
		Unit:   strconv.Itoa(first.Unit),
		Date:   first.Date,
		Price:  strconv.FormatFloat(first.Price, 'f', -1, 64),
		Source: first.Source,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "111 Woodgate Ln Paoli PA 19301", Address("  111  Woodgate Ln,  Paoli PA 19301 ,"))
	assert.Equal(t, "111 Woodgate Ln Paoli PA 19301", Address("111 Woodgate Ln Paoli PA 19301"))
}
