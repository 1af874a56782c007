package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/internal/models"
)

func rec(unit int, date string, price float64, source models.SaleSource) models.SaleRecord {
	return models.SaleRecord{Unit: unit, Date: date, Price: price, Source: source}
}

func TestDuplicate(t *testing.T) {
	tests := []struct {
		name string
		a    models.SaleRecord
		b    models.SaleRecord
		want bool
	}{
		{
			name: "different units never match",
			a:    rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
			b:    rec(6, "2023-05-01", 410000, models.SaleSourceRedfin),
			want: false,
		},
		{
			name: "identical date and price",
			a:    rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
			b:    rec(5, "2023-05-01", 410000, models.SaleSourceRedfin),
			want: true,
		},
		{
			name: "identical date and price with unparseable date",
			a:    rec(5, "unknown", 410000, models.SaleSourceHOA),
			b:    rec(5, "unknown", 410000, models.SaleSourceRedfin),
			want: true,
		},
		{
			name: "large price gap is a distinct transaction",
			a:    rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
			b:    rec(5, "2023-05-01", 460000, models.SaleSourceRedfin),
			want: false,
		},
		{
			name: "small absolute gap within window",
			a:    rec(5, "2023-05-01", 400000, models.SaleSourceHOA),
			b:    rec(5, "2023-06-30", 400500, models.SaleSourceRedfin),
			want: true,
		},
		{
			name: "price gap at exactly one percent stays eligible",
			a:    rec(5, "2023-05-01", 198000, models.SaleSourceHOA),
			b:    rec(5, "2023-05-31", 200000, models.SaleSourceRedfin),
			want: true,
		},
		{
			name: "ninety days apart matches",
			a:    rec(5, "2023-01-01", 400000, models.SaleSourceHOA),
			b:    rec(5, "2023-04-01", 400000, models.SaleSourceRedfin),
			want: true,
		},
		{
			name: "ninety one days apart does not",
			a:    rec(5, "2023-01-01", 400000, models.SaleSourceHOA),
			b:    rec(5, "2023-04-02", 400000, models.SaleSourceRedfin),
			want: false,
		},
		{
			name: "unparseable date with differing price stays distinct",
			a:    rec(5, "unknown", 400000, models.SaleSourceHOA),
			b:    rec(5, "2023-04-02", 400200, models.SaleSourceRedfin),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Duplicate(tt.a, tt.b))
			assert.Equal(t, tt.want, Duplicate(tt.b, tt.a), "duplicate check must be symmetric")
		})
	}
}

// Every pair drawn from a mixed grid must agree in both directions,
// including price gaps that sit exactly on the tolerance boundary.
func TestDuplicateSymmetryGrid(t *testing.T) {
	var records []models.SaleRecord
	for _, unit := range []int{5, 6} {
		for _, date := range []string{"2023-01-01", "2023-02-15", "2023-06-01", "unknown"} {
			for _, price := range []float64{198000, 200000, 201500, 400000} {
				records = append(records, rec(unit, date, price, models.SaleSourceHOA))
			}
		}
	}
	for _, a := range records {
		for _, b := range records {
			assert.Equal(t, Duplicate(a, b), Duplicate(b, a),
				"asymmetric result for %+v vs %+v", a, b)
		}
	}
}

func TestMerge(t *testing.T) {
	hoa := []models.SaleRecord{
		rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
		rec(7, "2023-02-10", 380000, models.SaleSourceHOA),
	}
	scraped := []models.SaleRecord{
		rec(5, "2023-05-15", 410500, models.SaleSourceRedfin), // same sale as the ledger's unit 5
		rec(9, "2023-07-01", 520000, models.SaleSourceRedfin),
		rec(7, "2023-08-20", 380000, models.SaleSourceRedfin), // same price, far outside the window
	}

	merged, err := Merge(hoa, scraped)
	require.NoError(t, err)
	assert.Equal(t, []models.SaleRecord{
		rec(7, "2023-02-10", 380000, models.SaleSourceHOA),
		rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
		rec(9, "2023-07-01", 520000, models.SaleSourceRedfin),
		rec(7, "2023-08-20", 380000, models.SaleSourceRedfin),
	}, merged)
}

func TestMergeIdempotent(t *testing.T) {
	hoa := []models.SaleRecord{rec(5, "2023-05-01", 410000, models.SaleSourceHOA)}
	scraped := []models.SaleRecord{
		rec(5, "2023-05-15", 410500, models.SaleSourceRedfin),
		rec(9, "2023-07-01", 520000, models.SaleSourceRedfin),
	}

	once, err := Merge(hoa, scraped)
	require.NoError(t, err)

	again, err := Merge(once, scraped)
	require.NoError(t, err)
	assert.Equal(t, once, again, "re-merging the same supplement must change nothing")

	passthrough, err := Merge(once)
	require.NoError(t, err)
	assert.Equal(t, once, passthrough)
}

func TestMergeAcrossSupplementarySets(t *testing.T) {
	first := []models.SaleRecord{rec(11, "2023-03-01", 300000, models.SaleSourceRedfin)}
	second := []models.SaleRecord{rec(11, "2023-03-05", 300000, models.SaleSourceRedfin)}

	merged, err := Merge(nil, first, second)
	require.NoError(t, err)
	assert.Len(t, merged, 1, "a record accepted from one supplement suppresses duplicates in later ones")
	assert.Equal(t, "2023-03-01", merged[0].Date)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	hoa := []models.SaleRecord{
		rec(7, "2023-02-10", 380000, models.SaleSourceHOA),
		rec(5, "2023-05-01", 410000, models.SaleSourceHOA),
	}
	hoaCopy := append([]models.SaleRecord(nil), hoa...)
	scraped := []models.SaleRecord{rec(9, "2023-07-01", 520000, models.SaleSourceRedfin)}
	scrapedCopy := append([]models.SaleRecord(nil), scraped...)

	_, err := Merge(hoa, scraped)
	require.NoError(t, err)
	assert.Equal(t, hoaCopy, hoa)
	assert.Equal(t, scrapedCopy, scraped)
}

func TestMergeRejectsNonPositivePrices(t *testing.T) {
	_, err := Merge([]models.SaleRecord{rec(5, "2023-05-01", 0, models.SaleSourceHOA)})
	assert.Error(t, err)

	_, err = Merge(nil, []models.SaleRecord{rec(5, "2023-05-01", -1, models.SaleSourceRedfin)})
	assert.Error(t, err)
}
