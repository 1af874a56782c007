package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/internal/models"
)

func urlPtr(s string) *string { return &s }

func capturedOn(s string) *time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNextBatchOrdersByStaleness(t *testing.T) {
	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
		{ID: 2, UnitNumber: 7, ZillowURL: urlPtr("https://z/7")},
		{ID: 3, UnitNumber: 9, ZillowURL: urlPtr("https://z/9")},
	}
	lastCaptures := map[uint]*time.Time{
		1: nil,
		2: capturedOn("2024-01-01"),
		3: capturedOn("2023-06-01"),
	}

	batch := NextBatch(properties, lastCaptures, 2)
	require.Len(t, batch, 2)
	assert.Equal(t, uint(1), batch[0].ID, "never captured goes first")
	assert.Equal(t, uint(3), batch[1].ID, "then the stalest capture")
}

func TestNextBatchSkipsUnconfiguredProperties(t *testing.T) {
	properties := []models.Property{
		{ID: 1, UnitNumber: 5}, // no URLs, cannot be captured
		{ID: 2, UnitNumber: 7, RedfinURL: urlPtr("https://r/7")},
	}

	batch := NextBatch(properties, map[uint]*time.Time{}, 10)
	require.Len(t, batch, 1)
	assert.Equal(t, uint(2), batch[0].ID)
}

func TestNextBatchTiesKeepRosterOrder(t *testing.T) {
	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
		{ID: 2, UnitNumber: 7, ZillowURL: urlPtr("https://z/7")},
		{ID: 3, UnitNumber: 9, ZillowURL: urlPtr("https://z/9")},
	}
	same := capturedOn("2024-01-01")
	lastCaptures := map[uint]*time.Time{1: same, 2: same, 3: same}

	batch := NextBatch(properties, lastCaptures, 3)
	require.Len(t, batch, 3)
	assert.Equal(t, []uint{1, 2, 3}, []uint{batch[0].ID, batch[1].ID, batch[2].ID})
}

func TestNextBatchLimits(t *testing.T) {
	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
	}

	assert.Len(t, NextBatch(properties, nil, 10), 1, "limit above pool size returns the whole pool")
	assert.Empty(t, NextBatch(properties, nil, 0))
	assert.Empty(t, NextBatch(nil, nil, 5))
}

func TestCaptureBefore(t *testing.T) {
	earlier := capturedOn("2023-06-01")
	later := capturedOn("2024-01-01")

	assert.True(t, captureBefore(nil, later), "absent sorts before any real time")
	assert.False(t, captureBefore(later, nil))
	assert.False(t, captureBefore(nil, nil), "two absents are equal, not ordered")
	assert.True(t, captureBefore(earlier, later))
	assert.False(t, captureBefore(later, earlier))
	assert.False(t, captureBefore(earlier, earlier))
}
