package scheduler

import (
	"sort"
	"time"

	"woodgate/tracker/internal/models"
)

// NextBatch picks up to limit properties most in need of a fresh estimate
// capture. Never-captured properties come first, then stalest capture
// first; ties keep roster order. Properties with no source URL configured
// are not eligible.
func NextBatch(properties []models.Property, lastCaptures map[uint]*time.Time, limit int) []models.Property {
	if limit <= 0 {
		return nil
	}

	eligible := make([]models.Property, 0, len(properties))
	for _, prop := range properties {
		if prop.HasSourceURL() {
			eligible = append(eligible, prop)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return captureBefore(lastCaptures[eligible[i].ID], lastCaptures[eligible[j].ID])
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// captureBefore orders last-capture times with absent (never captured)
// strictly first. Two absent times are equal, which lets the stable sort
// fall back to roster order.
func captureBefore(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}
