package models

import "time"

// TelegramConfig stores the bot credentials and basic settings
type TelegramConfig struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	IsEnabled bool      `json:"is_enabled"`
	BotToken  string    `gorm:"size:128" json:"bot_token"`
	ChatID    string    `gorm:"size:64" json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TelegramConfigRequest is used when updating the configuration
type TelegramConfigRequest struct {
	IsEnabled bool   `json:"is_enabled"`
	BotToken  string `json:"bot_token"`
	ChatID    string `json:"chat_id"`
}

// AlertFilters stores the staleness-notification filter settings
type AlertFilters struct {
	Units      []int            `json:"units"`
	Sources    []EstimateSource `json:"sources"`
	MinGapDays *int             `json:"min_gap_days"`
}

// IsAlertAllowed checks if a stale alert matches the filter criteria
func (f *AlertFilters) IsAlertAllowed(alert *StaleAlert) bool {
	if f == nil {
		return true // No filters means allow all
	}

	// Check unit allowlist
	if len(f.Units) > 0 {
		allowed := false
		for _, unit := range f.Units {
			if unit == alert.UnitNumber {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	// Check source allowlist
	if len(f.Sources) > 0 {
		allowed := false
		for _, source := range f.Sources {
			if source == alert.Source {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	// Check minimum gap between the sale and the last capture. An alert
	// with no estimate date at all is always wide enough.
	if f.MinGapDays != nil && alert.EstimateDate != nil {
		saleDate, err1 := time.Parse(DateLayout, alert.SaleDate)
		estDate, err2 := time.Parse(DateLayout, *alert.EstimateDate)
		if err1 == nil && err2 == nil {
			gap := int(saleDate.Sub(estDate).Hours() / 24)
			if gap < *f.MinGapDays {
				return false
			}
		}
	}

	return true
}
