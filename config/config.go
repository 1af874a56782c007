package config

import (
	"strings"

	"github.com/caarlos0/env/v6"

	"woodgate/tracker/internal/models"
)

type Config struct {
	// Database configuration
	Database struct {
		// Path to the SQLite database file
		Path string `env:"WOODGATE_DB_PATH" envDefault:"data/woodgate.db"`
	}

	// Roster and ledger input files
	Roster struct {
		// Manual property roster (unit number, address, listing URLs)
		PropertiesCSV string `env:"WOODGATE_PROPERTIES_CSV" envDefault:"properties.csv"`

		// Authoritative sale ledger maintained by hand
		SalesCSV string `env:"WOODGATE_SALES_CSV" envDefault:"hoa_sales.csv"`

		// Scraped per-source sale histories
		ScrapedSalesJSON string `env:"WOODGATE_SCRAPED_SALES" envDefault:"data/scraped_sales_history.json"`
	}

	// Collector configuration
	Collector struct {
		// Number of properties per capture batch
		BatchSize int `env:"COLLECTOR_BATCH_SIZE" envDefault:"10"`

		// Bounds of the randomized delay between fetches (in seconds)
		DelayMinSeconds float64 `env:"COLLECTOR_DELAY_MIN" envDefault:"2"`
		DelayMaxSeconds float64 `env:"COLLECTOR_DELAY_MAX" envDefault:"5"`

		// Sustained request rate across all sources
		RequestsPerSecond float64 `env:"COLLECTOR_RATE_LIMIT" envDefault:"0.5"`

		// Per-request timeout in seconds
		TimeoutSeconds int `env:"COLLECTOR_TIMEOUT" envDefault:"15"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of capture results buffered before persisting
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"50"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// HTTP API configuration
	HTTP struct {
		Addr         string   `env:"HTTP_ADDR" envDefault:":5250"`
		AllowOrigins []string `env:"HTTP_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	// Scheduler configuration
	Scheduler struct {
		// Hour of day (local time) for the daily capture run
		CaptureHour int `env:"SCHEDULE_CAPTURE_HOUR" envDefault:"6"`
	}

	// Staleness alert filters; all empty means every alert is sent
	Alerts struct {
		// Unit allowlist for notifications
		Units []int `env:"ALERT_UNITS" envSeparator:","`

		// Source allowlist for notifications
		Sources []string `env:"ALERT_SOURCES" envSeparator:","`

		// Minimum days between a sale and the newest capture before notifying
		MinGapDays int `env:"ALERT_MIN_GAP_DAYS" envDefault:"0"`
	}

	// Export configuration
	Export struct {
		// Directory the dashboard feed is written to
		DocsDir string `env:"WOODGATE_DOCS_DIR" envDefault:"docs"`

		// Geocode cache directory; empty means a per-user temp dir
		GeocodeCacheDir string `env:"WOODGATE_GEOCODE_CACHE" envDefault:""`

		// Maximum changelog entries preserved in the feed
		ChangelogLimit int `env:"WOODGATE_CHANGELOG_LIMIT" envDefault:"200"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AlertFilters converts the alert settings into notification filters.
// Returns nil when nothing is configured, which allows every alert.
func (c *Config) AlertFilters() *models.AlertFilters {
	if len(c.Alerts.Units) == 0 && len(c.Alerts.Sources) == 0 && c.Alerts.MinGapDays <= 0 {
		return nil
	}

	filters := &models.AlertFilters{Units: c.Alerts.Units}
	for _, raw := range c.Alerts.Sources {
		source := models.EstimateSource(strings.ToLower(strings.TrimSpace(raw)))
		if source.IsValid() {
			filters.Sources = append(filters.Sources, source)
		}
	}
	if c.Alerts.MinGapDays > 0 {
		gap := c.Alerts.MinGapDays
		filters.MinGapDays = &gap
	}
	return filters
}
