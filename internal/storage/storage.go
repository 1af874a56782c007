// Package storage persists the roster, sale ledger, and estimate history
// in SQLite. Estimates and sales are append-only; reconciliation produces
// new rows, never updates.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"woodgate/tracker/internal/metrics"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/reconcile"
)

// ErrDuplicateSale means the submitted sale reconciles to a transaction
// already on record.
var ErrDuplicateSale = errors.New("sale duplicates an existing record")

type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the SQLite database at path and migrates
// the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	return open(dsn)
}

// NewTest opens a private in-memory database, one per call. Intended for
// tests; the uuid keeps parallel tests from sharing state.
func NewTest() (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	return open(dsn)
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Property{},
		&models.Estimate{},
		&models.Sale{},
		&models.TelegramConfig{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreateProperty looks a property up by unit number, creating it on
// first sight. Address and listing URLs refresh in place when the roster
// supplies new values, so re-running a seed never forks a unit.
func (s *Store) GetOrCreateProperty(unit int, address string, zillowURL, redfinURL *string) (*models.Property, error) {
	var prop models.Property
	err := s.db.Where("unit_number = ?", unit).First(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prop = models.Property{
			UnitNumber: unit,
			Address:    address,
			ZillowURL:  zillowURL,
			RedfinURL:  redfinURL,
		}
		if err := s.db.Create(&prop).Error; err != nil {
			return nil, fmt.Errorf("failed to create property for unit %d: %w", unit, err)
		}
		return &prop, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if address != "" && address != prop.Address {
		updates["address"] = address
	}
	if zillowURL != nil && (prop.ZillowURL == nil || *prop.ZillowURL != *zillowURL) {
		updates["zillow_url"] = *zillowURL
	}
	if redfinURL != nil && (prop.RedfinURL == nil || *prop.RedfinURL != *redfinURL) {
		updates["redfin_url"] = *redfinURL
	}
	if len(updates) > 0 {
		if err := s.db.Model(&prop).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update property for unit %d: %w", unit, err)
		}
	}
	return &prop, nil
}

// PropertyByUnit returns (nil, false, nil) when the unit is not on the
// roster; absence is an answer here, not an error.
func (s *Store) PropertyByUnit(unit int) (*models.Property, bool, error) {
	var prop models.Property
	err := s.db.Where("unit_number = ?", unit).First(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &prop, true, nil
}

func (s *Store) ListProperties() ([]models.Property, error) {
	var properties []models.Property
	if err := s.db.Order("unit_number").Find(&properties).Error; err != nil {
		return nil, err
	}
	return properties, nil
}

// UpdateCoordinates stores a geocoding result on the property row.
func (s *Store) UpdateCoordinates(propertyID uint, lat, lng float64) error {
	return s.db.Model(&models.Property{}).Where("id = ?", propertyID).
		Updates(map[string]interface{}{"latitude": lat, "longitude": lng}).Error
}

// AddSale validates the sale and rejects it with ErrDuplicateSale when it
// reconciles to a transaction already recorded for the property.
func (s *Store) AddSale(sale *models.Sale) error {
	if err := sale.Validate(); err != nil {
		return err
	}
	var prop models.Property
	if err := s.db.First(&prop, sale.PropertyID).Error; err != nil {
		return fmt.Errorf("failed to load property %d: %w", sale.PropertyID, err)
	}

	existing, err := s.SalesForProperty(sale.PropertyID)
	if err != nil {
		return err
	}
	candidate := saleRecord(prop.UnitNumber, sale)
	for _, onRecord := range existing {
		if reconcile.Duplicate(saleRecord(prop.UnitNumber, &onRecord), candidate) {
			return ErrDuplicateSale
		}
	}

	if sale.RecordedAt.IsZero() {
		sale.RecordedAt = time.Now().UTC()
	}
	if err := s.db.Create(sale).Error; err != nil {
		return err
	}
	metrics.SalesRecorded.Inc()
	return nil
}

func (s *Store) SalesForProperty(propertyID uint) ([]models.Sale, error) {
	var sales []models.Sale
	if err := s.db.Where("property_id = ?", propertyID).
		Order("sale_date, id").Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales() ([]models.Sale, error) {
	var sales []models.Sale
	if err := s.db.Order("sale_date, id").Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

// SaleLedger returns every persisted sale as a normalized record, in the
// merged ledger order of (date, unit) ascending.
func (s *Store) SaleLedger() ([]models.SaleRecord, error) {
	props, err := s.ListProperties()
	if err != nil {
		return nil, err
	}
	unitOf := make(map[uint]int, len(props))
	for _, prop := range props {
		unitOf[prop.ID] = prop.UnitNumber
	}

	sales, err := s.ListSales()
	if err != nil {
		return nil, err
	}
	records := make([]models.SaleRecord, 0, len(sales))
	for _, sale := range sales {
		records = append(records, saleRecord(unitOf[sale.PropertyID], &sale))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Unit < records[j].Unit
	})
	return records, nil
}

func (s *Store) AddEstimate(est *models.Estimate) error {
	if est.CapturedAt.IsZero() {
		est.CapturedAt = time.Now().UTC()
	}
	return s.db.Create(est).Error
}

// SaveEstimates persists the successful results of a capture batch in one
// transaction and returns how many estimates were written. Failed results
// carry no price and are skipped; they live on in the batch summary.
func (s *Store) SaveEstimates(results []*models.CaptureResult) (int, error) {
	saved := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, result := range results {
			if result == nil || !result.Success || result.Price == nil {
				continue
			}
			est := models.Estimate{
				PropertyID: result.PropertyID,
				Source:     result.Source,
				Price:      *result.Price,
				CapturedAt: result.CapturedAt,
			}
			if est.CapturedAt.IsZero() {
				est.CapturedAt = time.Now().UTC()
			}
			if err := tx.Create(&est).Error; err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

func (s *Store) ListEstimates() ([]models.Estimate, error) {
	var estimates []models.Estimate
	if err := s.db.Order("captured_at, id").Find(&estimates).Error; err != nil {
		return nil, err
	}
	return estimates, nil
}

// LatestEstimate returns (nil, false, nil) when the source has never been
// captured for the property.
func (s *Store) LatestEstimate(propertyID uint, source models.EstimateSource) (*models.Estimate, bool, error) {
	var est models.Estimate
	err := s.db.Where("property_id = ? AND source = ?", propertyID, source).
		Order("captured_at DESC, id DESC").First(&est).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &est, true, nil
}

// LastCaptureTimes maps each property to its most recent estimate capture
// across all sources. Properties never captured are absent from the map.
func (s *Store) LastCaptureTimes() (map[uint]*time.Time, error) {
	var estimates []models.Estimate
	if err := s.db.Select("property_id", "captured_at").Find(&estimates).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]*time.Time)
	for _, est := range estimates {
		if current := out[est.PropertyID]; current == nil || est.CapturedAt.After(*current) {
			captured := est.CapturedAt
			out[est.PropertyID] = &captured
		}
	}
	return out, nil
}

// PropertiesMissingEstimates lists roster properties that have a listing
// URL for the source but no captured estimate from it, ordered by unit
// number. Properties without a URL for the source are not gaps.
func (s *Store) PropertiesMissingEstimates(source models.EstimateSource) ([]models.Property, error) {
	captured := s.db.Model(&models.Estimate{}).
		Select("DISTINCT property_id").Where("source = ?", source)
	var properties []models.Property
	if err := s.db.Where("id NOT IN (?)", captured).
		Order("unit_number").Find(&properties).Error; err != nil {
		return nil, err
	}
	var missing []models.Property
	for _, p := range properties {
		if p.SourceURL(source) != "" {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// Snapshot is a consistent read of everything the analysis layer needs.
type Snapshot struct {
	Properties []models.Property
	Sales      []models.Sale
	Estimates  []models.Estimate
}

// Snapshot loads properties, sales, and estimates inside one transaction
// so cross-table reads cannot tear.
func (s *Store) Snapshot() (*Snapshot, error) {
	var snap Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("unit_number").Find(&snap.Properties).Error; err != nil {
			return err
		}
		if err := tx.Order("sale_date, id").Find(&snap.Sales).Error; err != nil {
			return err
		}
		return tx.Order("captured_at, id").Find(&snap.Estimates).Error
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Counts reports table sizes for the status surfaces.
func (s *Store) Counts() (properties, sales, estimates int64, err error) {
	if err = s.db.Model(&models.Property{}).Count(&properties).Error; err != nil {
		return
	}
	if err = s.db.Model(&models.Sale{}).Count(&sales).Error; err != nil {
		return
	}
	err = s.db.Model(&models.Estimate{}).Count(&estimates).Error
	return
}

// GetTelegramConfig returns the stored notification settings, or a zero
// config when none have been saved yet.
func (s *Store) GetTelegramConfig() (*models.TelegramConfig, error) {
	var cfg models.TelegramConfig
	err := s.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.TelegramConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateTelegramConfig upserts the single notification settings row.
func (s *Store) UpdateTelegramConfig(req *models.TelegramConfigRequest) (*models.TelegramConfig, error) {
	cfg, err := s.GetTelegramConfig()
	if err != nil {
		return nil, err
	}
	cfg.BotToken = req.BotToken
	cfg.ChatID = req.ChatID
	cfg.IsEnabled = req.IsEnabled
	if err := s.db.Save(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

func saleRecord(unit int, sale *models.Sale) models.SaleRecord {
	return models.SaleRecord{
		Unit:   unit,
		Date:   sale.SaleDate,
		Price:  sale.SalePrice,
		Source: sale.Source,
	}
}
