package api

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/analysis"
	"woodgate/tracker/internal/geocoding"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/normalize"
	"woodgate/tracker/internal/report"
	"woodgate/tracker/internal/scheduler"
	"woodgate/tracker/internal/storage"
	"woodgate/tracker/internal/telegram"
)

// The accuracy report walks every sale and estimate, so responses are
// cached per source filter and recomputed once the entry ages out.
const (
	reportCacheSize = 8
	reportCacheTTL  = time.Minute
)

type reportEntry struct {
	stats      map[models.EstimateSource]models.SourceStats
	computedAt time.Time
}

type Handler struct {
	store           *storage.Store
	cfg             *config.Config
	logger          *logrus.Logger
	geocoder        *geocoding.Geocoder
	reportCache     *lru.Cache[string, reportEntry]
	telegramService *telegram.Service
}

// SaleRequest is a manual ledger entry. Fields arrive as free text and go
// through strict normalization: anything ambiguous is rejected, never
// guessed at.
type SaleRequest struct {
	Unit        string  `json:"unit" binding:"required"`
	SaleDate    string  `json:"sale_date" binding:"required"`
	SalePrice   string  `json:"sale_price" binding:"required"`
	AskingPrice *string `json:"asking_price"`
	Source      string  `json:"source"`
}

type scheduleRow struct {
	Unit         int        `json:"unit"`
	Address      string     `json:"address"`
	LastCaptured *time.Time `json:"last_captured"`
}

func NewHandler(store *storage.Store, cfg *config.Config, geocoder *geocoding.Geocoder, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	reportCache, err := lru.New[string, reportEntry](reportCacheSize)
	if err != nil {
		logger.WithError(err).Error("Failed to create report cache")
	}

	// Initialize the telegram service
	telegramService := telegram.NewService(logger)
	telegramService.UpdateFilters(cfg.AlertFilters())

	// Load existing Telegram configuration
	if tgConfig, err := store.GetTelegramConfig(); err == nil && tgConfig != nil {
		telegramService.UpdateConfig(tgConfig)
	}

	return &Handler{
		store:           store,
		cfg:             cfg,
		logger:          logger,
		geocoder:        geocoder,
		reportCache:     reportCache,
		telegramService: telegramService,
	}
}

// TelegramService exposes the live notification service, so the scheduler
// picks up configuration changes made through the API.
func (h *Handler) TelegramService() *telegram.Service {
	return h.telegramService
}

func (h *Handler) GetStatus(c *gin.Context) {
	properties, err := h.store.ListProperties()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load status"})
		return
	}

	_, sales, estimates, err := h.store.Counts()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load status"})
		return
	}

	lastCaptures, err := h.store.LastCaptureTimes()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load capture times")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load status"})
		return
	}

	c.JSON(http.StatusOK, report.BuildStatus(properties, sales, estimates, lastCaptures))
}

func (h *Handler) GetProperties(c *gin.Context) {
	properties, err := h.store.ListProperties()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	c.JSON(http.StatusOK, properties)
}

// GetReport returns per-source accuracy statistics over all matched
// sale/estimate pairs, optionally filtered with ?source=zillow.
func (h *Handler) GetReport(c *gin.Context) {
	source := strings.ToLower(strings.TrimSpace(c.Query("source")))
	if source != "" && !models.EstimateSource(source).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown estimate source"})
		return
	}

	cacheKey := "report"
	if source != "" {
		cacheKey = "report:" + source
	}
	if h.reportCache != nil {
		if entry, ok := h.reportCache.Get(cacheKey); ok && time.Since(entry.computedAt) < reportCacheTTL {
			c.JSON(http.StatusOK, entry.stats)
			return
		}
	}

	snap, err := h.store.Snapshot()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute report"})
		return
	}

	stats := analysis.Aggregate(analysis.Pairs(snap.Sales, snap.Estimates))
	if source != "" {
		filtered := make(map[models.EstimateSource]models.SourceStats, 1)
		if s, ok := stats[models.EstimateSource(source)]; ok {
			filtered[models.EstimateSource(source)] = s
		}
		stats = filtered
	}

	if h.reportCache != nil {
		h.reportCache.Add(cacheKey, reportEntry{stats: stats, computedAt: time.Now()})
	}
	c.JSON(http.StatusOK, stats)
}

// GetSales returns the merged sale ledger as normalized records.
func (h *Handler) GetSales(c *gin.Context) {
	records, err := h.store.SaleLedger()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get sales"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// CreateSale records a manual ledger entry. Ambiguous input is a 400, a
// sale that reconciles to an existing record is a 409.
func (h *Handler) CreateSale(c *gin.Context) {
	var req SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse sale request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = string(models.SaleSourceHOA)
	}

	record, err := normalize.Record(normalize.RawSale{
		Unit:   req.Unit,
		Date:   req.SaleDate,
		Price:  req.SalePrice,
		Source: models.SaleSource(source),
	})
	if err != nil {
		h.logger.WithError(err).Warn("Rejected sale entry")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var askingPrice *float64
	if req.AskingPrice != nil && strings.TrimSpace(*req.AskingPrice) != "" {
		price, err := normalize.Price(*req.AskingPrice)
		if err != nil {
			h.logger.WithError(err).Warn("Rejected sale entry")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		askingPrice = &price
	}

	prop, ok, err := h.store.PropertyByUnit(record.Unit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record sale"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown unit"})
		return
	}

	sale := &models.Sale{
		PropertyID:  prop.ID,
		SalePrice:   record.Price,
		AskingPrice: askingPrice,
		SaleDate:    record.Date,
		Source:      record.Source,
	}
	if err := sale.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.AddSale(sale); err != nil {
		if errors.Is(err, storage.ErrDuplicateSale) {
			c.JSON(http.StatusConflict, gin.H{"error": "Sale duplicates an existing record"})
			return
		}
		h.logger.WithError(err).Error("Failed to record sale")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record sale"})
		return
	}

	c.JSON(http.StatusCreated, sale)
}

// GetSchedule previews the next capture batch under the staleness-first
// policy.
func (h *Handler) GetSchedule(c *gin.Context) {
	properties, err := h.store.ListProperties()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build schedule"})
		return
	}
	lastCaptures, err := h.store.LastCaptureTimes()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load capture times")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build schedule"})
		return
	}

	batch := scheduler.NextBatch(properties, lastCaptures, h.cfg.Collector.BatchSize)
	rows := make([]scheduleRow, 0, len(batch))
	for _, prop := range batch {
		rows = append(rows, scheduleRow{
			Unit:         prop.UnitNumber,
			Address:      prop.Address,
			LastCaptured: lastCaptures[prop.ID],
		})
	}

	c.JSON(http.StatusOK, rows)
}

// GetStaleAlerts lists every (unit, source) whose latest sale postdates
// the newest estimate capture.
func (h *Handler) GetStaleAlerts(c *gin.Context) {
	snap, err := h.store.Snapshot()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stale alerts"})
		return
	}

	alerts := analysis.StaleAlerts(snap.Properties, snap.Sales, snap.Estimates)
	if alerts == nil {
		alerts = []models.StaleAlert{}
	}
	c.JSON(http.StatusOK, alerts)
}

// GetTelegramConfig returns the current Telegram configuration
func (h *Handler) GetTelegramConfig(c *gin.Context) {
	tgConfig, err := h.store.GetTelegramConfig()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get Telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get Telegram config"})
		return
	}

	if tgConfig == nil {
		c.JSON(http.StatusOK, gin.H{
			"is_enabled": false,
			"chat_id":    "",
			"bot_token":  "",
		})
		return
	}

	// Don't send the full bot token back to the client for security
	if len(tgConfig.BotToken) > 4 {
		tgConfig.BotToken = "••••" + tgConfig.BotToken[len(tgConfig.BotToken)-4:]
	}
	c.JSON(http.StatusOK, tgConfig)
}

// UpdateTelegramConfig updates the Telegram configuration
func (h *Handler) UpdateTelegramConfig(c *gin.Context) {
	var request models.TelegramConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Error("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// Disabling needs no working bot; skip validation and the test send.
	if request.IsEnabled {
		if len(request.BotToken) < 20 || !strings.Contains(request.BotToken, ":") {
			h.logger.Error("Invalid bot token format")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot token format. Please check your bot token from @BotFather"})
			return
		}

		if request.ChatID == "" {
			h.logger.Error("Chat ID is required")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Chat ID is required"})
			return
		}

		// Test the Telegram configuration before saving
		testService := telegram.NewService(h.logger)
		testService.UpdateConfig(&models.TelegramConfig{
			BotToken:  request.BotToken,
			ChatID:    request.ChatID,
			IsEnabled: true,
		})

		testMessage := "🔔 Test notification from Woodgate Tracker\n\nIf you see this message, your Telegram configuration is working correctly!"
		if err := testService.SendMessage(testMessage); err != nil {
			h.logger.WithError(err).Error("Failed to send test message")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// Save the configuration
	saved, err := h.store.UpdateTelegramConfig(&request)
	if err != nil {
		h.logger.WithError(err).Error("Failed to update Telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save configuration to database"})
		return
	}

	// Update the live service configuration
	h.telegramService.UpdateConfig(saved)

	c.JSON(http.StatusOK, gin.H{"message": "Telegram configuration updated successfully"})
}
