package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/geocoding"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/storage"
)

type PropertyHandler struct {
	store    *storage.Store
	geocoder *geocoding.Geocoder
	logger   *logrus.Logger
}

// PropertyDetail is one roster entry with the newest estimate per source.
type PropertyDetail struct {
	models.Property
	LatestEstimates map[models.EstimateSource]*models.Estimate `json:"latest_estimates"`
}

func NewPropertyHandler(store *storage.Store, geocoder *geocoding.Geocoder, logger *logrus.Logger) *PropertyHandler {
	return &PropertyHandler{
		store:    store,
		geocoder: geocoder,
		logger:   logger,
	}
}

// SetupPropertyRoutes adds the per-unit routes to the router
func SetupPropertyRoutes(router *gin.Engine, store *storage.Store, geocoder *geocoding.Geocoder, logger *logrus.Logger) {
	handler := NewPropertyHandler(store, geocoder, logger)

	router.GET("/api/properties/:unit", handler.GetProperty)
	router.GET("/api/properties/:unit/sales", handler.GetPropertySales)
	router.POST("/api/geocode", handler.GeocodeProperties)
}

// GetProperty returns a single unit with its latest estimate per source
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	prop, ok := h.lookupUnit(c)
	if !ok {
		return
	}

	detail := PropertyDetail{
		Property:        *prop,
		LatestEstimates: make(map[models.EstimateSource]*models.Estimate),
	}
	for _, spec := range config.EstimateSources {
		est, found, err := h.store.LatestEstimate(prop.ID, spec.Source)
		if err != nil {
			h.logger.WithError(err).Error("Failed to load latest estimate")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load property"})
			return
		}
		if found {
			detail.LatestEstimates[spec.Source] = est
		}
	}

	c.JSON(http.StatusOK, detail)
}

// GetPropertySales returns the sale history recorded for a single unit
func (h *PropertyHandler) GetPropertySales(c *gin.Context) {
	prop, ok := h.lookupUnit(c)
	if !ok {
		return
	}

	sales, err := h.store.SalesForProperty(prop.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sales"})
		return
	}

	c.JSON(http.StatusOK, sales)
}

// GeocodeProperties fills coordinates for every roster entry that lacks
// them. Lookups run inline; the roster is small.
func (h *PropertyHandler) GeocodeProperties(c *gin.Context) {
	filled, err := h.geocoder.FillMissing(h.store)
	if err != nil {
		h.logger.WithError(err).Error("Failed to geocode properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to geocode properties"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "Geocoding completed",
		"geocoded": filled,
	})
}

// lookupUnit resolves the :unit route parameter. On failure it writes the
// error response and returns ok=false.
func (h *PropertyHandler) lookupUnit(c *gin.Context) (*models.Property, bool) {
	unit, err := strconv.Atoi(c.Param("unit"))
	if err != nil || unit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unit number"})
		return nil, false
	}

	prop, found, err := h.store.PropertyByUnit(unit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up property"})
		return nil, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return nil, false
	}
	return prop, true
}
