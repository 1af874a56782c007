package geocoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/internal/models"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// Geocoder resolves unit addresses to coordinates via Nominatim, with a
// file-backed cache so the fixed roster is only ever looked up once per
// address.
type Geocoder struct {
	logger    *logrus.Logger
	cacheDir  string
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client
	searchURL string
	pause     time.Duration
}

// CoordinateStore is the slice of the store the geocoder needs.
type CoordinateStore interface {
	ListProperties() ([]models.Property, error)
	UpdateCoordinates(propertyID uint, lat, lng float64) error
}

func NewGeocoder(logger *logrus.Logger, cacheDir string) *Geocoder {
	os.MkdirAll(cacheDir, 0o755)

	g := &Geocoder{
		logger:    logger,
		cacheDir:  cacheDir,
		cache:     make(map[string][]float64),
		client:    &http.Client{Timeout: 10 * time.Second},
		searchURL: nominatimSearchURL,
		pause:     time.Second,
	}
	g.loadCache()
	return g
}

func (g *Geocoder) loadCache() {
	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		g.logger.Debugf("No geocode cache to load: %v", err)
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

func (g *Geocoder) saveCache() {
	g.cacheLock.RLock()
	defer g.cacheLock.RUnlock()

	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	data, err := json.Marshal(g.cache)
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	if err := os.WriteFile(cacheFile, data, 0o644); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}

	g.logger.Debug("Saved geocode cache to disk")
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// GeocodeAddress resolves one address to (latitude, longitude), serving
// from the cache when possible.
func (g *Geocoder) GeocodeAddress(address string) (float64, float64, error) {
	g.cacheLock.RLock()
	if coords, ok := g.cache[address]; ok {
		g.cacheLock.RUnlock()
		if len(coords) == 2 {
			g.logger.WithFields(logrus.Fields{
				"address":   address,
				"latitude":  coords[0],
				"longitude": coords[1],
				"source":    "cache",
			}).Debug("Found coordinates in cache")
			return coords[0], coords[1], nil
		}
		return 0, 0, fmt.Errorf("invalid cached coordinates for %q", address)
	}
	g.cacheLock.RUnlock()

	g.logger.WithField("address", address).Info("Geocoding address with Nominatim")

	// Nominatim usage policy: at most one request per second.
	time.Sleep(g.pause)

	params := url.Values{
		"q":            []string{address + ", USA"},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"us"},
	}

	req, err := http.NewRequest(http.MethodGet, g.searchURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %v", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "Woodgate Tracker/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return 0, 0, fmt.Errorf("geocoding request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Failed to read response")
		return 0, 0, fmt.Errorf("failed to read response: %v", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Failed to parse response")
		return 0, 0, fmt.Errorf("failed to parse response: %v", err)
	}

	if len(result) == 0 {
		g.logger.WithField("address", address).Warn("No results found")
		return 0, 0, fmt.Errorf("no results found for address: %s", address)
	}

	var lat, lon float64
	fmt.Sscanf(result[0].Lat, "%f", &lat)
	fmt.Sscanf(result[0].Lon, "%f", &lon)

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded address")

	g.cacheLock.Lock()
	g.cache[address] = []float64{lat, lon}
	g.cacheLock.Unlock()

	go g.saveCache()

	return lat, lon, nil
}

// FillMissing geocodes every property without stored coordinates and
// persists the result. A failed lookup skips the property so the next
// run can retry it; the count of successful fills is returned.
func (g *Geocoder) FillMissing(store CoordinateStore) (int, error) {
	properties, err := store.ListProperties()
	if err != nil {
		return 0, fmt.Errorf("failed to list properties: %v", err)
	}

	filled := 0
	for _, prop := range properties {
		if prop.Latitude != nil && prop.Longitude != nil {
			continue
		}
		lat, lon, err := g.GeocodeAddress(prop.Address)
		if err != nil {
			g.logger.WithError(err).WithField("unit", prop.UnitNumber).
				Warn("Could not geocode property")
			continue
		}
		if err := store.UpdateCoordinates(prop.ID, lat, lon); err != nil {
			return filled, fmt.Errorf("failed to store coordinates for unit %d: %v", prop.UnitNumber, err)
		}
		filled++
	}

	if filled > 0 {
		g.logger.WithField("filled", filled).Info("Geocoded missing unit locations")
	}
	return filled, nil
}
