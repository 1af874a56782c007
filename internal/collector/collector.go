// Package collector fetches current value estimates from the configured
// listing sites. Fetches are sequential and paced: a shared rate gate plus
// a randomized delay between requests keeps the crawl polite.
package collector

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/metrics"
	"woodgate/tracker/internal/models"
)

// One of these is sent per request; the listing sites reject Go's default
// client string.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Responses larger than this are cut off; estimate markers sit well within.
const maxBodyBytes = 4 << 20

// Source fetches one estimate from one provider. Implementations must be
// safe for reuse across batches.
type Source interface {
	Name() models.EstimateSource
	FetchEstimate(ctx context.Context, client *http.Client, url string) (float64, error)
}

// BatchSummary reports one capture run. Individual failures live in
// Results; they never abort the batch.
type BatchSummary struct {
	RunID     string                  `json:"run_id"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Attempted int                     `json:"attempted"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Results   []*models.CaptureResult `json:"results"`
}

// Runner executes capture batches against the configured sources.
type Runner struct {
	cfg     *config.Config
	logger  *logrus.Logger
	sources []Source
	limiter *rate.Limiter
}

// NewRunner creates a capture runner. With no explicit sources it serves
// the default Zillow and Redfin pair.
func NewRunner(cfg *config.Config, logger *logrus.Logger, sources ...Source) *Runner {
	if len(sources) == 0 {
		sources = []Source{ZillowSource{}, RedfinSource{}}
	}
	limit := rate.Limit(cfg.Collector.RequestsPerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		sources: sources,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// CaptureBatch fetches estimates for every (property, source) pair that
// has a URL configured. The HTTP client lives only for this batch and its
// connections are released on every exit path. A cancelled context stops
// the batch and returns the summary of what completed before it.
func (r *Runner) CaptureBatch(ctx context.Context, properties []models.Property) (*BatchSummary, error) {
	summary := &BatchSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	client := &http.Client{Timeout: time.Duration(r.cfg.Collector.TimeoutSeconds) * time.Second}
	defer client.CloseIdleConnections()
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		metrics.CaptureBatchDuration.Observe(summary.Duration.Seconds())
	}()

	r.logger.WithFields(logrus.Fields{
		"run_id":     summary.RunID,
		"properties": len(properties),
	}).Info("Starting capture batch")

	for _, prop := range properties {
		for _, source := range r.sources {
			url := prop.SourceURL(source.Name())
			if url == "" {
				continue
			}

			if err := r.limiter.Wait(ctx); err != nil {
				return summary, err
			}
			summary.record(r.capture(ctx, client, prop, source, url))

			if err := sleepCtx(ctx, r.delay()); err != nil {
				return summary, err
			}
		}
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Capture batch completed")
	return summary, nil
}

// capture performs one fetch and always returns a result; fetch errors
// become failed results, not Go errors.
func (r *Runner) capture(ctx context.Context, client *http.Client, prop models.Property, source Source, url string) *models.CaptureResult {
	result := &models.CaptureResult{
		PropertyID: prop.ID,
		UnitNumber: prop.UnitNumber,
		Source:     source.Name(),
		CapturedAt: time.Now().UTC(),
	}

	price, err := source.FetchEstimate(ctx, client, url)
	if err != nil {
		result.ErrorMsg = err.Error()
		metrics.CapturesTotal.WithLabelValues(string(source.Name()), "failure").Inc()
		r.logger.WithError(err).WithFields(logrus.Fields{
			"unit":   prop.UnitNumber,
			"source": source.Name(),
		}).Warn("Capture failed")
		return result
	}

	result.Success = true
	result.Price = &price
	metrics.CapturesTotal.WithLabelValues(string(source.Name()), "success").Inc()
	r.logger.WithFields(logrus.Fields{
		"unit":   prop.UnitNumber,
		"source": source.Name(),
		"price":  price,
	}).Info("Captured estimate")
	return result
}

func (s *BatchSummary) record(result *models.CaptureResult) {
	result.RunID = s.RunID
	s.Results = append(s.Results, result)
	s.Attempted++
	if result.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// delay picks a random pause inside the configured window.
func (r *Runner) delay() time.Duration {
	min := r.cfg.Collector.DelayMinSeconds
	max := r.cfg.Collector.DelayMaxSeconds
	if max < min {
		max = min
	}
	seconds := min + (max-min)*rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fetch issues one GET with the browser headers the listing sites expect
// and returns the (size-capped) body.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}
