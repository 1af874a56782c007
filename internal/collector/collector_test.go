package collector

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
)

type fakeSource struct {
	name  models.EstimateSource
	fetch func(url string) (float64, error)
	calls []string
}

func (f *fakeSource) Name() models.EstimateSource { return f.name }

func (f *fakeSource) FetchEstimate(_ context.Context, _ *http.Client, url string) (float64, error) {
	f.calls = append(f.calls, url)
	return f.fetch(url)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Collector.RequestsPerSecond = 1000
	cfg.Collector.DelayMinSeconds = 0
	cfg.Collector.DelayMaxSeconds = 0
	cfg.Collector.TimeoutSeconds = 5
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func urlPtr(s string) *string { return &s }

func TestCaptureBatch(t *testing.T) {
	source := &fakeSource{
		name:  models.SourceZillow,
		fetch: func(string) (float64, error) { return 412000, nil },
	}
	runner := NewRunner(testConfig(), testLogger(), source)

	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
		{ID: 2, UnitNumber: 7, ZillowURL: urlPtr("https://z/7")},
	}

	summary, err := runner.CaptureBatch(context.Background(), properties)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"https://z/5", "https://z/7"}, source.calls)

	for _, result := range summary.Results {
		assert.Equal(t, summary.RunID, result.RunID)
		assert.True(t, result.Success)
		require.NotNil(t, result.Price)
		assert.Equal(t, 412000.0, *result.Price)
		assert.False(t, result.CapturedAt.IsZero())
	}
}

func TestCaptureBatchIsolatesFailures(t *testing.T) {
	source := &fakeSource{
		name: models.SourceZillow,
		fetch: func(url string) (float64, error) {
			if url == "https://z/5" {
				return 0, errors.New("blocked")
			}
			return 405000, nil
		},
	}
	runner := NewRunner(testConfig(), testLogger(), source)

	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
		{ID: 2, UnitNumber: 7, ZillowURL: urlPtr("https://z/7")},
	}

	summary, err := runner.CaptureBatch(context.Background(), properties)
	require.NoError(t, err, "one bad listing must not abort the batch")
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	failed := summary.Results[0]
	assert.False(t, failed.Success)
	assert.Nil(t, failed.Price)
	assert.Equal(t, "blocked", failed.ErrorMsg)

	succeeded := summary.Results[1]
	assert.True(t, succeeded.Success)
}

func TestCaptureBatchSkipsMissingURLs(t *testing.T) {
	zillow := &fakeSource{
		name:  models.SourceZillow,
		fetch: func(string) (float64, error) { return 412000, nil },
	}
	redfin := &fakeSource{
		name:  models.SourceRedfin,
		fetch: func(string) (float64, error) { return 408000, nil },
	}
	runner := NewRunner(testConfig(), testLogger(), zillow, redfin)

	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")}, // no redfin URL
	}

	summary, err := runner.CaptureBatch(context.Background(), properties)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attempted)
	assert.Len(t, zillow.calls, 1)
	assert.Empty(t, redfin.calls, "a source without a URL is a roster gap, not a failed capture")
}

func TestCaptureBatchStopsOnCancel(t *testing.T) {
	source := &fakeSource{
		name:  models.SourceZillow,
		fetch: func(string) (float64, error) { return 412000, nil },
	}
	runner := NewRunner(testConfig(), testLogger(), source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	properties := []models.Property{
		{ID: 1, UnitNumber: 5, ZillowURL: urlPtr("https://z/5")},
	}
	summary, err := runner.CaptureBatch(ctx, properties)
	assert.Error(t, err)
	assert.Empty(t, summary.Results)
}

func TestDelayStaysInWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Collector.DelayMinSeconds = 2
	cfg.Collector.DelayMaxSeconds = 5
	runner := NewRunner(cfg, testLogger())

	for i := 0; i < 100; i++ {
		d := runner.delay().Seconds()
		assert.GreaterOrEqual(t, d, 2.0)
		assert.LessOrEqual(t, d, 5.0)
	}
}
