package processor

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/queue"
	"woodgate/tracker/internal/storage"
)

func generateTestResults(propertyID uint, count int) []*models.CaptureResult {
	results := make([]*models.CaptureResult, count)
	for i := range results {
		price := 400000 + float64(i*1000)
		results[i] = &models.CaptureResult{
			RunID:      "bench",
			PropertyID: propertyID,
			UnitNumber: 5,
			Source:     models.SourceZillow,
			Price:      &price,
			Success:    true,
			CapturedAt: time.Now().UTC(),
		}
	}
	return results
}

func BenchmarkProcessBatch(b *testing.B) {
	store, err := storage.NewTest()
	require.NoError(b, err)
	defer store.Close()

	prop, err := store.GetOrCreateProperty(5, "105 Woodgate Ln Paoli PA 19301", nil, nil)
	require.NoError(b, err)

	for _, batchSize := range []int{10, 50, 100} {
		b.Run(fmt.Sprintf("BatchSize_%d", batchSize), func(b *testing.B) {
			cfg := &config.Config{}
			cfg.BatchProcessing.MaxRetries = 1
			cfg.BatchProcessing.RetryDelay = 0
			logger := logrus.New()
			logger.SetLevel(logrus.WarnLevel) // Reduce logging noise during benchmarks

			resultQueue := queue.NewResultQueue(batchSize, logger)
			processor := NewBatchProcessor(store, resultQueue, cfg, logger)
			batch := generateTestResults(prop.ID, batchSize)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := processor.ProcessBatch(batch); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
