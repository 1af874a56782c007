package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/metrics"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/queue"
)

// EstimateWriter persists the successful results of a capture batch and
// reports how many estimates were written. *storage.Store satisfies it.
type EstimateWriter interface {
	SaveEstimates(results []*models.CaptureResult) (int, error)
}

// BatchProcessor drains capture-result batches off the queue and writes
// the estimates they carry. One subscriber per queue: estimate rows are
// append-only, so a batch must be written exactly once.
type BatchProcessor struct {
	writer    EstimateWriter
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.ResultQueue
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(writer EstimateWriter, queue *queue.ResultQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		writer: writer,
		queue:  queue,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes the processor to the queue.
func (p *BatchProcessor) Start() {
	p.waitGroup.Add(1)
	go p.processLoop()
}

// Stop gracefully shuts down the processor
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

// processLoop registers the batch handler
func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	p.queue.Subscribe(func(batch []*models.CaptureResult) error {
		return p.ProcessBatch(batch)
	})
}

// ProcessBatch writes a single batch of capture results with retry logic.
// It is exported so one-shot command runs can bypass the queue.
func (p *BatchProcessor) ProcessBatch(batch []*models.CaptureResult) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		var saved int
		saved, err = p.writer.SaveEstimates(batch)
		if err == nil {
			metrics.EstimatesSaved.Add(float64(saved))
			p.logger.Infof("Successfully processed batch of %d capture results, saved %d estimates", len(batch), saved)
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
}
