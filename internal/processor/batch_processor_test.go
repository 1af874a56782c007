package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/queue"
)

// MockWriter is a mock implementation of EstimateWriter
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) SaveEstimates(results []*models.CaptureResult) (int, error) {
	args := m.Called(results)
	return args.Int(0), args.Error(1)
}

func floatPtr(f float64) *float64 { return &f }

func testBatch() []*models.CaptureResult {
	return []*models.CaptureResult{
		{RunID: "run-1", PropertyID: 1, UnitNumber: 5, Source: models.SourceZillow,
			Price: floatPtr(412000), Success: true},
		{RunID: "run-1", PropertyID: 2, UnitNumber: 7, Source: models.SourceZillow,
			Success: false, ErrorMsg: "not found"},
	}
}

func TestNewBatchProcessor(t *testing.T) {
	// Setup
	mockWriter := &MockWriter{}
	logger := logrus.New()
	mockQueue := queue.NewResultQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.MaxRetries = 3

	// Test
	processor := NewBatchProcessor(mockWriter, mockQueue, cfg, logger)

	// Assert
	assert.NotNil(t, processor)
	assert.Equal(t, mockWriter, processor.writer)
	assert.Equal(t, mockQueue, processor.queue)
	assert.Equal(t, cfg, processor.config)
	assert.Equal(t, logger, processor.logger)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	// Setup
	mockWriter := &MockWriter{}
	logger := logrus.New()
	mockQueue := queue.NewResultQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.MaxRetries = 3
	cfg.BatchProcessing.RetryDelay = 0

	processor := NewBatchProcessor(mockWriter, mockQueue, cfg, logger)
	batch := testBatch()

	// Test successful processing
	mockWriter.On("SaveEstimates", batch).Return(1, nil).Once()
	err := processor.ProcessBatch(batch)
	assert.NoError(t, err)

	// Test retry on failure: the first attempt plus MaxRetries retries
	mockWriter.On("SaveEstimates", batch).Return(0, errors.New("db error")).Times(4)
	err = processor.ProcessBatch(batch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 3 attempts")

	mockWriter.AssertExpectations(t)
}

func TestBatchProcessor_RecoversAfterTransientFailure(t *testing.T) {
	mockWriter := &MockWriter{}
	logger := logrus.New()
	mockQueue := queue.NewResultQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.MaxRetries = 2
	cfg.BatchProcessing.RetryDelay = 0

	processor := NewBatchProcessor(mockWriter, mockQueue, cfg, logger)
	batch := testBatch()

	mockWriter.On("SaveEstimates", batch).Return(0, errors.New("locked")).Once()
	mockWriter.On("SaveEstimates", batch).Return(1, nil).Once()

	err := processor.ProcessBatch(batch)
	assert.NoError(t, err)
	mockWriter.AssertExpectations(t)
}

func TestBatchProcessor_StartStop(t *testing.T) {
	// Setup
	mockWriter := &MockWriter{}
	logger := logrus.New()
	mockQueue := queue.NewResultQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.MaxRetries = 1
	cfg.BatchProcessing.RetryDelay = 0

	processor := NewBatchProcessor(mockWriter, mockQueue, cfg, logger)
	mockWriter.On("SaveEstimates", mock.Anything).Return(1, nil).Once()

	// Test Start
	processor.Start()
	mockQueue.Start()
	time.Sleep(50 * time.Millisecond) // Give time for the subscription

	assert.NoError(t, mockQueue.Push(testBatch()))
	time.Sleep(100 * time.Millisecond)

	// Test Stop
	processor.Stop()
	mockQueue.Close()
	assert.True(t, mockQueue.IsClosed())
	mockWriter.AssertExpectations(t)
}
