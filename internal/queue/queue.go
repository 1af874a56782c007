package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ResultQueue is an in-memory queue for capture-result batches, sitting
// between the collector and the writer so a slow database never stalls a
// running capture batch.
type ResultQueue struct {
	items    chan []*models.CaptureResult
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func([]*models.CaptureResult) error
}

// NewResultQueue creates a new result queue with the specified buffer size
func NewResultQueue(bufferSize int, logger *logrus.Logger) *ResultQueue {
	return &ResultQueue{
		items:    make(chan []*models.CaptureResult, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func([]*models.CaptureResult) error, 0),
	}
}

// Push adds a batch of capture results to the queue
func (q *ResultQueue) Push(results []*models.CaptureResult) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	// Non-blocking send to prevent deadlocks
	select {
	case q.items <- results:
		q.logger.WithField("batch_size", len(results)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each batch
func (q *ResultQueue) Subscribe(handler func([]*models.CaptureResult) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *ResultQueue) Start() {
	go q.process()
}

// process handles the queue processing loop
func (q *ResultQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case batch := <-q.items:
			q.processBatch(batch)
		}
	}
}

// processBatch sends the batch to all subscribed handlers
func (q *ResultQueue) processBatch(batch []*models.CaptureResult) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).Error("Handler failed to process batch")
		}
	}
}

// Close stops the queue and prevents new items from being added
func (q *ResultQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	close(q.items)
	return nil
}

// Len returns the current number of batches in the queue
func (q *ResultQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ResultQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
