package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/analysis"
	"woodgate/tracker/internal/collector"
	"woodgate/tracker/internal/export"
	"woodgate/tracker/internal/geocoding"
	"woodgate/tracker/internal/metrics"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/queue"
	"woodgate/tracker/internal/storage"
	"woodgate/tracker/internal/telegram"
)

// JobType represents different types of scheduled jobs
type JobType int

const (
	JobTypeCapture JobType = iota
	JobTypeStaleness
	JobTypeRefresh
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeCapture:
		return "capture"
	case JobTypeStaleness:
		return "staleness"
	case JobTypeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Scheduler manages periodic execution of the capture, staleness, and
// export jobs. Jobs run sequentially: a tick that lands while another job
// is still running is skipped, never queued.
type Scheduler struct {
	store     *storage.Store
	collector *collector.Runner
	queue     *queue.ResultQueue
	exporter  *export.Exporter
	geocoder  *geocoding.Geocoder
	telegram  *telegram.Service
	cfg       *config.Config
	logger    *logrus.Logger
	stopChan  chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	jobMutex  sync.Mutex // Ensures sequential job execution

	// Set by the capture job, consumed by the staleness job on a later
	// tick so the result queue has drained into storage in between.
	pendingSummary *collector.BatchSummary
}

// NewScheduler creates a new scheduler
func NewScheduler(store *storage.Store, runner *collector.Runner, resultQueue *queue.ResultQueue,
	exporter *export.Exporter, geocoder *geocoding.Geocoder, notifier *telegram.Service,
	cfg *config.Config, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     store,
		collector: runner,
		queue:     resultQueue,
		exporter:  exporter,
		geocoder:  geocoder,
		telegram:  notifier,
		cfg:       cfg,
		logger:    logger,
		stopChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled tasks
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run the startup refresh in a separate goroutine so the ticker loop
	// starts immediately.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup refresh job")
		s.runRefreshJob()
		s.logger.Info("Startup refresh job completed")
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

// executeScheduledJobs runs all jobs that are scheduled for the given time
func (s *Scheduler) executeScheduledJobs(t time.Time) {
	if !s.jobMutex.TryLock() {
		s.logger.Debug("Skipping scheduled jobs while another job is running")
		return
	}
	defer s.jobMutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"hour":   t.Hour(),
		"minute": t.Minute(),
	}).Debug("Checking scheduled jobs")

	// A capture from an earlier tick leaves a pending summary; run the
	// staleness check and export for it now that its results have had a
	// tick to drain into storage.
	if s.pendingSummary != nil {
		summary := s.pendingSummary
		s.pendingSummary = nil
		s.logger.Info("Starting post-capture staleness job")
		s.runStalenessJob(summary)
		s.logger.Info("Completed post-capture staleness job")
	}

	// Check if it's time for the nightly refresh (midnight)
	if t.Hour() == 0 && t.Minute() == 0 {
		s.logger.Info("Starting scheduled refresh job")
		s.runRefreshJob()
		s.logger.Info("Completed scheduled refresh job")
	}

	// Check if it's time for the daily capture batch
	if t.Hour() == s.cfg.Scheduler.CaptureHour && t.Minute() == 0 {
		s.logger.Info("Starting scheduled capture job")
		s.runCaptureJob()
		s.logger.Info("Completed scheduled capture job")
	}
}

// runCaptureJob picks the next batch under the scheduling policy, captures
// it, and hands the results to the queue for persistence.
func (s *Scheduler) runCaptureJob() {
	properties, err := s.store.ListProperties()
	if err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeCapture.String()).Error("Job failed")
		return
	}
	lastCaptures, err := s.store.LastCaptureTimes()
	if err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeCapture.String()).Error("Job failed")
		return
	}

	batch := NextBatch(properties, lastCaptures, s.cfg.Collector.BatchSize)
	if len(batch) == 0 {
		s.logger.WithField("job_type", JobTypeCapture.String()).Info("No properties eligible for capture")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job_type":   JobTypeCapture.String(),
		"batch_size": len(batch),
	}).Info("Starting capture batch job")

	summary, err := s.collector.CaptureBatch(s.ctx, batch)
	if err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeCapture.String()).Error("Capture batch interrupted")
	}
	if summary == nil || len(summary.Results) == 0 {
		return
	}

	if err := s.queue.Push(summary.Results); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"job_type":   JobTypeCapture.String(),
			"batch_size": len(summary.Results),
		}).Error("Failed to queue capture results")
		return
	}
	s.pendingSummary = summary

	s.logger.WithFields(logrus.Fields{
		"job_type":  JobTypeCapture.String(),
		"run_id":    summary.RunID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Capture job completed successfully")
}

// runStalenessJob recomputes stale units, notifies about each one, and
// exports the feed with the capture summary appended to the changelog.
func (s *Scheduler) runStalenessJob(summary *collector.BatchSummary) {
	alerts := s.refreshStaleAlerts()
	for _, alert := range alerts {
		s.logger.WithFields(logrus.Fields{
			"job_type": JobTypeStaleness.String(),
			"unit":     alert.UnitNumber,
			"source":   alert.Source,
		}).Info("Sending stale-unit alert")

		if err := s.telegram.NotifyStaleUnit(alert); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"job_type": JobTypeStaleness.String(),
				"unit":     alert.UnitNumber,
				"source":   alert.Source,
			}).Error("Stale-unit alert failed")
		}
	}

	if err := s.exporter.Run(summary); err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeStaleness.String()).Error("Export after capture failed")
	}
}

// runRefreshJob backfills coordinates, refreshes the stale-unit gauge, and
// rewrites the feed without touching the changelog.
func (s *Scheduler) runRefreshJob() {
	if _, err := s.geocoder.FillMissing(s.store); err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeRefresh.String()).Error("Geocode backfill failed")
	}

	s.refreshStaleAlerts()

	for _, source := range models.AllEstimateSources() {
		missing, err := s.store.PropertiesMissingEstimates(source)
		if err != nil {
			s.logger.WithError(err).WithField("job_type", JobTypeRefresh.String()).Error("Coverage check failed")
			continue
		}
		if len(missing) > 0 {
			s.logger.WithFields(logrus.Fields{
				"job_type": JobTypeRefresh.String(),
				"source":   source,
				"missing":  len(missing),
			}).Info("Properties still awaiting a first estimate")
		}
	}

	if err := s.exporter.Run(nil); err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypeRefresh.String()).Error("Export refresh failed")
	}
}

// refreshStaleAlerts recomputes the stale-unit set and updates the gauge.
func (s *Scheduler) refreshStaleAlerts() []models.StaleAlert {
	snap, err := s.store.Snapshot()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load snapshot for staleness check")
		return nil
	}
	alerts := analysis.StaleAlerts(snap.Properties, snap.Sales, snap.Estimates)
	metrics.StaleUnits.Set(float64(len(alerts)))
	return alerts
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	close(s.stopChan)
	s.wg.Wait()
}
