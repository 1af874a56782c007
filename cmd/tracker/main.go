package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"woodgate/tracker/config"
	"woodgate/tracker/internal/analysis"
	"woodgate/tracker/internal/api"
	"woodgate/tracker/internal/collector"
	"woodgate/tracker/internal/export"
	"woodgate/tracker/internal/geocoding"
	"woodgate/tracker/internal/ledger"
	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/normalize"
	"woodgate/tracker/internal/processor"
	"woodgate/tracker/internal/queue"
	"woodgate/tracker/internal/reconcile"
	"woodgate/tracker/internal/report"
	"woodgate/tracker/internal/scheduler"
	"woodgate/tracker/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "init":
		runInit(cfg, logger, args)
	case "scrape":
		runScrape(cfg, logger, args)
	case "add-sale":
		runAddSale(cfg, logger, args)
	case "analyze":
		runAnalyze(cfg, logger)
	case "compare":
		runCompare(cfg, logger)
	case "schedule":
		runSchedule(cfg, logger, args)
	case "status":
		runStatus(cfg, logger)
	case "export":
		runExport(cfg, logger)
	case "serve":
		runServe(cfg, logger)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Woodgate property tracker

Usage: tracker <command> [flags]

Commands:
  init      Seed the database from the roster and sale ledger files
  scrape    Run a capture batch against the listing sites
  add-sale  Record a sale on the ledger
  analyze   Print the estimate accuracy report
  compare   Reconcile scraped sale histories against the ledger
  schedule  Preview the next capture batch
  status    Print roster and capture counts
  export    Write the dashboard feed and map layer
  serve     Run the API server with the capture scheduler
`)
}

func openStore(cfg *config.Config, logger *logrus.Logger) *storage.Store {
	logger.Infof("Using database at: %s", cfg.Database.Path)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	return store
}

func newGeocoder(cfg *config.Config, logger *logrus.Logger) *geocoding.Geocoder {
	cacheDir := cfg.Export.GeocodeCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "woodgate", "geocode_cache")
	}
	return geocoding.NewGeocoder(logger, cacheDir)
}

// runInit seeds the roster, then merges the hand-maintained sale ledger
// with any scraped histories and records the result.
func runInit(cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	populateURLs := fs.Bool("populate-urls", false, "derive missing listing URLs from addresses")
	fs.Parse(args)

	store := openStore(cfg, logger)
	defer store.Close()

	entries, err := ledger.LoadRoster(cfg.Roster.PropertiesCSV)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load roster")
	}
	if *populateURLs {
		entries = ledger.PopulateURLs(entries, logger)
	}
	if _, err := ledger.SeedStore(store, entries, logger); err != nil {
		logger.WithError(err).Fatal("Failed to seed roster")
	}

	sales, err := ledger.LoadSalesCSV(cfg.Roster.SalesCSV, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load sale ledger")
	}
	scraped, err := ledger.LoadScrapedHistory(cfg.Roster.ScrapedSalesJSON, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load scraped history")
	}

	supplements := make([][]models.SaleRecord, 0, len(scraped))
	for _, source := range config.OrderedSaleSources() {
		if source == config.AuthoritativeSaleSource() {
			continue
		}
		if records, ok := scraped[source]; ok {
			supplements = append(supplements, records)
		}
	}
	merged, err := reconcile.Merge(sales, supplements...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to merge sale records")
	}

	if _, _, err := ledger.SeedSales(store, merged, logger); err != nil {
		logger.WithError(err).Fatal("Failed to seed sales")
	}
}

// runScrape executes one capture batch and writes it straight through the
// batch processor, bypassing the queue that only the server needs.
func runScrape(cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	all := fs.Bool("all", false, "capture every property with listing URLs, not just the next batch")
	fs.Parse(args)

	store := openStore(cfg, logger)
	defer store.Close()

	properties, err := store.ListProperties()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load properties")
	}
	lastCaptures, err := store.LastCaptureTimes()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load capture times")
	}

	limit := cfg.Collector.BatchSize
	if *all {
		limit = len(properties)
	}
	batch := scheduler.NextBatch(properties, lastCaptures, limit)
	if len(batch) == 0 {
		logger.Info("No properties eligible for capture")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("Interrupt received, stopping capture")
		cancel()
	}()

	runner := collector.NewRunner(cfg, logger)
	summary, err := runner.CaptureBatch(ctx, batch)
	if err != nil {
		logger.WithError(err).Warn("Capture batch interrupted")
	}
	if len(summary.Results) == 0 {
		return
	}

	proc := processor.NewBatchProcessor(store, nil, cfg, logger)
	if err := proc.ProcessBatch(summary.Results); err != nil {
		logger.WithError(err).Fatal("Failed to save capture results")
	}
	logger.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Capture run recorded")
}

// runAddSale records one manual ledger entry. Input goes through strict
// normalization, so anything ambiguous aborts instead of guessing.
func runAddSale(cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("add-sale", flag.ExitOnError)
	unit := fs.String("unit", "", "unit number (required)")
	date := fs.String("date", "", "sale date, e.g. 2024-06-01 (required)")
	price := fs.String("price", "", "sale price, e.g. 452000 or $452,000 (required)")
	asking := fs.String("asking", "", "asking price (optional)")
	source := fs.String("source", string(models.SaleSourceHOA), "sale source")
	fs.Parse(args)

	if *unit == "" || *date == "" || *price == "" {
		fs.Usage()
		os.Exit(2)
	}

	record, err := normalize.Record(normalize.RawSale{
		Unit:   *unit,
		Date:   *date,
		Price:  *price,
		Source: models.SaleSource(strings.ToLower(strings.TrimSpace(*source))),
	})
	if err != nil {
		logger.WithError(err).Fatal("Rejected sale entry")
	}
	var askingPrice *float64
	if strings.TrimSpace(*asking) != "" {
		v, err := normalize.Price(*asking)
		if err != nil {
			logger.WithError(err).Fatal("Rejected sale entry")
		}
		askingPrice = &v
	}

	store := openStore(cfg, logger)
	defer store.Close()

	prop, ok, err := store.PropertyByUnit(record.Unit)
	if err != nil {
		logger.WithError(err).Fatal("Failed to look up property")
	}
	if !ok {
		logger.WithField("unit", record.Unit).Fatal("Unit is not on the roster")
	}

	sale := &models.Sale{
		PropertyID:  prop.ID,
		SalePrice:   record.Price,
		AskingPrice: askingPrice,
		SaleDate:    record.Date,
		Source:      record.Source,
	}
	switch err := store.AddSale(sale); {
	case errors.Is(err, storage.ErrDuplicateSale):
		logger.WithFields(logrus.Fields{"unit": record.Unit, "date": record.Date}).
			Fatal("Sale duplicates an existing record")
	case err != nil:
		logger.WithError(err).Fatal("Failed to record sale")
	}

	logger.WithFields(logrus.Fields{
		"unit":  record.Unit,
		"date":  record.Date,
		"price": record.Price,
	}).Info("Sale recorded")
}

func runAnalyze(cfg *config.Config, logger *logrus.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	snap, err := store.Snapshot()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load snapshot")
	}

	stats := analysis.Aggregate(analysis.Pairs(snap.Sales, snap.Estimates))
	fmt.Print(report.RenderAccuracy(stats))
	fmt.Print(report.RenderStaleAlerts(analysis.StaleAlerts(snap.Properties, snap.Sales, snap.Estimates)))
}

func runCompare(cfg *config.Config, logger *logrus.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	records, err := store.SaleLedger()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load sale ledger")
	}
	scraped, err := ledger.LoadScrapedHistory(cfg.Roster.ScrapedSalesJSON, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load scraped history")
	}

	fmt.Print(report.RenderComparison(report.Compare(records, scraped)))
}

func runSchedule(cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	limit := fs.Int("limit", 0, "batch size override (0 uses the configured size)")
	fs.Parse(args)

	store := openStore(cfg, logger)
	defer store.Close()

	properties, err := store.ListProperties()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load properties")
	}
	lastCaptures, err := store.LastCaptureTimes()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load capture times")
	}

	n := cfg.Collector.BatchSize
	if *limit > 0 {
		n = *limit
	}
	fmt.Print(report.RenderSchedule(scheduler.NextBatch(properties, lastCaptures, n), lastCaptures))
}

func runStatus(cfg *config.Config, logger *logrus.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	properties, err := store.ListProperties()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load properties")
	}
	_, sales, estimates, err := store.Counts()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load counts")
	}
	lastCaptures, err := store.LastCaptureTimes()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load capture times")
	}

	fmt.Print(report.RenderStatus(report.BuildStatus(properties, sales, estimates, lastCaptures)))
}

func runExport(cfg *config.Config, logger *logrus.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	if _, err := newGeocoder(cfg, logger).FillMissing(store); err != nil {
		logger.WithError(err).Warn("Failed to geocode properties")
	}

	if err := export.NewExporter(store, cfg, logger).Run(nil); err != nil {
		logger.WithError(err).Fatal("Failed to write export")
	}
	logger.WithField("dir", cfg.Export.DocsDir).Info("Export written")
}

// runServe wires the full pipeline: API, result queue, batch processor,
// and the capture scheduler, then blocks until SIGINT/SIGTERM.
func runServe(cfg *config.Config, logger *logrus.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	geocoder := newGeocoder(cfg, logger)

	resultQueue := queue.NewResultQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	proc := processor.NewBatchProcessor(store, resultQueue, cfg, logger)
	proc.Start()
	resultQueue.Start()

	runner := collector.NewRunner(cfg, logger)
	exporter := export.NewExporter(store, cfg, logger)

	router, handler := api.SetupRouter(store, cfg, geocoder, logger)

	// The scheduler shares the handler's telegram service, so configuration
	// changes made through the API apply to the next staleness pass.
	sched := scheduler.NewScheduler(store, runner, resultQueue, exporter, geocoder, handler.TelegramService(), cfg, logger)
	sched.Start()

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	sched.Stop()
	proc.Stop()
	resultQueue.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}
