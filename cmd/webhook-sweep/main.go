package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/storage/postgres"
	"github.com/travelmesh/acs/internal/webhook"
)

const (
	defaultBatchSize     = 20
	defaultRetentionDays = 30
	defaultTimeout       = 5 * time.Minute
)

type config struct {
	dsn           string
	batchSize     int
	requeueFailed bool
	cleanup       bool
	retentionDays int
	execute       bool
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fail("webhook sweep failed: %v", err)
	}
}

func readConfig() (config, error) {
	var cfg config

	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: ACS_POSTGRES_DSN)")
	flag.IntVar(&cfg.batchSize, "batch-size", defaultBatchSize, "deliveries per batch")
	flag.BoolVar(&cfg.requeueFailed, "requeue-failed", false, "reset failed deliveries back to pending before the sweep")
	flag.BoolVar(&cfg.cleanup, "cleanup", false, "delete old terminal delivery records after the sweep")
	flag.IntVar(&cfg.retentionDays, "retention-days", defaultRetentionDays, "retention for terminal delivery records")
	flag.BoolVar(&cfg.execute, "execute", false, "execute requeue; default is dry-run")
	flag.Parse()

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("ACS_POSTGRES_DSN"))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("ACS_POSTGRES_DSN (or -dsn) is required")
	}
	if cfg.batchSize <= 0 {
		return config{}, fmt.Errorf("batch-size must be > 0")
	}
	if cfg.retentionDays <= 0 {
		return config{}, fmt.Errorf("retention-days must be > 0")
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	dispatcher := webhook.NewDispatcher(
		postgres.NewWebhookRepository(store),
		postgres.NewWebhookEventRepository(store),
		webhook.WithLogger(log.WithField("component", "webhook-sweep")),
		webhook.WithBatchSize(cfg.batchSize),
	)

	return runSweep(cfg, dispatcher)
}

// runSweep выполняет один проход доставки: опционально возвращает
// failed-записи в очередь, разбирает due-записи и чистит историю.
func runSweep(cfg config, dispatcher *webhook.Dispatcher) error {
	before, err := dispatcher.Stats()
	if err != nil {
		return fmt.Errorf("read delivery stats: %w", err)
	}

	log.WithFields(log.Fields{
		"pending":  before.PendingCount,
		"retrying": before.RetryingCount,
		"failed":   before.FailedCount,
		"execute":  cfg.execute,
	}).Info("starting webhook sweep")

	if cfg.requeueFailed {
		if cfg.execute {
			requeued, err := dispatcher.RetryFailedEvents()
			if err != nil {
				return fmt.Errorf("requeue failed deliveries: %w", err)
			}
			log.WithField("requeued", requeued).Info("failed deliveries requeued")
		} else {
			log.WithField("candidates", before.FailedCount).Info("dry-run: failed deliveries to requeue")
		}
	}

	dispatcher.ProcessPendingEvents()

	if cfg.cleanup {
		removed, err := dispatcher.CleanupOldEvents(cfg.retentionDays)
		if err != nil {
			return fmt.Errorf("cleanup old deliveries: %w", err)
		}
		log.WithField("removed", removed).Info("old delivery records removed")
	}

	after, err := dispatcher.Stats()
	if err != nil {
		return fmt.Errorf("read delivery stats: %w", err)
	}

	log.WithFields(log.Fields{
		"pending":   after.PendingCount,
		"retrying":  after.RetryingCount,
		"delivered": after.DeliveredCount,
		"failed":    after.FailedCount,
	}).Info("webhook sweep finished")

	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
