package webhook

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval   = 30 * time.Second
	defaultCleanupInterval = 1 * time.Hour
	defaultRetentionDays   = 30
)

// SweepWorkerOptions задаёт параметры фонового sweep-воркера.
type SweepWorkerOptions struct {
	Logger          *log.Entry
	SweepInterval   time.Duration
	CleanupInterval time.Duration
	RetentionDays   int
}

// SweepOption настраивает SweepWorker.
type SweepOption func(*SweepWorkerOptions)

// WithSweepLogger задаёт logger воркера.
func WithSweepLogger(logger *log.Entry) SweepOption {
	return func(opts *SweepWorkerOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт частоту прохода по очереди доставок.
func WithSweepInterval(interval time.Duration) SweepOption {
	return func(opts *SweepWorkerOptions) {
		opts.SweepInterval = interval
	}
}

// WithCleanupInterval задаёт частоту очистки терминальных записей.
func WithCleanupInterval(interval time.Duration) SweepOption {
	return func(opts *SweepWorkerOptions) {
		opts.CleanupInterval = interval
	}
}

// WithRetentionDays задаёт retention терминальных записей в днях.
func WithRetentionDays(days int) SweepOption {
	return func(opts *SweepWorkerOptions) {
		opts.RetentionDays = days
	}
}

// SweepWorker периодически прогоняет очередь доставок и чистит
// терминальные записи старше retention-порога.
type SweepWorker struct {
	dispatcher      *Dispatcher
	logger          *log.Entry
	sweepInterval   time.Duration
	cleanupInterval time.Duration
	retentionDays   int
}

// NewSweepWorker создаёт фоновый воркер доставок.
func NewSweepWorker(dispatcher *Dispatcher, options ...SweepOption) *SweepWorker {
	opts := SweepWorkerOptions{
		SweepInterval:   defaultSweepInterval,
		CleanupInterval: defaultCleanupInterval,
		RetentionDays:   defaultRetentionDays,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "webhook-sweeper")
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetentionDays
	}

	return &SweepWorker{
		dispatcher:      dispatcher,
		logger:          logger,
		sweepInterval:   opts.SweepInterval,
		cleanupInterval: opts.CleanupInterval,
		retentionDays:   opts.RetentionDays,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (w *SweepWorker) Run(ctx context.Context) {
	if w.dispatcher == nil {
		w.logger.Warn("webhook sweeper is disabled: dispatcher is nil")
		return
	}

	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(w.cleanupInterval)
	defer cleanupTicker.Stop()

	w.dispatcher.ProcessPendingEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			w.dispatcher.ProcessPendingEvents()
		case <-cleanupTicker.C:
			if _, err := w.dispatcher.CleanupOldEvents(w.retentionDays); err != nil {
				w.logger.WithError(err).Warn("failed to clean up old delivery records")
			}
		}
	}
}
