// Package webhook реализует конвейер доставки lifecycle-событий
// зарегистрированным операторами HTTP-подпискам: fan-out записей
// доставки, подписанные попытки с ограниченной конкурентностью,
// pull-based retry и очистку терминальных записей.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/metrics"
)

const (
	defaultBatchSize      = 5
	defaultDeliverTimeout = 10 * time.Second
	defaultUserAgent      = "acs-webhook/1.0"
	cleanupBatchSize      = 100
)

// DispatcherOptions задаёт параметры диспетчера доставки.
type DispatcherOptions struct {
	Logger     *log.Entry
	Metrics    *metrics.CancellationMetrics
	HTTPClient *http.Client
	BatchSize  int
	UserAgent  string
}

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*DispatcherOptions)

// WithLogger задаёт logger диспетчера.
func WithLogger(logger *log.Entry) DispatcherOption {
	return func(opts *DispatcherOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт сборщик метрик доставки.
func WithMetrics(m *metrics.CancellationMetrics) DispatcherOption {
	return func(opts *DispatcherOptions) {
		opts.Metrics = m
	}
}

// WithHTTPClient задаёт HTTP-клиент исходящих доставок.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(opts *DispatcherOptions) {
		opts.HTTPClient = client
	}
}

// WithBatchSize задаёт размер пакета одновременных доставок.
func WithBatchSize(batchSize int) DispatcherOption {
	return func(opts *DispatcherOptions) {
		opts.BatchSize = batchSize
	}
}

// Dispatcher создаёт записи доставки на каждое событие и проводит их
// через pending/retrying к терминальным delivered/failed.
type Dispatcher struct {
	webhooks   domain.WebhookRepository
	events     domain.WebhookEventRepository
	httpClient *http.Client
	logger     *log.Entry
	metrics    *metrics.CancellationMetrics
	batchSize  int
	userAgent  string
}

// NewDispatcher создаёт диспетчер доставки webhook.
func NewDispatcher(webhooks domain.WebhookRepository, events domain.WebhookEventRepository, options ...DispatcherOption) *Dispatcher {
	opts := DispatcherOptions{
		BatchSize: defaultBatchSize,
		UserAgent: defaultUserAgent,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "webhook-dispatcher")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultDeliverTimeout}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &Dispatcher{
		webhooks:   webhooks,
		events:     events,
		httpClient: httpClient,
		logger:     logger,
		metrics:    opts.Metrics,
		batchSize:  opts.BatchSize,
		userAgent:  opts.UserAgent,
	}
}

// Handle реализует подписчика шины событий: fan-out записей доставки
// и немедленный проход sweep по накопившейся очереди.
func (d *Dispatcher) Handle(event domain.CancellationEvent) error {
	if err := d.DispatchEvent(event); err != nil {
		return err
	}
	d.ProcessPendingEvents()
	return nil
}

// DispatchEvent создаёт по одной pending-записи доставки на каждую
// активную подписку, включающую тип события. Все записи наследуют
// CorrelationID события.
func (d *Dispatcher) DispatchEvent(event domain.CancellationEvent) error {
	subscribers, err := d.webhooks.FindActiveByEvent(event.Type)
	if err != nil {
		return fmt.Errorf("find subscriptions for %s: %w", event.Type, err)
	}
	if len(subscribers) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	now := time.Now().UTC()
	for _, wh := range subscribers {
		_, err := d.events.Create(domain.WebhookEvent{
			WebhookID:     wh.ID,
			EventType:     event.Type,
			Payload:       payload,
			Status:        domain.WebhookEventPending,
			NextAttemptAt: &now,
			CorrelationID: event.CorrelationID,
		})
		if err != nil {
			d.logger.WithError(err).WithFields(log.Fields{
				"webhook_id":     wh.ID,
				"event_type":     event.Type,
				"correlation_id": event.CorrelationID,
			}).Error("failed to create delivery record")
			continue
		}
	}

	d.logger.WithFields(log.Fields{
		"event_type":     event.Type,
		"correlation_id": event.CorrelationID,
		"subscribers":    len(subscribers),
	}).Debug("event fanned out to subscriptions")

	return nil
}

// ProcessPendingEvents выполняет один pull-based sweep: выбирает записи,
// чья visibility-граница наступила, и доставляет их пакетами с
// ограниченной конкурентностью. Отказ одной доставки не влияет на
// остальные записи пакета.
func (d *Dispatcher) ProcessPendingEvents() {
	for {
		due, err := d.events.FindDue(time.Now().UTC(), d.batchSize)
		if err != nil {
			d.logger.WithError(err).Warn("failed to pull due deliveries")
			return
		}
		if len(due) == 0 {
			break
		}

		d.processBatch(due)

		if len(due) < d.batchSize {
			break
		}
	}

	d.refreshBacklogMetrics()
}

// processBatch доставляет пакет параллельно, ограничивая число
// одновременных исходящих вызовов размером пакета.
func (d *Dispatcher) processBatch(batch []domain.WebhookEvent) {
	semaphore := make(chan struct{}, d.batchSize)
	var wg sync.WaitGroup
	for idx := range batch {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(event domain.WebhookEvent) {
			defer wg.Done()
			defer func() { <-semaphore }()
			d.deliverOne(event)
		}(batch[idx])
	}
	wg.Wait()
}

// deliverOne выполняет одну попытку доставки и фиксирует её исход.
func (d *Dispatcher) deliverOne(event domain.WebhookEvent) {
	logger := d.logger.WithFields(log.Fields{
		"delivery_id":    event.ID,
		"webhook_id":     event.WebhookID,
		"correlation_id": event.CorrelationID,
	})

	wh, err := d.webhooks.Get(event.WebhookID)
	if err != nil || !wh.IsActive {
		d.markFailed(event, "webhook is missing or inactive", logger)
		return
	}

	if event.Attempts >= wh.Retry.MaxRetries {
		d.markFailed(event, "delivery attempts exhausted", logger)
		return
	}

	attempts := event.Attempts + 1
	now := time.Now().UTC()
	deliverErr := d.post(context.Background(), wh, event)

	update := domain.DeliveryUpdate{
		Attempts:      attempts,
		LastAttemptAt: &now,
	}

	if deliverErr == nil {
		update.Status = domain.WebhookEventDelivered
		update.DeliveredAt = &now
		if d.metrics != nil {
			d.metrics.RecordWebhookDelivery("delivered")
		}
	} else {
		update.ErrorMessage = deliverErr.Error()
		if attempts >= wh.Retry.MaxRetries {
			update.Status = domain.WebhookEventFailed
			if d.metrics != nil {
				d.metrics.RecordWebhookDelivery("failed")
			}
		} else {
			update.Status = domain.WebhookEventRetrying
			next := now.Add(wh.Retry.NextDelay(attempts))
			update.NextAttemptAt = &next
			if d.metrics != nil {
				d.metrics.RecordWebhookDelivery("retrying")
			}
		}
		logger.WithError(deliverErr).WithField("attempt", attempts).Warn("webhook delivery attempt failed")
	}

	if err := d.events.UpdateDeliveryStatus(event.ID, update); err != nil {
		logger.WithError(err).Error("failed to persist delivery status")
	}
}

// post выполняет один исходящий вызов: тело {event, timestamp, signature?},
// подпись HMAC-SHA256 по сериализованному событию при наличии секрета.
// Успех — любой 2xx-ответ.
func (d *Dispatcher) post(ctx context.Context, wh domain.Webhook, event domain.WebhookEvent) error {
	body := map[string]interface{}{
		"event":     json.RawMessage(event.Payload),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if wh.Secret != "" {
		body["signature"] = Sign(event.Payload, wh.Secret)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal delivery body: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, defaultDeliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, wh.URL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("X-Webhook-Id", wh.ID)
	req.Header.Set("X-Event-Type", string(event.EventType))
	req.Header.Set("X-Correlation-Id", event.CorrelationID)
	for name, value := range wh.Headers {
		req.Header.Set(name, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) markFailed(event domain.WebhookEvent, reason string, logger *log.Entry) {
	now := time.Now().UTC()
	err := d.events.UpdateDeliveryStatus(event.ID, domain.DeliveryUpdate{
		Status:        domain.WebhookEventFailed,
		Attempts:      event.Attempts,
		LastAttemptAt: &now,
		ErrorMessage:  reason,
	})
	if err != nil {
		logger.WithError(err).Error("failed to mark delivery as failed")
		return
	}
	logger.WithField("reason", reason).Debug("delivery marked as failed")
	if d.metrics != nil {
		d.metrics.RecordWebhookDelivery("failed")
	}
}

// RetryFailedEvents возвращает окончательно неудачные записи обратно
// в очередь: статус pending, счётчик попыток обнулён. Сами попытки
// произойдут на следующем sweep.
func (d *Dispatcher) RetryFailedEvents() (int, error) {
	failed, err := d.events.FindFailed(cleanupBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find failed deliveries: %w", err)
	}

	requeued := 0
	now := time.Now().UTC()
	for _, event := range failed {
		err := d.events.UpdateDeliveryStatus(event.ID, domain.DeliveryUpdate{
			Status:        domain.WebhookEventPending,
			Attempts:      0,
			NextAttemptAt: &now,
		})
		if err != nil {
			d.logger.WithError(err).WithField("delivery_id", event.ID).Warn("failed to requeue delivery")
			continue
		}
		requeued++
	}

	if requeued > 0 {
		d.logger.WithField("count", requeued).Info("failed deliveries requeued")
	}
	return requeued, nil
}

// CleanupOldEvents удаляет терминальные записи старше retention-порога
// пакетами и возвращает общее число удалённых.
func (d *Dispatcher) CleanupOldEvents(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	total := 0
	for {
		deleted, err := d.events.DeleteOlderThan(cutoff, cleanupBatchSize)
		if err != nil {
			return total, fmt.Errorf("cleanup old deliveries: %w", err)
		}
		total += deleted
		if deleted < cleanupBatchSize {
			break
		}
	}

	if total > 0 {
		d.logger.WithFields(log.Fields{
			"deleted":        total,
			"retention_days": retentionDays,
		}).Info("old delivery records cleaned up")
	}
	return total, nil
}

func (d *Dispatcher) refreshBacklogMetrics() {
	if d.metrics == nil {
		return
	}
	stats, err := d.events.Stats()
	if err != nil {
		d.logger.WithError(err).Warn("failed to collect delivery stats")
		return
	}
	d.metrics.SetPendingDeliveries(stats.PendingCount + stats.RetryingCount)
	d.metrics.SetFailedDeliveries(stats.FailedCount)
}

// Stats возвращает агрегированное состояние очереди доставок.
func (d *Dispatcher) Stats() (domain.DeliveryStats, error) {
	return d.events.Stats()
}
