package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CancellationMetrics содержит метрики конвейера отмен и доставки webhook.
type CancellationMetrics struct {
	// Счётчики терминальных исходов оркестратора
	cancellationStarted   prometheus.Counter
	cancellationCompleted prometheus.Counter
	cancellationPartial   prometheus.Counter
	cancellationFailed    prometheus.Counter
	cancellationRejected  *prometheus.CounterVec

	// Гистограмма времени обработки одной отмены
	cancellationDuration prometheus.Histogram

	// Выполнение команд поставщиков
	commandExecutions *prometheus.CounterVec
	commandRetries    *prometheus.CounterVec

	// События и доставки
	eventsPublished   prometheus.Counter
	webhookDeliveries *prometheus.CounterVec

	// Gauge очереди доставок
	pendingDeliveries prometheus.Gauge
	failedDeliveries  prometheus.Gauge
}

// NewCancellationMetrics создаёт метрики в default-регистре Prometheus.
func NewCancellationMetrics() *CancellationMetrics {
	return newCancellationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCancellationMetricsWithRegisterer(registerer prometheus.Registerer) *CancellationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CancellationMetrics{
		cancellationStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "acs_cancellation_started_total",
			Help: "Total number of cancellation requests started",
		}),
		cancellationCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "acs_cancellation_completed_total",
			Help: "Total number of cancellations completed successfully",
		}),
		cancellationPartial: registerCounter(registerer, prometheus.CounterOpts{
			Name: "acs_cancellation_partial_total",
			Help: "Total number of cancellations completed with a partial refund",
		}),
		cancellationFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "acs_cancellation_failed_total",
			Help: "Total number of failed cancellations",
		}),
		cancellationRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "acs_cancellation_rejected_total",
			Help: "Total number of cancellations rejected before command execution",
		}, []string{"reason"}),
		cancellationDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "acs_cancellation_duration_seconds",
			Help:    "Duration of cancellation processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		commandExecutions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "acs_command_executions_total",
			Help: "Total number of provider command executions grouped by provider and result",
		}, []string{"provider", "result"}),
		commandRetries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "acs_command_retries_total",
			Help: "Total number of provider command attempts that errored or timed out",
		}, []string{"provider"}),
		eventsPublished: registerCounter(registerer, prometheus.CounterOpts{
			Name: "acs_lifecycle_events_published_total",
			Help: "Total number of lifecycle events published on the event bus",
		}),
		webhookDeliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "acs_webhook_delivery_attempts_total",
			Help: "Total number of webhook delivery attempts grouped by result",
		}, []string{"result"}),
		pendingDeliveries: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "acs_webhook_pending_deliveries",
			Help: "Current number of pending or retrying webhook deliveries",
		}),
		failedDeliveries: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "acs_webhook_failed_deliveries",
			Help: "Current number of permanently failed webhook deliveries",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCancellationStarted увеличивает счётчик начатых отмен.
func (m *CancellationMetrics) RecordCancellationStarted() {
	m.cancellationStarted.Inc()
}

// RecordCancellationCompleted увеличивает счётчик успешных отмен.
func (m *CancellationMetrics) RecordCancellationCompleted() {
	m.cancellationCompleted.Inc()
}

// RecordCancellationPartial увеличивает счётчик частичных возвратов.
func (m *CancellationMetrics) RecordCancellationPartial() {
	m.cancellationPartial.Inc()
}

// RecordCancellationFailed увеличивает счётчик неудачных отмен.
func (m *CancellationMetrics) RecordCancellationFailed() {
	m.cancellationFailed.Inc()
}

// RecordCancellationRejected фиксирует отказ до выполнения команды.
func (m *CancellationMetrics) RecordCancellationRejected(reason string) {
	m.cancellationRejected.WithLabelValues(reason).Inc()
}

// RecordCancellationDuration записывает время обработки отмены.
func (m *CancellationMetrics) RecordCancellationDuration(duration time.Duration) {
	m.cancellationDuration.Observe(duration.Seconds())
}

// RecordCommandExecuted фиксирует разрешившееся выполнение команды.
func (m *CancellationMetrics) RecordCommandExecuted(provider string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.commandExecutions.WithLabelValues(provider, result).Inc()
}

// RecordCommandRetry фиксирует ошибочную или просроченную попытку команды.
func (m *CancellationMetrics) RecordCommandRetry(provider string) {
	m.commandRetries.WithLabelValues(provider).Inc()
}

// RecordEventPublished увеличивает счётчик опубликованных событий.
func (m *CancellationMetrics) RecordEventPublished() {
	m.eventsPublished.Inc()
}

// RecordWebhookDelivery фиксирует попытку доставки webhook.
func (m *CancellationMetrics) RecordWebhookDelivery(result string) {
	m.webhookDeliveries.WithLabelValues(result).Inc()
}

// SetPendingDeliveries обновляет gauge очереди доставок.
func (m *CancellationMetrics) SetPendingDeliveries(count int) {
	m.pendingDeliveries.Set(float64(count))
}

// SetFailedDeliveries обновляет gauge окончательно неудачных доставок.
func (m *CancellationMetrics) SetFailedDeliveries(count int) {
	m.failedDeliveries.Set(float64(count))
}
