package domain

import (
	"encoding/json"
	"math"
	"time"
)

// RetryConfig — политика повторных доставок webhook-подписки.
type RetryConfig struct {
	MaxRetries        int
	RetryDelayMs      int64
	BackoffMultiplier float64
}

// DefaultRetryConfig возвращает политику доставки по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		RetryDelayMs:      60_000,
		BackoffMultiplier: 2.0,
	}
}

// NextDelay вычисляет задержку перед попыткой с номером attempt (с единицы).
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	if c.RetryDelayMs <= 0 || attempt <= 0 {
		return 0
	}
	multiplier := c.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(c.RetryDelayMs) * math.Pow(multiplier, float64(attempt-1))
	return time.Duration(delay) * time.Millisecond
}

// Webhook — зарегистрированная оператором подписка на lifecycle-события.
type Webhook struct {
	ID        string
	Name      string
	URL       string
	Events    []EventType
	Secret    string
	Headers   map[string]string // Дополнительные заголовки, настроенные оператором.
	Retry     RetryConfig
	IsActive  bool
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscribed проверяет, подписан ли webhook на данный тип события.
func (w *Webhook) Subscribed(eventType EventType) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookEventStatus — статус записи доставки.
type WebhookEventStatus string

const (
	WebhookEventPending   WebhookEventStatus = "pending"
	WebhookEventRetrying  WebhookEventStatus = "retrying"
	WebhookEventDelivered WebhookEventStatus = "delivered"
	WebhookEventFailed    WebhookEventStatus = "failed"
)

// IsTerminal сообщает, завершена ли доставка окончательно.
func (s WebhookEventStatus) IsTerminal() bool {
	return s == WebhookEventDelivered || s == WebhookEventFailed
}

// WebhookEvent — персистентная запись доставки одного события одной подписке.
// Создаётся в статусе pending при fan-out; Attempts увеличивается на каждую
// попытку; NextAttemptAt задаёт visibility-границу для pull-based sweep.
type WebhookEvent struct {
	ID            string
	WebhookID     string
	EventType     EventType
	Payload       json.RawMessage
	Status        WebhookEventStatus
	Attempts      int
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time
	ErrorMessage  string
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryStats — агрегированное состояние очереди доставок.
type DeliveryStats struct {
	PendingCount    int
	RetryingCount   int
	DeliveredCount  int
	FailedCount     int
	OldestPendingAt time.Time
}

// DeliveryUpdate — изменение состояния доставки после одной попытки.
type DeliveryUpdate struct {
	Status        WebhookEventStatus
	Attempts      int
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time
	ErrorMessage  string
}
