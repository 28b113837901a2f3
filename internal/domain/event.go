package domain

import "time"

// EventType определяет тип события жизненного цикла отмены.
type EventType string

const (
	EventCancellationCompleted     EventType = "cancellation.completed"
	EventCancellationPartial       EventType = "cancellation.partial"
	EventCancellationFailed        EventType = "cancellation.failed"
	EventCancellationLookupFailed  EventType = "cancellation.lookup_failed"
	EventCancellationAccessDenied  EventType = "cancellation.access_denied"
	EventCancellationStatusInvalid EventType = "cancellation.status_invalid"
)

// LifecycleEventTypes — полный перечень событий, на которые можно подписаться.
var LifecycleEventTypes = []EventType{
	EventCancellationCompleted,
	EventCancellationPartial,
	EventCancellationFailed,
	EventCancellationLookupFailed,
	EventCancellationAccessDenied,
	EventCancellationStatusInvalid,
}

// IsKnownEventType проверяет, входит ли тип в перечень lifecycle-событий.
func IsKnownEventType(t EventType) bool {
	for _, known := range LifecycleEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CancellationEvent — полезная нагрузка pub/sub при терминальном переходе отмены.
type CancellationEvent struct {
	Type          EventType              `json:"type"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	OrderID       string                 `json:"order_id,omitempty"`
	ProductID     string                 `json:"product_id,omitempty"`
}

// NewCancellationEvent создаёт событие с текущей меткой времени.
func NewCancellationEvent(eventType EventType, ctx CancellationContext, data map[string]interface{}) CancellationEvent {
	return CancellationEvent{
		Type:          eventType,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		CorrelationID: ctx.CorrelationID,
		OrderID:       ctx.OrderID,
		ProductID:     ctx.ProductID,
	}
}
