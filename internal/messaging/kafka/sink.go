package kafka

import (
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
)

// DefaultEventsTopic — топик lifecycle-событий отмен.
const DefaultEventsTopic = "acs.cancellation.events"

// EventPublisher — минимальный контракт продюсера для стока событий.
type EventPublisher interface {
	PublishEvent(topic, key string, event interface{}) error
}

// EventSink транслирует события внутренней шины в Kafka-топик.
// Подключается к шине как обычный подписчик; ключом партиционирования
// служит OrderID, чтобы события одного заказа сохраняли порядок.
type EventSink struct {
	producer EventPublisher
	topic    string
	logger   *log.Entry
}

// NewEventSink создаёт сток событий в Kafka.
func NewEventSink(producer EventPublisher, topic string, logger *log.Entry) *EventSink {
	if topic == "" {
		topic = DefaultEventsTopic
	}
	if logger == nil {
		logger = log.New().WithField("component", "kafka-event-sink")
	}
	return &EventSink{producer: producer, topic: topic, logger: logger}
}

// Handle публикует событие в топик. Ошибка публикации возвращается
// шине и не влияет на остальных подписчиков.
func (s *EventSink) Handle(event domain.CancellationEvent) error {
	key := event.OrderID
	if key == "" {
		key = event.CorrelationID
	}

	if err := s.producer.PublishEvent(s.topic, key, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type":     event.Type,
			"correlation_id": event.CorrelationID,
		}).Error("failed to publish lifecycle event to kafka")
		return err
	}
	return nil
}
