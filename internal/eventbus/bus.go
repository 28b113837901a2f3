// Package eventbus реализует внутрипроцессный publish/subscribe
// для событий жизненного цикла отмен. Экземпляр создаётся явно
// в точке сборки приложения и передаётся зависимостям по ссылке.
package eventbus

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
)

// Subscriber получает события одного или нескольких типов.
// Ошибка подписчика изолируется и не прерывает доставку остальным.
type Subscriber interface {
	Handle(event domain.CancellationEvent) error
}

// SubscriberFunc адаптирует функцию к интерфейсу Subscriber.
type SubscriberFunc func(event domain.CancellationEvent) error

// Handle реализует Subscriber.
func (f SubscriberFunc) Handle(event domain.CancellationEvent) error {
	return f(event)
}

type subscription struct {
	id         uint64
	subscriber Subscriber
}

// Bus — шина событий с подписками по типу события.
// Без durability: события, не доставленные до падения процесса, теряются.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.EventType][]subscription
	logger *log.Entry
}

// NewBus создаёт шину событий.
func NewBus(logger *log.Entry) *Bus {
	if logger == nil {
		logger = log.New().WithField("component", "eventbus")
	}
	return &Bus{
		subs:   make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Subscribe регистрирует подписчика на тип события и возвращает
// идентификатор подписки для Unsubscribe.
func (b *Bus) Subscribe(eventType domain.EventType, subscriber Subscriber) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{
		id:         b.nextID,
		subscriber: subscriber,
	})
	return b.nextID
}

// SubscribeAll регистрирует подписчика на весь перечень lifecycle-событий.
func (b *Bus) SubscribeAll(subscriber Subscriber) []uint64 {
	ids := make([]uint64, 0, len(domain.LifecycleEventTypes))
	for _, t := range domain.LifecycleEventTypes {
		ids = append(ids, b.Subscribe(t, subscriber))
	}
	return ids
}

// Unsubscribe снимает подписку по идентификатору.
func (b *Bus) Unsubscribe(eventType domain.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[eventType]
	for i, sub := range list {
		if sub.id == id {
			b.subs[eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish рассылает событие всем подписчикам его типа в отдельных
// горутинах и дожидается их завершения. Паника или ошибка подписчика
// логируется и не прерывает ни рассылку, ни публикующий вызов.
func (b *Bus) Publish(event domain.CancellationEvent) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[event.Type]))
	copy(list, b.subs[event.Type])
	b.mu.RUnlock()

	if len(list) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range list {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.WithFields(log.Fields{
						"event_type":     event.Type,
						"correlation_id": event.CorrelationID,
						"panic":          r,
					}).Error("subscriber panicked")
				}
			}()

			if err := s.subscriber.Handle(event); err != nil {
				b.logger.WithError(err).WithFields(log.Fields{
					"event_type":     event.Type,
					"correlation_id": event.CorrelationID,
				}).Warn("subscriber failed to handle event")
			}
		}(sub)
	}
	wg.Wait()
}

var _ domain.EventPublisher = (*Bus)(nil)
