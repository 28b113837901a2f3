package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// FindByIdentifier ищет заказ по PNR и, если указан, email владельца.
	FindByIdentifier(ident OrderIdentifier) (Order, error)
	// FindByID возвращает заказ или ErrOrderNotFound, если его нет.
	FindByID(id string) (Order, error)
	// UpdateStatus атомарно меняет статус заказа по идентификатору.
	UpdateStatus(id string, status OrderStatus) error
}

// ProductRepository описывает хранилище услуг.
type ProductRepository interface {
	FindByID(id string) (Product, error)
	// FindByIDs возвращает услуги в порядке переданных идентификаторов.
	FindByIDs(ids []string) ([]Product, error)
	UpdateStatus(id string, status ProductStatus) error
}

// CancellationRecordRepository хранит записи об отменах.
type CancellationRecordRepository interface {
	Create(record CancellationRecord) (CancellationRecord, error)
	// UpdateStatus переводит запись в терминальный статус и сохраняет итоговые суммы.
	UpdateStatus(id string, status RecordStatus, update RecordUpdate) error
	FindByCorrelationID(correlationID string) (CancellationRecord, error)
}

// RecordUpdate — итоговые данные записи отмены при терминальном переходе.
type RecordUpdate struct {
	RefundMinor      int64
	FeeMinor         int64
	Currency         string
	ProviderResponse []byte
}

// WebhookRepository описывает CRUD хранилища подписок.
type WebhookRepository interface {
	Create(webhook Webhook) (Webhook, error)
	Get(id string) (Webhook, error)
	GetByName(name string) (Webhook, error)
	List() ([]Webhook, error)
	Update(webhook Webhook) error
	Delete(id string) error
	// FindActiveByEvent возвращает активные подписки, содержащие данный тип события.
	FindActiveByEvent(eventType EventType) ([]Webhook, error)
}

// WebhookEventRepository хранит записи доставок.
type WebhookEventRepository interface {
	Create(event WebhookEvent) (WebhookEvent, error)
	// FindDue возвращает pending/retrying-записи, чей NextAttemptAt не позже now.
	FindDue(now time.Time, limit int) ([]WebhookEvent, error)
	FindFailed(limit int) ([]WebhookEvent, error)
	UpdateDeliveryStatus(id string, update DeliveryUpdate) error
	Stats() (DeliveryStats, error)
	// DeleteOlderThan удаляет терминальные записи старше cutoff, не более limit за вызов.
	DeleteOlderThan(cutoff time.Time, limit int) (int, error)
}

// EventPublisher — внутренняя шина событий жизненного цикла отмен.
type EventPublisher interface {
	Publish(event CancellationEvent)
}
