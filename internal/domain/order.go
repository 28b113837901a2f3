package domain

import "time"

// OrderStatus описывает жизненный цикл заказа дополнительных услуг.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, но ещё не подтверждён поставщиками.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — все услуги заказа подтверждены и ожидают исполнения.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled — каждая услуга заказа достигла терминального статуса.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — по заказу выполнен полный возврат средств.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusExpired — срок оказания услуг истёк без исполнения.
	OrderStatusExpired OrderStatus = "expired"
)

// IsCancellable сообщает, допускает ли статус заказа запуск отмены.
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// OrderIdentifier — внешний идентификатор заказа в запросе на отмену.
// Email обязателен для клиентского канала и сверяется с владельцем заказа.
type OrderIdentifier struct {
	PNR   string
	Email string
}

// Order агрегирует купленные дополнительные услуги одного бронирования.
type Order struct {
	ID            string
	PNR           string
	CustomerEmail string
	ProductIDs    []string
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductStatus описывает состояние отдельной услуги внутри заказа.
type ProductStatus string

const (
	ProductStatusPending   ProductStatus = "pending"
	ProductStatusConfirmed ProductStatus = "confirmed"
	ProductStatusCancelled ProductStatus = "cancelled"
	ProductStatusRefunded  ProductStatus = "refunded"
	ProductStatusExpired   ProductStatus = "expired"
)

// IsCancellable сообщает, допускает ли статус услуги её отмену.
func (s ProductStatus) IsCancellable() bool {
	return s == ProductStatusPending || s == ProductStatusConfirmed
}

// IsTerminal сообщает, достигла ли услуга конечного состояния.
func (s ProductStatus) IsTerminal() bool {
	return s == ProductStatusCancelled || s == ProductStatusRefunded || s == ProductStatusExpired
}

// Provider — код стороннего поставщика услуги.
type Provider string

const (
	// ProviderDragonPass — доступ в бизнес-залы аэропортов.
	ProviderDragonPass Provider = "dragonpass"
	// ProviderMozio — трансферы из/в аэропорт.
	ProviderMozio Provider = "mozio"
	// ProviderAiralo — туристические eSIM.
	ProviderAiralo Provider = "airalo"
	// ProviderUnknown используется для нераспознанных кодов поставщиков.
	ProviderUnknown Provider = "unknown"
)

// Price — стоимость услуги в минимальных денежных единицах.
type Price struct {
	AmountMinor int64
	Currency    string
}

// Product — купленная дополнительная услуга (lounge, трансфер, eSIM).
type Product struct {
	ID              string
	OrderID         string
	Provider        Provider
	ExternalID      string // Идентификатор бронирования на стороне поставщика.
	Price           Price
	Policy          CancellationPolicy
	ServiceDateTime time.Time
	Status          ProductStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
