package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если услуга не найдена в хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrRecordNotFound возвращается, если запись отмены отсутствует.
	ErrRecordNotFound = errors.New("cancellation record not found")
	// ErrWebhookNotFound возвращается, если подписка отсутствует.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrWebhookEventNotFound возвращается, если запись доставки отсутствует.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	// ErrWebhookNameTaken — имя подписки уже занято.
	ErrWebhookNameTaken = errors.New("webhook name already taken")
	// ErrWebhookURLInvalid — URL подписки не является абсолютным.
	ErrWebhookURLInvalid = errors.New("webhook url must be absolute")
	// ErrWebhookEventsEmpty — список событий подписки пуст.
	ErrWebhookEventsEmpty = errors.New("webhook must subscribe to at least one event")
	// ErrWebhookEventUnknown — тип события вне перечня lifecycle-событий.
	ErrWebhookEventUnknown = errors.New("unknown webhook event type")
	// ErrWebhookSecretTooShort — секрет короче минимально допустимой длины.
	ErrWebhookSecretTooShort = errors.New("webhook secret is too short")
	// ErrEmailRequired — клиентский запрос без email отклоняется до поиска заказа.
	ErrEmailRequired = errors.New("email is required for customer requests")
	// ErrCommandTimeout — команда не уложилась в таймаут выполнения.
	ErrCommandTimeout = errors.New("command execution timed out")
	// ErrDuplicateID сигнализирует о конфликте идентификаторов при создании записи.
	ErrDuplicateID = errors.New("identifier already exists")
)

// Стабильные коды ошибок, возвращаемые наружу в CancellationResult.
const (
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeProductNotFound      = "PRODUCT_NOT_FOUND"
	CodeEmailRequired        = "EMAIL_REQUIRED"
	CodeAccessDenied         = "ACCESS_DENIED"
	CodeOrderStatusInvalid   = "ORDER_STATUS_INVALID"
	CodeProductStatusInvalid = "PRODUCT_STATUS_INVALID"
	CodeNotCancellable       = "CANCELLATION_NOT_ALLOWED"
	CodeProviderNotSupported = "PROVIDER_NOT_SUPPORTED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeProviderError        = "PROVIDER_ERROR"
	CodeProviderTimeout      = "PROVIDER_TIMEOUT"
	CodeInternalError        = "INTERNAL_ERROR"
)

// IsNotFound проверяет, относится ли ошибка к отсутствию сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrWebhookNotFound) ||
		errors.Is(err, ErrWebhookEventNotFound)
}
