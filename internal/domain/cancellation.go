package domain

import (
	"encoding/json"
	"time"
)

// RequestSource — канал, из которого пришёл запрос на отмену.
type RequestSource string

const (
	SourceCustomerPortal RequestSource = "customer_portal"
	SourceAdminPanel     RequestSource = "admin_panel"
	SourcePartnerAPI     RequestSource = "partner_api"
	SourceSystem         RequestSource = "system"
)

// Role — роль аутентифицированного субъекта запроса.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleCustomerService Role = "customer_service"
	RoleSystem          Role = "system"
	RolePartner         Role = "partner"
	RoleCustomer        Role = "customer"
)

// Principal — аутентифицированный субъект, от имени которого идёт отмена.
type Principal struct {
	Email string
	Role  Role
}

// CancellationContext — неизменяемый контекст одной единицы работы
// (одна услуга одного заказа). Создаётся ровно один раз; CorrelationID
// связывает запись отмены, аудит, событие и все webhook-доставки.
type CancellationContext struct {
	OrderID       string
	ProductID     string
	Reason        string
	RequestedBy   string
	RequestSource RequestSource
	CorrelationID string
}

// ResultStatus — исход выполнения команды отмены.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPartial   ResultStatus = "partial"
)

// CancellationResult — результат ровно одного выполнения команды.
// После создания не мутируется.
type CancellationResult struct {
	Success          bool
	RefundMinor      int64
	FeeMinor         int64
	Currency         string
	Status           ResultStatus
	Message          string
	ErrorCode        string
	RetryAfter       int // Секунды до повторной попытки для retryable-ошибок поставщика.
	ExternalResponse json.RawMessage
	CorrelationID    string
	ProductID        string
}

// RecordStatus — статус персистентной записи отмены.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusFailed    RecordStatus = "failed"
)

// CancellationRecord — персистентная запись об отмене одной услуги.
// Создаётся в статусе pending до выполнения команды и ровно один раз
// переходит в терминальный статус.
type CancellationRecord struct {
	ID               string
	OrderID          string
	ProductID        string
	Reason           string
	RequestSource    RequestSource
	RequestedBy      string
	RefundMinor      int64
	FeeMinor         int64
	Currency         string
	Status           RecordStatus
	CorrelationID    string
	ProviderResponse json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
