package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
)

const minSecretLength = 16

// Registry обслуживает CRUD подписок: валидация, уникальность имён,
// дефолтная retry-политика и пробная доставка.
type Registry struct {
	webhooks   domain.WebhookRepository
	dispatcher *Dispatcher
	logger     *log.Entry
}

// NewRegistry создаёт реестр подписок. dispatcher используется только
// для пробных доставок и может быть nil.
func NewRegistry(webhooks domain.WebhookRepository, dispatcher *Dispatcher, logger *log.Entry) *Registry {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-registry")
	}
	return &Registry{
		webhooks:   webhooks,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterInput — данные новой подписки.
type RegisterInput struct {
	Name      string
	URL       string
	Events    []domain.EventType
	Secret    string
	Headers   map[string]string
	Retry     *domain.RetryConfig
	CreatedBy string
}

// Register валидирует и сохраняет новую подписку. Подписка создаётся
// активной; retry-политика по умолчанию применяется, если не задана.
func (r *Registry) Register(input RegisterInput) (domain.Webhook, error) {
	if err := validateInput(input.URL, input.Events, input.Secret); err != nil {
		return domain.Webhook{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return domain.Webhook{}, fmt.Errorf("webhook name is required")
	}
	if _, err := r.webhooks.GetByName(input.Name); err == nil {
		return domain.Webhook{}, domain.ErrWebhookNameTaken
	}

	retry := domain.DefaultRetryConfig()
	if input.Retry != nil {
		retry = *input.Retry
	}

	now := time.Now().UTC()
	webhook := domain.Webhook{
		ID:        uuid.NewString(),
		Name:      input.Name,
		URL:       input.URL,
		Events:    input.Events,
		Secret:    input.Secret,
		Headers:   input.Headers,
		Retry:     retry,
		IsActive:  true,
		CreatedBy: input.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := r.webhooks.Create(webhook)
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("create webhook: %w", err)
	}

	r.logger.WithFields(log.Fields{
		"webhook_id": created.ID,
		"name":       created.Name,
		"events":     len(created.Events),
	}).Info("webhook registered")

	return created, nil
}

// Get возвращает подписку по идентификатору.
func (r *Registry) Get(id string) (domain.Webhook, error) {
	return r.webhooks.Get(id)
}

// List возвращает все подписки.
func (r *Registry) List() ([]domain.Webhook, error) {
	return r.webhooks.List()
}

// UpdateInput — частичное изменение подписки. Nil-поля не меняются.
type UpdateInput struct {
	URL      *string
	Events   []domain.EventType
	Secret   *string
	Headers  map[string]string
	Retry    *domain.RetryConfig
	IsActive *bool
}

// Update применяет частичное изменение с той же валидацией, что и при
// регистрации.
func (r *Registry) Update(id string, input UpdateInput) (domain.Webhook, error) {
	webhook, err := r.webhooks.Get(id)
	if err != nil {
		return domain.Webhook{}, err
	}

	if input.URL != nil {
		webhook.URL = *input.URL
	}
	if input.Events != nil {
		webhook.Events = input.Events
	}
	if input.Secret != nil {
		webhook.Secret = *input.Secret
	}
	if input.Headers != nil {
		webhook.Headers = input.Headers
	}
	if input.Retry != nil {
		webhook.Retry = *input.Retry
	}
	if input.IsActive != nil {
		webhook.IsActive = *input.IsActive
	}

	if err := validateInput(webhook.URL, webhook.Events, webhook.Secret); err != nil {
		return domain.Webhook{}, err
	}

	webhook.UpdatedAt = time.Now().UTC()
	if err := r.webhooks.Update(webhook); err != nil {
		return domain.Webhook{}, fmt.Errorf("update webhook: %w", err)
	}

	r.logger.WithField("webhook_id", id).Info("webhook updated")
	return webhook, nil
}

// Delete удаляет подписку. Уже созданные записи доставки остаются и
// завершатся как failed при недоступной подписке.
func (r *Registry) Delete(id string) error {
	if err := r.webhooks.Delete(id); err != nil {
		return err
	}
	r.logger.WithField("webhook_id", id).Info("webhook deleted")
	return nil
}

// TestResult — исход пробной доставки.
type TestResult struct {
	Success   bool
	LatencyMs int64
	Error     string
}

// TestDelivery отправляет синтетическое событие на endpoint подписки,
// не создавая персистентной записи доставки.
func (r *Registry) TestDelivery(ctx context.Context, id string) (TestResult, error) {
	webhook, err := r.webhooks.Get(id)
	if err != nil {
		return TestResult{}, err
	}
	if r.dispatcher == nil {
		return TestResult{}, fmt.Errorf("test delivery is not available")
	}

	event := domain.NewCancellationEvent(domain.EventCancellationCompleted, domain.CancellationContext{
		OrderID:       "test-order",
		ProductID:     "test-product",
		Reason:        "webhook test delivery",
		RequestSource: domain.SourceAdminPanel,
		CorrelationID: uuid.NewString(),
	}, map[string]interface{}{"test": true})

	payload, err := json.Marshal(event)
	if err != nil {
		return TestResult{}, fmt.Errorf("marshal test event: %w", err)
	}

	started := time.Now()
	deliverErr := r.dispatcher.post(ctx, webhook, domain.WebhookEvent{
		ID:            "test-" + event.CorrelationID,
		WebhookID:     webhook.ID,
		EventType:     event.Type,
		Payload:       payload,
		CorrelationID: event.CorrelationID,
	})
	latency := time.Since(started).Milliseconds()

	result := TestResult{Success: deliverErr == nil, LatencyMs: latency}
	if deliverErr != nil {
		result.Error = deliverErr.Error()
	}

	r.logger.WithFields(log.Fields{
		"webhook_id": id,
		"success":    result.Success,
		"latency_ms": latency,
	}).Info("test delivery finished")

	return result, nil
}

func validateInput(rawURL string, events []domain.EventType, secret string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return domain.ErrWebhookURLInvalid
	}
	if len(events) == 0 {
		return domain.ErrWebhookEventsEmpty
	}
	for _, eventType := range events {
		if !domain.IsKnownEventType(eventType) {
			return fmt.Errorf("%w: %s", domain.ErrWebhookEventUnknown, eventType)
		}
	}
	if secret != "" && len(secret) < minSecretLength {
		return domain.ErrWebhookSecretTooShort
	}
	return nil
}
