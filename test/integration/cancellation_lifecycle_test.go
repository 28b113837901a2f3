package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/travelmesh/acs/internal/app"
	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/orchestrator"
	"github.com/travelmesh/acs/internal/storage/memory"
	"github.com/travelmesh/acs/internal/webhook"
)

const webhookSecret = "integration-secret-key"

// CancellationLifecycleTestSuite проверяет полный путь отмены:
// запрос → команда поставщика → запись → статусы → доставка webhook.
type CancellationLifecycleTestSuite struct {
	suite.Suite

	deps *app.Dependencies

	mu         sync.Mutex
	deliveries []receivedDelivery
	respStatus int
	server     *httptest.Server
}

type receivedDelivery struct {
	body    map[string]json.RawMessage
	headers http.Header
}

func (s *CancellationLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	deps, err := app.NewDependencies(context.Background(), app.DefaultConfig(), logger)
	require.NoError(s.T(), err)
	s.deps = deps

	s.deliveries = nil
	s.respStatus = http.StatusOK
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.deliveries = append(s.deliveries, receivedDelivery{body: body, headers: r.Header.Clone()})
		status := s.respStatus
		s.mu.Unlock()

		w.WriteHeader(status)
	}))
}

func (s *CancellationLifecycleTestSuite) TearDownTest() {
	s.server.Close()
	s.deps.Close()
}

func (s *CancellationLifecycleTestSuite) received() []receivedDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]receivedDelivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

func (s *CancellationLifecycleTestSuite) seedOrder(productIDs ...string) domain.Order {
	order := domain.Order{
		ID:            "ord-100",
		PNR:           "XYZ789",
		CustomerEmail: "traveler@example.com",
		ProductIDs:    productIDs,
		Status:        domain.OrderStatusConfirmed,
	}
	require.NoError(s.T(), s.deps.Orders.(*memory.OrderRepository).Create(order))
	return order
}

func (s *CancellationLifecycleTestSuite) seedProduct(id string) domain.Product {
	product := domain.Product{
		ID:         id,
		OrderID:    "ord-100",
		Provider:   domain.ProviderDragonPass,
		ExternalID: "dp-" + id,
		Price:      domain.Price{AmountMinor: 10_000, Currency: "USD"},
		Policy: domain.CancellationPolicy{
			CanCancel: true,
			Windows: []domain.CancellationWindow{
				{HoursBeforeService: 24, RefundPercentage: 100},
			},
		},
		ServiceDateTime: time.Now().UTC().Add(72 * time.Hour),
		Status:          domain.ProductStatusConfirmed,
	}
	require.NoError(s.T(), s.deps.Products.(*memory.ProductRepository).Create(product))
	return product
}

func (s *CancellationLifecycleTestSuite) registerWebhook() domain.Webhook {
	hook, err := s.deps.Registry.Register(webhook.RegisterInput{
		Name:      "partner-hook",
		URL:       s.server.URL,
		Events:    []domain.EventType{domain.EventCancellationCompleted, domain.EventCancellationFailed},
		Secret:    webhookSecret,
		CreatedBy: "ops@travelmesh.io",
	})
	require.NoError(s.T(), err)
	return hook
}

func (s *CancellationLifecycleTestSuite) TestSuccessfulCancellationLifecycle() {
	s.seedOrder("prod-1")
	s.seedProduct("prod-1")
	s.registerWebhook()

	results := s.deps.Orchestrator.Cancel(context.Background(), orchestrator.CancelRequest{
		OrderIdentifier: domain.OrderIdentifier{PNR: "XYZ789"},
		ProductID:       "prod-1",
		Reason:          "flight rebooked",
		Source:          domain.SourceAdminPanel,
	}, domain.Principal{Email: "agent@travelmesh.io", Role: domain.RoleAdmin})

	require.Len(s.T(), results, 1)
	result := results[0]
	require.True(s.T(), result.Success)
	require.Equal(s.T(), domain.ResultCompleted, result.Status)
	require.Equal(s.T(), int64(10_000), result.RefundMinor)
	require.Equal(s.T(), "USD", result.Currency)
	require.NotEmpty(s.T(), result.CorrelationID)

	// Запись отмены финализирована.
	record, err := s.deps.Records.FindByCorrelationID(result.CorrelationID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RecordStatusCompleted, record.Status)
	require.Equal(s.T(), int64(10_000), record.RefundMinor)

	// Статусы услуги и заказа обновлены.
	product, err := s.deps.Products.FindByID("prod-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.ProductStatusRefunded, product.Status)

	order, err := s.deps.Orders.FindByID("ord-100")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusCancelled, order.Status)

	// Webhook доставлен синхронно через шину.
	deliveries := s.received()
	require.Len(s.T(), deliveries, 1)
	delivery := deliveries[0]
	require.Equal(s.T(), string(domain.EventCancellationCompleted), delivery.headers.Get("X-Event-Type"))
	require.Equal(s.T(), result.CorrelationID, delivery.headers.Get("X-Correlation-Id"))

	// Подпись считается от сырого payload события.
	var signature string
	require.NoError(s.T(), json.Unmarshal(delivery.body["signature"], &signature))
	require.True(s.T(), webhook.VerifySignature(delivery.body["event"], webhookSecret, signature))

	var event domain.CancellationEvent
	require.NoError(s.T(), json.Unmarshal(delivery.body["event"], &event))
	require.Equal(s.T(), domain.EventCancellationCompleted, event.Type)
	require.Equal(s.T(), "ord-100", event.OrderID)
}

func (s *CancellationLifecycleTestSuite) TestRejectedCancellationSkipsProviderAndWebhook() {
	s.seedOrder("prod-1")
	s.seedProduct("prod-1")
	s.registerWebhook()

	// Покупатель без email не может подтвердить владение заказом.
	results := s.deps.Orchestrator.Cancel(context.Background(), orchestrator.CancelRequest{
		OrderIdentifier: domain.OrderIdentifier{PNR: "XYZ789"},
		ProductID:       "prod-1",
		Reason:          "changed plans",
		Source:          domain.SourceCustomerPortal,
	}, domain.Principal{Role: domain.RoleCustomer})

	require.Len(s.T(), results, 1)
	require.False(s.T(), results[0].Success)
	require.Equal(s.T(), domain.CodeEmailRequired, results[0].ErrorCode)

	// Подписка не покрывает событие отказа в доступе.
	require.Empty(s.T(), s.received())

	product, err := s.deps.Products.FindByID("prod-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.ProductStatusConfirmed, product.Status)
}

func (s *CancellationLifecycleTestSuite) TestFailedDeliveryIsRetriedBySweep() {
	s.seedOrder("prod-1")
	s.seedProduct("prod-1")
	s.registerWebhook()

	s.mu.Lock()
	s.respStatus = http.StatusInternalServerError
	s.mu.Unlock()

	s.deps.Orchestrator.Cancel(context.Background(), orchestrator.CancelRequest{
		OrderIdentifier: domain.OrderIdentifier{PNR: "XYZ789"},
		ProductID:       "prod-1",
		Reason:          "flight rebooked",
		Source:          domain.SourceAdminPanel,
	}, domain.Principal{Email: "agent@travelmesh.io", Role: domain.RoleAdmin})

	require.Len(s.T(), s.received(), 1)

	stats, err := s.deps.Dispatcher.Stats()
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, stats.RetryingCount)

	// Повторная попытка отложена, немедленный sweep её не трогает.
	s.deps.Dispatcher.ProcessPendingEvents()
	require.Len(s.T(), s.received(), 1)
}

func TestCancellationLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(CancellationLifecycleTestSuite))
}
