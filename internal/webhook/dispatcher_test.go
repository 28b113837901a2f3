package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/storage/memory"
)

func seedWebhook(t *testing.T, repo *memory.WebhookRepository, wh domain.Webhook) domain.Webhook {
	t.Helper()
	if wh.Retry.MaxRetries == 0 {
		wh.Retry = domain.DefaultRetryConfig()
	}
	created, err := repo.Create(wh)
	if err != nil {
		t.Fatalf("seed webhook: %v", err)
	}
	return created
}

func completedEvent(correlationID string) domain.CancellationEvent {
	return domain.NewCancellationEvent(domain.EventCancellationCompleted, domain.CancellationContext{
		OrderID:       "ord-1",
		ProductID:     "prod-1",
		CorrelationID: correlationID,
	}, map[string]interface{}{"refund_minor": int64(5000)})
}

func TestDispatchEventFanOut(t *testing.T) {
	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()

	first := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-primary",
		URL:      "https://ops.example.com/hooks",
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: true,
	})
	second := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-secondary",
		URL:      "https://backup.example.com/hooks",
		Events:   []domain.EventType{domain.EventCancellationCompleted, domain.EventCancellationFailed},
		IsActive: true,
	})
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-disabled",
		URL:      "https://off.example.com/hooks",
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: false,
	})
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-other-events",
		URL:      "https://other.example.com/hooks",
		Events:   []domain.EventType{domain.EventCancellationFailed},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-fanout")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}

	all := events.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 delivery records, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, record := range all {
		seen[record.WebhookID] = true
		if record.Status != domain.WebhookEventPending {
			t.Errorf("expected pending status, got %s", record.Status)
		}
		if record.CorrelationID != "corr-fanout" {
			t.Errorf("expected correlation id to propagate, got %q", record.CorrelationID)
		}
		if record.NextAttemptAt == nil {
			t.Error("expected NextAttemptAt to be set on fan-out")
		}
	}
	if !seen[first.ID] || !seen[second.ID] {
		t.Fatalf("expected records for both subscribed webhooks, got %v", seen)
	}
}

func TestDeliverySuccess(t *testing.T) {
	var body []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	wh := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		Secret:   "super-secret-value",
		Headers:  map[string]string{"X-Env": "staging"},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-ok")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}
	dispatcher.ProcessPendingEvents()

	all := events.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 delivery record, got %d", len(all))
	}
	record := all[0]
	if record.Status != domain.WebhookEventDelivered {
		t.Fatalf("expected delivered, got %s (%s)", record.Status, record.ErrorMessage)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", record.Attempts)
	}
	if record.DeliveredAt == nil {
		t.Fatal("expected DeliveredAt to be set")
	}

	var envelope struct {
		Event     json.RawMessage `json:"event"`
		Timestamp string          `json:"timestamp"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal delivery body: %v", err)
	}
	if !VerifySignature(record.Payload, "super-secret-value", envelope.Signature) {
		t.Error("expected signature to verify against the event payload")
	}
	if envelope.Timestamp == "" {
		t.Error("expected timestamp in delivery body")
	}

	if gotHeaders.Get("X-Webhook-Id") != wh.ID {
		t.Errorf("expected X-Webhook-Id %q, got %q", wh.ID, gotHeaders.Get("X-Webhook-Id"))
	}
	if gotHeaders.Get("X-Event-Type") != string(domain.EventCancellationCompleted) {
		t.Errorf("unexpected X-Event-Type %q", gotHeaders.Get("X-Event-Type"))
	}
	if gotHeaders.Get("X-Correlation-Id") != "corr-ok" {
		t.Errorf("unexpected X-Correlation-Id %q", gotHeaders.Get("X-Correlation-Id"))
	}
	if gotHeaders.Get("X-Env") != "staging" {
		t.Errorf("expected custom header to be forwarded, got %q", gotHeaders.Get("X-Env"))
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type %q", gotHeaders.Get("Content-Type"))
	}
}

func TestDeliveryRetriesThenFails(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		Retry:    domain.RetryConfig{MaxRetries: 3, RetryDelayMs: 0, BackoffMultiplier: 2.0},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-fail")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}

	// Больше проходов, чем допустимо попыток: после терминального failed
	// запись не должна выбираться снова.
	for i := 0; i < 5; i++ {
		dispatcher.ProcessPendingEvents()
	}

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 delivery attempts, got %d", got)
	}

	record := events.All()[0]
	if record.Status != domain.WebhookEventFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.Attempts != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", record.Attempts)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected error message for failed delivery")
	}
}

func TestDeliveryBackoffSchedulesNextAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		Retry:    domain.RetryConfig{MaxRetries: 3, RetryDelayMs: 60_000, BackoffMultiplier: 2.0},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-backoff")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}
	dispatcher.ProcessPendingEvents()

	record := events.All()[0]
	if record.Status != domain.WebhookEventRetrying {
		t.Fatalf("expected retrying, got %s", record.Status)
	}
	if record.NextAttemptAt == nil {
		t.Fatal("expected NextAttemptAt to be scheduled")
	}
	wait := time.Until(*record.NextAttemptAt)
	if wait < 50*time.Second || wait > 70*time.Second {
		t.Fatalf("expected next attempt in ~60s, got %s", wait)
	}

	// Запись невидима для sweep до наступления NextAttemptAt.
	dispatcher.ProcessPendingEvents()
	if got := events.All()[0].Attempts; got != 1 {
		t.Fatalf("expected no attempt before visibility boundary, got %d attempts", got)
	}
}

func TestDeliveryToInactiveWebhookFails(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	wh := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-inactive")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}

	wh.IsActive = false
	if err := webhooks.Update(wh); err != nil {
		t.Fatalf("deactivate webhook: %v", err)
	}

	dispatcher.ProcessPendingEvents()

	if calls.Load() != 0 {
		t.Fatal("expected no HTTP call to a deactivated webhook")
	}
	record := events.All()[0]
	if record.Status != domain.WebhookEventFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
}

func TestRetryFailedEventsRequeues(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		Retry:    domain.RetryConfig{MaxRetries: 3, RetryDelayMs: 0, BackoffMultiplier: 2.0},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-requeue")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}
	for i := 0; i < 4; i++ {
		dispatcher.ProcessPendingEvents()
	}
	if got := events.All()[0].Status; got != domain.WebhookEventFailed {
		t.Fatalf("expected failed before requeue, got %s", got)
	}

	requeued, err := dispatcher.RetryFailedEvents()
	if err != nil {
		t.Fatalf("retry failed events: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected 1 requeued delivery, got %d", requeued)
	}
	if got := events.All()[0].Attempts; got != 0 {
		t.Fatalf("expected attempts reset on requeue, got %d", got)
	}

	dispatcher.ProcessPendingEvents()
	record := events.All()[0]
	if record.Status != domain.WebhookEventDelivered {
		t.Fatalf("expected delivered after requeue, got %s", record.Status)
	}
}

func TestProcessPendingIsolatesFailures(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badServer.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	healthy := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-healthy",
		URL:      okServer.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: true,
	})
	broken := seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops-broken",
		URL:      badServer.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.DispatchEvent(completedEvent("corr-isolate")); err != nil {
		t.Fatalf("dispatch event: %v", err)
	}
	dispatcher.ProcessPendingEvents()

	statuses := map[string]domain.WebhookEventStatus{}
	for _, record := range events.All() {
		statuses[record.WebhookID] = record.Status
	}
	if statuses[healthy.ID] != domain.WebhookEventDelivered {
		t.Errorf("expected healthy endpoint delivered, got %s", statuses[healthy.ID])
	}
	if statuses[broken.ID] != domain.WebhookEventRetrying {
		t.Errorf("expected broken endpoint retrying, got %s", statuses[broken.ID])
	}
}

func TestHandleDispatchesAndDelivers(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhooks := memory.NewWebhookRepository()
	events := memory.NewWebhookEventRepository()
	seedWebhook(t, webhooks, domain.Webhook{
		Name:     "ops",
		URL:      server.URL,
		Events:   []domain.EventType{domain.EventCancellationCompleted},
		IsActive: true,
	})

	dispatcher := NewDispatcher(webhooks, events)
	if err := dispatcher.Handle(completedEvent("corr-handle")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls.Load())
	}
}
