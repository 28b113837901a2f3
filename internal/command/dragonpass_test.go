package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/policy"
	"github.com/travelmesh/acs/internal/provider/dragonpass"
	"github.com/travelmesh/acs/internal/storage/memory"
)

func loungePolicy() domain.CancellationPolicy {
	return domain.CancellationPolicy{
		CanCancel: true,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 24, RefundPercentage: 100},
			{HoursBeforeService: 4, RefundPercentage: 50},
		},
	}
}

func seedLoungeProduct(t *testing.T, products *memory.ProductRepository, serviceIn time.Duration) domain.Product {
	t.Helper()
	product := domain.Product{
		ID:              "prod-lounge-1",
		OrderID:         "ord-1",
		Provider:        domain.ProviderDragonPass,
		ExternalID:      "dp-booking-77",
		Price:           domain.Price{AmountMinor: 10_000, Currency: "USD"},
		Policy:          loungePolicy(),
		ServiceDateTime: time.Now().UTC().Add(serviceIn),
		Status:          domain.ProductStatusConfirmed,
	}
	if err := products.Create(product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func buildDragonPassCommand(products *memory.ProductRepository, client dragonpass.Client, productID string) Command {
	registry := NewRegistry(RegistryDeps{
		Products:   products,
		Policy:     &policy.Engine{},
		DragonPass: client,
	})
	return registry.Build("dragonpass", domain.CancellationContext{
		OrderID:       "ord-1",
		ProductID:     productID,
		Reason:        "customer request",
		CorrelationID: "corr-dp",
	})
}

func TestDragonPassExecuteSuccess(t *testing.T) {
	products := memory.NewProductRepository()
	product := seedLoungeProduct(t, products, 48*time.Hour)

	client := dragonpass.NewMockClient()
	client.Response = dragonpass.CancelResponse{
		Status:         "success",
		CancellationID: "cxl-1",
		RefundAmount:   10_000,
		Currency:       "USD",
	}

	cmd := buildDragonPassCommand(products, client, product.ID)
	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success || result.Status != domain.ResultCompleted {
		t.Fatalf("expected completed result, got %+v", result)
	}
	if result.RefundMinor != 10_000 {
		t.Fatalf("expected full refund, got %d", result.RefundMinor)
	}
	if result.CorrelationID != "corr-dp" {
		t.Fatalf("expected correlation id to propagate, got %q", result.CorrelationID)
	}
	if len(result.ExternalResponse) == 0 {
		t.Fatal("expected raw provider response to be preserved")
	}

	if client.CallCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", client.CallCount())
	}
	req := client.Requests[0]
	if req.BookingID != product.ExternalID {
		t.Fatalf("expected booking id %q, got %q", product.ExternalID, req.BookingID)
	}
	if req.ProductID != product.ID {
		t.Fatalf("expected product id %q, got %q", product.ID, req.ProductID)
	}
}

func TestDragonPassFallsBackToPolicyAmounts(t *testing.T) {
	products := memory.NewProductRepository()
	product := seedLoungeProduct(t, products, 10*time.Hour)

	client := dragonpass.NewMockClient() // success без сумм

	cmd := buildDragonPassCommand(products, client, product.ID)
	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	// 10 часов до услуги — окно 4h/50%: возврат и комиссия по 5000.
	if result.RefundMinor != 5_000 || result.FeeMinor != 5_000 {
		t.Fatalf("expected policy-derived 5000/5000, got %d/%d", result.RefundMinor, result.FeeMinor)
	}
	if result.Status != domain.ResultPartial {
		t.Fatalf("expected partial status, got %s", result.Status)
	}
	if result.Currency != "USD" {
		t.Fatalf("expected policy currency, got %q", result.Currency)
	}
}

func TestDragonPassPolicyRejection(t *testing.T) {
	products := memory.NewProductRepository()
	product := seedLoungeProduct(t, products, 1*time.Hour)

	client := dragonpass.NewMockClient()
	cmd := buildDragonPassCommand(products, client, product.ID)

	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("expected resolved failure, got error %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result inside no-refund window")
	}
	if result.ErrorCode != domain.CodeNotCancellable {
		t.Fatalf("expected %s, got %s", domain.CodeNotCancellable, result.ErrorCode)
	}
	if client.CallCount() != 0 {
		t.Fatal("expected no provider call when policy rejects")
	}
}

func TestDragonPassProductNotFound(t *testing.T) {
	products := memory.NewProductRepository()
	client := dragonpass.NewMockClient()
	cmd := buildDragonPassCommand(products, client, "missing")

	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("expected resolved failure, got error %v", err)
	}
	if result.Success || result.ErrorCode != domain.CodeProductNotFound {
		t.Fatalf("expected PRODUCT_NOT_FOUND failure, got %+v", result)
	}
}

func TestDragonPassProviderMismatch(t *testing.T) {
	products := memory.NewProductRepository()
	if err := products.Create(domain.Product{
		ID:       "prod-esim-1",
		Provider: domain.ProviderAiralo,
		Status:   domain.ProductStatusConfirmed,
		Policy:   loungePolicy(),
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	cmd := buildDragonPassCommand(products, dragonpass.NewMockClient(), "prod-esim-1")
	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("expected resolved failure, got error %v", err)
	}
	if result.Success || result.ErrorCode != domain.CodeProviderNotSupported {
		t.Fatalf("expected PROVIDER_NOT_SUPPORTED failure, got %+v", result)
	}
}

func TestDragonPassTransportErrorSurfacesToInvoker(t *testing.T) {
	products := memory.NewProductRepository()
	product := seedLoungeProduct(t, products, 48*time.Hour)

	client := dragonpass.NewMockClient()
	client.Err = errors.New("connection refused")

	cmd := buildDragonPassCommand(products, client, product.ID)
	_, err := cmd.Execute(context.Background())
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func TestDragonPassProviderFailureResponse(t *testing.T) {
	products := memory.NewProductRepository()
	product := seedLoungeProduct(t, products, 48*time.Hour)

	client := dragonpass.NewMockClient()
	client.Response = dragonpass.CancelResponse{
		Status:     "error",
		Message:    "booking already used",
		ErrorCode:  "BOOKING_USED",
		RetryAfter: 0,
	}

	cmd := buildDragonPassCommand(products, client, product.ID)
	result, err := cmd.Execute(context.Background())
	if err != nil {
		t.Fatalf("expected resolved failure, got error %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.ErrorCode != "BOOKING_USED" {
		t.Fatalf("expected provider error code, got %q", result.ErrorCode)
	}

	var echoed dragonpass.CancelResponse
	if err := json.Unmarshal(result.ExternalResponse, &echoed); err != nil {
		t.Fatalf("unmarshal external response: %v", err)
	}
	if echoed.Message != "booking already used" {
		t.Fatalf("expected raw response to round-trip, got %+v", echoed)
	}
}

func TestRegistryBuildNormalizesProviderCode(t *testing.T) {
	registry := NewRegistry(RegistryDeps{
		Products:   memory.NewProductRepository(),
		Policy:     &policy.Engine{},
		DragonPass: dragonpass.NewMockClient(),
	})
	cctx := domain.CancellationContext{CorrelationID: "corr-reg"}

	if cmd := registry.Build(" DragonPass ", cctx); cmd.Provider() != domain.ProviderDragonPass {
		t.Fatalf("expected dragonpass command, got %s", cmd.Provider())
	}
	if cmd := registry.Build("mozio", cctx); cmd.Provider() != domain.ProviderMozio {
		t.Fatalf("expected mozio command, got %s", cmd.Provider())
	}
	if cmd := registry.Build("sandwiches", cctx); cmd.Provider() != domain.ProviderUnknown {
		t.Fatalf("expected unsupported command, got %s", cmd.Provider())
	}
}

func TestStubCommandsResolveAsFailures(t *testing.T) {
	registry := NewRegistry(RegistryDeps{
		Products:   memory.NewProductRepository(),
		Policy:     &policy.Engine{},
		DragonPass: dragonpass.NewMockClient(),
	})
	cctx := domain.CancellationContext{CorrelationID: "corr-stub", ProductID: "prod-1"}

	for _, provider := range []string{"mozio", "airalo"} {
		result, err := registry.Build(provider, cctx).Execute(context.Background())
		if err != nil {
			t.Fatalf("%s: expected resolved failure, got error %v", provider, err)
		}
		if result.Success {
			t.Fatalf("%s: expected failed result", provider)
		}
		if result.ErrorCode != domain.CodeServiceUnavailable {
			t.Fatalf("%s: expected SERVICE_UNAVAILABLE, got %s", provider, result.ErrorCode)
		}
		if result.RetryAfter == 0 {
			t.Fatalf("%s: expected RetryAfter hint", provider)
		}
	}

	result, err := registry.Build("unknown-provider", cctx).Execute(context.Background())
	if err != nil {
		t.Fatalf("expected resolved failure, got error %v", err)
	}
	if result.ErrorCode != domain.CodeProviderNotSupported {
		t.Fatalf("expected PROVIDER_NOT_SUPPORTED, got %s", result.ErrorCode)
	}
}
