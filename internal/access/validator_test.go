package access

import (
	"testing"
	"time"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/storage/memory"
)

func seedOrder(t *testing.T, repo *memory.OrderRepository) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	order := domain.Order{
		ID:            "order-1",
		PNR:           "ABC123",
		CustomerEmail: "traveler@example.com",
		ProductIDs:    []string{"prod-1"},
		Status:        domain.OrderStatusConfirmed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestResolveOrder_CustomerWithoutEmailRejectedBeforeLookup(t *testing.T) {
	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	seedOrder(t, orders)

	v := NewValidator(orders, products, nil)
	_, d := v.ResolveOrder(
		domain.OrderIdentifier{PNR: "ABC123"},
		domain.Principal{Role: domain.RoleCustomer},
	)

	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Code != domain.CodeEmailRequired {
		t.Errorf("expected code %s, got %s", domain.CodeEmailRequired, d.Code)
	}
	if orders.LookupCount() != 0 {
		t.Errorf("expected no repository lookups, got %d", orders.LookupCount())
	}
}

func TestResolveOrder_CustomerEmailMismatch(t *testing.T) {
	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	seedOrder(t, orders)

	v := NewValidator(orders, products, nil)
	_, d := v.ResolveOrder(
		domain.OrderIdentifier{PNR: "ABC123", Email: "someone-else@example.com"},
		domain.Principal{Role: domain.RoleCustomer, Email: "someone-else@example.com"},
	)

	if d.Allowed {
		t.Fatal("expected access denial")
	}
	// Поиск по (PNR, email) не находит чужой заказ.
	if d.Code != domain.CodeOrderNotFound {
		t.Errorf("expected code %s, got %s", domain.CodeOrderNotFound, d.Code)
	}
}

func TestResolveOrder_CustomerOwnOrder(t *testing.T) {
	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	order := seedOrder(t, orders)

	v := NewValidator(orders, products, nil)
	resolved, d := v.ResolveOrder(
		domain.OrderIdentifier{PNR: order.PNR, Email: order.CustomerEmail},
		domain.Principal{Role: domain.RoleCustomer, Email: order.CustomerEmail},
	)

	if !d.Allowed {
		t.Fatalf("expected access, got %s: %s", d.Code, d.Reason)
	}
	if resolved.ID != order.ID {
		t.Errorf("expected order %s, got %s", order.ID, resolved.ID)
	}
}

func TestResolveOrder_PrivilegedRolesSkipOwnershipCheck(t *testing.T) {
	for _, role := range []domain.Role{
		domain.RoleAdmin, domain.RoleCustomerService, domain.RoleSystem, domain.RolePartner,
	} {
		orders := memory.NewOrderRepository()
		products := memory.NewProductRepository()
		order := seedOrder(t, orders)

		v := NewValidator(orders, products, nil)
		_, d := v.ResolveOrder(
			domain.OrderIdentifier{PNR: order.PNR},
			domain.Principal{Role: role, Email: "operator@travelmesh.io"},
		)

		if !d.Allowed {
			t.Errorf("role %s: expected access, got %s", role, d.Code)
		}
	}
}

func TestCheckProductOwnership(t *testing.T) {
	v := NewValidator(memory.NewOrderRepository(), memory.NewProductRepository(), nil)
	order := domain.Order{ID: "ord-1"}

	if d := v.CheckProductOwnership(order, domain.Product{ID: "prod-1", OrderID: "ord-1"}); !d.Allowed {
		t.Errorf("expected own product to pass, got %s", d.Code)
	}

	d := v.CheckProductOwnership(order, domain.Product{ID: "prod-2", OrderID: "ord-2"})
	if d.Allowed {
		t.Fatal("product of another order must be rejected")
	}
	// Чужая услуга маскируется под отсутствующую.
	if d.Code != domain.CodeProductNotFound {
		t.Errorf("expected code %s, got %s", domain.CodeProductNotFound, d.Code)
	}
}

func TestCheckStatuses(t *testing.T) {
	v := NewValidator(memory.NewOrderRepository(), memory.NewProductRepository(), nil)

	if d := v.CheckOrderStatus(domain.Order{Status: domain.OrderStatusCancelled}); d.Allowed {
		t.Error("cancelled order must not be cancellable")
	} else if d.Code != domain.CodeOrderStatusInvalid {
		t.Errorf("expected code %s, got %s", domain.CodeOrderStatusInvalid, d.Code)
	}

	if d := v.CheckOrderStatus(domain.Order{Status: domain.OrderStatusPending}); !d.Allowed {
		t.Error("pending order must be cancellable")
	}

	if d := v.CheckProductStatus(domain.Product{Status: domain.ProductStatusCancelled}); d.Allowed {
		t.Error("cancelled product must not be cancellable")
	} else if d.Code != domain.CodeProductStatusInvalid {
		t.Errorf("expected code %s, got %s", domain.CodeProductStatusInvalid, d.Code)
	}

	if d := v.CheckProductStatus(domain.Product{Status: domain.ProductStatusConfirmed}); !d.Allowed {
		t.Error("confirmed product must be cancellable")
	}
}
