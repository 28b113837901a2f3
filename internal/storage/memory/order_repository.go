package memory

import (
	"sync"
	"time"

	"github.com/travelmesh/acs/internal/domain"
)

// OrderRepository — in-memory реализация domain.OrderRepository
// для локальной разработки и тестов.
type OrderRepository struct {
	mu      sync.RWMutex
	items   map[string]domain.Order
	lookups int
}

// NewOrderRepository создаёт пустой репозиторий заказов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{items: make(map[string]domain.Order)}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *OrderRepository) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrDuplicateID
	}
	r.items[order.ID] = order
	return nil
}

// FindByIdentifier ищет заказ по PNR и, если задан, email владельца.
func (r *OrderRepository) FindByIdentifier(ident domain.OrderIdentifier) (domain.Order, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.items {
		if order.PNR != ident.PNR {
			continue
		}
		if ident.Email != "" && order.CustomerEmail != ident.Email {
			continue
		}
		return order, nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// FindByID возвращает заказ или ErrOrderNotFound.
func (r *OrderRepository) FindByID(id string) (domain.Order, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus атомарно меняет статус заказа.
func (r *OrderRepository) UpdateStatus(id string, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order
	return nil
}

// LookupCount возвращает число выполненных чтений (используется в тестах).
func (r *OrderRepository) LookupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookups
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
