package memory

import (
	"sync"
	"time"

	"github.com/travelmesh/acs/internal/domain"
)

// ProductRepository — in-memory реализация domain.ProductRepository.
type ProductRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository создаёт пустой репозиторий услуг.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[string]domain.Product)}
}

// Create сохраняет новую услугу, если ID ещё не занят.
func (r *ProductRepository) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrDuplicateID
	}
	r.items[product.ID] = product
	return nil
}

// FindByID возвращает услугу или ErrProductNotFound.
func (r *ProductRepository) FindByID(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// FindByIDs возвращает услуги строго в порядке переданных идентификаторов.
// Отсутствие любой из услуг — ошибка: целостность заказа важнее частичного ответа.
func (r *ProductRepository) FindByIDs(ids []string) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		product, ok := r.items[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		result = append(result, product)
	}
	return result, nil
}

// UpdateStatus атомарно меняет статус услуги.
func (r *ProductRepository) UpdateStatus(id string, status domain.ProductStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Status = status
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
