package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/travelmesh/acs/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) FindByID(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.findByID(ctx, id)
}

// FindByIDs возвращает услуги строго в порядке переданных идентификаторов;
// отсутствие любой из них — ошибка.
func (r *productRepository) FindByIDs(ids []string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		product, err := r.findByID(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (r *productRepository) UpdateStatus(id string, status domain.ProductStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update product status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product status rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) findByID(ctx context.Context, id string) (domain.Product, error) {
	var (
		product   domain.Product
		provider  string
		status    string
		policyRaw []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, provider, external_id, amount_minor, currency,
		       policy, service_at, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.OrderID, &provider, &product.ExternalID,
		&product.Price.AmountMinor, &product.Price.Currency,
		&policyRaw, &product.ServiceDateTime, &status,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	product.Provider = domain.Provider(provider)
	product.Status = domain.ProductStatus(status)
	product.ServiceDateTime = product.ServiceDateTime.UTC()

	if len(policyRaw) > 0 {
		if err := json.Unmarshal(policyRaw, &product.Policy); err != nil {
			return domain.Product{}, fmt.Errorf("decode product policy: %w", err)
		}
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
