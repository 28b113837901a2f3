package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

type recordRepository struct {
	db *sql.DB
}

// NewCancellationRecordRepository создаёт PostgreSQL-реализацию
// CancellationRecordRepository.
func NewCancellationRecordRepository(store *Store) domain.CancellationRecordRepository {
	return &recordRepository{db: store.DB()}
}

func (r *recordRepository) Create(record domain.CancellationRecord) (domain.CancellationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cancellation_records (
			id, order_id, product_id, reason, request_source, requested_by,
			refund_minor, fee_minor, currency, status, correlation_id, provider_response
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at
	`,
		record.ID, record.OrderID, record.ProductID, record.Reason,
		string(record.RequestSource), record.RequestedBy,
		record.RefundMinor, record.FeeMinor, record.Currency,
		string(record.Status), record.CorrelationID, nullableJSON(record.ProviderResponse),
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return domain.CancellationRecord{}, fmt.Errorf("insert cancellation record: %w", err)
	}

	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func (r *recordRepository) UpdateStatus(id string, status domain.RecordStatus, update domain.RecordUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE cancellation_records
		SET status = $2,
		    refund_minor = $3,
		    fee_minor = $4,
		    currency = CASE WHEN $5 = '' THEN currency ELSE $5 END,
		    provider_response = COALESCE($6, provider_response),
		    updated_at = NOW()
		WHERE id = $1
	`, id, string(status), update.RefundMinor, update.FeeMinor,
		update.Currency, nullableJSON(update.ProviderResponse))
	if err != nil {
		return fmt.Errorf("update cancellation record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cancellation record rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *recordRepository) FindByCorrelationID(correlationID string) (domain.CancellationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record           domain.CancellationRecord
		source, status   string
		providerResponse []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, reason, request_source, requested_by,
		       refund_minor, fee_minor, currency, status, correlation_id,
		       provider_response, created_at, updated_at
		FROM cancellation_records
		WHERE correlation_id = $1
	`, correlationID).Scan(
		&record.ID, &record.OrderID, &record.ProductID, &record.Reason,
		&source, &record.RequestedBy,
		&record.RefundMinor, &record.FeeMinor, &record.Currency,
		&status, &record.CorrelationID,
		&providerResponse, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CancellationRecord{}, domain.ErrRecordNotFound
		}
		return domain.CancellationRecord{}, fmt.Errorf("select cancellation record: %w", err)
	}

	record.RequestSource = domain.RequestSource(source)
	record.Status = domain.RecordStatus(status)
	record.ProviderResponse = providerResponse
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

// nullableJSON отдаёт NULL вместо пустого среза, чтобы не перетирать
// сохранённый ответ поставщика пустым значением.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

var _ domain.CancellationRecordRepository = (*recordRepository)(nil)
