package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-реализацию WebhookEventRepository.
// Выборка FindDue опирается на частичный индекс по (status, next_attempt_at).
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

const webhookEventColumns = `id, webhook_id, event_type, payload, status, attempts,
	next_attempt_at, last_attempt_at, delivered_at, error_message,
	correlation_id, created_at, updated_at`

func (r *webhookEventRepository) Create(event domain.WebhookEvent) (domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (
			id, webhook_id, event_type, payload, status, attempts,
			next_attempt_at, error_message, correlation_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at
	`,
		event.ID, event.WebhookID, string(event.EventType), []byte(event.Payload),
		string(event.Status), event.Attempts, event.NextAttemptAt,
		event.ErrorMessage, event.CorrelationID,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("insert webhook event: %w", err)
	}

	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	return event, nil
}

func (r *webhookEventRepository) FindDue(now time.Time, limit int) ([]domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE status IN ('pending', 'retrying')
		  AND next_attempt_at IS NOT NULL
		  AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due webhook events: %w", err)
	}
	defer rows.Close()

	return collectWebhookEvents(rows)
}

func (r *webhookEventRepository) FindFailed(limit int) ([]domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE status = 'failed'
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("find failed webhook events: %w", err)
	}
	defer rows.Close()

	return collectWebhookEvents(rows)
}

func (r *webhookEventRepository) UpdateDeliveryStatus(id string, update domain.DeliveryUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2,
		    attempts = $3,
		    next_attempt_at = $4,
		    last_attempt_at = $5,
		    delivered_at = $6,
		    error_message = $7,
		    updated_at = NOW()
		WHERE id = $1
	`, id, string(update.Status), update.Attempts,
		update.NextAttemptAt, update.LastAttemptAt, update.DeliveredAt,
		update.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update webhook event rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookEventNotFound
	}
	return nil
}

func (r *webhookEventRepository) Stats() (domain.DeliveryStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats         domain.DeliveryStats
		oldestPending sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'retrying'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			MIN(created_at) FILTER (WHERE status IN ('pending', 'retrying'))
		FROM webhook_events
	`).Scan(
		&stats.PendingCount, &stats.RetryingCount,
		&stats.DeliveredCount, &stats.FailedCount,
		&oldestPending,
	)
	if err != nil {
		return domain.DeliveryStats{}, fmt.Errorf("webhook event stats: %w", err)
	}

	if oldestPending.Valid {
		stats.OldestPendingAt = oldestPending.Time.UTC()
	}
	return stats, nil
}

func (r *webhookEventRepository) DeleteOlderThan(cutoff time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status IN ('delivered', 'failed')
			  AND updated_at < $1
			ORDER BY updated_at
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete old webhook events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old webhook events rows: %w", err)
	}
	return int(affected), nil
}

func collectWebhookEvents(rows *sql.Rows) ([]domain.WebhookEvent, error) {
	var events []domain.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return events, nil
}

func scanWebhookEvent(scanner rowScanner) (domain.WebhookEvent, error) {
	var (
		event      domain.WebhookEvent
		eventType  string
		status     string
		payload    []byte
		next, last sql.NullTime
		delivered  sql.NullTime
	)
	err := scanner.Scan(
		&event.ID, &event.WebhookID, &eventType, &payload, &status, &event.Attempts,
		&next, &last, &delivered, &event.ErrorMessage,
		&event.CorrelationID, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, domain.ErrWebhookEventNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("scan webhook event: %w", err)
	}

	event.EventType = domain.EventType(eventType)
	event.Status = domain.WebhookEventStatus(status)
	event.Payload = payload
	event.NextAttemptAt = nullTimePtr(next)
	event.LastAttemptAt = nullTimePtr(last)
	event.DeliveredAt = nullTimePtr(delivered)
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	return event, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
