package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

type webhookRepository struct {
	db *sql.DB
}

// NewWebhookRepository создаёт PostgreSQL-реализацию WebhookRepository.
// Списки событий и заголовков хранятся в JSONB-колонках.
func NewWebhookRepository(store *Store) domain.WebhookRepository {
	return &webhookRepository{db: store.DB()}
}

const webhookColumns = `id, name, url, events, secret, headers,
	max_retries, retry_delay_ms, backoff_multiplier,
	is_active, created_by, created_at, updated_at`

func (r *webhookRepository) Create(webhook domain.Webhook) (domain.Webhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if webhook.ID == "" {
		webhook.ID = uuid.NewString()
	}

	events, headers, err := marshalWebhookJSON(webhook)
	if err != nil {
		return domain.Webhook{}, err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO webhooks (
			id, name, url, events, secret, headers,
			max_retries, retry_delay_ms, backoff_multiplier,
			is_active, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`,
		webhook.ID, webhook.Name, webhook.URL, events, webhook.Secret, headers,
		webhook.Retry.MaxRetries, webhook.Retry.RetryDelayMs, webhook.Retry.BackoffMultiplier,
		webhook.IsActive, webhook.CreatedBy,
	).Scan(&webhook.CreatedAt, &webhook.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "webhooks_name_key") {
			return domain.Webhook{}, domain.ErrWebhookNameTaken
		}
		return domain.Webhook{}, fmt.Errorf("insert webhook: %w", err)
	}

	webhook.CreatedAt = webhook.CreatedAt.UTC()
	webhook.UpdatedAt = webhook.UpdatedAt.UTC()
	return webhook, nil
}

func (r *webhookRepository) Get(id string) (domain.Webhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	return scanWebhook(row)
}

func (r *webhookRepository) GetByName(name string) (domain.Webhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE name = $1`, name)
	return scanWebhook(row)
}

func (r *webhookRepository) List() ([]domain.Webhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

func (r *webhookRepository) Update(webhook domain.Webhook) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	events, headers, err := marshalWebhookJSON(webhook)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE webhooks
		SET name = $2, url = $3, events = $4, secret = $5, headers = $6,
		    max_retries = $7, retry_delay_ms = $8, backoff_multiplier = $9,
		    is_active = $10, updated_at = NOW()
		WHERE id = $1
	`,
		webhook.ID, webhook.Name, webhook.URL, events, webhook.Secret, headers,
		webhook.Retry.MaxRetries, webhook.Retry.RetryDelayMs, webhook.Retry.BackoffMultiplier,
		webhook.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err, "webhooks_name_key") {
			return domain.ErrWebhookNameTaken
		}
		return fmt.Errorf("update webhook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update webhook rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (r *webhookRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete webhook rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (r *webhookRepository) FindActiveByEvent(eventType domain.EventType) ([]domain.Webhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+webhookColumns+`
		FROM webhooks
		WHERE is_active AND events @> to_jsonb($1::text)
		ORDER BY name
	`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("find webhooks by event: %w", err)
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

func marshalWebhookJSON(webhook domain.Webhook) (events, headers []byte, err error) {
	events, err = json.Marshal(webhook.Events)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal webhook events: %w", err)
	}
	if webhook.Headers == nil {
		webhook.Headers = map[string]string{}
	}
	headers, err = json.Marshal(webhook.Headers)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal webhook headers: %w", err)
	}
	return events, headers, nil
}

func scanWebhook(scanner rowScanner) (domain.Webhook, error) {
	var (
		webhook         domain.Webhook
		events, headers []byte
	)
	err := scanner.Scan(
		&webhook.ID, &webhook.Name, &webhook.URL, &events, &webhook.Secret, &headers,
		&webhook.Retry.MaxRetries, &webhook.Retry.RetryDelayMs, &webhook.Retry.BackoffMultiplier,
		&webhook.IsActive, &webhook.CreatedBy, &webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Webhook{}, domain.ErrWebhookNotFound
		}
		return domain.Webhook{}, fmt.Errorf("scan webhook: %w", err)
	}

	if err := json.Unmarshal(events, &webhook.Events); err != nil {
		return domain.Webhook{}, fmt.Errorf("decode webhook events: %w", err)
	}
	if err := json.Unmarshal(headers, &webhook.Headers); err != nil {
		return domain.Webhook{}, fmt.Errorf("decode webhook headers: %w", err)
	}
	if len(webhook.Headers) == 0 {
		webhook.Headers = nil
	}

	webhook.CreatedAt = webhook.CreatedAt.UTC()
	webhook.UpdatedAt = webhook.UpdatedAt.UTC()
	return webhook, nil
}

func collectWebhooks(rows *sql.Rows) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return webhooks, nil
}

// isUniqueViolation распознаёт нарушение уникального ограничения по тексту
// ошибки драйвера, не привязываясь к его конкретным типам.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") && strings.Contains(msg, constraint)
}

var _ domain.WebhookRepository = (*webhookRepository)(nil)
