package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

// WebhookEventRepository — in-memory хранилище записей доставок.
type WebhookEventRepository struct {
	mu    sync.RWMutex
	items map[string]domain.WebhookEvent
}

// NewWebhookEventRepository создаёт пустое хранилище доставок.
func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{items: make(map[string]domain.WebhookEvent)}
}

// Create сохраняет запись доставки; пустой ID заменяется новым UUID.
func (r *WebhookEventRepository) Create(event domain.WebhookEvent) (domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, exists := r.items[event.ID]; exists {
		return domain.WebhookEvent{}, domain.ErrDuplicateID
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	r.items[event.ID] = event
	return event, nil
}

// FindDue возвращает pending/retrying-записи, чья visibility-граница
// NextAttemptAt выставлена и не позже now, в порядке создания.
// Запись без NextAttemptAt считается запланированной вручную и
// sweep'ом не выбирается.
func (r *WebhookEventRepository) FindDue(now time.Time, limit int) ([]domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var out []domain.WebhookEvent
	for _, event := range r.items {
		if event.Status != domain.WebhookEventPending && event.Status != domain.WebhookEventRetrying {
			continue
		}
		if event.NextAttemptAt == nil || event.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, event)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindFailed возвращает окончательно неудачные записи.
func (r *WebhookEventRepository) FindFailed(limit int) ([]domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var out []domain.WebhookEvent
	for _, event := range r.items {
		if event.Status == domain.WebhookEventFailed {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateDeliveryStatus применяет результат одной попытки доставки.
func (r *WebhookEventRepository) UpdateDeliveryStatus(id string, update domain.DeliveryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.items[id]
	if !ok {
		return domain.ErrWebhookEventNotFound
	}
	event.Status = update.Status
	event.Attempts = update.Attempts
	event.NextAttemptAt = update.NextAttemptAt
	event.LastAttemptAt = update.LastAttemptAt
	event.DeliveredAt = update.DeliveredAt
	event.ErrorMessage = update.ErrorMessage
	event.UpdatedAt = time.Now().UTC()
	r.items[id] = event
	return nil
}

// Stats агрегирует текущее состояние очереди доставок.
func (r *WebhookEventRepository) Stats() (domain.DeliveryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.DeliveryStats
	for _, event := range r.items {
		switch event.Status {
		case domain.WebhookEventPending:
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || event.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = event.CreatedAt
			}
		case domain.WebhookEventRetrying:
			stats.RetryingCount++
		case domain.WebhookEventDelivered:
			stats.DeliveredCount++
		case domain.WebhookEventFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

// DeleteOlderThan удаляет терминальные записи старше cutoff, не более limit.
func (r *WebhookEventRepository) DeleteOlderThan(cutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	for id, event := range r.items {
		if deleted >= limit {
			break
		}
		if !event.Status.IsTerminal() {
			continue
		}
		if event.UpdatedAt.After(cutoff) {
			continue
		}
		delete(r.items, id)
		deleted++
	}
	return deleted, nil
}

// Get возвращает запись доставки (используется в тестах).
func (r *WebhookEventRepository) Get(id string) (domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.items[id]
	if !ok {
		return domain.WebhookEvent{}, domain.ErrWebhookEventNotFound
	}
	return event, nil
}

// All возвращает копию всех записей (используется в тестах).
func (r *WebhookEventRepository) All() []domain.WebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WebhookEvent, 0, len(r.items))
	for _, event := range r.items {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ domain.WebhookEventRepository = (*WebhookEventRepository)(nil)
