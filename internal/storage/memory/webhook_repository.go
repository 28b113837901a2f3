package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

// WebhookRepository — in-memory хранилище подписок.
type WebhookRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Webhook
}

// NewWebhookRepository создаёт пустое хранилище подписок.
func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{items: make(map[string]domain.Webhook)}
}

// Create сохраняет подписку; пустой ID заменяется новым UUID.
func (r *WebhookRepository) Create(webhook domain.Webhook) (domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if webhook.ID == "" {
		webhook.ID = uuid.NewString()
	}
	if _, exists := r.items[webhook.ID]; exists {
		return domain.Webhook{}, domain.ErrDuplicateID
	}
	for _, existing := range r.items {
		if existing.Name == webhook.Name {
			return domain.Webhook{}, domain.ErrWebhookNameTaken
		}
	}
	now := time.Now().UTC()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now
	r.items[webhook.ID] = webhook
	return webhook, nil
}

// Get возвращает подписку или ErrWebhookNotFound.
func (r *WebhookRepository) Get(id string) (domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	webhook, ok := r.items[id]
	if !ok {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return webhook, nil
}

// GetByName ищет подписку по уникальному имени.
func (r *WebhookRepository) GetByName(name string) (domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, webhook := range r.items {
		if webhook.Name == name {
			return webhook, nil
		}
	}
	return domain.Webhook{}, domain.ErrWebhookNotFound
}

// List возвращает все подписки в стабильном порядке по имени.
func (r *WebhookRepository) List() ([]domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Webhook, 0, len(r.items))
	for _, webhook := range r.items {
		out = append(out, webhook)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update перезаписывает существующую подписку.
func (r *WebhookRepository) Update(webhook domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[webhook.ID]; !ok {
		return domain.ErrWebhookNotFound
	}
	for _, existing := range r.items {
		if existing.ID != webhook.ID && existing.Name == webhook.Name {
			return domain.ErrWebhookNameTaken
		}
	}
	webhook.UpdatedAt = time.Now().UTC()
	r.items[webhook.ID] = webhook
	return nil
}

// Delete удаляет подписку.
func (r *WebhookRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrWebhookNotFound
	}
	delete(r.items, id)
	return nil
}

// FindActiveByEvent возвращает активные подписки на данный тип события.
func (r *WebhookRepository) FindActiveByEvent(eventType domain.EventType) ([]domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Webhook
	for _, webhook := range r.items {
		if webhook.IsActive && webhook.Subscribed(eventType) {
			out = append(out, webhook)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ domain.WebhookRepository = (*WebhookRepository)(nil)
