package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/travelmesh/acs/internal/domain"
)

// CancellationRecordRepository — in-memory хранилище записей отмен.
type CancellationRecordRepository struct {
	mu    sync.RWMutex
	items map[string]domain.CancellationRecord
}

// NewCancellationRecordRepository создаёт пустое хранилище записей.
func NewCancellationRecordRepository() *CancellationRecordRepository {
	return &CancellationRecordRepository{items: make(map[string]domain.CancellationRecord)}
}

// Create сохраняет запись; пустой ID заменяется новым UUID.
func (r *CancellationRecordRepository) Create(record domain.CancellationRecord) (domain.CancellationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, exists := r.items[record.ID]; exists {
		return domain.CancellationRecord{}, domain.ErrDuplicateID
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	r.items[record.ID] = record
	return record, nil
}

// UpdateStatus переводит запись в терминальный статус и сохраняет итоги.
func (r *CancellationRecordRepository) UpdateStatus(id string, status domain.RecordStatus, update domain.RecordUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	record.Status = status
	record.RefundMinor = update.RefundMinor
	record.FeeMinor = update.FeeMinor
	if update.Currency != "" {
		record.Currency = update.Currency
	}
	if len(update.ProviderResponse) > 0 {
		record.ProviderResponse = update.ProviderResponse
	}
	record.UpdatedAt = time.Now().UTC()
	r.items[id] = record
	return nil
}

// FindByCorrelationID возвращает запись одной логической отмены.
func (r *CancellationRecordRepository) FindByCorrelationID(correlationID string) (domain.CancellationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.items {
		if record.CorrelationID == correlationID {
			return record, nil
		}
	}
	return domain.CancellationRecord{}, domain.ErrRecordNotFound
}

// All возвращает копию всех записей (используется в тестах).
func (r *CancellationRecordRepository) All() []domain.CancellationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CancellationRecord, 0, len(r.items))
	for _, record := range r.items {
		out = append(out, record)
	}
	return out
}

var _ domain.CancellationRecordRepository = (*CancellationRecordRepository)(nil)
