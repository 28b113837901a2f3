package dragonpass

import (
	"context"
	"sync"
)

// MockClient — конфигурируемая заглушка Client для тестов.
type MockClient struct {
	mu sync.Mutex

	Response CancelResponse
	Err      error
	// Delay имитирует медленный вызов поставщика; прерывается контекстом.
	Delay func(ctx context.Context) error

	Calls    int
	Requests []CancelRequest
}

// NewMockClient возвращает mock с успешным сценарием по умолчанию.
func NewMockClient() *MockClient {
	return &MockClient{
		Response: CancelResponse{Status: "success"},
	}
}

// CancelBooking возвращает заранее настроенный ответ и считает вызовы.
func (m *MockClient) CancelBooking(ctx context.Context, req CancelRequest) (CancelResponse, error) {
	m.mu.Lock()
	m.Calls++
	m.Requests = append(m.Requests, req)
	delay := m.Delay
	resp, err := m.Response, m.Err
	m.mu.Unlock()

	if delay != nil {
		if dErr := delay(ctx); dErr != nil {
			return CancelResponse{}, dErr
		}
	}
	return resp, err
}

// CallCount возвращает число выполненных вызовов.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

var _ Client = (*MockClient)(nil)
