// Package dragonpass содержит клиент внешнего API отмены бронирований
// DragonPass (доступ в бизнес-залы).
package dragonpass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 30 * time.Second

// CancelRequest — тело запроса на отмену бронирования.
type CancelRequest struct {
	BookingID   string `json:"booking_id"`
	LoungeID    string `json:"lounge_id,omitempty"`
	BookingTime string `json:"booking_time,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
}

// CancelResponse — ответ поставщика на запрос отмены.
type CancelResponse struct {
	Status          string `json:"status"` // success | error
	CancellationID  string `json:"cancellation_id,omitempty"`
	RefundAmount    int64  `json:"refund_amount,omitempty"`
	CancellationFee int64  `json:"cancellation_fee,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Message         string `json:"message,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	RetryAfter      int    `json:"retry_after,omitempty"`
}

// Client описывает вызов отмены на стороне DragonPass.
// Транспортные ошибки возвращаются как error; бизнес-отказ поставщика
// приходит внутри CancelResponse со status=error.
type Client interface {
	CancelBooking(ctx context.Context, req CancelRequest) (CancelResponse, error)
}

// HTTPClient — реализация Client поверх REST API поставщика.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *log.Entry
}

// NewHTTPClient создаёт клиент DragonPass.
func NewHTTPClient(baseURL, apiKey string, logger *log.Entry) *HTTPClient {
	if logger == nil {
		logger = log.New().WithField("component", "dragonpass-client")
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
}

// CancelBooking выполняет POST /bookings/cancel. Контекст вызывающего
// прерывает запрос: при отмене или таймауте соединение закрывается.
func (c *HTTPClient) CancelBooking(ctx context.Context, req CancelRequest) (CancelResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CancelResponse{}, fmt.Errorf("marshal cancel request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bookings/cancel", bytes.NewReader(body))
	if err != nil {
		return CancelResponse{}, fmt.Errorf("build cancel request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CancelResponse{}, fmt.Errorf("dragonpass cancel call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CancelResponse{}, fmt.Errorf("read cancel response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return CancelResponse{}, fmt.Errorf("dragonpass returned %d: %s", resp.StatusCode, string(payload))
	}

	var decoded CancelResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return CancelResponse{}, fmt.Errorf("decode cancel response: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"booking_id": req.BookingID,
		"status":     decoded.Status,
		"error_code": decoded.ErrorCode,
	}).Debug("dragonpass cancel call finished")

	return decoded, nil
}

var _ Client = (*HTTPClient)(nil)
