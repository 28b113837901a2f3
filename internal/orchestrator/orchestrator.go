// Package orchestrator связывает проверку доступа, политику отмены,
// выполнение провайдер-специфичных команд и публикацию lifecycle-событий
// в единую машину состояний обработки запроса на отмену.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/access"
	"github.com/travelmesh/acs/internal/command"
	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/metrics"
)

// CancelRequest — входной запрос на отмену. Пустой ProductID означает
// отмену всех услуг заказа.
type CancelRequest struct {
	OrderIdentifier domain.OrderIdentifier
	ProductID       string
	Reason          string
	Source          domain.RequestSource
}

// Orchestrator выполняет машину состояний отмены:
// STARTED → {LOOKUP_FAILED | ACCESS_DENIED | STATUS_INVALID} без команды,
// либо STARTED → EXECUTING → {COMPLETED | PARTIAL | FAILED}.
// Каждый терминальный переход публикует событие на шине.
type Orchestrator struct {
	orders    domain.OrderRepository
	products  domain.ProductRepository
	records   domain.CancellationRecordRepository
	validator *access.Validator
	registry  *command.Registry
	invoker   *command.Invoker
	bus       domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.CancellationMetrics
}

// Deps — зависимости оркестратора.
type Deps struct {
	Orders    domain.OrderRepository
	Products  domain.ProductRepository
	Records   domain.CancellationRecordRepository
	Validator *access.Validator
	Registry  *command.Registry
	Invoker   *command.Invoker
	Bus       domain.EventPublisher
	Logger    *log.Entry
	Metrics   *metrics.CancellationMetrics
}

// New создаёт оркестратор отмен.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "cancellation-orchestrator")
	}
	return &Orchestrator{
		orders:    deps.Orders,
		products:  deps.Products,
		records:   deps.Records,
		validator: deps.Validator,
		registry:  deps.Registry,
		invoker:   deps.Invoker,
		bus:       deps.Bus,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// Cancel обрабатывает запрос на отмену от имени субъекта.
// Возвращает по одному результату на услугу в исходном порядке заказа;
// для одиночной отмены срез содержит единственный элемент. Ожидаемые
// отказы приходят как failed-результаты, а не ошибки.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest, principal domain.Principal) []domain.CancellationResult {
	started := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCancellationStarted()
		defer func() {
			o.metrics.RecordCancellationDuration(time.Since(started))
		}()
	}

	order, decision := o.validator.ResolveOrder(req.OrderIdentifier, principal)
	if !decision.Allowed {
		return []domain.CancellationResult{o.reject(req, "", decision)}
	}

	if d := o.validator.CheckOrderStatus(order); !d.Allowed {
		return []domain.CancellationResult{o.reject(req, order.ID, d)}
	}

	if req.ProductID != "" {
		return []domain.CancellationResult{o.cancelProduct(ctx, order, req, principal, req.ProductID)}
	}
	return o.cancelWholeOrder(ctx, order, req, principal)
}

// cancelWholeOrder отменяет услуги заказа строго последовательно,
// в исходном порядке; отказ по одной услуге не прерывает остальные.
func (o *Orchestrator) cancelWholeOrder(ctx context.Context, order domain.Order, req CancelRequest, principal domain.Principal) []domain.CancellationResult {
	results := make([]domain.CancellationResult, 0, len(order.ProductIDs))
	for _, productID := range order.ProductIDs {
		results = append(results, o.cancelProduct(ctx, order, req, principal, productID))
	}
	return results
}

// cancelProduct проводит одну услугу через полный цикл:
// запись pending → команда через Invoker → терминальная запись →
// статусы услуги и заказа → lifecycle-событие.
func (o *Orchestrator) cancelProduct(ctx context.Context, order domain.Order, req CancelRequest, principal domain.Principal, productID string) domain.CancellationResult {
	cctx := domain.CancellationContext{
		OrderID:       order.ID,
		ProductID:     productID,
		Reason:        req.Reason,
		RequestedBy:   principal.Email,
		RequestSource: req.Source,
		CorrelationID: uuid.NewString(),
	}
	logger := o.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"product_id":     productID,
		"correlation_id": cctx.CorrelationID,
	})

	product, err := o.products.FindByID(productID)
	if err != nil {
		logger.WithError(err).Warn("product lookup failed")
		return o.terminate(cctx, domain.EventCancellationLookupFailed, failedResult(cctx, domain.CodeProductNotFound, "product not found"))
	}

	if d := o.validator.CheckProductOwnership(order, product); !d.Allowed {
		result := failedResult(cctx, d.Code, d.Reason)
		if o.metrics != nil {
			o.metrics.RecordCancellationRejected(d.Code)
		}
		return o.terminate(cctx, domain.EventCancellationLookupFailed, result)
	}

	if d := o.validator.CheckProductStatus(product); !d.Allowed {
		result := failedResult(cctx, d.Code, d.Reason)
		if o.metrics != nil {
			o.metrics.RecordCancellationRejected(d.Code)
		}
		return o.terminate(cctx, domain.EventCancellationStatusInvalid, result)
	}

	record, err := o.records.Create(domain.CancellationRecord{
		OrderID:       order.ID,
		ProductID:     productID,
		Reason:        req.Reason,
		RequestSource: req.Source,
		RequestedBy:   principal.Email,
		Currency:      product.Price.Currency,
		Status:        domain.RecordStatusPending,
		CorrelationID: cctx.CorrelationID,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create cancellation record")
		return o.terminate(cctx, domain.EventCancellationFailed, failedResult(cctx, domain.CodeInternalError, "failed to persist cancellation"))
	}

	cmd := o.registry.Build(string(product.Provider), cctx)
	result, err := o.invoker.Invoke(ctx, cmd)
	if err != nil {
		// Invoker исчерпал попытки; наружу это штатный failed-результат.
		logger.WithError(err).Warn("command failed after retries")
		code := domain.CodeProviderError
		if errors.Is(err, domain.ErrCommandTimeout) {
			code = domain.CodeProviderTimeout
		}
		result = failedResult(cctx, code, err.Error())
	}

	o.finalizeRecord(ctx, record.ID, cmd, result, logger)

	if result.Success {
		o.applyProductStatus(order, product, result, logger)
	}

	return o.terminate(cctx, eventTypeFor(result), result)
}

// finalizeRecord переводит запись отмены в терминальный статус ровно один раз.
// Если запись не удалось завершить после успешного вызова поставщика,
// запускается best-effort компенсация команды.
func (o *Orchestrator) finalizeRecord(ctx context.Context, recordID string, cmd command.Command, result domain.CancellationResult, logger *log.Entry) {
	status := domain.RecordStatusFailed
	if result.Success {
		status = domain.RecordStatusCompleted
	}

	err := o.records.UpdateStatus(recordID, status, domain.RecordUpdate{
		RefundMinor:      result.RefundMinor,
		FeeMinor:         result.FeeMinor,
		Currency:         result.Currency,
		ProviderResponse: result.ExternalResponse,
	})
	if err != nil {
		logger.WithError(err).Error("failed to finalize cancellation record")
		if result.Success {
			cmd.Undo(ctx)
		}
	}
}

// applyProductStatus выставляет терминальный статус услуги и, если все
// услуги заказа завершены, закрывает заказ.
func (o *Orchestrator) applyProductStatus(order domain.Order, product domain.Product, result domain.CancellationResult, logger *log.Entry) {
	newStatus := domain.ProductStatusCancelled
	if result.RefundMinor > 0 {
		newStatus = domain.ProductStatusRefunded
	}
	if err := o.products.UpdateStatus(product.ID, newStatus); err != nil {
		logger.WithError(err).Error("failed to update product status")
		return
	}

	products, err := o.products.FindByIDs(order.ProductIDs)
	if err != nil {
		logger.WithError(err).Warn("failed to load order products for status check")
		return
	}
	for _, p := range products {
		if !p.Status.IsTerminal() {
			return
		}
	}

	if err := o.orders.UpdateStatus(order.ID, domain.OrderStatusCancelled); err != nil {
		logger.WithError(err).Error("failed to update order status")
	}
}

// reject обрабатывает терминальные пути до выполнения команды:
// LOOKUP_FAILED, ACCESS_DENIED, STATUS_INVALID на уровне заказа.
func (o *Orchestrator) reject(req CancelRequest, orderID string, decision access.Decision) domain.CancellationResult {
	cctx := domain.CancellationContext{
		OrderID:       orderID,
		ProductID:     req.ProductID,
		Reason:        req.Reason,
		RequestSource: req.Source,
		CorrelationID: uuid.NewString(),
	}

	if o.metrics != nil {
		o.metrics.RecordCancellationRejected(decision.Code)
	}

	eventType := domain.EventCancellationAccessDenied
	switch decision.Code {
	case domain.CodeOrderNotFound, domain.CodeProductNotFound:
		eventType = domain.EventCancellationLookupFailed
	case domain.CodeOrderStatusInvalid, domain.CodeProductStatusInvalid:
		eventType = domain.EventCancellationStatusInvalid
	}

	return o.terminate(cctx, eventType, failedResult(cctx, decision.Code, decision.Reason))
}

// terminate публикует lifecycle-событие терминального перехода и
// возвращает результат вызывающему.
func (o *Orchestrator) terminate(cctx domain.CancellationContext, eventType domain.EventType, result domain.CancellationResult) domain.CancellationResult {
	if o.metrics != nil {
		switch {
		case result.Success && result.Status == domain.ResultPartial:
			o.metrics.RecordCancellationPartial()
		case result.Success:
			o.metrics.RecordCancellationCompleted()
		default:
			o.metrics.RecordCancellationFailed()
		}
	}

	data := map[string]interface{}{
		"status":       string(result.Status),
		"refund_minor": result.RefundMinor,
		"fee_minor":    result.FeeMinor,
		"currency":     result.Currency,
	}
	if result.ErrorCode != "" {
		data["error_code"] = result.ErrorCode
	}
	if result.Message != "" {
		data["message"] = result.Message
	}
	if result.RetryAfter > 0 {
		data["retry_after"] = result.RetryAfter
	}

	if o.bus != nil {
		o.bus.Publish(domain.NewCancellationEvent(eventType, cctx, data))
		if o.metrics != nil {
			o.metrics.RecordEventPublished()
		}
	}

	return result
}

// GetAuditTrail возвращает аудит всех выполненных команд процесса.
func (o *Orchestrator) GetAuditTrail() []domain.AuditRecord {
	return o.invoker.AuditTrail()
}

// GetAuditTrailByCorrelationID возвращает аудит одной логической отмены.
func (o *Orchestrator) GetAuditTrailByCorrelationID(correlationID string) []domain.AuditRecord {
	return o.invoker.AuditTrailByCorrelationID(correlationID)
}

func eventTypeFor(result domain.CancellationResult) domain.EventType {
	switch {
	case result.Success && result.Status == domain.ResultPartial:
		return domain.EventCancellationPartial
	case result.Success:
		return domain.EventCancellationCompleted
	default:
		return domain.EventCancellationFailed
	}
}

func failedResult(cctx domain.CancellationContext, code, message string) domain.CancellationResult {
	return domain.CancellationResult{
		Success:       false,
		Status:        domain.ResultFailed,
		Message:       message,
		ErrorCode:     code,
		CorrelationID: cctx.CorrelationID,
		ProductID:     cctx.ProductID,
	}
}
