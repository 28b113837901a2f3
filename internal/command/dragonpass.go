package command

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/policy"
	"github.com/travelmesh/acs/internal/provider/dragonpass"
)

// dragonPassCommand отменяет бронирование бизнес-зала через API DragonPass.
type dragonPassCommand struct {
	cctx     domain.CancellationContext
	products domain.ProductRepository
	policy   *policy.Engine
	client   dragonpass.Client
	logger   *log.Entry
}

func newDragonPassCommand(
	cctx domain.CancellationContext,
	products domain.ProductRepository,
	policyEngine *policy.Engine,
	client dragonpass.Client,
	logger *log.Entry,
) Command {
	return &dragonPassCommand{
		cctx:     cctx,
		products: products,
		policy:   policyEngine,
		client:   client,
		logger:   logger.WithField("command", "dragonpass-cancel"),
	}
}

func (c *dragonPassCommand) Provider() domain.Provider          { return domain.ProviderDragonPass }
func (c *dragonPassCommand) Type() string                       { return "dragonpass_cancellation" }
func (c *dragonPassCommand) Context() domain.CancellationContext { return c.cctx }

// Execute перечитывает услугу, повторно проверяет поставщика и политику,
// затем вызывает внешний endpoint отмены и переводит его ответ в
// CancellationResult. Транспортная ошибка вызова возвращается наружу,
// чтобы Invoker мог повторить попытку.
func (c *dragonPassCommand) Execute(ctx context.Context) (domain.CancellationResult, error) {
	product, err := c.products.FindByID(c.cctx.ProductID)
	if err != nil {
		return c.failed(domain.CodeProductNotFound, "product not found"), nil
	}

	if product.Provider != domain.ProviderDragonPass {
		return c.failed(domain.CodeProviderNotSupported, "product does not belong to dragonpass"), nil
	}

	decision := c.policy.Evaluate(product.Policy, product.Price, product.ServiceDateTime, time.Now().UTC())
	if !decision.Cancellable {
		result := c.failed(domain.CodeNotCancellable, decision.Reason)
		result.FeeMinor = decision.FeeMinor
		result.Currency = decision.Currency
		return result, nil
	}

	resp, err := c.client.CancelBooking(ctx, dragonpass.CancelRequest{
		BookingID:   product.ExternalID,
		LoungeID:    product.ExternalID,
		BookingTime: product.ServiceDateTime.UTC().Format(time.RFC3339),
		ProductID:   product.ID,
	})
	if err != nil {
		// Сетевые сбои ретраятся на уровне Invoker.
		return domain.CancellationResult{}, err
	}

	return c.mapResponse(product, decision, resp), nil
}

// mapResponse переводит ответ поставщика в результат отмены.
// Частичный возврат распознаётся, когда возвращённый refund равен
// возвращённой комиссии.
func (c *dragonPassCommand) mapResponse(product domain.Product, decision policy.Decision, resp dragonpass.CancelResponse) domain.CancellationResult {
	raw, err := json.Marshal(resp)
	if err != nil {
		raw = nil
	}

	if resp.Status != "success" {
		code := resp.ErrorCode
		if code == "" {
			code = domain.CodeProviderError
		}
		result := c.failed(code, resp.Message)
		result.RetryAfter = resp.RetryAfter
		result.ExternalResponse = raw
		return result
	}

	refund := resp.RefundAmount
	fee := resp.CancellationFee
	currency := resp.Currency
	if currency == "" {
		currency = decision.Currency
	}
	if refund == 0 && fee == 0 {
		// Поставщик не вернул суммы — используем расчёт политики.
		refund = decision.RefundMinor
		fee = decision.FeeMinor
	}

	status := domain.ResultCompleted
	if refund > 0 && refund == fee {
		status = domain.ResultPartial
	}

	return domain.CancellationResult{
		Success:          true,
		RefundMinor:      refund,
		FeeMinor:         fee,
		Currency:         currency,
		Status:           status,
		Message:          "booking cancelled by dragonpass",
		ExternalResponse: raw,
		CorrelationID:    c.cctx.CorrelationID,
		ProductID:        product.ID,
	}
}

// Undo пытается откатить локальные следы отмены; DragonPass не предоставляет
// обратной операции, поэтому компенсация ограничивается логом.
func (c *dragonPassCommand) Undo(ctx context.Context) {
	c.logger.WithFields(log.Fields{
		"correlation_id": c.cctx.CorrelationID,
		"product_id":     c.cctx.ProductID,
	}).Warn("dragonpass cancellation cannot be reverted upstream, manual follow-up required")
}

func (c *dragonPassCommand) failed(code, message string) domain.CancellationResult {
	return domain.CancellationResult{
		Success:       false,
		Status:        domain.ResultFailed,
		Message:       message,
		ErrorCode:     code,
		CorrelationID: c.cctx.CorrelationID,
		ProductID:     c.cctx.ProductID,
	}
}
