package command

import (
	"context"

	"github.com/travelmesh/acs/internal/domain"
)

// stubRetryAfterSeconds — фиксированная пауза, которую возвращают заглушки
// поставщиков без реализованной интеграции.
const stubRetryAfterSeconds = 900

// stubCommand — временная команда для поставщиков, интеграция с которыми
// ещё не реализована (Mozio, Airalo).
type stubCommand struct {
	cctx     domain.CancellationContext
	provider domain.Provider
}

func newStubCommand(cctx domain.CancellationContext, provider domain.Provider) Command {
	return &stubCommand{cctx: cctx, provider: provider}
}

func (c *stubCommand) Provider() domain.Provider           { return c.provider }
func (c *stubCommand) Type() string                        { return string(c.provider) + "_cancellation" }
func (c *stubCommand) Context() domain.CancellationContext { return c.cctx }

func (c *stubCommand) Execute(ctx context.Context) (domain.CancellationResult, error) {
	return domain.CancellationResult{
		Success:       false,
		Status:        domain.ResultFailed,
		Message:       string(c.provider) + " cancellations are not integrated yet",
		ErrorCode:     domain.CodeServiceUnavailable,
		RetryAfter:    stubRetryAfterSeconds,
		CorrelationID: c.cctx.CorrelationID,
		ProductID:     c.cctx.ProductID,
	}, nil
}

func (c *stubCommand) Undo(ctx context.Context) {}

// unsupportedCommand всегда завершается отказом PROVIDER_NOT_SUPPORTED.
type unsupportedCommand struct {
	cctx     domain.CancellationContext
	provider string
}

func newUnsupportedCommand(cctx domain.CancellationContext, provider string) Command {
	return &unsupportedCommand{cctx: cctx, provider: provider}
}

func (c *unsupportedCommand) Provider() domain.Provider           { return domain.ProviderUnknown }
func (c *unsupportedCommand) Type() string                        { return "unsupported_cancellation" }
func (c *unsupportedCommand) Context() domain.CancellationContext { return c.cctx }

func (c *unsupportedCommand) Execute(ctx context.Context) (domain.CancellationResult, error) {
	return domain.CancellationResult{
		Success:       false,
		Status:        domain.ResultFailed,
		Message:       "provider " + c.provider + " is not supported",
		ErrorCode:     domain.CodeProviderNotSupported,
		CorrelationID: c.cctx.CorrelationID,
		ProductID:     c.cctx.ProductID,
	}, nil
}

func (c *unsupportedCommand) Undo(ctx context.Context) {}
