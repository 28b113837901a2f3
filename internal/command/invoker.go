package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/metrics"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
	defaultTimeout    = 30 * time.Second
)

// InvokeOptions задаёт параметры одного вызова Invoke.
type InvokeOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// InvokeOption настраивает InvokeOptions.
type InvokeOption func(*InvokeOptions)

// WithMaxRetries задаёт число попыток для данного вызова.
func WithMaxRetries(maxRetries int) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.MaxRetries = maxRetries
	}
}

// WithRetryDelay задаёт паузу между попытками.
func WithRetryDelay(delay time.Duration) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.RetryDelay = delay
	}
}

// WithTimeout задаёт таймаут одной попытки.
func WithTimeout(timeout time.Duration) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.Timeout = timeout
	}
}

// Invoker выполняет команды с ограниченным retry и ведёт append-only
// аудит попыток на время жизни процесса. Retry срабатывает только на
// ошибку или таймаут; разрешившийся бизнес-отказ (success=false)
// не повторяется.
type Invoker struct {
	logger   *log.Entry
	metrics  *metrics.CancellationMetrics
	defaults []InvokeOption

	mu    sync.Mutex
	trail []domain.AuditRecord
}

// NewInvoker создаёт Invoker. Переданные опции становятся базовыми для
// всех вызовов Invoke и могут быть переопределены опциями вызова.
func NewInvoker(logger *log.Entry, m *metrics.CancellationMetrics, defaults ...InvokeOption) *Invoker {
	if logger == nil {
		logger = log.New().WithField("component", "command-invoker")
	}
	return &Invoker{logger: logger, metrics: m, defaults: defaults}
}

// Invoke выполняет команду. Таймаут попытки отменяет контекст команды,
// так что незавершённый сетевой вызов действительно прерывается.
// После исчерпания попыток ошибка возвращается вызывающему.
func (i *Invoker) Invoke(ctx context.Context, cmd Command, options ...InvokeOption) (domain.CancellationResult, error) {
	opts := InvokeOptions{
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
		Timeout:    defaultTimeout,
	}
	for _, option := range i.defaults {
		option(&opts)
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}

	cctx := cmd.Context()
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		started := time.Now()
		result, err := i.executeOnce(ctx, cmd, opts.Timeout)
		elapsed := time.Since(started)

		if err == nil {
			i.append(cmd, cctx, elapsed, result.Success, result.Message)
			if i.metrics != nil {
				i.metrics.RecordCommandExecuted(string(cmd.Provider()), result.Success)
			}
			return result, nil
		}

		lastErr = err
		i.append(cmd, cctx, elapsed, false, err.Error())
		if i.metrics != nil {
			i.metrics.RecordCommandRetry(string(cmd.Provider()))
		}

		if attempt >= opts.MaxRetries {
			break
		}

		i.logger.WithError(err).WithFields(log.Fields{
			"command":        cmd.Type(),
			"correlation_id": cctx.CorrelationID,
			"attempt":        attempt,
			"delay":          opts.RetryDelay,
		}).Warn("command attempt failed, retrying")

		select {
		case <-ctx.Done():
			return domain.CancellationResult{}, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	return domain.CancellationResult{}, fmt.Errorf("command %s failed after %d attempts: %w",
		cmd.Type(), opts.MaxRetries, lastErr)
}

// executeOnce гоняет Execute против таймера. Отмена контекста попытки
// прерывает и сам вызов поставщика.
func (i *Invoker) executeOnce(ctx context.Context, cmd Command, timeout time.Duration) (domain.CancellationResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result domain.CancellationResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := cmd.Execute(attemptCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return domain.CancellationResult{}, ctx.Err()
		}
		return domain.CancellationResult{}, domain.ErrCommandTimeout
	}
}

func (i *Invoker) append(cmd Command, cctx domain.CancellationContext, elapsed time.Duration, success bool, message string) {
	record := domain.AuditRecord{
		CommandType:     cmd.Type(),
		Provider:        cmd.Provider(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		Timestamp:       time.Now().UTC(),
		CorrelationID:   cctx.CorrelationID,
		Success:         success,
	}
	if !success {
		record.ErrorMessage = message
	}

	i.mu.Lock()
	i.trail = append(i.trail, record)
	i.mu.Unlock()
}

// AuditTrail возвращает копию всего аудита процесса.
func (i *Invoker) AuditTrail() []domain.AuditRecord {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]domain.AuditRecord, len(i.trail))
	copy(out, i.trail)
	return out
}

// AuditTrailByCorrelationID возвращает попытки одной логической отмены.
func (i *Invoker) AuditTrailByCorrelationID(correlationID string) []domain.AuditRecord {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []domain.AuditRecord
	for _, record := range i.trail {
		if record.CorrelationID == correlationID {
			out = append(out, record)
		}
	}
	return out
}

// AuditTrailByProvider возвращает попытки по поставщику.
func (i *Invoker) AuditTrailByProvider(provider domain.Provider) []domain.AuditRecord {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []domain.AuditRecord
	for _, record := range i.trail {
		if record.Provider == provider {
			out = append(out, record)
		}
	}
	return out
}
