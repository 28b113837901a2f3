// Package command содержит провайдер-специфичные команды отмены,
// реестр их сборки и Invoker с ограниченным retry и аудитом.
package command

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/policy"
	"github.com/travelmesh/acs/internal/provider/dragonpass"
)

// Command — инкапсулированная операция отмены у конкретного поставщика.
// Execute возвращает ошибку только для транспортных и внутренних сбоев,
// по которым Invoker повторяет попытку; ожидаемые отказы (валидация,
// политика, бизнес-ошибка поставщика) приходят как failed-результат.
type Command interface {
	Execute(ctx context.Context) (domain.CancellationResult, error)
	// Undo выполняет компенсацию по принципу best-effort и глотает свои ошибки.
	Undo(ctx context.Context)
	Provider() domain.Provider
	Type() string
	Context() domain.CancellationContext
}

// Builder создаёт команду, привязанную к контексту отмены.
type Builder func(cctx domain.CancellationContext) Command

// Registry — таблица провайдер → сборщик команды.
// Нераспознанные коды поставщиков привязываются к unsupported-команде.
type Registry struct {
	builders map[domain.Provider]Builder
	logger   *log.Entry
}

// RegistryDeps — зависимости команд, доступные через реестр.
type RegistryDeps struct {
	Products   domain.ProductRepository
	Policy     *policy.Engine
	DragonPass dragonpass.Client
	Logger     *log.Entry
}

// NewRegistry создаёт реестр со всеми известными поставщиками.
func NewRegistry(deps RegistryDeps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "command-registry")
	}

	r := &Registry{
		builders: make(map[domain.Provider]Builder),
		logger:   logger,
	}

	r.Register(domain.ProviderDragonPass, func(cctx domain.CancellationContext) Command {
		return newDragonPassCommand(cctx, deps.Products, deps.Policy, deps.DragonPass, logger)
	})
	r.Register(domain.ProviderMozio, func(cctx domain.CancellationContext) Command {
		return newStubCommand(cctx, domain.ProviderMozio)
	})
	r.Register(domain.ProviderAiralo, func(cctx domain.CancellationContext) Command {
		return newStubCommand(cctx, domain.ProviderAiralo)
	})

	return r
}

// Register добавляет или заменяет сборщик для поставщика.
func (r *Registry) Register(provider domain.Provider, builder Builder) {
	r.builders[provider] = builder
}

// Build выбирает команду по коду поставщика без учёта регистра.
// Чистое сопоставление: ни ввода-вывода, ни ошибок.
func (r *Registry) Build(provider string, cctx domain.CancellationContext) Command {
	normalized := domain.Provider(strings.ToLower(strings.TrimSpace(provider)))
	if builder, ok := r.builders[normalized]; ok {
		return builder(cctx)
	}
	return newUnsupportedCommand(cctx, provider)
}
