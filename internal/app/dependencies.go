package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/access"
	"github.com/travelmesh/acs/internal/command"
	"github.com/travelmesh/acs/internal/domain"
	"github.com/travelmesh/acs/internal/eventbus"
	"github.com/travelmesh/acs/internal/metrics"
	"github.com/travelmesh/acs/internal/orchestrator"
	"github.com/travelmesh/acs/internal/policy"
	"github.com/travelmesh/acs/internal/provider/dragonpass"
	"github.com/travelmesh/acs/internal/storage/memory"
	"github.com/travelmesh/acs/internal/storage/postgres"
	"github.com/travelmesh/acs/internal/webhook"
)

// Dependencies содержит собранные компоненты сервиса отмен.
type Dependencies struct {
	Orders        domain.OrderRepository
	Products      domain.ProductRepository
	Records       domain.CancellationRecordRepository
	Webhooks      domain.WebhookRepository
	WebhookEvents domain.WebhookEventRepository

	Store *postgres.Store // nil при in-memory хранилище

	Metrics      *metrics.CancellationMetrics
	Bus          *eventbus.Bus
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *webhook.Dispatcher
	Registry     *webhook.Registry
	Sweeper      *webhook.SweepWorker
	Logger       *log.Entry
}

// NewDependencies собирает граф зависимостей под заданную конфигурацию.
// DragonPass без базового URL заменяется мок-клиентом, что позволяет
// запускать сервис локально без доступа к поставщику.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}

	deps.Metrics = metrics.NewCancellationMetrics()
	deps.Bus = eventbus.NewBus(logger.WithField("component", "event-bus"))

	var providerClient dragonpass.Client
	if cfg.DragonPassBaseURL != "" {
		providerClient = dragonpass.NewHTTPClient(
			cfg.DragonPassBaseURL, cfg.DragonPassAPIKey,
			logger.WithField("component", "dragonpass-client"),
		)
	} else {
		logger.Warn("dragonpass base url not configured, using mock client")
		providerClient = dragonpass.NewMockClient()
	}

	registry := command.NewRegistry(command.RegistryDeps{
		Products:   deps.Products,
		Policy:     policy.NewEngine(),
		DragonPass: providerClient,
		Logger:     logger.WithField("component", "command-registry"),
	})
	invoker := command.NewInvoker(logger.WithField("component", "command-invoker"), deps.Metrics)
	validator := access.NewValidator(deps.Orders, deps.Products, logger.WithField("component", "access-validator"))

	deps.Orchestrator = orchestrator.New(orchestrator.Deps{
		Orders:    deps.Orders,
		Products:  deps.Products,
		Records:   deps.Records,
		Validator: validator,
		Registry:  registry,
		Invoker:   invoker,
		Bus:       deps.Bus,
		Logger:    logger.WithField("component", "cancellation-orchestrator"),
		Metrics:   deps.Metrics,
	})

	deps.Dispatcher = webhook.NewDispatcher(
		deps.Webhooks, deps.WebhookEvents,
		webhook.WithLogger(logger.WithField("component", "webhook-dispatcher")),
		webhook.WithMetrics(deps.Metrics),
		webhook.WithBatchSize(cfg.DeliveryBatchSize),
	)
	deps.Registry = webhook.NewRegistry(deps.Webhooks, deps.Dispatcher,
		logger.WithField("component", "webhook-registry"))
	deps.Sweeper = webhook.NewSweepWorker(deps.Dispatcher,
		webhook.WithSweepLogger(logger.WithField("component", "webhook-sweeper")),
		webhook.WithSweepInterval(cfg.SweepInterval),
		webhook.WithCleanupInterval(cfg.CleanupInterval),
		webhook.WithRetentionDays(cfg.RetentionDays),
	)

	// Доставка webhook — подписчик шины: каждое терминальное событие
	// превращается в pending-записи доставок.
	deps.Bus.SubscribeAll(deps.Dispatcher)

	return deps, nil
}

func (d *Dependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.Store = store
		d.Orders = postgres.NewOrderRepository(store)
		d.Products = postgres.NewProductRepository(store)
		d.Records = postgres.NewCancellationRecordRepository(store)
		d.Webhooks = postgres.NewWebhookRepository(store)
		d.WebhookEvents = postgres.NewWebhookEventRepository(store)
		logger.Info("postgres storage initialized")
	case StorageDriverMemory, "":
		d.Orders = memory.NewOrderRepository()
		d.Products = memory.NewProductRepository()
		d.Records = memory.NewCancellationRecordRepository()
		d.Webhooks = memory.NewWebhookRepository()
		d.WebhookEvents = memory.NewWebhookEventRepository()
		logger.Info("in-memory storage initialized")
	default:
		return fmt.Errorf("unknown storage driver: %q", cfg.StorageDriver)
	}
	return nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
