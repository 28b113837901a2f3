package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/travelmesh/acs/internal/health"
	"github.com/travelmesh/acs/internal/messaging/kafka"
	"github.com/travelmesh/acs/internal/version"
)

// Run запускает сервис отмен: хранилище, шину событий, доставку
// webhook и HTTP-эндпоинты метрик и health. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	kafkaProducer := initKafkaProducer(cfg.KafkaBrokers, logger)
	if kafkaProducer != nil {
		sink := kafka.NewEventSink(kafkaProducer, cfg.KafkaTopic,
			logger.WithField("component", "kafka-sink"))
		deps.Bus.SubscribeAll(sink)
	}
	defer closeKafka(kafkaProducer, logger)

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres",
			healthcheck.NewPingChecker("postgres", deps.Store, 2*time.Second))
	}
	healthHandler.RegisterChecker("deliveries",
		healthcheck.NewDeliveryBacklogChecker("deliveries", func() (int, int, error) {
			stats, err := deps.Dispatcher.Stats()
			if err != nil {
				return 0, 0, err
			}
			return stats.PendingCount + stats.RetryingCount, stats.FailedCount, nil
		}, 1000))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		deps.Sweeper.Run(ctx)
	}()

	logger.Info("cancellation service started")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем сервис")

	select {
	case <-sweepDone:
	case <-time.After(5 * time.Second):
		logger.Warn("sweep worker did not stop in time")
	}
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// initKafkaProducer создаёт producer, если брокеры заданы. Ошибка
// подключения не фатальна: сервис продолжает работу без Kafka.
func initKafkaProducer(brokers string, logger *log.Entry) *kafka.Producer {
	if brokers == "" {
		return nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startMetricsServer поднимает HTTP-эндпоинты /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
