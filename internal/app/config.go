package app

import (
	"os"
	"strconv"
	"time"
)

// StorageDriver определяет бэкенд хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса отмен.
type Config struct {
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	KafkaTopic   string

	DragonPassBaseURL string
	DragonPassAPIKey  string

	SweepInterval     time.Duration
	CleanupInterval   time.Duration
	RetentionDays     int
	DeliveryBatchSize int
}

// DefaultConfig возвращает конфигурацию по умолчанию: in-memory
// хранилище, без Kafka, мок-клиент DragonPass.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SweepInterval:       30 * time.Second,
		CleanupInterval:     time.Hour,
		RetentionDays:       30,
		DeliveryBatchSize:   5,
	}
}

// LoadConfig строит конфигурацию из окружения поверх значений по
// умолчанию. Непустой ACS_POSTGRES_DSN переключает хранилище на postgres.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("ACS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("ACS_POSTGRES_DSN"); v != "" {
		cfg.StorageDriver = StorageDriverPostgres
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("ACS_POSTGRES_AUTO_MIGRATE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v := os.Getenv("ACS_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("ACS_KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("ACS_DRAGONPASS_BASE_URL"); v != "" {
		cfg.DragonPassBaseURL = v
	}
	if v := os.Getenv("ACS_DRAGONPASS_API_KEY"); v != "" {
		cfg.DragonPassAPIKey = v
	}
	if v := os.Getenv("ACS_SWEEP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.SweepInterval = parsed
		}
	}
	if v := os.Getenv("ACS_CLEANUP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.CleanupInterval = parsed
		}
	}
	if v := os.Getenv("ACS_RETENTION_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RetentionDays = parsed
		}
	}
	if v := os.Getenv("ACS_DELIVERY_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.DeliveryBatchSize = parsed
		}
	}

	return cfg
}
