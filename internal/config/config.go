package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, loaded from DELIVERYFLOW_* environment
// variables. BackendURL is the only required field; everything else has a
// sensible default so the service can run locally against a dev backend.
type Config struct {
	BackendURL string `envconfig:"BACKEND_URL" required:"true"`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	AmountTolerance float64       `envconfig:"AMOUNT_TOLERANCE" default:"0.01"`
	CommissionRate  float64       `envconfig:"COMMISSION_RATE" default:"0.10"`

	// AWS integration is optional: leaving the table/queue empty disables the
	// cross-process idempotency records and the completed-delivery events.
	IdempotencyTable string `envconfig:"IDEMPOTENCY_TABLE"`
	QueueURL         string `envconfig:"QUEUE_URL"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"DeliveryFlow"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("deliveryflow", &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}
