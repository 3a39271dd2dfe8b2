package config

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`

	// StripeSecretKey authenticates calls to the processor API.
	StripeSecretKey string `mapstructure:"stripe_secret_key" validate:"required"`
	// StripeWebhookSecret is the shared secret for webhook signatures.
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret" validate:"required"`
	// SignatureToleranceSeconds bounds accepted webhook timestamp age.
	SignatureToleranceSeconds int `mapstructure:"signature_tolerance_seconds"`
	// ProcessorTimeoutSeconds bounds individual processor API calls.
	ProcessorTimeoutSeconds int `mapstructure:"processor_timeout_seconds"`
	// InternalJWTSecret guards the /internal operator endpoints.
	InternalJWTSecret string `mapstructure:"internal_jwt_secret"`
}

type RedisConfig struct {
	// Addr is optional; alert publishing is disabled when empty.
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	AlertChannel string `mapstructure:"alert_channel"`
}

type ReconcileConfig struct {
	// Concurrency is the fan-out against the processor API.
	Concurrency int `mapstructure:"concurrency"`
	// BatchSize is how many records are processed between pauses.
	BatchSize int `mapstructure:"batch_size"`
	// BatchPauseSeconds spaces batches to respect processor rate limits.
	BatchPauseSeconds int `mapstructure:"batch_pause_seconds"`
}
