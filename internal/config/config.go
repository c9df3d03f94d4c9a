// Package config handles configuration for the subtype intake services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the intake server, relay worker and
// terminal client.
type Config struct {
	// Server configuration
	Host        string `validate:"required"`
	Port        string `validate:"required,numeric"`
	BaseURL     string `validate:"required,url"`
	DebugRoutes bool

	// Prediction service
	PredictionServiceURL string        `validate:"required,url"`
	PredictPath          string        `validate:"required,startswith=/"`
	MedicationsPath      string        `validate:"required,startswith=/"`
	PredictionTimeout    time.Duration `validate:"gt=0"`
	ConnectTimeout       time.Duration `validate:"gt=0"`

	// Circuit breaker configuration
	CBFailureThreshold int           `validate:"min=1"`
	CBSuccessThreshold int           `validate:"min=1"`
	CBRecoveryTimeout  time.Duration `validate:"gt=0"`

	// Retry configuration
	RetryEnabled     bool
	RetryMaxAttempts int `validate:"min=1,max=10"`
	RetryWaitMs      int `validate:"min=0"`

	// Validation
	ConsentRequired    bool
	RangeChecksEnabled bool
	GlucoseMgPerMmol   float64 `validate:"gt=0"`
	CPeptideNgToNmol   float64 `validate:"gt=0"`

	// Database configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresMaxConns int `validate:"min=1"`

	// Redis configuration
	RedisHost string
	RedisPort string
	RedisDB   int

	// Idempotent replay cache
	PredictionCacheTTL time.Duration

	// Rate limiting
	RateLimitPredictPerMinute int `validate:"min=1"`

	// Follow-up medication relay
	FollowUpStream      string        `validate:"required"`
	FollowUpMaxAttempts int           `validate:"min=1"`
	FollowUpSweepLimit  int           `validate:"min=1"`
	WorkerBatchSize     int           `validate:"min=1"`
	WorkerFlushInterval time.Duration `validate:"gt=0"`
	WorkerMetricsPort   string        `validate:"required,numeric"`

	// Auth0 configuration
	Auth0Domain   string
	Auth0Audience string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		Host:    getEnv("HOST", "0.0.0.0"),
		Port:    getEnv("PORT", "8000"),
		BaseURL: getEnv("BASE_URL", "http://localhost:8000"),

		DebugRoutes: getEnvBool("DEBUG_ROUTES", false),

		// Prediction service
		PredictionServiceURL: getEnv("PREDICTION_SERVICE_URL", "http://localhost:5000"),
		PredictPath:          getEnv("PREDICT_PATH", "/predict"),
		MedicationsPath:      getEnv("MEDICATIONS_PATH", "/submit_medications"),
		PredictionTimeout:    getEnvDuration("PREDICTION_TIMEOUT_SECONDS", 10*time.Second),
		ConnectTimeout:       getEnvDuration("PREDICTION_CONNECT_TIMEOUT", 2*time.Second),

		// Circuit breaker
		CBFailureThreshold: getEnvInt("CB_FAILURE_THRESHOLD", 5),
		CBSuccessThreshold: getEnvInt("CB_SUCCESS_THRESHOLD", 2),
		CBRecoveryTimeout:  getEnvDuration("CB_RECOVERY_TIMEOUT", 30*time.Second),

		// Retry
		RetryEnabled:     getEnvBool("RETRY_ENABLED", true),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 2),
		RetryWaitMs:      getEnvInt("RETRY_WAIT_MS", 200),

		// Validation
		ConsentRequired:    getEnvBool("CONSENT_REQUIRED", true),
		RangeChecksEnabled: getEnvBool("RANGE_CHECKS_ENABLED", true),
		GlucoseMgPerMmol:   getEnvFloat("GLUCOSE_MG_PER_MMOL", 18.0182),
		CPeptideNgToNmol:   getEnvFloat("CPEPTIDE_NG_TO_NMOL", 0.3311),

		// Database
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "subtype_intake"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNECTIONS", 10),

		// Redis
		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		PredictionCacheTTL: time.Duration(getEnvInt("PREDICTION_CACHE_TTL", 300)) * time.Second,

		RateLimitPredictPerMinute: getEnvInt("RATE_LIMIT_PREDICT_PER_MINUTE", 30),

		// Follow-up relay
		FollowUpStream:      getEnv("FOLLOWUP_STREAM", "followup:stream"),
		FollowUpMaxAttempts: getEnvInt("FOLLOWUP_MAX_ATTEMPTS", 5),
		FollowUpSweepLimit:  getEnvInt("FOLLOWUP_SWEEP_LIMIT", 1000),
		WorkerBatchSize:     getEnvInt("WORKER_BATCH_SIZE", 50),
		WorkerFlushInterval: getEnvDuration("WORKER_FLUSH_INTERVAL", 5*time.Second),
		WorkerMetricsPort:   getEnv("WORKER_METRICS_PORT", "9101"),

		// Auth0
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// PredictURL returns the full submit-for-prediction URL.
func (c *Config) PredictURL() string {
	return c.PredictionServiceURL + c.PredictPath
}

// MedicationsURL returns the full follow-up medications URL.
func (c *Config) MedicationsURL() string {
	return c.PredictionServiceURL + c.MedicationsPath
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return "postgres://" + c.PostgresUser + ":" + c.PostgresPassword +
		"@" + c.PostgresHost + ":" + c.PostgresPort +
		"/" + c.PostgresDB + "?sslmode=disable"
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// RequestTimeout bounds a prediction request end to end, covering every
// retry attempt.
func (c *Config) RequestTimeout() time.Duration {
	perAttempt := c.PredictionTimeout + c.ConnectTimeout + time.Duration(c.RetryWaitMs)*time.Millisecond
	return time.Duration(c.RetryMaxAttempts)*perAttempt + 5*time.Second
}

// AuthEnabled reports whether Auth0 protects the /v1 routes.
func (c *Config) AuthEnabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable.
// Expects seconds as float, e.g. PREDICTION_TIMEOUT_SECONDS=2.5.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(floatVal * float64(time.Second))
		}
	}
	return defaultValue
}
