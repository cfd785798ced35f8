package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Trust      TrustConfig
	Dispatch   DispatchConfig
	Warmup     WarmupConfig
	Execution  ExecutionConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version        string
	Port           string
	Debug          bool
	Environment    string
	BasicAuth      []string
	TrustedProxies []string
	ServerID       string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// TrustConfig drives the health-evaluation cron.
type TrustConfig struct {
	EvaluationInterval time.Duration
	// WindowSize is the trailing signal window each evaluation aggregates.
	WindowSize time.Duration
}

// DispatchConfig drives the admission gate.
type DispatchConfig struct {
	MinIntervalSeconds int
	MaxPerMinute       int
	MaxPerHour         int
	DuplicateWindow    time.Duration
}

// WarmupConfig drives the warm-up orchestrator cron.
type WarmupConfig struct {
	RunInterval time.Duration
}

// ExecutionConfig drives the job workers.
type ExecutionConfig struct {
	TickInterval   time.Duration
	ClaimBatchSize int
	SendTimeout    time.Duration
	MaxAttempts    int
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration (composition root sets
// it once at startup).
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:     "v1.4.0",
		Port:        getEnv("APP_PORT", "3000"),
		Debug:       getEnvBool("APP_DEBUG", false),
		Environment: getEnv("APP_ENV", "development"),
		BasicAuth:   basicAuth,
		ServerID:    getEnv("SERVER_ID", ""),
	}
	if v := getEnv("APP_TRUSTED_PROXIES", ""); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(baseDir, "trustplane.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "whatlead:"),
	}

	cfg := &Config{
		App:      appCfg,
		Database: dbCfg,
		Trust: TrustConfig{
			EvaluationInterval: getEnvDuration("TRUST_EVALUATION_INTERVAL", 5*time.Minute),
			WindowSize:         getEnvDuration("TRUST_WINDOW_SIZE", time.Hour),
		},
		Dispatch: DispatchConfig{
			MinIntervalSeconds: getEnvInt("DISPATCH_MIN_INTERVAL_SECONDS", 300),
			MaxPerMinute:       getEnvInt("DISPATCH_MAX_PER_MINUTE", 2),
			MaxPerHour:         getEnvInt("DISPATCH_MAX_PER_HOUR", 20),
			DuplicateWindow:    getEnvDuration("DISPATCH_DUPLICATE_WINDOW", 30*time.Minute),
		},
		Warmup: WarmupConfig{
			RunInterval: getEnvDuration("WARMUP_RUN_INTERVAL", 20*time.Minute),
		},
		Execution: ExecutionConfig{
			TickInterval:   getEnvDuration("EXECUTION_TICK_INTERVAL", 5*time.Second),
			ClaimBatchSize: getEnvInt("EXECUTION_CLAIM_BATCH_SIZE", 25),
			SendTimeout:    getEnvDuration("EXECUTION_SEND_TIMEOUT", 30*time.Second),
			MaxAttempts:    getEnvInt("EXECUTION_MAX_ATTEMPTS", 5),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("EXECUTION_WORKER_POOL_SIZE", 6),
			QueueSize: getEnvInt("EXECUTION_WORKER_QUEUE_SIZE", 250),
		},
	}

	Global = cfg
	return cfg, nil
}
