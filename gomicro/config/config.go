package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// UserDirectoryConfig points at the service that owns user records.
type UserDirectoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// UmbrellaConfig holds the relationship engine settings
type UmbrellaConfig struct {
	// SignatureKey keys the agreement signature commitment hash.
	SignatureKey string
	// AgreementTemplate is a text/template body; empty selects the built-in agreement.
	AgreementTemplate string
	ShareListLimit    int
	RollupInterval    time.Duration
	RollupBatchSize   int
	InstanceCacheTTL  time.Duration
}

// Config holds all configuration
type Config struct {
	ServiceName   string
	DB            DBConfig
	Server        ServerConfig
	JWT           JWTConfig
	Log           LogConfig
	Metrics       MetricsConfig
	UserDirectory UserDirectoryConfig
	Umbrella      UmbrellaConfig
}

// Load loads configuration from environment variables without service name prefix
func Load(serviceName string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", serviceName),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "development"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", serviceName),
		},
		UserDirectory: UserDirectoryConfig{
			BaseURL: getEnv("USER_DIRECTORY_URL", "http://localhost:8081"),
			Timeout: getEnvAsDuration("USER_DIRECTORY_TIMEOUT", 5*time.Second),
		},
		Umbrella: UmbrellaConfig{
			SignatureKey:      getEnv("UMBRELLA_SIGNATURE_KEY", "umbrella-signature-key"),
			AgreementTemplate: getEnv("UMBRELLA_AGREEMENT_TEMPLATE", ""),
			ShareListLimit:    getEnvAsInt("UMBRELLA_SHARE_LIST_LIMIT", 5),
			RollupInterval:    getEnvAsDuration("UMBRELLA_ROLLUP_INTERVAL", 1*time.Hour),
			RollupBatchSize:   getEnvAsInt("UMBRELLA_ROLLUP_BATCH_SIZE", 50),
			InstanceCacheTTL:  getEnvAsDuration("UMBRELLA_INSTANCE_CACHE_TTL", 15*time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Umbrella.SignatureKey == "" {
		return fmt.Errorf("UMBRELLA_SIGNATURE_KEY must not be empty")
	}
	if len(c.Umbrella.SignatureKey) > 64 {
		return fmt.Errorf("UMBRELLA_SIGNATURE_KEY must be at most 64 bytes")
	}
	if c.Umbrella.ShareListLimit < 0 {
		return fmt.Errorf("UMBRELLA_SHARE_LIST_LIMIT must not be negative")
	}
	if c.Umbrella.RollupBatchSize <= 0 {
		return fmt.Errorf("UMBRELLA_ROLLUP_BATCH_SIZE must be positive")
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("user_directory_url", c.UserDirectory.BaseURL),
		zap.Duration("rollup_interval", c.Umbrella.RollupInterval),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
