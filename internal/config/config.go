package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NATS        NATSConfig
	JWT         JWTConfig
	Realtime    RealtimeConfig
	Locale      LocaleConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxConnections  int
	MaxIdleTime     time.Duration
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

// RealtimeConfig groups the options of the message distribution pipeline.
type RealtimeConfig struct {
	QueueMode          string // memory | redis | immediate
	QueueKey           string
	QueueCapacity      int
	QueueWorkers       int
	QueueBatchSize     int
	QueuePollTimeout   time.Duration
	QueueShutdownGrace time.Duration

	BroadcastMode    string // direct | bus
	BusDriver        string // redis | nats
	BusSingleChannel bool
	ChannelPrefix    string

	CacheStore          string // memory | redis | none
	RecentCacheSize     int
	RecentCacheTTL      time.Duration
	ParticipantCacheTTL time.Duration
	InitialMessageLoad  int
	SocketIdleTimeout   time.Duration
	SocketSweepInterval time.Duration
}

// LocaleConfig selects the language of server generated notices.
type LocaleConfig struct {
	Dir      string
	Language string
}

type LogConfig struct {
	Level string
}

const (
	QueueModeMemory    = "memory"
	QueueModeRedis     = "redis"
	QueueModeImmediate = "immediate"

	BroadcastModeDirect = "direct"
	BroadcastModeBus    = "bus"

	BusDriverRedis = "redis"
	BusDriverNATS  = "nats"

	CacheStoreMemory = "memory"
	CacheStoreRedis  = "redis"
	CacheStoreNone   = "none"
)

func Load() (*Config, error) {
	// .env може не існувати в продакшені
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=chatgogodb port=5432 sslmode=disable"),
			MaxConnections:  getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdleTime:     getEnvAsDuration("DATABASE_MAX_IDLE_TIME", 5*time.Minute),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6380"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "chatgogo-service"),
			AccessTTL: getEnvAsDuration("JWT_ACCESS_TTL", 72*time.Hour),
		},
		Realtime: RealtimeConfig{
			QueueMode:          strings.ToLower(getEnv("CHAT_QUEUE_MODE", QueueModeMemory)),
			QueueKey:           getEnv("CHAT_QUEUE_KEY", "chat:room:queue"),
			QueueCapacity:      getEnvAsInt("CHAT_QUEUE_CAPACITY", 10000),
			QueueWorkers:       getEnvAsInt("CHAT_QUEUE_WORKERS", 2),
			QueueBatchSize:     getEnvAsInt("CHAT_QUEUE_BATCH_SIZE", 1),
			QueuePollTimeout:   getEnvAsDuration("CHAT_QUEUE_POLL_TIMEOUT", 2*time.Second),
			QueueShutdownGrace: getEnvAsDuration("CHAT_QUEUE_SHUTDOWN_GRACE", 5*time.Second),

			BroadcastMode:    strings.ToLower(getEnv("CHAT_BROADCAST_MODE", BroadcastModeDirect)),
			BusDriver:        strings.ToLower(getEnv("CHAT_BUS_DRIVER", BusDriverRedis)),
			BusSingleChannel: getEnvAsBool("CHAT_BUS_SINGLE_CHANNEL", false),
			ChannelPrefix:    getEnv("CHAT_CHANNEL_PREFIX", "chat:room"),

			CacheStore:          strings.ToLower(getEnv("CHAT_CACHE_STORE", CacheStoreMemory)),
			RecentCacheSize:     getEnvAsInt("CHAT_RECENT_CACHE_SIZE", 100),
			RecentCacheTTL:      getEnvAsDuration("CHAT_RECENT_CACHE_TTL", 10*time.Minute),
			ParticipantCacheTTL: getEnvAsDuration("CHAT_PARTICIPANT_CACHE_TTL", 5*time.Minute),
			InitialMessageLoad:  getEnvAsInt("CHAT_INITIAL_MESSAGE_LOAD", 30),
			SocketIdleTimeout:   getEnvAsDuration("SOCKET_IDLE_TIMEOUT", 5*time.Minute),
			SocketSweepInterval: getEnvAsDuration("SOCKET_SWEEP_INTERVAL", time.Minute),
		},
		Locale: LocaleConfig{
			Dir:      getEnv("LOCALE_DIR", ""),
			Language: getEnv("LOCALE_LANG", "en"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be set")
	}
	return c.Realtime.Validate()
}

func (r *RealtimeConfig) Validate() error {
	switch r.QueueMode {
	case QueueModeMemory, QueueModeRedis, QueueModeImmediate:
	default:
		return fmt.Errorf("unknown queue mode %q", r.QueueMode)
	}
	switch r.BroadcastMode {
	case BroadcastModeDirect, BroadcastModeBus:
	default:
		return fmt.Errorf("unknown broadcast mode %q", r.BroadcastMode)
	}
	switch r.BusDriver {
	case BusDriverRedis, BusDriverNATS:
	default:
		return fmt.Errorf("unknown bus driver %q", r.BusDriver)
	}
	switch r.CacheStore {
	case CacheStoreMemory, CacheStoreRedis, CacheStoreNone:
	default:
		return fmt.Errorf("unknown cache store %q", r.CacheStore)
	}
	if r.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", r.QueueCapacity)
	}
	if r.QueueWorkers <= 0 {
		return fmt.Errorf("queue workers must be positive, got %d", r.QueueWorkers)
	}
	if r.QueueBatchSize <= 0 {
		return fmt.Errorf("queue batch size must be positive, got %d", r.QueueBatchSize)
	}
	if r.SocketIdleTimeout <= 0 || r.SocketSweepInterval <= 0 {
		return fmt.Errorf("socket idle timeout and sweep interval must be positive")
	}
	return nil
}

// NeedsRedis reports whether any selected strategy is backed by Redis.
func (r *RealtimeConfig) NeedsRedis() bool {
	return r.QueueMode == QueueModeRedis ||
		r.CacheStore == CacheStoreRedis ||
		(r.BroadcastMode == BroadcastModeBus && r.BusDriver == BusDriverRedis)
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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
