package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration. Ledger parameters live in the
// genesis file (see Genesis).
type Server struct {
	Addr          string
	Environment   string
	LogLevel      string
	JWTSigningKey string
	JWTIssuer     string
	GenesisPath   string
	Storage       StorageConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Oracle        OracleConfig
	Payout        PayoutConfig
	RateLimit     RateLimitConfig
}

// StorageConfig selects the ledger backend. An empty DatabaseURL keeps every
// store in memory (single process, state lost on restart).
type StorageConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig configures the oracle rate cache. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateTTL      time.Duration
}

// KafkaConfig configures the outbox relay. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	PollInterval time.Duration
	BatchSize    int
}

// OracleConfig configures the external price feed. Empty FeedURL uses the
// static rates from the genesis file.
type OracleConfig struct {
	FeedURL          string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// PayoutConfig configures the outgoing transfer dispatcher.
type PayoutConfig struct {
	Interval     time.Duration
	BatchSize    int
	Concurrency  int
	// LeaseTimeout fails transfers stuck in dispatching for operator review.
	LeaseTimeout time.Duration
}

// RateLimitConfig bounds requests per principal (or client IP) per minute.
// Limits are shared through Redis when it is configured.
type RateLimitConfig struct {
	Disabled        bool
	ReadsPerMinute  int
	WritesPerMinute int
}

// IsDev reports whether the process runs with development defaults.
func (s Server) IsDev() bool {
	return s.Environment == "" || s.Environment == "development"
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() Server {
	_ = godotenv.Load()

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envOr("LEDGER_ADDR", ":8080"),
		Environment:   envOr("LEDGER_ENV", "development"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("JWT_ISSUER", "impactledger"),
		GenesisPath:   envOr("GENESIS_PATH", "genesis.toml"),
		Storage: StorageConfig{
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       envDuration("LEDGER_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			RateTTL:      envDuration("ORACLE_RATE_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      envList("KAFKA_BROKERS"),
			TopicPrefix:  envOr("KAFKA_TOPIC_PREFIX", "impactledger"),
			PollInterval: envDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Oracle: OracleConfig{
			FeedURL:          os.Getenv("ORACLE_FEED_URL"),
			Timeout:          envDuration("ORACLE_TIMEOUT", 2*time.Second),
			BreakerThreshold: envInt("ORACLE_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  envDuration("ORACLE_BREAKER_COOLDOWN", 30*time.Second),
		},
		Payout: PayoutConfig{
			Interval:     envDuration("PAYOUT_INTERVAL", 2*time.Second),
			BatchSize:    envInt("PAYOUT_BATCH_SIZE", 50),
			Concurrency:  envInt("PAYOUT_CONCURRENCY", 4),
			LeaseTimeout: envDuration("PAYOUT_LEASE_TIMEOUT", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Disabled:        os.Getenv("RATE_LIMIT_DISABLED") == "true",
			ReadsPerMinute:  envInt("RATE_LIMIT_READS_PER_MINUTE", 300),
			WritesPerMinute: envInt("RATE_LIMIT_WRITES_PER_MINUTE", 60),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
