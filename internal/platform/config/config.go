package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Empty URLs select the
// in-memory implementation of the matching component.
type Server struct {
	Addr           string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	EscrowAccount  string
	TxTimeout      time.Duration
	DatabaseURL    string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	Redis          RedisConfig
	Kafka          KafkaConfig
	Payment        PaymentConfig
	Audit          AuditConfig
}

// RedisConfig configures the idempotency store.
type RedisConfig struct {
	URL            string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Brokers            []string
	Topic              string
	GroupID            string
	Partitions         int32
	ReplicationFactor  int16
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// Enabled reports whether events leave the process through Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type PaymentConfig struct {
	URL     string
	Timeout time.Duration
	// MaxFailures consecutive failures open the circuit breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

type AuditConfig struct {
	AsyncBuffer int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:           getEnv("LEDGER_ADDR", ":8080"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		EscrowAccount:  getEnv("ESCROW_ACCOUNT", "escrow"),
		TxTimeout:      getDuration("LEDGER_TX_TIMEOUT", 5*time.Second),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSigningKey:  jwtSigningKey,
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		JWTAudience:    os.Getenv("JWT_AUDIENCE"),
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			PoolSize:       getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:   getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:    getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:    getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:   getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:            splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:              getEnv("KAFKA_TOPIC", "ledger.events"),
			GroupID:            getEnv("KAFKA_GROUP_ID", "ledger-audit-projection"),
			Partitions:         int32(getInt("KAFKA_PARTITIONS", 3)),
			ReplicationFactor:  int16(getInt("KAFKA_REPLICATION_FACTOR", 1)),
			OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
			OutboxBatchSize:    getInt("OUTBOX_BATCH_SIZE", 100),
		},
		Payment: PaymentConfig{
			URL:         os.Getenv("PAYMENT_AUTHORITY_URL"),
			Timeout:     getDuration("PAYMENT_TIMEOUT", 3*time.Second),
			MaxFailures: uint32(getInt("PAYMENT_BREAKER_MAX_FAILURES", 5)),
			OpenTimeout: getDuration("PAYMENT_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Audit: AuditConfig{
			AsyncBuffer: getInt("AUDIT_ASYNC_BUFFER", 0),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
