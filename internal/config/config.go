package config

import (
	"fmt"
	"sync"
	"time"

	"botops-console/internal/util"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once from the environment
type Config struct {
	Environment string

	Server        ServerConfig
	Auth          AuthConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Notify        NotifyConfig
	Remote        RemoteConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

// AuthConfig carries the two-phase login knobs. Defaults match the values
// the dashboard shipped with: 3 attempts, 15m lockout, 5m codes, 24h sessions.
type AuthConfig struct {
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	ThrottleRetention time.Duration
	CodeTTL          time.Duration
	CodeMaxGuesses   int
	SessionTTL       time.Duration
	SweepInterval    time.Duration

	// TrustedMode skips real notification dispatch and always allows
	// TrustedAddresses through per-user IP checks. Never enable in production.
	TrustedMode      bool
	TrustedAddresses []string

	AdminEmail    string
	AdminName     string
	AdminPassword string

	CookieName string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL       string
	Username  string
	Password  string
	LeadIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type NotifyConfig struct {
	WebhookURL string
	Channel    string
	Timeout    time.Duration
}

// RemoteConfig points at the tunnel proxy in front of the bot host's
// process manager.
type RemoteConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	loadedConfig *Config
	loadOnce     sync.Once
)

// LoadConfig loads configuration from the environment (and .env in development)
func LoadConfig() *Config {
	loadOnce.Do(func() {
		_ = godotenv.Load()

		loadedConfig = &Config{
			Environment: util.GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         util.GetEnv("SERVER_HOST", "0.0.0.0"),
				Port:         util.GetEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
				TLSPort:      util.GetEnvInt("SERVER_TLS_PORT", 8443),
				AutoCert:     util.GetEnvBool("SERVER_AUTO_CERT", false),
				Domain:       util.GetEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  util.GetEnv("SERVER_AUTOCERT_DIR", "./certs"),
				Email:        util.GetEnv("SERVER_ACME_EMAIL", ""),
			},
			Auth: AuthConfig{
				MaxLoginAttempts:  util.GetEnvInt("AUTH_MAX_LOGIN_ATTEMPTS", 3),
				LockoutWindow:     util.GetEnvDuration("AUTH_LOCKOUT_WINDOW", 15*time.Minute),
				ThrottleRetention: util.GetEnvDuration("AUTH_THROTTLE_RETENTION", time.Hour),
				CodeTTL:           util.GetEnvDuration("AUTH_CODE_TTL", 5*time.Minute),
				CodeMaxGuesses:    util.GetEnvInt("AUTH_CODE_MAX_GUESSES", 5),
				SessionTTL:        util.GetEnvDuration("AUTH_SESSION_TTL", 24*time.Hour),
				SweepInterval:     util.GetEnvDuration("AUTH_SWEEP_INTERVAL", 5*time.Minute),
				TrustedMode:       util.GetEnvBool("AUTH_TRUSTED_MODE", false),
				TrustedAddresses:  util.GetEnvList("AUTH_TRUSTED_ADDRESSES", []string{"127.0.0.1", "::1"}),
				AdminEmail:        util.GetEnv("AUTH_ADMIN_EMAIL", "admin@localhost"),
				AdminName:         util.GetEnv("AUTH_ADMIN_NAME", "Administrator"),
				AdminPassword:     util.GetEnv("AUTH_ADMIN_PASSWORD", ""),
				CookieName:        util.GetEnv("AUTH_COOKIE_NAME", "botops_session"),
			},
			Redis: RedisConfig{
				URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD", ""),
				DB:       util.GetEnvInt("REDIS_DB", 0),
				PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    util.GetEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
				Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "botops"),
				Username: util.GetEnv("SCYLLA_USERNAME", ""),
				Password: util.GetEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:     util.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
				EventsTopic: util.GetEnv("KAFKA_EVENTS_TOPIC", "security-events"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      util.GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: util.GetEnv("CLICKHOUSE_DATABASE", "botops"),
				Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:       util.GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:  util.GetEnv("ELASTICSEARCH_USERNAME", ""),
				Password:  util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
				LeadIndex: util.GetEnv("ELASTICSEARCH_LEAD_INDEX", "leads"),
			},
			KMS: KMSConfig{
				Enabled: util.GetEnvBool("KMS_ENABLED", false),
				KeyID:   util.GetEnv("KMS_KEY_ID", ""),
				Region:  util.GetEnv("KMS_REGION", "us-east-1"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:  util.GetEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:    util.GetEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism: util.GetEnvInt("ARGON2_PARALLELISM", 2),
			},
			Notify: NotifyConfig{
				WebhookURL: util.GetEnv("NOTIFY_WEBHOOK_URL", ""),
				Channel:    util.GetEnv("NOTIFY_CHANNEL", "#botops"),
				Timeout:    util.GetEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
			},
			Remote: RemoteConfig{
				BaseURL:   util.GetEnv("REMOTE_BASE_URL", "http://localhost:7070"),
				AuthToken: util.GetEnv("REMOTE_AUTH_TOKEN", ""),
				Timeout:   util.GetEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
			},
			Logging: LoggingConfig{
				Level:  util.GetEnv("LOG_LEVEL", "info"),
				Format: util.GetEnv("LOG_FORMAT", "json"),
			},
		}
	})

	return loadedConfig
}

// Get returns the loaded config, loading it on first use
func Get() *Config {
	return LoadConfig()
}

// GetServerAddress returns the host:port the HTTP server binds to
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
