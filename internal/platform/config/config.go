package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	strutil "anonpoll/pkg/platform/strings"
)

// Config is the static process configuration, read once at start.
type Config struct {
	Server      Server      `yaml:"server"`
	Log         Log         `yaml:"log"`
	Postgres    Postgres    `yaml:"postgres"`
	Redis       RedisConfig `yaml:"redis"`
	Kafka       Kafka       `yaml:"kafka"`
	Attestation Attestation `yaml:"attestation"`
	Nonce       Nonce       `yaml:"nonce"`
	Disclosure  Disclosure  `yaml:"disclosure"`
	Vote        Vote        `yaml:"vote"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"`
	DevMode        bool     `yaml:"dev_mode"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds the shared atomic store settings. An empty URL selects
// the in-memory stores, which only suit single-instance development.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Kafka struct {
	Brokers        []string      `yaml:"brokers"`
	AuditTopic     string        `yaml:"audit_topic"`
	LifecycleTopic string        `yaml:"lifecycle_topic"`
	SecurityTopic  string        `yaml:"security_topic"`
	ConsumerGroup  string        `yaml:"consumer_group"`
	RelayInterval  time.Duration `yaml:"relay_interval"`
	RelayBatchSize int           `yaml:"relay_batch_size"`
}

type Attestation struct {
	SigningKey         string        `yaml:"signing_key"`
	Issuer             string        `yaml:"issuer"`
	PseudonymKey       string        `yaml:"pseudonym_key"`
	NullifierKey       string        `yaml:"nullifier_key"`
	CredentialLifetime time.Duration `yaml:"credential_lifetime"`
	VoteIntentLifetime time.Duration `yaml:"vote_intent_lifetime"`
	TimestampBucket    time.Duration `yaml:"timestamp_bucket"`
}

type Nonce struct {
	TTL time.Duration `yaml:"ttl"`
}

type Disclosure struct {
	KThreshold        int           `yaml:"k_threshold"`
	OverlapRecordTTL  time.Duration `yaml:"overlap_record_ttl"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	MinVisibleCohorts int           `yaml:"min_visible_cohorts"`
}

type Vote struct {
	StorageTimeout time.Duration `yaml:"storage_timeout"`
	CommitRetries  uint64        `yaml:"commit_retries"`
}

// Default returns development defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
		Postgres: Postgres{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Kafka: Kafka{
			AuditTopic:     "anonpoll.audit",
			LifecycleTopic: "anonpoll.poll-lifecycle",
			SecurityTopic:  "anonpoll.security-events",
			ConsumerGroup:  "anonpoll-disclosure",
			RelayInterval:  2 * time.Second,
			RelayBatchSize: 100,
		},
		Attestation: Attestation{
			Issuer:             "anonpoll",
			CredentialLifetime: 7 * 24 * time.Hour,
			VoteIntentLifetime: 5 * time.Minute,
			TimestampBucket:    time.Minute,
		},
		Nonce: Nonce{TTL: 120 * time.Second},
		Disclosure: Disclosure{
			KThreshold:        30,
			OverlapRecordTTL:  30 * 24 * time.Hour,
			QueryTimeout:      5 * time.Second,
			MinVisibleCohorts: 3,
		},
		Vote: Vote{
			StorageTimeout: 3 * time.Second,
			CommitRetries:  3,
		},
	}
}

// Load layers defaults, an optional YAML file and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("ANONPOLL_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Server.DevMode {
		applyDevKeys(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would weaken the privacy guarantees.
func (c Config) Validate() error {
	if c.Disclosure.KThreshold < 2 {
		return fmt.Errorf("disclosure.k_threshold must be at least 2, got %d", c.Disclosure.KThreshold)
	}
	if c.Disclosure.MinVisibleCohorts < 2 {
		return fmt.Errorf("disclosure.min_visible_cohorts must be at least 2")
	}
	if c.Attestation.SigningKey == "" || c.Attestation.PseudonymKey == "" || c.Attestation.NullifierKey == "" {
		return fmt.Errorf("attestation signing, pseudonym and nullifier keys are required")
	}
	if len(c.Attestation.SigningKey) < 32 {
		return fmt.Errorf("attestation.signing_key must be at least 32 bytes")
	}
	for name, d := range map[string]time.Duration{
		"attestation.credential_lifetime":  c.Attestation.CredentialLifetime,
		"attestation.vote_intent_lifetime": c.Attestation.VoteIntentLifetime,
		"attestation.timestamp_bucket":     c.Attestation.TimestampBucket,
		"nonce.ttl":                        c.Nonce.TTL,
		"vote.storage_timeout":             c.Vote.StorageTimeout,
		"disclosure.query_timeout":         c.Disclosure.QueryTimeout,
		"server.shutdown_timeout":          c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func applyDevKeys(cfg *Config) {
	if cfg.Attestation.SigningKey == "" {
		cfg.Attestation.SigningKey = "dev-signing-key-change-in-production-0000"
	}
	if cfg.Attestation.PseudonymKey == "" {
		cfg.Attestation.PseudonymKey = "dev-pseudonym-key"
	}
	if cfg.Attestation.NullifierKey == "" {
		cfg.Attestation.NullifierKey = "dev-nullifier-key"
	}
	if cfg.Server.AdminToken == "" {
		cfg.Server.AdminToken = "dev-admin-token"
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "ANONPOLL_ADDR")
	setString(&cfg.Server.AdminToken, "ANONPOLL_ADMIN_TOKEN")
	setList(&cfg.Server.AllowedOrigins, "ANONPOLL_ALLOWED_ORIGINS")
	setString(&cfg.Log.Level, "ANONPOLL_LOG_LEVEL")
	setString(&cfg.Log.Format, "ANONPOLL_LOG_FORMAT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&cfg.Attestation.SigningKey, "ATTESTATION_SIGNING_KEY")
	setString(&cfg.Attestation.PseudonymKey, "ATTESTATION_PSEUDONYM_KEY")
	setString(&cfg.Attestation.NullifierKey, "ATTESTATION_NULLIFIER_KEY")

	if v := os.Getenv("ANONPOLL_DEV_MODE"); v != "" {
		cfg.Server.DevMode = v == "true"
	}
	if v := os.Getenv("K_ANONYMITY_THRESHOLD"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("K_ANONYMITY_THRESHOLD: %w", err)
		}
		cfg.Disclosure.KThreshold = k
	}
	for env, dst := range map[string]*time.Duration{
		"CREDENTIAL_LIFETIME":  &cfg.Attestation.CredentialLifetime,
		"VOTE_INTENT_LIFETIME": &cfg.Attestation.VoteIntentLifetime,
		"NONCE_TTL":            &cfg.Nonce.TTL,
		"STORAGE_TIMEOUT":      &cfg.Vote.StorageTimeout,
	} {
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*dst = d
		}
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	*dst = strutil.SplitList(v)
}
