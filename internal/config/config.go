package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Aggregate  AggregateConfig  `mapstructure:"aggregate"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Log        LogConfig        `mapstructure:"log"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// DispatchConfig tunes the dispatch worker: poll cadence, claim batch size,
// per-send timeout, retry backoff and the stale-claim janitor.
type DispatchConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ClaimBatchSize  int           `mapstructure:"claim_batch_size"`
	Concurrency     int           `mapstructure:"concurrency"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	StaleClaimAfter time.Duration `mapstructure:"stale_claim_after"`
}

// AggregateConfig tunes the result aggregation worker. SettledWindow keeps
// recently completed/cancelled campaigns in the pass so late provider
// callbacks still update their results.
type AggregateConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SettledWindow time.Duration `mapstructure:"settled_window"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Channel   string        `mapstructure:"channel"` // email | sms | push
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	APIKey    string        `mapstructure:"api_key"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CAMPENG_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CAMPENG_*)
	v.SetEnvPrefix("CAMPENG")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
