package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cron      CronConfig      `mapstructure:"cron"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Guardrail GuardrailConfig `mapstructure:"guardrails"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr  string   `mapstructure:"http_addr"`
	// WSOrigins are the origins allowed to open the event stream.
	WSOrigins []string `mapstructure:"ws_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig is optional: an empty DSN runs the engine without the archive.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// RedisConfig backs the rollback ledger; an empty Addr falls back to the in-memory store.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LedgerTTL time.Duration `mapstructure:"ledger_ttl"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ExpirySweep string `mapstructure:"expiry_sweep"`
	LearningDue string `mapstructure:"learning_due"`
	HistoryTrim string `mapstructure:"history_trim"`
}

type EngineConfig struct {
	Workers             int           `mapstructure:"workers"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	EmergencySpendFloor float64       `mapstructure:"emergency_spend_floor"`
	LearningDelay       time.Duration `mapstructure:"learning_delay"`
	DefaultRetryBudget  int           `mapstructure:"default_retry_budget"`
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	MaxHistory          int           `mapstructure:"max_history"`
	ArchiveRetention    time.Duration `mapstructure:"archive_retention"`
	AutoExecute         bool          `mapstructure:"auto_execute"`
}

type ApprovalConfig struct {
	BudgetChangePct    float64 `mapstructure:"budget_change_pct"`
	AutoExecConfidence float64 `mapstructure:"auto_exec_confidence"`
}

type GuardrailConfig struct {
	// File is an optional yaml policy merged over the built-in set.
	File  string          `mapstructure:"file"`
	Rules []GuardrailRule `mapstructure:"rules"`
}

type GuardrailRule struct {
	Name           string   `mapstructure:"name"`
	Description    string   `mapstructure:"description"`
	Threshold      float64  `mapstructure:"threshold"`
	Operator       string   `mapstructure:"operator"`
	RiskLevel      string   `mapstructure:"risk_level"`
	BlockExecution bool     `mapstructure:"block_execution"`
	AlertRequired  bool     `mapstructure:"alert_required"`
	Scope          []string `mapstructure:"scope"`
}

type PlatformsConfig struct {
	// Mode is dry_run or http.
	Mode      string            `mapstructure:"mode"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	APIKeyEnv string            `mapstructure:"api_key_env"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "autopilot:rollback:")
	v.SetDefault("redis.ledger_ttl", "720h")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.expiry_sweep", "@every 1m")
	v.SetDefault("cron.learning_due", "@every 1h")
	v.SetDefault("cron.history_trim", "@every 6h")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.poll_interval", "1s")
	v.SetDefault("engine.emergency_spend_floor", 500)
	v.SetDefault("engine.learning_delay", "168h")
	v.SetDefault("engine.default_retry_budget", 3)
	v.SetDefault("engine.default_timeout", "30s")
	v.SetDefault("engine.max_history", 10000)
	v.SetDefault("engine.archive_retention", "0s")
	v.SetDefault("engine.auto_execute", true)

	v.SetDefault("approval.budget_change_pct", 25)
	v.SetDefault("approval.auto_exec_confidence", 0.8)

	v.SetDefault("guardrails.file", "")

	// Dry run by default; http requires explicit endpoints.
	v.SetDefault("platforms.mode", "dry_run")
	v.SetDefault("platforms.timeout", "30s")
	v.SetDefault("platforms.api_key_env", "AP_PLATFORM_API_KEY")

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "autopilot")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
