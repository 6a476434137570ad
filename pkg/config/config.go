// Package config loads the server configuration from environment variables,
// an optional .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

// Config groups the application configuration.
type Config struct {
	App     AppConfig
	Log     LogConfig
	HTTP    HTTPConfig
	Engine  EngineConfig
	Tenants TenantsConfig
	Redis   RedisConfig
	Lock    LockConfig
	Journal JournalConfig
	Metrics MetricsConfig
	Admin   AdminConfig

	// Kinds is the descriptor table with config overrides applied.
	Kinds *dockind.Table
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, production
	Name     string
	Version  string
	Timezone string
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Location returns the time zone used for default document dates.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level string
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfig lists the storage engines. An engine with an empty DSN is not registered.
type EngineConfig struct {
	Active   engine.Name
	Postgres PostgresConfig
	Supabase SupabaseConfig
	MySQL    MySQLConfig
}

// PostgresConfig configures the SQL engine.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// SupabaseConfig configures the RPC engine.
type SupabaseConfig struct {
	DSN           string
	MaxConns      int32
	RoutineSchema string
	ExecRole      string
	Claims        map[string]any
}

// MySQLConfig configures the procedure engine.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// TenantsConfig selects the tenant registry: the meta database when
// MetaDSN is set, the static list otherwise.
type TenantsConfig struct {
	MetaDSN  string
	Static   []string
	CacheTTL time.Duration
	Listen   bool
}

// RedisConfig configures the shared cache and lock client. Empty Addr disables Redis.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TenantTTL time.Duration
}

// LockConfig configures the degraded-mode creation lock.
type LockConfig struct {
	Enabled bool
	TTL     time.Duration
	Wait    time.Duration
	Retries int
}

// JournalConfig configures the reconciliation journal (meta database).
type JournalConfig struct {
	Enabled           bool
	CompressThreshold int
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// AdminConfig guards the admin endpoints.
type AdminConfig struct {
	Token string
}

// Load reads configuration. Environment variables take precedence over
// config.yaml; keys map to env names with dots replaced by underscores
// (engine.postgres.dsn -> ENGINE_POSTGRES_DSN). configFile may be empty.
func Load(configFile string) (*Config, error) {
	// Missing .env is fine; the environment is used as is.
	_ = godotenv.Load()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	active, err := engine.ParseName(getString(v, "engine.active", string(engine.Postgres)))
	if err != nil {
		return nil, fmt.Errorf("engine.active: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "app.env", "development"),
			Name:     getString(v, "app.name", "docengine"),
			Version:  getString(v, "app.version", "0.1.0"),
			Timezone: getString(v, "app.timezone", ""),
		},
		Log: LogConfig{
			Level: getString(v, "log.level", "info"),
		},
		HTTP: HTTPConfig{
			Host:            getString(v, "http.host", "0.0.0.0"),
			Port:            getInt(v, "http.port", 8080),
			ReadTimeout:     getDuration(v, "http.read_timeout", 15*time.Second),
			WriteTimeout:    getDuration(v, "http.write_timeout", 30*time.Second),
			ShutdownTimeout: getDuration(v, "http.shutdown_timeout", 30*time.Second),
		},
		Engine: EngineConfig{
			Active: active,
			Postgres: PostgresConfig{
				DSN:      getString(v, "engine.postgres.dsn", ""),
				MaxConns: int32(getInt(v, "engine.postgres.max_conns", 20)),
				MinConns: int32(getInt(v, "engine.postgres.min_conns", 2)),
			},
			Supabase: SupabaseConfig{
				DSN:           getString(v, "engine.supabase.dsn", ""),
				MaxConns:      int32(getInt(v, "engine.supabase.max_conns", 10)),
				RoutineSchema: getString(v, "engine.supabase.routine_schema", "public"),
				ExecRole:      getString(v, "engine.supabase.exec_role", "service_role"),
				Claims:        v.GetStringMap("engine.supabase.claims"),
			},
			MySQL: MySQLConfig{
				DSN:             getString(v, "engine.mysql.dsn", ""),
				MaxOpenConns:    getInt(v, "engine.mysql.max_open_conns", 20),
				MaxIdleConns:    getInt(v, "engine.mysql.max_idle_conns", 5),
				ConnMaxLifetime: getDuration(v, "engine.mysql.conn_max_lifetime", 30*time.Minute),
			},
		},
		Tenants: TenantsConfig{
			MetaDSN:  getString(v, "tenants.meta_dsn", ""),
			Static:   getStringSlice(v, "tenants.static"),
			CacheTTL: getDuration(v, "tenants.cache_ttl", 5*time.Minute),
			Listen:   getBool(v, "tenants.listen", true),
		},
		Redis: RedisConfig{
			Addr:      getString(v, "redis.addr", ""),
			Password:  getString(v, "redis.password", ""),
			DB:        getInt(v, "redis.db", 0),
			TenantTTL: getDuration(v, "redis.tenant_ttl", 10*time.Minute),
		},
		Lock: LockConfig{
			Enabled: getBool(v, "lock.enabled", false),
			TTL:     getDuration(v, "lock.ttl", 30*time.Second),
			Wait:    getDuration(v, "lock.wait", 100*time.Millisecond),
			Retries: getInt(v, "lock.retries", 50),
		},
		Journal: JournalConfig{
			Enabled:           getBool(v, "journal.enabled", true),
			CompressThreshold: getInt(v, "journal.compress_threshold", 4096),
		},
		Metrics: MetricsConfig{
			Enabled: getBool(v, "metrics.enabled", true),
		},
		Admin: AdminConfig{
			Token: getString(v, "admin.token", ""),
		},
	}

	kinds, err := loadKinds(v)
	if err != nil {
		return nil, err
	}
	cfg.Kinds = kinds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.dsn(c.Engine.Active) == "" {
		return fmt.Errorf("engine.active is %s but no DSN is configured for it", c.Engine.Active)
	}
	if c.Tenants.MetaDSN == "" && len(c.Tenants.Static) == 0 {
		return errors.New("either tenants.meta_dsn or tenants.static must be set")
	}
	if c.Lock.Enabled && c.Redis.Addr == "" {
		return errors.New("lock.enabled requires redis.addr")
	}
	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	return nil
}

func (c *Config) dsn(name engine.Name) string {
	switch name {
	case engine.Postgres:
		return c.Engine.Postgres.DSN
	case engine.Supabase:
		return c.Engine.Supabase.DSN
	case engine.MySQL:
		return c.Engine.MySQL.DSN
	}
	return ""
}

// loadKinds applies the kinds.<kind>.* overrides to the built-in table.
func loadKinds(v *viper.Viper) (*dockind.Table, error) {
	table := dockind.DefaultTable()
	raw := v.GetStringMap("kinds")
	if len(raw) == 0 {
		return table, nil
	}
	overrides, err := dockind.DecodeOverrides(raw)
	if err != nil {
		return nil, fmt.Errorf("kinds: %w", err)
	}
	return table.WithOverrides(overrides)
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		if d := v.GetDuration(key); d > 0 {
			return d
		}
	}
	return def
}

// getStringSlice accepts a YAML list or a comma separated env value.
func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	default:
		parts = v.GetStringSlice(key)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
