package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds quest engine configuration settings.
type EngineConfig struct {
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Saver       SaverConfig       `yaml:"saver"`
	Content     ContentConfig     `yaml:"content"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Bridge      BridgeConfig      `yaml:"bridge"`
}

// DispatchConfig controls how matched rules are fired.
type DispatchConfig struct {
	// Strict stops dispatch after the first rule that fires.
	// When false every matching rule fires in registration order.
	Strict bool `yaml:"strict"`

	// MailboxSize is the per-player event queue length.
	MailboxSize int `yaml:"mailbox_size"`

	// IdleSeconds is how long a player session stays resident with no events.
	// 0 keeps sessions until shutdown.
	IdleSeconds int `yaml:"idle_seconds"`
}

// PersistenceConfig selects and configures the quest record store.
type PersistenceConfig struct {
	// Driver is one of "memory", "sqlite", "postgres" or "redis".
	Driver string `yaml:"driver"`

	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Redis      RedisConfig    `yaml:"redis"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds redis connection settings shared by the store and the bridge.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SaverConfig tunes the asynchronous save queue.
type SaverConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
}

// ContentConfig points at quest and NPC content.
type ContentConfig struct {
	Dir string `yaml:"dir"`

	// ReloadSeconds is the polling interval for hot reload. 0 disables it.
	ReloadSeconds int `yaml:"reload_seconds"`
}

// GatewayConfig holds WebSocket ingestion settings.
type GatewayConfig struct {
	Addr string `yaml:"addr"`

	// AllowedOrigins is a list of origins allowed to connect.
	// Empty list enforces same-origin policy. "*" allows all origins.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum inbound message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// TokenHash is a bcrypt hash of the shared token world servers present.
	// Empty disables authentication.
	TokenHash string `yaml:"token_hash"`

	// MaxPerIP is the maximum concurrent connections from one address. 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent connections. 0 means unlimited.
	MaxTotal int `yaml:"max_total"`

	// Failed token checks from one address before it is locked out.
	MaxAuthFailures   int `yaml:"max_auth_failures"`
	LockoutSeconds    int `yaml:"lockout_seconds"`
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`

	// Events one connection may send per window before it is throttled. 0 disables throttling.
	MaxEvents          int `yaml:"max_events"`
	EventWindowSeconds int `yaml:"event_window_seconds"`
}

// BridgeConfig enables the redis pub/sub event feed.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// DefaultConfig returns an EngineConfig suitable for a single local server.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Dispatch: DispatchConfig{
			Strict:      false,
			MailboxSize: 64,
		},
		Persistence: PersistenceConfig{
			Driver:     "sqlite",
			SQLitePath: "data/quests.db",
			Postgres: PostgresConfig{
				Host:                   "localhost",
				Port:                   5432,
				SSLMode:                "disable",
				MaxOpenConns:           25,
				MaxIdleConns:           5,
				ConnMaxLifetimeSeconds: 300,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "quest",
			},
		},
		Saver: SaverConfig{
			Workers:        4,
			QueueSize:      1024,
			MaxRetries:     3,
			RetryBackoffMS: 200,
		},
		Content: ContentConfig{
			Dir: "data/content",
		},
		Gateway: GatewayConfig{
			Addr:               ":4480",
			AllowedOrigins:     []string{},
			MaxMessageSize:     4096,
			MaxPerIP:           8,
			MaxTotal:           256,
			MaxAuthFailures:    5,
			LockoutSeconds:     30,
			MaxLockoutSeconds:  300,
			MaxEvents:          500,
			EventWindowSeconds: 1,
		},
		Bridge: BridgeConfig{
			Channel: "world-events",
		},
	}
}

// LoadConfig loads engine configuration from a YAML file.
// If the file doesn't exist, returns default config.
func LoadConfig(path string) (*EngineConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), err
	}

	if err := config.Validate(); err != nil {
		return DefaultConfig(), err
	}

	return config, nil
}

// Validate rejects settings the engine cannot start with.
func (c *EngineConfig) Validate() error {
	switch c.Persistence.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown persistence driver %q", c.Persistence.Driver)
	}
	if c.Dispatch.MailboxSize <= 0 {
		return fmt.Errorf("dispatch.mailbox_size must be positive, got %d", c.Dispatch.MailboxSize)
	}
	if c.Saver.Workers <= 0 {
		return fmt.Errorf("saver.workers must be positive, got %d", c.Saver.Workers)
	}
	return nil
}

// IdleTimeout returns the session idle timeout, zero when disabled.
func (c *DispatchConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleSeconds) * time.Second
}

// RetryBackoff returns the base delay between save retries.
func (c *SaverConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// ReloadInterval returns the content polling interval, zero when disabled.
func (c *ContentConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadSeconds) * time.Second
}

// ConnMaxLifetime returns the pooled connection lifetime.
func (c *PostgresConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// DSN builds a lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *GatewayConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // non-browser clients send no Origin header
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
