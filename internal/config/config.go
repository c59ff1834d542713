package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	BackendRedis = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Presence  PresenceConfig  `mapstructure:"presence" yaml:"presence"`
	Messaging MessagingConfig `mapstructure:"messaging" yaml:"messaging"`
	WS        WSConfig        `mapstructure:"ws" yaml:"ws"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
}

// LogConfig controls the zerolog output. Format is "console" or "json".
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// StoreConfig selects where users, friends and messages live.
// Users and friends always use SQLite.
type StoreConfig struct {
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	MessagesDriver string `mapstructure:"messages_driver" yaml:"messages_driver"`
	MongoURI       string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase  string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

type PresenceConfig struct {
	LastSeenBackend string        `mapstructure:"last_seen_backend" yaml:"last_seen_backend"`
	RedisURL        string        `mapstructure:"redis_url" yaml:"redis_url"`
	TypingTimeout   time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
}

type MessagingConfig struct {
	MaxTextLength  int           `mapstructure:"max_text_length" yaml:"max_text_length"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	FriendsOnly    bool          `mapstructure:"friends_only" yaml:"friends_only"`
}

type WSConfig struct {
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Log:               LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			DatabasePath:   "kinchat.db",
			MessagesDriver: DriverSQLite,
			MongoURI:       "mongodb://localhost:27017",
			MongoDatabase:  "kinchat",
		},
		Presence: PresenceConfig{
			LastSeenBackend: DriverSQLite,
			RedisURL:        "redis://localhost:6379/0",
			TypingTimeout:   3 * time.Second,
		},
		Messaging: MessagingConfig{
			MaxTextLength:  2000,
			PersistTimeout: 5 * time.Second,
		},
		WS: WSConfig{
			HandshakeTimeout:   10 * time.Second,
			PingInterval:       25 * time.Second,
			MaxMessageBytes:    64 * 1024,
			RateLimitPerMinute: 120,
		},
		JWT: JWTConfig{
			Secret:   "change-me-in-production",
			Issuer:   "kinchat",
			Audience: "kinchat-clients",
			TTL:      24 * time.Hour,
		},
		CORS: CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command-line overrides are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Store.DatabasePath != "" {
		c.Store.DatabasePath = other.Store.DatabasePath
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.MessagesDriver {
	case DriverSQLite:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.messages_driver %q", c.Store.MessagesDriver))
	}
	switch c.Presence.LastSeenBackend {
	case DriverSQLite:
	case BackendRedis:
		if c.Presence.RedisURL == "" {
			errs = append(errs, errors.New("presence.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown presence.last_seen_backend %q", c.Presence.LastSeenBackend))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret must not be empty"))
	}
	if c.WS.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("ws.max_message_bytes must be positive"))
	}
	return errors.Join(errs...)
}
