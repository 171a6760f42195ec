package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// Attachments
	MediaDir           string `mapstructure:"media_dir" yaml:"media_dir"`
	MaxAttachments     int    `mapstructure:"max_attachments" yaml:"max_attachments"`
	MaxAttachmentBytes int64  `mapstructure:"max_attachment_bytes" yaml:"max_attachment_bytes"`

	// Websocket
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WSRateLimit     int           `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
	WSPingInterval  time.Duration `mapstructure:"ws_ping_interval" yaml:"ws_ping_interval"`

	// Optional integrations, disabled when empty.
	RedisAddr        string   `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPresenceKey string   `mapstructure:"redis_presence_key" yaml:"redis_presence_key"`
	KafkaBrokers     []string `mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic       string   `mapstructure:"kafka_topic" yaml:"kafka_topic"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "socialchat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "socialchat",
		JWTAudience:        "socialchat",
		JWTTTL:             24 * time.Hour,
		MediaDir:           "media",
		MaxAttachments:     4,
		MaxAttachmentBytes: 10 << 20,
		MaxMessageBytes:    64 << 10,
		WSRateLimit:        120,
		WSPingInterval:     30 * time.Second,
		RedisPresenceKey:   "socialchat:presence",
		KafkaTopic:         "socialchat.messages",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MediaDir != "" {
		c.MediaDir = other.MediaDir
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if len(other.KafkaBrokers) > 0 {
		c.KafkaBrokers = other.KafkaBrokers
	}
}
