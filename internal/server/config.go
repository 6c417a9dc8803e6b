// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-session message rate
// limiting. A zero Burst turns limiting off. Otherwise a session that runs
// out of tokens is polled again only once its next token is due.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration. The zero value is not usable; start
// from NewConfig or NewConfigFromEnv.
type Config struct {
	Host       string
	Port       int
	MaxClients int

	// IdlePoll is the longest a worker waits after a NOP before polling the
	// client again. Mailbox arrivals cut the wait short.
	IdlePoll     time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxMessageSize int
	MailboxLimit   int
	DefaultAlias   string
	MaxAliasLength int
	Echo           bool

	HTTPAddr       string
	AllowedOrigins []string
	RateLimit      RateLimitConfig
}

const (
	defaultHost           = "localhost"
	defaultPort           = 8765
	defaultMaxClients     = 5
	defaultIdlePoll       = 100 * time.Millisecond
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 1024
	defaultMailboxLimit   = 256
	defaultAlias          = "anonymous"
	defaultMaxAliasLength = 32
	defaultHTTPAddr       = ":8080"
)

func defaultConfig() Config {
	return Config{
		Host:           defaultHost,
		Port:           defaultPort,
		MaxClients:     defaultMaxClients,
		IdlePoll:       defaultIdlePoll,
		ReadTimeout:    defaultReadTimeout,
		WriteTimeout:   defaultWriteTimeout,
		MaxMessageSize: defaultMaxMessageSize,
		MailboxLimit:   defaultMailboxLimit,
		DefaultAlias:   defaultAlias,
		MaxAliasLength: defaultMaxAliasLength,
		HTTPAddr:       defaultHTTPAddr,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
	}
}

// withDefaults replaces unusable values with defaults. HTTPAddr is left
// alone so that an empty value can disable the HTTP surface.
func (cfg Config) withDefaults() Config {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = defaultIdlePoll
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.MailboxLimit <= 0 {
		cfg.MailboxLimit = defaultMailboxLimit
	}
	if strings.TrimSpace(cfg.DefaultAlias) == "" {
		cfg.DefaultAlias = defaultAlias
	}
	if cfg.MaxAliasLength <= 0 {
		cfg.MaxAliasLength = defaultMaxAliasLength
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Addr returns the TCP listen address built from Host and Port.
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// maxLineSize is the longest command line accepted from a peer: the largest
// payload plus a command prefix and a destination id.
func (cfg Config) maxLineSize() int {
	return cfg.MaxMessageSize + 32
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if host := os.Getenv("RELAY_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("RELAY_PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}
	if n := os.Getenv("RELAY_MAX_CLIENTS"); n != "" {
		cfg.MaxClients = parseIntValue(n, cfg.MaxClients)
	}
	if d := os.Getenv("RELAY_IDLE_POLL"); d != "" {
		cfg.IdlePoll = parseDuration(d, cfg.IdlePoll)
	}
	if d := os.Getenv("RELAY_READ_TIMEOUT"); d != "" {
		cfg.ReadTimeout = parseDuration(d, cfg.ReadTimeout)
	}
	if d := os.Getenv("RELAY_WRITE_TIMEOUT"); d != "" {
		cfg.WriteTimeout = parseDuration(d, cfg.WriteTimeout)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseIntValue(maxSize, cfg.MaxMessageSize)
	}
	if n := os.Getenv("RELAY_MAILBOX_LIMIT"); n != "" {
		cfg.MailboxLimit = parseIntValue(n, cfg.MailboxLimit)
	}
	if alias := os.Getenv("RELAY_DEFAULT_ALIAS"); alias != "" {
		cfg.DefaultAlias = alias
	}
	if n := os.Getenv("RELAY_MAX_ALIAS_LENGTH"); n != "" {
		cfg.MaxAliasLength = parseIntValue(n, cfg.MaxAliasLength)
	}
	if echo := os.Getenv("RELAY_ECHO"); echo != "" {
		if v, err := strconv.ParseBool(echo); err == nil {
			cfg.Echo = v
		}
	}
	if addr, ok := os.LookupEnv("RELAY_HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && port >= 0 && port <= 65535 {
		return port
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// parseRefillInterval accepts either whole seconds ("2") or a Go duration ("500ms").
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return parseDuration(value, defaultValue)
}
