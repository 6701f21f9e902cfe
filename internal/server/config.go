package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

// RateLimitConfig defines the parameters for per-session record rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	DrawAddr        string
	ChatAddr        string
	AuthAddr        string
	HTTPAddr        string
	SaveDir         string
	CredentialsFile string
	AllowedOrigins  []string
	MaxRecordSize   int
	RateLimit       RateLimitConfig
	DrawRateLimit   RateLimitConfig
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	SendQueueSize   int
	DrawHandshake   bool
	ChatHandshake   bool
	AnnounceJoins   bool
	ShutdownTimeout time.Duration
	LogLevel        string
}

const (
	defaultDrawAddr        = ":7777"
	defaultChatAddr        = ":1111"
	defaultAuthAddr        = ":8888"
	defaultHTTPAddr        = ":8080"
	defaultSaveDir         = "canvases"
	defaultCredentialsFile = "users.db"
	defaultBurst           = 120
	defaultDrawBurst       = 2000
	defaultWriteTimeout    = 10 * time.Second
	defaultSendQueueSize   = 256
	defaultShutdownTimeout = 5 * time.Second
)

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		DrawAddr:        defaultDrawAddr,
		ChatAddr:        defaultChatAddr,
		AuthAddr:        defaultAuthAddr,
		HTTPAddr:        defaultHTTPAddr,
		SaveDir:         defaultSaveDir,
		CredentialsFile: defaultCredentialsFile,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxRecordSize: protocol.DefaultMaxRecordSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		DrawRateLimit: RateLimitConfig{
			Burst:          defaultDrawBurst,
			RefillInterval: time.Second,
		},
		WriteTimeout:    defaultWriteTimeout,
		SendQueueSize:   defaultSendQueueSize,
		DrawHandshake:   true,
		ChatHandshake:   true,
		AnnounceJoins:   true,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// Normalize replaces invalid or missing values with their defaults and
// cleans the origin list. It returns the normalized copy.
func (cfg Config) Normalize() Config {
	def := DefaultConfig()

	if cfg.DrawAddr == "" {
		cfg.DrawAddr = def.DrawAddr
	}
	if cfg.ChatAddr == "" {
		cfg.ChatAddr = def.ChatAddr
	}
	if cfg.AuthAddr == "" {
		cfg.AuthAddr = def.AuthAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = def.HTTPAddr
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = def.SaveDir
	}
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = def.CredentialsFile
	}

	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = def.MaxRecordSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.DrawRateLimit.Burst <= 0 {
		cfg.DrawRateLimit.Burst = def.DrawRateLimit.Burst
	}
	if cfg.DrawRateLimit.RefillInterval <= 0 {
		cfg.DrawRateLimit.RefillInterval = def.DrawRateLimit.RefillInterval
	}

	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	origins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	if allowAll {
		origins = append(origins, "*")
	}
	cfg.AllowedOrigins = origins

	return cfg
}

// Session returns the per-connection settings for one channel.
func (cfg Config) Session(handshake bool) SessionConfig {
	return SessionConfig{
		Handshake:     handshake,
		MaxRecordSize: cfg.MaxRecordSize,
		RateLimit:     cfg.RateLimit,
		IdleTimeout:   cfg.IdleTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		SendQueueSize: cfg.SendQueueSize,
	}
}

// DrawSession returns the draw channel settings. Pen strokes stream one
// record per pointer sample, so the draw channel meters with its own,
// larger bucket.
func (cfg Config) DrawSession() SessionConfig {
	sc := cfg.Session(cfg.DrawHandshake)
	sc.RateLimit = cfg.DrawRateLimit
	return sc
}

// NewConfigFromEnv creates a Config from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() Config {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) Config {
	cfg := DefaultConfig()

	stringVars := map[string]*string{
		"DRAW_ADDR":        &cfg.DrawAddr,
		"CHAT_ADDR":        &cfg.ChatAddr,
		"AUTH_ADDR":        &cfg.AuthAddr,
		"HTTP_ADDR":        &cfg.HTTPAddr,
		"SAVE_DIR":         &cfg.SaveDir,
		"CREDENTIALS_FILE": &cfg.CredentialsFile,
		"LOG_LEVEL":        &cfg.LogLevel,
	}
	for key, dst := range stringVars {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if v := getenv("MAX_RECORD_SIZE"); v != "" {
		cfg.MaxRecordSize = parseIntValue(v, cfg.MaxRecordSize)
	}

	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}

	if v := getenv("RATE_LIMIT_REFILL_INTERVAL"); v != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(v, cfg.RateLimit.RefillInterval)
	}

	if v := getenv("DRAW_RATE_LIMIT_BURST"); v != "" {
		cfg.DrawRateLimit.Burst = parseIntValue(v, cfg.DrawRateLimit.Burst)
	}

	if v := getenv("DRAW_RATE_LIMIT_REFILL_INTERVAL"); v != "" {
		cfg.DrawRateLimit.RefillInterval = parseSeconds(v, cfg.DrawRateLimit.RefillInterval)
	}

	if v := getenv("IDLE_TIMEOUT"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			cfg.IdleTimeout = time.Duration(seconds) * time.Second
		}
	}

	if v := getenv("WRITE_TIMEOUT"); v != "" {
		cfg.WriteTimeout = parseSeconds(v, cfg.WriteTimeout)
	}

	if v := getenv("SEND_QUEUE_SIZE"); v != "" {
		cfg.SendQueueSize = parseIntValue(v, cfg.SendQueueSize)
	}

	if v := getenv("SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = parseSeconds(v, cfg.ShutdownTimeout)
	}

	cfg.DrawHandshake = parseBool(getenv("DRAW_HANDSHAKE"), cfg.DrawHandshake)
	cfg.ChatHandshake = parseBool(getenv("CHAT_HANDSHAKE"), cfg.ChatHandshake)
	cfg.AnnounceJoins = parseBool(getenv("ANNOUNCE_JOINS"), cfg.AnnounceJoins)

	return cfg.Normalize()
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}
