package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the slot bot service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string
	StaticDir        string

	DiscordToken   string
	DiscordGuildID string

	SessionTTL       time.Duration
	SessionSingleUse bool
	SessionBaseURL   string
	JanitorInterval  time.Duration

	PaymentGateEnabled bool
	PaymentTimeout     time.Duration
	PaymentNotifierID  string
	PaymentPayeeID     string
	PaymentCurrency    string

	PayoutChannelID string
	PayoutQueueSize int

	VoiceGuardConfigPath  string
	VoiceGuardAdminRoleID string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "slotbot"),
		AllowedOrigins:   splitList(envOrDefault("APP_ALLOWED_ORIGINS", "*")),
		StaticDir:        stringsTrimSpace("STATIC_DIR"),
		DiscordToken:     stringsTrimSpace("DISCORD_TOKEN"),
		DiscordGuildID:   stringsTrimSpace("DISCORD_GUILD_ID"),
		SessionSingleUse: true,
		// The web client reads ?session=<token> from this page.
		SessionBaseURL:        envOrDefault("SESSION_BASE_URL", "https://slot-production-be36.up.railway.app/"),
		PaymentGateEnabled:    true,
		PaymentNotifierID:     stringsTrimSpace("PAYMENT_NOTIFIER_ID"),
		PaymentPayeeID:        stringsTrimSpace("PAYMENT_PAYEE_ID"),
		PaymentCurrency:       envOrDefault("PAYMENT_CURRENCY", "Spt"),
		PayoutChannelID:       stringsTrimSpace("PAYOUT_CHANNEL_ID"),
		PayoutQueueSize:       64,
		VoiceGuardConfigPath:  envOrDefault("VOICEGUARD_CONFIG_PATH", "voiceguard.json"),
		VoiceGuardAdminRoleID: stringsTrimSpace("VOICEGUARD_ADMIN_ROLE_ID"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		SessionTTL:            10 * time.Minute,
		JanitorInterval:       time.Minute,
		PaymentTimeout:        180 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("SESSION_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PaymentTimeout, err = durationFromEnv("PAYMENT_TIMEOUT", cfg.PaymentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionSingleUse, err = boolFromEnv("SESSION_SINGLE_USE", cfg.SessionSingleUse)
	if err != nil {
		return Config{}, err
	}
	cfg.PaymentGateEnabled, err = boolFromEnv("PAYMENT_GATE_ENABLED", cfg.PaymentGateEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.PayoutQueueSize, err = intFromEnv("PAYOUT_QUEUE_SIZE", cfg.PayoutQueueSize)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is called by Load and again
// after command-line overrides are applied.
func (c Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if c.PayoutQueueSize <= 0 {
		return fmt.Errorf("PAYOUT_QUEUE_SIZE must be positive")
	}
	if strings.TrimSpace(c.PaymentCurrency) == "" {
		return fmt.Errorf("PAYMENT_CURRENCY must not be empty")
	}
	if strings.TrimSpace(c.VoiceGuardConfigPath) == "" {
		return fmt.Errorf("VOICEGUARD_CONFIG_PATH must not be empty")
	}
	if c.PaymentGateEnabled {
		if c.PaymentNotifierID == "" {
			return fmt.Errorf("PAYMENT_NOTIFIER_ID is required when PAYMENT_GATE_ENABLED is set")
		}
		if c.PayoutChannelID == "" {
			return fmt.Errorf("PAYOUT_CHANNEL_ID is required when PAYMENT_GATE_ENABLED is set")
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
