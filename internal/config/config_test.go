package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsWithGateDisabled(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PAYMENT_GATE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("SessionTTL = %v, want %v", cfg.SessionTTL, 10*time.Minute)
	}
	if cfg.PaymentTimeout != 180*time.Second {
		t.Fatalf("PaymentTimeout = %v, want %v", cfg.PaymentTimeout, 180*time.Second)
	}
	if !cfg.SessionSingleUse {
		t.Fatalf("SessionSingleUse = false, want true")
	}
	if cfg.PaymentCurrency != "Spt" {
		t.Fatalf("PaymentCurrency = %q, want %q", cfg.PaymentCurrency, "Spt")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestLoadGateRequiresNotifierAndChannel(t *testing.T) {
	setCoreEnvEmpty(t)

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want missing PAYMENT_NOTIFIER_ID")
	}

	t.Setenv("PAYMENT_NOTIFIER_ID", "111")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want missing PAYOUT_CHANNEL_ID")
	}

	t.Setenv("PAYOUT_CHANNEL_ID", "222")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.PaymentGateEnabled {
		t.Fatalf("PaymentGateEnabled = false, want true")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_TTL":        "soon",
		"SESSION_SINGLE_USE": "maybe",
		"PAYOUT_QUEUE_SIZE":  "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv("PAYMENT_GATE_ENABLED", "false")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil, want error", key, value)
			}
		})
	}
}

func TestLoadSplitsAllowedOrigins(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PAYMENT_GATE_ENABLED", "false")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v, want two trimmed origins", cfg.AllowedOrigins)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOWED_ORIGINS",
		"STATIC_DIR",
		"DISCORD_TOKEN",
		"DISCORD_GUILD_ID",
		"SESSION_TTL",
		"SESSION_SINGLE_USE",
		"SESSION_BASE_URL",
		"SESSION_JANITOR_INTERVAL",
		"PAYMENT_GATE_ENABLED",
		"PAYMENT_TIMEOUT",
		"PAYMENT_NOTIFIER_ID",
		"PAYMENT_PAYEE_ID",
		"PAYMENT_CURRENCY",
		"PAYOUT_CHANNEL_ID",
		"PAYOUT_QUEUE_SIZE",
		"VOICEGUARD_CONFIG_PATH",
		"VOICEGUARD_ADMIN_ROLE_ID",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
