package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/slotbot/internal/config"
	"github.com/ent0n29/slotbot/internal/payout"
	"github.com/ent0n29/slotbot/internal/session"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:     fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		AllowedOrigins:       []string{"*"},
		DiscordToken:         "test-token",
		SessionTTL:           time.Minute,
		SessionSingleUse:     true,
		JanitorInterval:      time.Second,
		PaymentCurrency:      "Spt",
		PaymentTimeout:       time.Second,
		PayoutQueueSize:      4,
		VoiceGuardConfigPath: filepath.Join(t.TempDir(), "voiceguard.json"),
	}
}

func TestBuildUngated(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() {
		if err := res.Cleanup(); err != nil {
			t.Errorf("Cleanup() error = %v", err)
		}
	})

	if res.Correlator != nil {
		t.Fatalf("Correlator != nil with payment gate disabled")
	}
	if res.Sessions.Policy() != session.PolicySingleUse {
		t.Fatalf("Policy() = %v, want %v", res.Sessions.Policy(), session.PolicySingleUse)
	}
	if _, err := os.Stat(cfg.VoiceGuardConfigPath); err != nil {
		t.Fatalf("voice guard config not persisted: %v", err)
	}

	rec := httptest.NewRecorder()
	res.API.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d, want %d", rec.Code, http.StatusOK)
	}
	rec = httptest.NewRecorder()
	res.API.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz before Start = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestBuildGatedWiresCorrelator(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionSingleUse = false
	cfg.PaymentGateEnabled = true
	cfg.PaymentNotifierID = "111"
	cfg.PaymentPayeeID = "222"
	cfg.PayoutChannelID = "333"

	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Correlator == nil {
		t.Fatalf("Correlator = nil with payment gate enabled")
	}
	if got := res.Correlator.PayeeID(); got != "222" {
		t.Fatalf("PayeeID() = %q, want %q", got, "222")
	}
	if res.Sessions.Policy() != session.PolicyReusable {
		t.Fatalf("Policy() = %v, want %v", res.Sessions.Policy(), session.PolicyReusable)
	}
}

func TestBuildRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.DiscordToken = ""
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil, want missing token error")
	}
}

func TestBuildRejectsBrokenVoiceGuardConfig(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.VoiceGuardConfigPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil, want config parse error")
	}
}

func TestStopClosesIntakeAndWaitsForDispatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.PayoutChannelID = "333"
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res.wg.Add(1)
	go func() {
		defer res.wg.Done()
		_ = res.Payouts.Run(runCtx)
	}()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := res.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := res.Payouts.Submit(payout.Request{OwnerID: "u1", Amount: 1}); !errors.Is(err, payout.ErrUnavailable) {
		t.Fatalf("Submit() after Stop error = %v, want %v", err, payout.ErrUnavailable)
	}
}
