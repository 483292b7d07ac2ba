package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ent0n29/slotbot/internal/audit"
	"github.com/ent0n29/slotbot/internal/bot"
	"github.com/ent0n29/slotbot/internal/chat"
	"github.com/ent0n29/slotbot/internal/config"
	"github.com/ent0n29/slotbot/internal/discord"
	"github.com/ent0n29/slotbot/internal/httpapi"
	"github.com/ent0n29/slotbot/internal/observability"
	"github.com/ent0n29/slotbot/internal/payment"
	"github.com/ent0n29/slotbot/internal/payout"
	"github.com/ent0n29/slotbot/internal/session"
	"github.com/ent0n29/slotbot/internal/voiceguard"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Sessions   *session.Store
	Correlator *payment.Correlator
	Payouts    *payout.Dispatcher
	Discord    *discord.Adapter
	Bot        *bot.Bot
	VoiceGuard *voiceguard.FileStore
	Metrics    *observability.Metrics

	wg sync.WaitGroup

	// Cleanup should be called on shutdown to release external resources (gateway, DB).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	vg, err := voiceguard.Open(cfg.VoiceGuardConfigPath)
	if err != nil {
		return nil, fmt.Errorf("voice guard config init failed: %w", err)
	}

	journal, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit store init failed: %w", err)
	}

	sessionPolicy := session.PolicyReusable
	if cfg.SessionSingleUse {
		sessionPolicy = session.PolicySingleUse
	}
	sessions := session.NewStore(cfg.SessionTTL, sessionPolicy)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ObserveSessionEvent("expired")
		metrics.SetActiveSessions(sessions.Count())
	})

	waiters := chat.NewWaiters()
	adapter, err := discord.New(discord.Config{
		Token:   cfg.DiscordToken,
		GuildID: cfg.DiscordGuildID,
	}, waiters)
	if err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("discord adapter init failed: %w", err)
	}

	var correlator *payment.Correlator
	if cfg.PaymentGateEnabled {
		correlator = payment.NewCorrelator(payment.Config{
			NotifierID: cfg.PaymentNotifierID,
			PayeeID:    cfg.PaymentPayeeID,
			Currency:   cfg.PaymentCurrency,
			Timeout:    cfg.PaymentTimeout,
		}, adapter, sessions, metrics)
	}

	payouts := payout.New(payout.Config{
		ChannelID: cfg.PayoutChannelID,
		QueueSize: cfg.PayoutQueueSize,
	}, adapter, adapter, journal, metrics)

	commands := bot.New(bot.Config{
		SessionBaseURL: cfg.SessionBaseURL,
		AdminRoleID:    cfg.VoiceGuardAdminRoleID,
		Journal:        journal,
	}, sessions, correlator, vg, metrics)
	adapter.Bind(commands, voiceguard.NewEngine(adapter, vg, metrics))

	api := httpapi.New(cfg, sessions, payouts, metrics)

	res := &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Correlator: correlator,
		Payouts:    payouts,
		Discord:    adapter,
		Bot:        commands,
		VoiceGuard: vg,
		Metrics:    metrics,
	}
	res.Cleanup = func() error {
		payouts.Close()
		res.wg.Wait()
		var errs []string
		if err := adapter.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := journal.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	return res, nil
}

// Start connects to the chat gateway and starts the background loops. The
// loops stop when ctx is cancelled; Cleanup waits for them.
func (r *BuildResult) Start(ctx context.Context) error {
	r.Sessions.StartJanitor(ctx, r.Config.JanitorInterval)

	if err := r.Discord.Open(ctx); err != nil {
		return err
	}
	if r.Correlator != nil && r.Correlator.PayeeID() == "" {
		r.Correlator.SetPayeeID(r.Discord.BotUserID())
		log.Printf("payment: payee defaults to bot user %s", r.Correlator.PayeeID())
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Payouts.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("payout: dispatcher stopped: %v", err)
		}
	}()
	return nil
}

// Stop closes payout intake and waits for queued payouts to be sent, up to
// ctx. Anything still queued when the run context is cancelled afterwards
// is journaled as failed.
func (r *BuildResult) Stop(ctx context.Context) error {
	r.Payouts.Close()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("payout drain: %w", ctx.Err())
	}
}
