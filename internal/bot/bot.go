// Package bot implements the slash commands independently of the chat SDK.
// The discord adapter decodes interactions into these calls.
package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/slotbot/internal/audit"
	"github.com/ent0n29/slotbot/internal/observability"
	"github.com/ent0n29/slotbot/internal/payment"
	"github.com/ent0n29/slotbot/internal/session"
	"github.com/ent0n29/slotbot/internal/voiceguard"
)

// Reply is a message sent back to the invoking user.
type Reply struct {
	Content   string
	Ephemeral bool
}

// Responder answers one command invocation: exactly one Respond, then any
// number of FollowUp calls.
type Responder interface {
	Respond(ctx context.Context, reply Reply) error
	FollowUp(ctx context.Context, reply Reply) error
}

type Config struct {
	SessionBaseURL string
	AdminRoleID    string
	// Journal backs /payouts. Nil disables the command's history.
	Journal        audit.Store
}

type Bot struct {
	sessions   *session.Store
	correlator *payment.Correlator
	voiceguard *voiceguard.FileStore
	metrics    *observability.Metrics
	journal    audit.Store

	baseURL     string
	adminRoleID string
}

// New wires the command handlers. A nil correlator disables the payment
// gate: /slot then issues the session immediately.
func New(cfg Config, sessions *session.Store, correlator *payment.Correlator, vg *voiceguard.FileStore, metrics *observability.Metrics) *Bot {
	return &Bot{
		sessions:    sessions,
		correlator:  correlator,
		voiceguard:  vg,
		metrics:     metrics,
		journal:     cfg.Journal,
		baseURL:     strings.TrimSpace(cfg.SessionBaseURL),
		adminRoleID: strings.TrimSpace(cfg.AdminRoleID),
	}
}

// SessionURL links the web client to token.
func (b *Bot) SessionURL(token string) string {
	u, err := url.Parse(b.baseURL)
	if err != nil || b.baseURL == "" {
		return "/?session=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("session", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Bot) sessionReadyMessage(sess *session.Session) string {
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt).Round(time.Minute)
	return fmt.Sprintf("🎰 Your slot session with **%d** coins is ready!\n[Play here](<%s>)\nThe link expires in %s.",
		sess.Balance, b.SessionURL(sess.Token), ttl)
}
