package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/slotbot/internal/audit"
)

// PayoutHistoryLimit caps the entries shown by /payouts.
const PayoutHistoryLimit = 10

const (
	msgNoPayouts          = "You have no recorded payouts."
	msgPayoutsUnavailable = "Payout history is unavailable right now."
)

// HandlePayouts shows the caller their own most recent payout outcomes.
func (b *Bot) HandlePayouts(ctx context.Context, userID string, r Responder) {
	if b.journal == nil {
		b.metrics.ObserveCommand("payouts", "error")
		b.reply(ctx, r, Reply{Content: msgPayoutsUnavailable, Ephemeral: true})
		return
	}
	entries, err := b.journal.Recent(ctx, userID, PayoutHistoryLimit)
	if err != nil {
		log.Printf("payouts: history for user=%s: %v", userID, err)
		b.metrics.ObserveCommand("payouts", "error")
		b.reply(ctx, r, Reply{Content: msgPayoutsUnavailable, Ephemeral: true})
		return
	}
	b.metrics.ObserveCommand("payouts", "ok")
	b.reply(ctx, r, Reply{Content: formatPayouts(entries), Ephemeral: true})
}

// formatPayouts lists entries newest first.
func formatPayouts(entries []audit.Entry) string {
	if len(entries) == 0 {
		return msgNoPayouts
	}
	var sb strings.Builder
	sb.WriteString("Recent payouts:\n")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&sb, "%s  %d coins  %s", e.CreatedAt.UTC().Format("2006-01-02 15:04"), e.Amount, e.Status)
		if e.Status == audit.StatusFailed {
			sb.WriteString(" (contact an admin)")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
