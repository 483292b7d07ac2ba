package bot

import (
	"context"
	"errors"
	"log"

	"github.com/ent0n29/slotbot/internal/payment"
	"github.com/ent0n29/slotbot/internal/policy"
)

const (
	msgCoinsMustBePositive = "Coins must be 1 or more."
	msgPaymentTimedOut     = "⌛ No payment was confirmed in time. Run /slot again to retry."
	msgSlotFailed          = "Something went wrong starting your session. Please try again."
)

// SlotInvocation is a decoded /slot coins:<n> call.
type SlotInvocation struct {
	UserID string
	Coins  int64
}

// HandleSlot runs one /slot invocation to completion. With the payment gate
// enabled it blocks for up to the correlator timeout; callers run it on the
// event's own goroutine.
func (b *Bot) HandleSlot(ctx context.Context, inv SlotInvocation, r Responder) {
	if inv.Coins <= 0 {
		b.metrics.ObserveCommand("slot", "invalid")
		b.reply(ctx, r, Reply{Content: msgCoinsMustBePositive, Ephemeral: true})
		return
	}

	if b.correlator == nil {
		sess, err := b.sessions.Create(inv.UserID, inv.Coins)
		if err != nil {
			log.Printf("slot: create session for user=%s: %v", inv.UserID, err)
			b.metrics.ObserveCommand("slot", "error")
			b.reply(ctx, r, Reply{Content: msgSlotFailed, Ephemeral: true})
			return
		}
		b.metrics.ObserveSessionEvent("created")
		b.metrics.SetActiveSessions(b.sessions.Count())
		b.metrics.ObserveCommand("slot", "ok")
		log.Printf("slot: session=%s issued to user=%s coins=%d", policy.RedactToken(sess.Token), inv.UserID, inv.Coins)
		b.reply(ctx, r, Reply{Content: b.sessionReadyMessage(sess), Ephemeral: true})
		return
	}

	if err := r.Respond(ctx, Reply{Content: b.correlator.Instructions(inv.Coins), Ephemeral: true}); err != nil {
		log.Printf("slot: send instructions to user=%s: %v", inv.UserID, err)
		b.metrics.ObserveCommand("slot", "error")
		return
	}

	sess, err := b.correlator.Await(ctx, inv.UserID, inv.Coins)
	switch {
	case errors.Is(err, payment.ErrTimeout):
		b.metrics.ObserveCommand("slot", "timeout")
		b.followUp(ctx, r, Reply{Content: msgPaymentTimedOut, Ephemeral: true})
	case err != nil:
		log.Printf("slot: payment wait for user=%s: %v", inv.UserID, err)
		b.metrics.ObserveCommand("slot", "error")
		b.followUp(ctx, r, Reply{Content: msgSlotFailed, Ephemeral: true})
	default:
		b.metrics.ObserveSessionEvent("created")
		b.metrics.SetActiveSessions(b.sessions.Count())
		b.metrics.ObserveCommand("slot", "ok")
		b.followUp(ctx, r, Reply{Content: b.sessionReadyMessage(sess), Ephemeral: true})
	}
}

func (b *Bot) reply(ctx context.Context, r Responder, reply Reply) {
	if err := r.Respond(ctx, reply); err != nil {
		log.Printf("bot: respond: %v", err)
	}
}

func (b *Bot) followUp(ctx context.Context, r Responder, reply Reply) {
	if err := r.FollowUp(ctx, reply); err != nil {
		log.Printf("bot: follow-up: %v", err)
	}
}
