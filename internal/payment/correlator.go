package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/slotbot/internal/chat"
	"github.com/ent0n29/slotbot/internal/observability"
	"github.com/ent0n29/slotbot/internal/policy"
	"github.com/ent0n29/slotbot/internal/session"
)

const DefaultTimeout = 180 * time.Second

var ErrTimeout = errors.New("payment not confirmed before deadline")

type SessionCreator interface {
	Create(ownerID string, balance int64) (*session.Session, error)
}

type Config struct {
	NotifierID string
	PayeeID    string
	Currency   string
	Timeout    time.Duration
}

// Correlator waits for the payment notifier to confirm a transfer and
// issues a session once it does. Every Await is independent: there is no
// per-user exclusion, so one user may have several waits in flight.
type Correlator struct {
	waiter   chat.MessageWaiter
	sessions SessionCreator
	metrics  *observability.Metrics

	notifierID string
	currency   string
	timeout    time.Duration

	mu      sync.RWMutex
	payeeID string

	now func() time.Time
}

func NewCorrelator(cfg Config, waiter chat.MessageWaiter, sessions SessionCreator, metrics *observability.Metrics) *Correlator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "Spt"
	}
	return &Correlator{
		waiter:     waiter,
		sessions:   sessions,
		metrics:    metrics,
		notifierID: strings.TrimSpace(cfg.NotifierID),
		currency:   cfg.Currency,
		timeout:    cfg.Timeout,
		payeeID:    strings.TrimSpace(cfg.PayeeID),
		now:        time.Now,
	}
}

// SetPayeeID sets the account payments must be addressed to. It is used
// when the payee is the bot itself and only known after login.
func (c *Correlator) SetPayeeID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payeeID = strings.TrimSpace(id)
}

func (c *Correlator) PayeeID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payeeID
}

func (c *Correlator) Timeout() time.Duration { return c.timeout }

func (c *Correlator) Expect(payerID string, amount int64) Expected {
	return Expected{
		PayerID:  payerID,
		PayeeID:  c.PayeeID(),
		Amount:   amount,
		Currency: c.currency,
	}
}

// Instructions is the message telling the payer exactly what to send.
func (c *Correlator) Instructions(amount int64) string {
	return fmt.Sprintf(
		"To start the slot, send **%d %s** to %s.\nWaiting up to %s for the payment notice.",
		amount, c.currency, chat.Mention(c.PayeeID()), formatWait(c.timeout),
	)
}

// Await blocks the calling goroutine until a matching payment notice is
// observed or the deadline passes. On a match it creates the session.
func (c *Correlator) Await(ctx context.Context, payerID string, amount int64) (*session.Session, error) {
	if amount <= 0 {
		return nil, session.ErrInvalidBalance
	}
	exp := c.Expect(payerID, amount)
	if exp.PayeeID == "" {
		return nil, errors.New("payment payee is not configured")
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := c.now()
	msg, err := c.waiter.WaitForMessage(waitCtx, func(m chat.Message) bool {
		return Matches(m, c.notifierID, exp)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.metrics.ObservePaymentOutcome("timed_out")
			log.Printf("payment: no notice from payer=%s amount=%d within %s", payerID, amount, c.timeout)
			return nil, ErrTimeout
		}
		c.metrics.ObservePaymentOutcome("cancelled")
		return nil, fmt.Errorf("wait for payment notice: %w", err)
	}

	sess, err := c.sessions.Create(payerID, amount)
	if err != nil {
		c.metrics.ObservePaymentOutcome("session_error")
		return nil, fmt.Errorf("create session after payment: %w", err)
	}
	c.metrics.ObservePaymentOutcome("confirmed")
	c.metrics.ObservePaymentWait(c.now().Sub(started))
	log.Printf("payment: confirmed payer=%s amount=%d notice=%s session=%s", payerID, amount, msg.ID, policy.RedactToken(sess.Token))
	return sess, nil
}

func formatWait(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
