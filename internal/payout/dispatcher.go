package payout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/slotbot/internal/audit"
	"github.com/ent0n29/slotbot/internal/chat"
	"github.com/ent0n29/slotbot/internal/observability"
	"github.com/ent0n29/slotbot/internal/reliability"
)

var ErrUnavailable = errors.New("payout dispatcher unavailable")

// Request asks for an external settlement of a cash-out.
type Request struct {
	ID          string
	OwnerID     string
	Amount      int64
	TokenHint   string
	RequestedAt time.Time
}

type Config struct {
	ChannelID   string
	QueueSize   int
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

// Dispatcher is the hand-off between HTTP handlers and the chat connection.
// Handlers Submit; a single Run loop owns all outbound payout sends and
// processes requests in order. Requests submitted before Run starts stay
// queued until it does.
type Dispatcher struct {
	channelID   string
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration

	sender  chat.Sender
	users   chat.UserResolver
	journal audit.Store
	metrics *observability.Metrics

	queue     chan Request
	mu        sync.RWMutex
	closed    bool
	stop      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender chat.Sender, users chat.UserResolver, journal audit.Store, metrics *observability.Metrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 5 * time.Second
	}
	if journal == nil {
		journal = audit.NewInMemoryStore(0)
	}
	return &Dispatcher{
		channelID:   strings.TrimSpace(cfg.ChannelID),
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		retryCap:    cfg.RetryCap,
		sender:      sender,
		users:       users,
		journal:     journal,
		metrics:     metrics,
		queue:       make(chan Request, cfg.QueueSize),
		stop:        make(chan struct{}),
		sleep:       sleepCtx,
	}
}

// FormatCommand renders the payout instruction understood by the payment bot.
func FormatCommand(userID string, amount int64) string {
	return fmt.Sprintf("!pay %s %d", chat.Mention(userID), amount)
}

// Submit enqueues req without blocking. It fails with ErrUnavailable when
// no payout channel is configured, the dispatcher is closed, or its queue
// is full; a request is never silently dropped.
func (d *Dispatcher) Submit(req Request) (string, error) {
	if d.channelID == "" {
		d.metrics.ObservePayout("rejected")
		return "", fmt.Errorf("%w: payout channel is not configured", ErrUnavailable)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.ObservePayout("rejected")
		return "", fmt.Errorf("%w: closed", ErrUnavailable)
	}
	select {
	case d.queue <- req:
		d.metrics.SetPayoutQueueDepth(len(d.queue))
		return req.ID, nil
	default:
		d.metrics.ObservePayout("rejected")
		return "", fmt.Errorf("%w: queue full", ErrUnavailable)
	}
}

// Ready reports whether the consumer loop is running.
func (d *Dispatcher) Ready() bool {
	return d.running.Load()
}

// Close stops accepting new requests. A running Run sends everything
// already queued and then returns nil.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.closeOnce.Do(func() { close(d.stop) })
}

// Run processes queued requests in order until Close drains the queue or
// ctx is done. Requests still queued when ctx ends are journaled as failed.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("payout dispatcher already running")
	}
	defer d.running.Store(false)

	for {
		if ctx.Err() != nil {
			d.abandonQueued()
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			d.abandonQueued()
			return ctx.Err()
		case req := <-d.queue:
			d.metrics.SetPayoutQueueDepth(len(d.queue))
			d.process(ctx, req)
		case <-d.stop:
			return d.drain(ctx)
		}
	}
}

// drain sends what is left after Close. Submit cannot add more once stop
// is closed, so an empty queue is final.
func (d *Dispatcher) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			d.abandonQueued()
			return ctx.Err()
		}
		select {
		case req := <-d.queue:
			d.metrics.SetPayoutQueueDepth(len(d.queue))
			d.process(ctx, req)
		default:
			return nil
		}
	}
}

const abandonJournalTimeout = 5 * time.Second

// abandonQueued records every request that will never be sent.
func (d *Dispatcher) abandonQueued() {
	ctx, cancel := context.WithTimeout(context.Background(), abandonJournalTimeout)
	defer cancel()
	for {
		select {
		case req := <-d.queue:
			d.metrics.SetPayoutQueueDepth(len(d.queue))
			d.metrics.ObservePayout("dropped")
			log.Printf("payout: request=%s user=%s amount=%d dropped at shutdown", req.ID, req.OwnerID, req.Amount)
			entry := audit.Entry{
				ID:        req.ID,
				OwnerID:   req.OwnerID,
				TokenHint: req.TokenHint,
				Amount:    req.Amount,
				Status:    audit.StatusFailed,
				Detail:    "dropped at shutdown",
			}
			if err := d.journal.Record(ctx, entry); err != nil {
				log.Printf("payout: audit record for request=%s failed: %v", req.ID, err)
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, req Request) {
	entry := audit.Entry{
		ID:        req.ID,
		OwnerID:   req.OwnerID,
		TokenHint: req.TokenHint,
		Amount:    req.Amount,
	}

	err := d.dispatch(ctx, req)
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.Detail = err.Error()
		d.metrics.ObservePayout("failed")
		log.Printf("payout: request=%s user=%s amount=%d failed: %v", req.ID, req.OwnerID, req.Amount, err)
	} else {
		entry.Status = audit.StatusSent
		d.metrics.ObservePayout("sent")
		log.Printf("payout: request=%s user=%s amount=%d sent", req.ID, req.OwnerID, req.Amount)
	}

	if err := d.journal.Record(ctx, entry); err != nil {
		log.Printf("payout: audit record for request=%s failed: %v", req.ID, err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) error {
	if d.channelID == "" {
		return errors.New("payout channel is not configured")
	}
	user, err := d.users.ResolveUser(ctx, req.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", req.OwnerID, err)
	}

	content := FormatCommand(user.ID, req.Amount)
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, reliability.ExponentialBackoff(attempt-1, d.retryBase, d.retryCap)); err != nil {
				return fmt.Errorf("send payout instruction: %w", lastErr)
			}
		}
		lastErr = d.sender.SendMessage(ctx, d.channelID, content)
		if lastErr == nil {
			return nil
		}
		if !reliability.IsRetryableSendError(lastErr) {
			break
		}
	}
	return fmt.Errorf("send payout instruction: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
