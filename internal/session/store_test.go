package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(policy Policy) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := NewStore(10*time.Minute, policy)
	s.now = clock.Now
	return s, clock
}

func TestStoreCreateGet(t *testing.T) {
	s, _ := newTestStore(PolicyReusable)
	created, err := s.Create("u1", 1000)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(created.Token) < 32 {
		t.Fatalf("token %q too short", created.Token)
	}
	if got := created.ExpiresAt.Sub(created.CreatedAt); got != 10*time.Minute {
		t.Fatalf("ExpiresAt - CreatedAt = %v, want %v", got, 10*time.Minute)
	}

	for i := 0; i < 2; i++ {
		got, err := s.Get(created.Token)
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i, err)
		}
		if got.OwnerID != "u1" || got.Balance != 1000 || got.Consumed {
			t.Fatalf("Get() #%d = %+v, want owner u1 balance 1000 unconsumed", i, got)
		}
	}
}

func TestStoreCreateRejectsNonPositiveBalance(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	for _, balance := range []int64{0, -5} {
		if _, err := s.Create("u1", balance); !errors.Is(err, ErrInvalidBalance) {
			t.Fatalf("Create(%d) error = %v, want %v", balance, err, ErrInvalidBalance)
		}
	}
	if s.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", s.Count())
	}
}

func TestStoreSingleUseSecondReadIsZero(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	created, err := s.Create("u1", 1000)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Consumed {
		t.Fatalf("new session is already consumed")
	}

	first, err := s.Get(created.Token)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	if first.Balance != 1000 || !first.Consumed {
		t.Fatalf("first Get() = %+v, want balance 1000 consumed", first)
	}

	second, err := s.Get(created.Token)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if second.Balance != 0 || !second.Consumed {
		t.Fatalf("second Get() = %+v, want balance 0 consumed", second)
	}
}

func TestStoreExpiredRegardlessOfConsumption(t *testing.T) {
	for _, read := range []bool{false, true} {
		s, clock := newTestStore(PolicySingleUse)
		created, err := s.Create("u1", 50)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if read {
			if _, err := s.Get(created.Token); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
		}
		clock.Advance(10*time.Minute + time.Second)
		for i := 0; i < 2; i++ {
			if _, err := s.Get(created.Token); !errors.Is(err, ErrExpired) {
				t.Fatalf("Get() after expiry (read=%v) error = %v, want %v", read, err, ErrExpired)
			}
		}
		if _, err := s.AttachCashout(created.Token, 10); !errors.Is(err, ErrExpired) {
			t.Fatalf("AttachCashout() after expiry error = %v, want %v", err, ErrExpired)
		}
	}
}

func TestStoreUnknownToken(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want %v", err, ErrNotFound)
	}
	if _, err := s.AttachCashout("nope", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AttachCashout() error = %v, want %v", err, ErrNotFound)
	}
}

func TestStoreAttachCashout(t *testing.T) {
	s, clock := newTestStore(PolicySingleUse)
	created, err := s.Create("u1", 300)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(time.Minute)

	got, err := s.AttachCashout(created.Token, 450)
	if err != nil {
		t.Fatalf("AttachCashout() error = %v", err)
	}
	if got.Cashout == nil || got.Cashout.Amount != 450 {
		t.Fatalf("Cashout = %+v, want amount 450", got.Cashout)
	}
	if !got.Cashout.RequestedAt.Equal(clock.Now()) {
		t.Fatalf("RequestedAt = %v, want %v", got.Cashout.RequestedAt, clock.Now())
	}

	got.Cashout.Amount = 1
	again, err := s.AttachCashout(created.Token, 460)
	if err != nil {
		t.Fatalf("second AttachCashout() error = %v", err)
	}
	if again.Cashout.Amount != 460 {
		t.Fatalf("second Cashout.Amount = %d, want 460", again.Cashout.Amount)
	}
}

func TestStoreTokensAreUnique(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		created, err := s.Create("u1", 1)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[created.Token] {
			t.Fatalf("duplicate token %q", created.Token)
		}
		seen[created.Token] = true
	}
}

func TestStoreCreateRetriesTokenCollision(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	tokens := []string{"dup", "dup", "fresh"}
	s.newToken = func() (string, error) {
		next := tokens[0]
		tokens = tokens[1:]
		return next, nil
	}
	first, err := s.Create("u1", 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := s.Create("u2", 2)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.Token != "dup" || second.Token != "fresh" {
		t.Fatalf("tokens = %q, %q, want dup, fresh", first.Token, second.Token)
	}
}

func TestStoreConcurrentFirstReads(t *testing.T) {
	s, _ := newTestStore(PolicySingleUse)
	created, err := s.Create("u1", 700)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Get(created.Token)
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			if got.Balance == 700 {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if full != 1 {
		t.Fatalf("reads returning full balance = %d, want 1", full)
	}
}

func TestStoreSweepDropsAfterRetention(t *testing.T) {
	s, clock := newTestStore(PolicySingleUse)
	s.SetRetention(time.Minute)
	var expired []string
	s.SetExpireHook(func(sess *Session) { expired = append(expired, sess.OwnerID) })

	if _, err := s.Create("u1", 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(10*time.Minute + 30*time.Second)
	if n := s.sweep(); n != 0 {
		t.Fatalf("sweep() inside retention = %d, want 0", n)
	}
	clock.Advance(time.Minute)
	if n := s.sweep(); n != 1 {
		t.Fatalf("sweep() = %d, want 1", n)
	}
	if len(expired) != 1 || expired[0] != "u1" {
		t.Fatalf("expire hook calls = %v, want [u1]", expired)
	}
	if s.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", s.Count())
	}
}

func TestStoreJanitorDropsExpired(t *testing.T) {
	s := NewStore(time.Millisecond, PolicySingleUse)
	s.SetRetention(0)
	if _, err := s.Create("u1", 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for s.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not drop expired session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
