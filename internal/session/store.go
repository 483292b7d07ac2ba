package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Policy decides what a repeated read of a live session returns.
type Policy string

const (
	// PolicySingleUse reports the balance on the first read only; later
	// reads within the TTL return a zero balance with Consumed set.
	PolicySingleUse Policy = "single_use"
	// PolicyReusable reports the full balance on every read within the TTL.
	PolicyReusable Policy = "reusable"
)

const (
	DefaultTTL = 10 * time.Minute
	tokenBytes = 32
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrExpired        = errors.New("session expired")
	ErrInvalidBalance = errors.New("balance must be positive")
)

// Cashout is attached to a session once the web client submits a cash-out.
type Cashout struct {
	Amount      int64     `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

// Session grants one web client time-boxed access to a coin balance.
type Session struct {
	Token     string    `json:"-"`
	OwnerID   string    `json:"user_id"`
	Balance   int64     `json:"coins"`
	Consumed  bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Cashout   *Cashout  `json:"cashout,omitempty"`
}

// Store is the in-memory token -> session table. All access is serialized
// by a single mutex; returned values are copies.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	ttl       time.Duration
	retention time.Duration
	policy    Policy
	onExpire  func(*Session)

	now      func() time.Time
	newToken func() (string, error)
}

func NewStore(ttl time.Duration, policy Policy) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if policy != PolicyReusable {
		policy = PolicySingleUse
	}
	return &Store{
		sessions:  make(map[string]*Session),
		ttl:       ttl,
		retention: ttl,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  randomToken,
	}
}

func (s *Store) Policy() Policy { return s.policy }

func (s *Store) TTL() time.Duration { return s.ttl }

// SetRetention controls how long expired sessions are kept (and keep
// answering ErrExpired) before the janitor drops them.
func (s *Store) SetRetention(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.retention = d
}

func (s *Store) SetExpireHook(hook func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Create issues a new session for ownerID. There is no cap on concurrent
// sessions per owner.
func (s *Store) Create(ownerID string, balance int64) (*Session, error) {
	if balance <= 0 {
		return nil, ErrInvalidBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	for {
		t, err := s.newToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		if _, taken := s.sessions[t]; !taken {
			token = t
			break
		}
	}

	now := s.now()
	sess := &Session{
		Token:     token,
		OwnerID:   ownerID,
		Balance:   balance,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[token] = sess
	return clone(sess), nil
}

// Get looks up a live session. Under PolicySingleUse the first successful
// call flips Consumed and returns the real balance; later calls see zero.
func (s *Store) Get(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.liveLocked(token)
	if err != nil {
		return nil, err
	}

	if s.policy == PolicyReusable {
		return clone(sess), nil
	}
	if sess.Consumed {
		out := clone(sess)
		out.Balance = 0
		return out, nil
	}
	out := clone(sess)
	sess.Consumed = true
	out.Consumed = true
	return out, nil
}

// AttachCashout records a cash-out on the session. Dispatching the payout
// is left to the caller.
func (s *Store) AttachCashout(token string, amount int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.liveLocked(token)
	if err != nil {
		return nil, err
	}

	sess.Cashout = &Cashout{Amount: amount, RequestedAt: s.now()}
	return clone(sess), nil
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartJanitor periodically drops sessions that expired more than the
// retention window ago. Expiry is enforced on every access regardless; the
// sweep only bounds memory.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() int {
	now := s.now()
	var expired []*Session

	s.mu.Lock()
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt.Add(s.retention)) {
			expired = append(expired, clone(sess))
			delete(s.sessions, token)
		}
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, sess := range expired {
			hook(sess)
		}
	}
	return len(expired)
}

func (s *Store) liveLocked(token string) (*Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, ErrExpired
	}
	return sess, nil
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func clone(s *Session) *Session {
	c := *s
	if s.Cashout != nil {
		co := *s.Cashout
		c.Cashout = &co
	}
	return &c
}
