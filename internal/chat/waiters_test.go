package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitersDeliversFirstMatchOnly(t *testing.T) {
	w := NewWaiters()
	got := make(chan Message, 1)
	go func() {
		msg, err := w.WaitForMessage(context.Background(), func(m Message) bool {
			return m.AuthorID == "bank"
		})
		if err != nil {
			t.Errorf("WaitForMessage() error = %v", err)
		}
		got <- msg
	}()

	waitPending(t, w, 1)
	if n := w.Publish(Message{ID: "1", AuthorID: "someone"}); n != 0 {
		t.Fatalf("Publish(non-match) delivered = %d, want 0", n)
	}
	if n := w.Publish(Message{ID: "2", AuthorID: "bank"}); n != 1 {
		t.Fatalf("Publish(match) delivered = %d, want 1", n)
	}
	if n := w.Publish(Message{ID: "3", AuthorID: "bank"}); n != 0 {
		t.Fatalf("Publish(second match) delivered = %d, want 0", n)
	}

	select {
	case msg := <-got:
		if msg.ID != "2" {
			t.Fatalf("delivered message ID = %q, want %q", msg.ID, "2")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter did not return")
	}
}

func TestWaitersIndependentWaiters(t *testing.T) {
	w := NewWaiters()
	results := make(chan string, 2)
	for _, author := range []string{"a", "b"} {
		author := author
		go func() {
			msg, err := w.WaitForMessage(context.Background(), func(m Message) bool { return m.AuthorID == author })
			if err != nil {
				t.Errorf("WaitForMessage(%s) error = %v", author, err)
				return
			}
			results <- msg.AuthorID
		}()
	}
	waitPending(t, w, 2)
	w.Publish(Message{AuthorID: "b"})
	w.Publish(Message{AuthorID: "a"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case a := <-results:
			seen[a] = true
		case <-time.After(time.Second):
			t.Fatalf("waiters did not return")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("seen = %v, want both a and b", seen)
	}
}

func TestWaitersTimeout(t *testing.T) {
	w := NewWaiters()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.WaitForMessage(ctx, func(Message) bool { return true })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForMessage() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if w.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after timeout", w.Pending())
	}
}

func TestMentionIndex(t *testing.T) {
	cases := []struct {
		text string
		id   string
		want int
	}{
		{"<@1> -> <@2>", "1", 0},
		{"<@1> -> <@2>", "2", 8},
		{"from <@!7>", "7", 5},
		{"<@12>", "1", -1},
		{"<@1>", "", -1},
	}
	for _, tc := range cases {
		if got := MentionIndex(tc.text, tc.id); got != tc.want {
			t.Fatalf("MentionIndex(%q, %q) = %d, want %d", tc.text, tc.id, got, tc.want)
		}
	}
}

func waitPending(t *testing.T, w *Waiters, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for w.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Pending() = %d, want %d", w.Pending(), n)
		}
		time.Sleep(time.Millisecond)
	}
}
