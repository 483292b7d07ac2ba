package chat

import (
	"context"
	"sync"
)

type waiter struct {
	match func(Message) bool
	ch    chan Message
}

// Waiters fans published messages out to goroutines blocked in
// WaitForMessage. Each waiter receives at most one message: the first one
// its predicate accepts.
type Waiters struct {
	mu      sync.Mutex
	waiters map[int]*waiter
	nextID  int
}

func NewWaiters() *Waiters {
	return &Waiters{waiters: make(map[int]*waiter)}
}

func (w *Waiters) WaitForMessage(ctx context.Context, match func(Message) bool) (Message, error) {
	ch := make(chan Message, 1)
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.waiters[id] = &waiter{match: match, ch: ch}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.waiters, id)
		w.mu.Unlock()
	}()

	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		// A match may have landed between the deadline and the select.
		select {
		case msg := <-ch:
			return msg, nil
		default:
		}
		return Message{}, ctx.Err()
	}
}

// Publish offers msg to every pending waiter and returns how many accepted it.
func (w *Waiters) Publish(msg Message) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	delivered := 0
	for id, wt := range w.waiters {
		if !wt.match(msg) {
			continue
		}
		wt.ch <- msg
		delete(w.waiters, id)
		delivered++
	}
	return delivered
}

func (w *Waiters) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
