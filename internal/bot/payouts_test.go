package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/slotbot/internal/audit"
)

type failingJournal struct{ audit.Store }

func (failingJournal) Recent(context.Context, string, int) ([]audit.Entry, error) {
	return nil, errors.New("db down")
}

func TestPayoutsListsOwnHistoryNewestFirst(t *testing.T) {
	journal := audit.NewInMemoryStore(0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []audit.Entry{
		{OwnerID: "u1", Amount: 100, Status: audit.StatusSent, CreatedAt: base},
		{OwnerID: "u2", Amount: 999, Status: audit.StatusSent, CreatedAt: base},
		{OwnerID: "u1", Amount: 250, Status: audit.StatusFailed, Detail: "dropped at shutdown", CreatedAt: base.Add(time.Hour)},
	}
	for _, e := range records {
		if err := journal.Record(context.Background(), e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	b := New(Config{Journal: journal}, nil, nil, nil, nil)
	r := &fakeResponder{}

	b.HandlePayouts(context.Background(), "u1", r)
	got := r.All()
	if len(got) != 1 || !got[0].reply.Ephemeral {
		t.Fatalf("replies = %+v, want one ephemeral reply", got)
	}
	content := got[0].reply.Content
	if strings.Contains(content, "999") {
		t.Fatalf("reply leaks another user's payout: %q", content)
	}
	first := strings.Index(content, "250 coins  failed")
	second := strings.Index(content, "100 coins  sent")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("reply = %q, want 250 failed listed before 100 sent", content)
	}
}

func TestPayoutsEmptyAndUnavailable(t *testing.T) {
	r := &fakeResponder{}
	New(Config{Journal: audit.NewInMemoryStore(0)}, nil, nil, nil, nil).HandlePayouts(context.Background(), "u1", r)
	if got := r.All(); len(got) != 1 || got[0].reply.Content != msgNoPayouts {
		t.Fatalf("empty history replies = %+v", got)
	}

	for _, b := range []*Bot{
		New(Config{}, nil, nil, nil, nil),
		New(Config{Journal: failingJournal{}}, nil, nil, nil, nil),
	} {
		r := &fakeResponder{}
		b.HandlePayouts(context.Background(), "u1", r)
		if got := r.All(); len(got) != 1 || got[0].reply.Content != msgPayoutsUnavailable {
			t.Fatalf("unavailable replies = %+v", got)
		}
	}
}
