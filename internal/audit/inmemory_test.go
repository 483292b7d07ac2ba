package audit

import (
	"context"
	"testing"
)

func TestInMemoryStoreRecentIsChronological(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()
	for _, amount := range []int64{10, 20, 30} {
		if err := s.Record(ctx, Entry{OwnerID: "u1", Amount: amount, Status: StatusSent}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := s.Record(ctx, Entry{OwnerID: "u2", Amount: 99, Status: StatusFailed}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := s.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0].Amount != 20 || got[1].Amount != 30 {
		t.Fatalf("Recent() = %+v, want amounts [20 30]", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("Record() did not default ID/CreatedAt: %+v", got[0])
	}
}

func TestInMemoryStoreCapsPerOwner(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	for _, amount := range []int64{1, 2, 3} {
		_ = s.Record(ctx, Entry{OwnerID: "u1", Amount: amount})
	}
	got, _ := s.Recent(ctx, "u1", 0)
	if len(got) != 2 || got[0].Amount != 2 {
		t.Fatalf("Recent() = %+v, want the last two entries", got)
	}
}

func TestNewStoreWithoutDatabaseIsInMemory(t *testing.T) {
	st, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()
	if _, ok := st.(*InMemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *InMemoryStore", st)
	}
}
