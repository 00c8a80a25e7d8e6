package session

import (
	"fmt"
	"sync"
	"testing"
)

type fakeHandle struct{ id int }

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry[*fakeHandle]()
	h := &fakeHandle{1}

	if !r.Add(h, "s1") {
		t.Fatal("Add() = false, want true")
	}
	if r.Add(h, "s1") {
		t.Error("second Add() = true, want false")
	}

	s, ok := r.Lookup(h)
	if !ok || s.ID != "s1" || s.State != StatePending {
		t.Fatalf("Lookup() = %+v, %v; want pending s1", s, ok)
	}

	if !r.MarkJoined(h) {
		t.Fatal("MarkJoined() = false, want true")
	}
	if r.MarkJoined(h) {
		t.Error("MarkJoined() on joined session = true, want false")
	}
	if s, _ := r.Lookup(h); s.State != StateJoined || s.JoinedAt.IsZero() {
		t.Errorf("after MarkJoined state=%v joinedAt=%v", s.State, s.JoinedAt)
	}

	prev, ok := r.Remove(h)
	if !ok || prev.State != StateJoined {
		t.Fatalf("Remove() = %+v, %v; want joined session", prev, ok)
	}
	if _, ok := r.Remove(h); ok {
		t.Error("second Remove() = true, want false")
	}
	if _, ok := r.Lookup(h); ok {
		t.Error("Lookup() after Remove found session")
	}
	if r.MarkJoined(h) {
		t.Error("MarkJoined() after Remove = true, want false")
	}
}

func TestRegistry_HandleForAndCounts(t *testing.T) {
	r := NewRegistry[string]()
	r.Add("c1", "alice")
	r.Add("c2", "bob")
	r.MarkJoined("c2")

	if h, ok := r.HandleFor("bob"); !ok || h != "c2" {
		t.Errorf("HandleFor(bob) = %q, %v", h, ok)
	}
	if _, ok := r.HandleFor("carol"); ok {
		t.Error("HandleFor(carol) found a handle")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if r.Count(StatePending) != 1 || r.Count(StateJoined) != 1 {
		t.Errorf("Count pending=%d joined=%d", r.Count(StatePending), r.Count(StateJoined))
	}
	if got := len(r.Snapshot()); got != 2 {
		t.Errorf("len(Snapshot()) = %d, want 2", got)
	}
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := NewRegistry[string]()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := fmt.Sprintf("conn-%d", i)
			r.Add(h, fmt.Sprintf("s-%d", i))
			r.MarkJoined(h)
			r.Remove(h)
		}(i)
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StatePending: "pending",
		StateJoined:  "joined",
		StateClosed:  "closed",
		State(42):    "unknown",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
