package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	r.Register("user-a", "h1")
	if !r.IsOnline("user-a") {
		t.Fatalf("expected user-a online after register")
	}

	r.Register("user-a", "h2")
	if got := len(r.HandlesOf("user-a")); got != 2 {
		t.Fatalf("expected 2 handles, got %d", got)
	}

	r.Unregister("h1")
	if !r.IsOnline("user-a") {
		t.Fatalf("expected user-a still online with one handle left")
	}

	r.Unregister("h2")
	if r.IsOnline("user-a") {
		t.Fatalf("expected user-a offline after last handle removed")
	}
	if got := r.OnlineUserIDs(); len(got) != 0 {
		t.Fatalf("expected empty online set, got %v", got)
	}
}

func TestUnregisterUnknownHandle(t *testing.T) {
	r := NewRegistry()
	r.Register("user-a", "h1")
	r.Unregister("missing")
	if !r.IsOnline("user-a") {
		t.Fatalf("unknown handle must not affect other users")
	}
}

func TestAnonymousHandleExcludedFromOnlineSet(t *testing.T) {
	r := NewRegistry()
	r.Register("", "h1")
	if got := r.OnlineUserIDs(); len(got) != 0 {
		t.Fatalf("expected empty online set, got %v", got)
	}
	r.Unregister("h1")
}

func TestOnlineUserIDsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("user-b", "h2")
	r.Register("user-a", "h1")
	r.Register("user-c", "h3")

	got := r.OnlineUserIDs()
	want := []string{"user-a", "user-b", "user-c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestConcurrentMutation(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				handle := fmt.Sprintf("h-%d-%d", w, i)
				r.Register("user-shared", handle)
				_ = r.IsOnline("user-shared")
				_ = r.OnlineUserIDs()
				r.Unregister(handle)
			}
		}(w)
	}
	wg.Wait()

	if r.IsOnline("user-shared") {
		t.Fatalf("expected no handles left after all workers unregistered")
	}
	if got := len(r.HandlesOf("user-shared")); got != 0 {
		t.Fatalf("expected 0 handles, got %d", got)
	}
}
