package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/internal/testutil"
)

func newTestCache(t *testing.T) (*Cache, *MemoryStore, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	return New(store, WithClock(clock.Now)), store, clock
}

func TestCache_SetAndGet(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key1", "value1", time.Minute)

	var got string
	if !c.Get(ctx, "key1", &got) {
		t.Fatal("expected to find key1")
	}
	if got != "value1" {
		t.Errorf("expected value1, got %q", got)
	}

	var missing string
	if c.Get(ctx, "nonexistent", &missing) {
		t.Error("expected key not to be found")
	}
}

func TestCache_ExpiresAndEvicts(t *testing.T) {
	c, store, clock := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key1", []string{"a", "b"}, 15*time.Minute)

	clock.Advance(14 * time.Minute)
	var got []string
	if !c.Get(ctx, "key1", &got) {
		t.Fatal("expected entry to be valid before TTL")
	}

	clock.Advance(time.Minute)
	if c.Get(ctx, "key1", &got) {
		t.Fatal("expected entry to be expired at TTL")
	}
	if store.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, store has %d entries", store.Len())
	}
}

func TestCache_NoProactiveSweep(t *testing.T) {
	c, store, clock := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key1", 1, time.Second)
	clock.Advance(time.Hour)

	// Nothing reads the key, so it stays in the store.
	if store.Len() != 1 {
		t.Errorf("expected expired entry to remain until read, store has %d entries", store.Len())
	}
}

func TestCache_EmptySliceIsAHit(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "empty", []string{}, time.Minute)

	got := []string{"stale"}
	if !c.Get(ctx, "empty", &got) {
		t.Fatal("expected cached empty list to be a hit")
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}

func TestCache_Delete(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key1", 42, time.Minute)
	c.Delete(ctx, "key1")

	var got int
	if c.Get(ctx, "key1", &got) {
		t.Error("expected key to be deleted")
	}
}

func TestCache_CorruptEntryIsRemoved(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	if err := store.Set(ctx, "bad", []byte("{not json")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got string
	if c.Get(ctx, "bad", &got) {
		t.Error("expected corrupt entry to read as miss")
	}
	if store.Len() != 0 {
		t.Error("expected corrupt entry to be removed")
	}
}

func TestCache_TypeMismatchIsMiss(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key1", "a string", time.Minute)

	var got int
	if c.Get(ctx, "key1", &got) {
		t.Error("expected type mismatch to read as miss")
	}
}

// failingStore returns errors from every operation.
type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStore }
func (failingStore) Set(context.Context, string, []byte) error         { return errStore }
func (failingStore) Delete(context.Context, string) error              { return errStore }

func TestCache_FailsSoft(t *testing.T) {
	c := New(failingStore{})
	ctx := context.Background()

	// Neither call may panic or surface an error.
	c.Set(ctx, "key1", "value", time.Minute)
	c.Delete(ctx, "key1")

	var got string
	if c.Get(ctx, "key1", &got) {
		t.Error("expected store failure to read as miss")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(ctx, "shared", i, time.Minute)
			var got int
			c.Get(ctx, "shared", &got)
		}(i)
	}
	wg.Wait()

	var got int
	if !c.Get(ctx, "shared", &got) {
		t.Error("expected shared key to be present")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{PRDetailsKey("o", "r", 12), "pr_details_o_r_12"},
		{SuggestionsKey("o", "r", "alice"), "suggestions_o_r_alice"},
		{DirectSuggestionsKey("o", "r", "alice"), "suggestions_direct_o_r_alice"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
