package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
)

// newTestStore connects to the database named by REVIEWER_TEST_DATABASE_URL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("REVIEWER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REVIEWER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := NewFromDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "test_key_" + time.Now().Format(time.RFC3339Nano)

	if _, found, err := s.Get(ctx, key); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}

	if err := s.Set(ctx, key, []byte("one")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, key, []byte("two")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, found, err := s.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if string(got) != "two" {
		t.Errorf("expected two, got %q", got)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, key); found {
		t.Error("expected key to be deleted")
	}
}

func TestStore_BacksCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "test_cache_" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	c := cache.New(s)
	c.Set(ctx, key, []string{"alice"}, time.Minute)

	var got []string
	if !c.Get(ctx, key, &got) {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0] != "alice" {
		t.Errorf("unexpected value %v", got)
	}
}
