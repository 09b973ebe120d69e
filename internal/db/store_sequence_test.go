package db

import (
	"context"
	"sync"
	"testing"

	"github.com/fieldops/dispatchcore/sequence"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestIncrementAndGet_ResetsPerDate(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database)
	ctx := context.Background()

	tx, err := store.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		n, err := store.IncrementAndGet(ctx, tx, "310726")
		if err != nil {
			t.Fatalf("IncrementAndGet() error = %v", err)
		}
		if n != i {
			t.Errorf("IncrementAndGet() = %d, want %d", n, i)
		}
	}
	n, err := store.IncrementAndGet(ctx, tx, "010826")
	if err != nil {
		t.Fatalf("IncrementAndGet() error = %v", err)
	}
	if n != 1 {
		t.Errorf("new date counter = %d, want 1 (reset)", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

// TestNextPublicID_ExhaustsAtCap exercises sequence's Exhausted kind once a
// date's counter would exceed the 2-digit cap (I4).
func TestNextPublicID_ExhaustsAtCap(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database)
	ctx := context.Background()

	if _, err := database.Exec(`INSERT INTO daily_counters (date, counter) VALUES ('310726', 99)`); err != nil {
		t.Fatal(err)
	}

	tx, err := store.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()

	_, err = sequence.NextPublicID(ctx, tx, store, "310726")
	if err == nil {
		t.Fatal("NextPublicID() error = nil, want Exhausted")
	}
}

// TestIncrementAndGet_ConcurrentAllocationsAreUnique exercises that
// concurrent callers each get a distinct, gapless counter value for the
// same date — the building block sequence.NextPublicID relies on for I4's
// uniqueness guarantee under concurrent ticket creation.
func TestIncrementAndGet_ConcurrentAllocationsAreUnique(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database)
	ctx := context.Background()

	const n = 20
	results := make([]int, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			tx, err := store.BeginTx()
			if err != nil {
				t.Errorf("BeginTx() error = %v", err)
				return
			}
			defer tx.Rollback()
			v, err := store.IncrementAndGet(ctx, tx, "310726")
			if err != nil {
				t.Errorf("IncrementAndGet() error = %v", err)
				return
			}
			if err := tx.Commit(); err != nil {
				t.Errorf("Commit() error = %v", err)
				return
			}
			mu.Lock()
			results[idx] = v
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, v := range results {
		if seen[v] {
			t.Fatalf("duplicate counter value %d across concurrent allocations", v)
		}
		seen[v] = true
	}
}
