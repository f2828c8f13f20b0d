package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestSQLiteExecutor(t *testing.T, dsn string, clock *fakeClock) *SQLiteExecutor {
	t.Helper()
	s, err := NewSQLiteExecutorWithClock(dsn, clock.Now)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteExecutor(t *testing.T) {
	clock := newFakeClock()
	testExecutor(t, newTestSQLiteExecutor(t, ":memory:", clock), clock)
}

func TestSQLiteExecutorPersistence(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ratelimit.db")
	clock := newFakeClock()

	s1, err := NewSQLiteExecutorWithClock(dsn, clock.Now)
	if err != nil {
		t.Fatal(err)
	}
	run(t, s1, func(tx Tx) ([]int64, error) {
		if _, err := tx.IncrBy("persist", 3); err != nil {
			return nil, err
		}
		return nil, tx.PExpire("persist", 60_000)
	})
	s1.Close()

	s2 := newTestSQLiteExecutor(t, dsn, clock)
	got := run(t, s2, func(tx Tx) ([]int64, error) {
		v, err := tx.Get("persist")
		return []int64{v}, err
	})
	if got[0] != 3 {
		t.Errorf("after reopen: got %d, want 3", got[0])
	}
}

func TestSQLiteExecutorSweepsExpiredKeys(t *testing.T) {
	clock := newFakeClock()
	s := newTestSQLiteExecutor(t, ":memory:", clock)

	run(t, s, func(tx Tx) ([]int64, error) {
		for _, key := range []string{"a", "b", "c"} {
			if _, err := tx.IncrBy(key, 1); err != nil {
				return nil, err
			}
			if err := tx.PExpire(key, 10); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	clock.Advance(10 * time.Millisecond)
	run(t, s, func(Tx) ([]int64, error) { return nil, nil })

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ratelimit_keys`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("keys left after sweep = %d, want 0", n)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ratelimit_counters`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("counters left after sweep = %d, want 0", n)
	}
}

func TestSQLiteExecutorRollsBackFailedScript(t *testing.T) {
	clock := newFakeClock()
	s := newTestSQLiteExecutor(t, ":memory:", clock)

	failing := &Script{Name: "partial", Native: func(tx Tx, _ []string, _ []int64) ([]int64, error) {
		if _, err := tx.IncrBy("partial", 1); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}}
	if _, err := s.Execute(context.Background(), failing, nil); err == nil {
		t.Fatal("expected error")
	}

	got := run(t, s, func(tx Tx) ([]int64, error) {
		v, err := tx.Get("partial")
		return []int64{v}, err
	})
	if got[0] != 0 {
		t.Errorf("partial write survived rollback: got %d", got[0])
	}
}

func TestSQLiteExecutorConcurrentAccess(t *testing.T) {
	s := newTestSQLiteExecutor(t, ":memory:", newFakeClock())
	incr := &Script{Name: "incr", Native: func(tx Tx, keys []string, _ []int64) ([]int64, error) {
		n, err := tx.IncrBy(keys[0], 1)
		return []int64{n}, err
	}}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Execute(context.Background(), incr, []string{"concurrent"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got := run(t, s, func(tx Tx) ([]int64, error) {
		v, err := tx.Get("concurrent")
		return []int64{v}, err
	})
	if got[0] != 50 {
		t.Errorf("concurrent increments: got %d, want 50", got[0])
	}
}
