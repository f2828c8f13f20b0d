package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// run executes fn as a one-off native script.
func run(t *testing.T, e Executor, fn func(tx Tx) ([]int64, error)) []int64 {
	t.Helper()
	s := &Script{Name: "test", Native: func(tx Tx, _ []string, _ []int64) ([]int64, error) {
		return fn(tx)
	}}
	reply, err := e.Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reply
}

// testExecutor checks the Tx primitives every executor must provide.
func testExecutor(t *testing.T, e Executor, clock *fakeClock) {
	t.Run("counter", func(t *testing.T) {
		got := run(t, e, func(tx Tx) ([]int64, error) {
			before, _ := tx.Get("c")
			a, _ := tx.IncrBy("c", 1)
			b, err := tx.IncrBy("c", 4)
			return []int64{before, a, b}, err
		})
		if got[0] != 0 || got[1] != 1 || got[2] != 5 {
			t.Errorf("got %v, want [0 1 5]", got)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		run(t, e, func(tx Tx) ([]int64, error) {
			if _, err := tx.IncrBy("ttl", 7); err != nil {
				return nil, err
			}
			return nil, tx.PExpire("ttl", 1000)
		})

		clock.Advance(999 * time.Millisecond)
		got := run(t, e, func(tx Tx) ([]int64, error) {
			v, err := tx.Get("ttl")
			return []int64{v}, err
		})
		if got[0] != 7 {
			t.Errorf("before expiry: got %d, want 7", got[0])
		}

		clock.Advance(time.Millisecond)
		got = run(t, e, func(tx Tx) ([]int64, error) {
			v, err := tx.Get("ttl")
			return []int64{v}, err
		})
		if got[0] != 0 {
			t.Errorf("after expiry: got %d, want 0", got[0])
		}
	})

	t.Run("hash", func(t *testing.T) {
		got := run(t, e, func(tx Tx) ([]int64, error) {
			_, ok, err := tx.HGet("h", "tokens")
			if err != nil || ok {
				return nil, errors.New("missing field reported present")
			}
			if err := tx.HSet("h", "tokens", 3); err != nil {
				return nil, err
			}
			if err := tx.HSet("h", "tokens", 2); err != nil {
				return nil, err
			}
			v, ok, err := tx.HGet("h", "tokens")
			if !ok {
				return nil, errors.New("field not found after HSet")
			}
			return []int64{v}, err
		})
		if got[0] != 2 {
			t.Errorf("got %d, want 2", got[0])
		}
	})

	t.Run("sorted set", func(t *testing.T) {
		got := run(t, e, func(tx Tx) ([]int64, error) {
			for i, score := range []int64{30, 10, 20} {
				if err := tx.ZAdd("z", score, string(rune('a'+i))); err != nil {
					return nil, err
				}
			}
			n, _ := tx.ZCard("z")
			low, _, _ := tx.ZMin("z")
			if err := tx.ZRemRangeByScore("z", 20); err != nil {
				return nil, err
			}
			after, _ := tx.ZCard("z")
			lowAfter, _, err := tx.ZMin("z")
			return []int64{n, low, after, lowAfter}, err
		})
		want := []int64{3, 10, 1, 30}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})

	t.Run("empty sorted set", func(t *testing.T) {
		got := run(t, e, func(tx Tx) ([]int64, error) {
			if err := tx.ZAdd("gone", 5, "m"); err != nil {
				return nil, err
			}
			if err := tx.ZRemRangeByScore("gone", 5); err != nil {
				return nil, err
			}
			n, _ := tx.ZCard("gone")
			_, ok, err := tx.ZMin("gone")
			if ok {
				return nil, errors.New("ZMin found a member in an empty set")
			}
			return []int64{n}, err
		})
		if got[0] != 0 {
			t.Errorf("ZCard = %d, want 0", got[0])
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := e.Execute(context.Background(), &Script{Name: "lua_only", Lua: "return {1}"}, nil)
		if !errors.Is(err, ErrUnsupportedScript) {
			t.Errorf("err = %v, want ErrUnsupportedScript", err)
		}
	})

	t.Run("script error", func(t *testing.T) {
		boom := errors.New("boom")
		s := &Script{Name: "failing", Native: func(tx Tx, _ []string, _ []int64) ([]int64, error) {
			return nil, boom
		}}
		if _, err := e.Execute(context.Background(), s, nil); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}
