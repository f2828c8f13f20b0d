package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	counter   int64
	hash      map[string]int64
	zset      map[string]int64 // member -> score
	expiresAt int64            // unix ms, 0 = no expiry
}

// Compile-time interface check.
var _ Executor = (*MemoryExecutor)(nil)

// MemoryExecutor is an in-memory Executor. Scripts run one at a time under a
// single lock, so it is atomic for every caller sharing the same value but
// not across processes. State is lost on restart.
type MemoryExecutor struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryExecutor creates an empty in-memory executor.
func NewMemoryExecutor() *MemoryExecutor {
	return NewMemoryExecutorWithClock(time.Now)
}

// NewMemoryExecutorWithClock creates an empty in-memory executor whose key
// expirations are judged against now.
func NewMemoryExecutorWithClock(now func() time.Time) *MemoryExecutor {
	return &MemoryExecutor{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Execute runs the Native rendering of s under the executor's lock.
func (m *MemoryExecutor) Execute(ctx context.Context, s *Script, keys []string, args ...int64) ([]int64, error) {
	if s == nil || s.Native == nil {
		return nil, fmt.Errorf("%w: memory store needs a native script", ErrUnsupportedScript)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m, now: m.now().UnixMilli()}
	return s.Native(tx, keys, args)
}

// Len returns the number of keys that have not expired.
func (m *MemoryExecutor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	n := 0
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
			continue
		}
		n++
	}
	return n
}

func (e *entry) expired(now int64) bool {
	return e.expiresAt > 0 && e.expiresAt <= now
}

// memoryTx is only used while MemoryExecutor.mu is held.
type memoryTx struct {
	m   *MemoryExecutor
	now int64
}

func (t *memoryTx) lookup(key string, create bool) *entry {
	e, ok := t.m.entries[key]
	if ok && e.expired(t.now) {
		delete(t.m.entries, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &entry{}
		t.m.entries[key] = e
	}
	return e
}

func (t *memoryTx) Get(key string) (int64, error) {
	if e := t.lookup(key, false); e != nil {
		return e.counter, nil
	}
	return 0, nil
}

func (t *memoryTx) IncrBy(key string, delta int64) (int64, error) {
	e := t.lookup(key, true)
	e.counter += delta
	return e.counter, nil
}

func (t *memoryTx) PExpire(key string, ttl int64) error {
	if e := t.lookup(key, false); e != nil {
		e.expiresAt = t.now + ttl
	}
	return nil
}

func (t *memoryTx) HGet(key, field string) (int64, bool, error) {
	e := t.lookup(key, false)
	if e == nil || e.hash == nil {
		return 0, false, nil
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (t *memoryTx) HSet(key, field string, value int64) error {
	e := t.lookup(key, true)
	if e.hash == nil {
		e.hash = make(map[string]int64)
	}
	e.hash[field] = value
	return nil
}

func (t *memoryTx) ZAdd(key string, score int64, member string) error {
	e := t.lookup(key, true)
	if e.zset == nil {
		e.zset = make(map[string]int64)
	}
	e.zset[member] = score
	return nil
}

func (t *memoryTx) ZRemRangeByScore(key string, max int64) error {
	e := t.lookup(key, false)
	if e == nil {
		return nil
	}
	for member, score := range e.zset {
		if score <= max {
			delete(e.zset, member)
		}
	}
	if len(e.zset) == 0 {
		// An emptied sorted set disappears along with its expiry.
		delete(t.m.entries, key)
	}
	return nil
}

func (t *memoryTx) ZCard(key string) (int64, error) {
	if e := t.lookup(key, false); e != nil {
		return int64(len(e.zset)), nil
	}
	return 0, nil
}

func (t *memoryTx) ZMin(key string) (int64, bool, error) {
	e := t.lookup(key, false)
	if e == nil || len(e.zset) == 0 {
		return 0, false, nil
	}
	first := true
	var lowest int64
	for _, score := range e.zset {
		if first || score < lowest {
			lowest = score
			first = false
		}
	}
	return lowest, true, nil
}
