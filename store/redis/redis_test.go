package redis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ryhazerus/ratelimit/store"
)

var incrScript = &store.Script{
	Name: "incr_by",
	Lua: `
local count = redis.call("INCRBY", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {count, tonumber(ARGV[2])}
`,
}

func newTestExecutor(t *testing.T) (*Executor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewExecutor(client), mr
}

func TestExecutorRunsScript(t *testing.T) {
	e, mr := newTestExecutor(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		got, err := e.Execute(ctx, incrScript, []string{"counter"}, 2, 60000)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != 2*i || got[1] != 60000 {
			t.Errorf("call %d: got %v, want [%d 60000]", i, got, 2*i)
		}
	}

	if v, _ := mr.Get("counter"); v != "6" {
		t.Errorf("stored value = %q, want 6", v)
	}
	if ttl := mr.TTL("counter"); ttl <= 0 {
		t.Errorf("ttl = %v, want positive", ttl)
	}
}

func TestExecutorLoad(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	if err := e.Load(ctx, incrScript); err != nil {
		t.Fatal(err)
	}
	got, err := e.Execute(ctx, incrScript, []string{"k"}, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Errorf("got %d, want 1", got[0])
	}
}

func TestExecutorUnsupportedScript(t *testing.T) {
	e, _ := newTestExecutor(t)
	s := &store.Script{Name: "native_only"}

	_, err := e.Execute(context.Background(), s, []string{"k"})
	if !errors.Is(err, store.ErrUnsupportedScript) {
		t.Fatalf("err = %v, want ErrUnsupportedScript", err)
	}
}

func TestExecutorScriptError(t *testing.T) {
	e, _ := newTestExecutor(t)
	s := &store.Script{Name: "broken", Lua: `return redis.call("NOSUCHCOMMAND")`}

	_, err := e.Execute(context.Background(), s, []string{"k"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ratelimit/store/redis: broken") {
		t.Errorf("err = %q, want script name in message", err)
	}
}

func TestExecutorUnreachable(t *testing.T) {
	e, mr := newTestExecutor(t)
	mr.Close()

	if _, err := e.Execute(context.Background(), incrScript, []string{"k"}, 1, 1000); err == nil {
		t.Fatal("expected error from closed server")
	}
}
