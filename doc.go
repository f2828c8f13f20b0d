// Package ratelimit enforces request quotas for any number of callers against
// a shared counter store, so that stateless processes agree on one
// authoritative quota without talking to each other.
//
// # Key Concepts
//
//   - An [Algorithm] decides how requests are counted: [FixedWindow],
//     [SlidingWindow], [SlidingLog] or [TokenBucket].
//   - A [store.Executor] runs the algorithm's script atomically. Redis runs
//     the Lua rendering (see package store/redis); [store.MemoryExecutor] and
//     [store.SQLiteExecutor] run the native one.
//   - [Limiter.Limit] makes one round trip per call and returns a [Decision].
//     With [WithTimeout] a slow store lets the request through instead of
//     blocking it.
//
// # Quick Start
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	limiter, err := ratelimit.New(
//		ratelimit.WithStore(redisstore.NewExecutor(client)),
//		ratelimit.WithAlgorithm(ratelimit.SlidingWindow{Tokens: 10, Window: 10 * time.Second}),
//		ratelimit.WithTimeout(50*time.Millisecond),
//	)
//	if err != nil {
//		return err
//	}
//
//	d, err := limiter.Limit(ctx, userID)
//	if err != nil {
//		return err
//	}
//	if !d.Allowed {
//		// reject, retry after d.Reset
//	}
//
// Keys are laid out as "{prefix}:{identifier}:{bucket}" for the window
// algorithms and "{prefix}:{identifier}" for the others, with the prefix
// defaulting to [DefaultPrefix].
//
// [Limiter.Transport] applies a Limiter to outgoing HTTP requests.
package ratelimit
