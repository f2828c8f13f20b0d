// Package store defines the [Executor] contract the rate limiter uses to run
// its atomic scripts, and provides two implementations:
//
//   - [MemoryExecutor]: mutex-guarded in-process state. Atomic within one
//     process only; meant for tests and single-instance deployments.
//   - [SQLiteExecutor]: scripts run inside a SQLite transaction.
//
// The Redis executor lives in the store/redis package.
//
// Custom backends can be created by implementing the [Executor] interface;
// stores without a Lua engine run the [Script.Native] rendering against a [Tx].
package store
