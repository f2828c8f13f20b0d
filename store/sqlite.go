package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Executor = (*SQLiteExecutor)(nil)

// sweepBatch bounds how many expired keys one Execute call reclaims.
const sweepBatch = 128

const schema = `
CREATE TABLE IF NOT EXISTS ratelimit_keys (
	key        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ratelimit_keys_expiry ON ratelimit_keys (expires_at);
CREATE TABLE IF NOT EXISTS ratelimit_counters (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ratelimit_hashes (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (key, field)
);
CREATE TABLE IF NOT EXISTS ratelimit_log (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	score  INTEGER NOT NULL,
	PRIMARY KEY (key, member)
);
CREATE INDEX IF NOT EXISTS ratelimit_log_score ON ratelimit_log (key, score);
`

var dataTables = []string{"ratelimit_counters", "ratelimit_hashes", "ratelimit_log"}

// SQLiteExecutor is a persistent Executor backed by SQLite. Every script runs
// in its own transaction over a single connection, so scripts are serialised
// within the process. Processes sharing one database file should open it
// with "_txlock=immediate" and a busy timeout in the DSN.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor opens (or creates) a SQLite database at the given DSN and
// initialises the schema. Use ":memory:" for an in-memory database.
func NewSQLiteExecutor(dsn string) (*SQLiteExecutor, error) {
	return NewSQLiteExecutorWithClock(dsn, time.Now)
}

// NewSQLiteExecutorWithClock is NewSQLiteExecutor with key expirations judged
// against now.
func NewSQLiteExecutorWithClock(dsn string, now func() time.Time) (*SQLiteExecutor, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ratelimit/store: open sqlite: %w", err)
	}
	// A second connection to ":memory:" would be a second database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ratelimit/store: create tables: %w", err)
	}

	return &SQLiteExecutor{db: db, now: now}, nil
}

// Execute runs the Native rendering of script inside one transaction.
func (s *SQLiteExecutor) Execute(ctx context.Context, script *Script, keys []string, args ...int64) ([]int64, error) {
	if script == nil || script.Native == nil {
		return nil, fmt.Errorf("%w: sqlite store needs a native script", ErrUnsupportedScript)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ratelimit/store: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	if err := sweep(ctx, tx, now); err != nil {
		return nil, fmt.Errorf("ratelimit/store: sweep: %w", err)
	}

	reply, err := script.Native(&sqliteTx{ctx: ctx, tx: tx, now: now, checked: make(map[string]bool)}, keys, args)
	if err != nil {
		return nil, fmt.Errorf("ratelimit/store: %s: %w", script.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ratelimit/store: commit: %w", err)
	}
	return reply, nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteExecutor) Close() error {
	return s.db.Close()
}

// sweep reclaims a bounded batch of expired keys. Keys written by later
// buckets never touch earlier ones, so expiry cannot rely on lookups alone.
func sweep(ctx context.Context, tx *sql.Tx, now int64) error {
	const expired = `SELECT key FROM ratelimit_keys WHERE expires_at > 0 AND expires_at <= ? ORDER BY expires_at, key LIMIT ?`
	for _, table := range dataTables {
		q := fmt.Sprintf(`DELETE FROM %s WHERE key IN (%s)`, table, expired)
		if _, err := tx.ExecContext(ctx, q, now, sweepBatch); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM ratelimit_keys WHERE key IN (`+expired+`)`, now, sweepBatch)
	return err
}

type sqliteTx struct {
	ctx     context.Context
	tx      *sql.Tx
	now     int64
	checked map[string]bool
}

// live drops key if it has expired. Each key is checked once per transaction.
func (t *sqliteTx) live(key string) error {
	if t.checked[key] {
		return nil
	}
	t.checked[key] = true

	var expiresAt int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT expires_at FROM ratelimit_keys WHERE key = ?`, key,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if expiresAt > 0 && expiresAt <= t.now {
		return t.drop(key)
	}
	return nil
}

func (t *sqliteTx) drop(key string) error {
	for _, table := range dataTables {
		if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM `+table+` WHERE key = ?`, key); err != nil {
			return err
		}
	}
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM ratelimit_keys WHERE key = ?`, key)
	return err
}

// touch registers key so that PExpire can find it.
func (t *sqliteTx) touch(key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ratelimit_keys (key, expires_at) VALUES (?, 0) ON CONFLICT(key) DO NOTHING`, key,
	)
	return err
}

func (t *sqliteTx) Get(key string) (int64, error) {
	if err := t.live(key); err != nil {
		return 0, err
	}
	var v int64
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM ratelimit_counters WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (t *sqliteTx) IncrBy(key string, delta int64) (int64, error) {
	if err := t.live(key); err != nil {
		return 0, err
	}
	if err := t.touch(key); err != nil {
		return 0, err
	}
	var v int64
	err := t.tx.QueryRowContext(t.ctx, `
		INSERT INTO ratelimit_counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + excluded.value
		RETURNING value`, key, delta,
	).Scan(&v)
	return v, err
}

func (t *sqliteTx) PExpire(key string, ttl int64) error {
	if err := t.live(key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE ratelimit_keys SET expires_at = ? WHERE key = ?`, t.now+ttl, key,
	)
	return err
}

func (t *sqliteTx) HGet(key, field string) (int64, bool, error) {
	if err := t.live(key); err != nil {
		return 0, false, err
	}
	var v int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM ratelimit_hashes WHERE key = ? AND field = ?`, key, field,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (t *sqliteTx) HSet(key, field string, value int64) error {
	if err := t.live(key); err != nil {
		return err
	}
	if err := t.touch(key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO ratelimit_hashes (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`, key, field, value,
	)
	return err
}

func (t *sqliteTx) ZAdd(key string, score int64, member string) error {
	if err := t.live(key); err != nil {
		return err
	}
	if err := t.touch(key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO ratelimit_log (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`, key, member, score,
	)
	return err
}

func (t *sqliteTx) ZRemRangeByScore(key string, max int64) error {
	if err := t.live(key); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM ratelimit_log WHERE key = ? AND score <= ?`, key, max,
	); err != nil {
		return err
	}
	n, err := t.ZCard(key)
	if err != nil {
		return err
	}
	if n == 0 {
		// An emptied sorted set disappears along with its expiry.
		return t.drop(key)
	}
	return nil
}

func (t *sqliteTx) ZCard(key string) (int64, error) {
	if err := t.live(key); err != nil {
		return 0, err
	}
	var n int64
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM ratelimit_log WHERE key = ?`, key).Scan(&n)
	return n, err
}

func (t *sqliteTx) ZMin(key string) (int64, bool, error) {
	if err := t.live(key); err != nil {
		return 0, false, err
	}
	var score sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx, `SELECT MIN(score) FROM ratelimit_log WHERE key = ?`, key).Scan(&score)
	if err != nil {
		return 0, false, err
	}
	return score.Int64, score.Valid, nil
}
