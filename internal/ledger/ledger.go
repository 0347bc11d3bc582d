// Package ledger persists simulation runs in an append-only SQLite database.
// Each tick's snapshot and resulting store digest are chained by hash so a
// run can be verified offline and replayed into a fresh kernel.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrUnknownRun = errors.New("unknown run")
	ErrTampered   = errors.New("ledger chain broken")
	ErrOutOfOrder = errors.New("tick out of order")
)

// genesis is the chain value preceding a run's first entry.
var genesis = make([]byte, sha256.Size)

// Run is one recorded kernel instance.
type Run struct {
	ID        uuid.UUID
	Seed      uint64
	Config    *config.Config
	CreatedAt time.Time
	Ticks     uint64
}

// Entry is one ledger row.
type Entry struct {
	Tick     uint64
	Snapshot types.Snapshot
	Digest   string
	Hash     string

	raw []byte // snapshot as hashed
}

// Ledger wraps the database handle. Appends are serialized.
type Ledger struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens the ledger at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// One connection: an in-memory database is per connection.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Ledger("ledger opened: %s", path)
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database location.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		config_yaml TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL,
		digest TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (run_id, tick),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Store checkpoints; confidences are IEEE-754 bits so reloads are exact.
	CREATE TABLE IF NOT EXISTS formulas (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		id INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		subject TEXT NOT NULL,
		predicates_json TEXT NOT NULL,
		condition_id INTEGER NOT NULL,
		consequence_id INTEGER NOT NULL,
		confidence_bits INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		active INTEGER NOT NULL,
		abstract INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick, id)
	);
	CREATE INDEX IF NOT EXISTS idx_formulas_run ON formulas(run_id, tick);
	`
	_, err := l.db.ExecContext(ctx, schema)
	return err
}

// BeginRun records cfg and returns the new run's id.
func (l *Ledger) BeginRun(ctx context.Context, cfg config.Config) (uuid.UUID, error) {
	data, err := cfg.Marshal()
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, config_yaml, created_at) VALUES (?, ?, ?, ?)`,
		id.String(), int64(cfg.Seed), string(data), time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record run: %w", err)
	}
	logging.Ledger("run %s started (seed=%d)", id, cfg.Seed)
	return id, nil
}

// chain computes sha256(prev || tick || snapshot || digest).
func chain(prev []byte, tick uint64, snapshot []byte, digest string) []byte {
	h := sha256.New()
	h.Write(prev)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tick)
	h.Write(buf[:])
	h.Write(snapshot)
	h.Write([]byte(digest))
	return h.Sum(nil)
}

// Append logs the snapshot fed to tick and the digest it produced. Ticks
// must be appended consecutively starting at 1.
func (l *Ledger) Append(ctx context.Context, runID uuid.UUID, tick uint64, snap types.Snapshot, digest string) (Entry, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	if err := requireRun(ctx, tx, runID); err != nil {
		return Entry{}, err
	}

	prev := genesis
	var last uint64
	var lastHash string
	err = tx.QueryRowContext(ctx,
		`SELECT tick, hash FROM ticks WHERE run_id = ? ORDER BY tick DESC LIMIT 1`,
		runID.String()).Scan(&last, &lastHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Entry{}, err
	default:
		if prev, err = hex.DecodeString(lastHash); err != nil {
			return Entry{}, fmt.Errorf("%w: tick %d hash: %v", ErrTampered, last, err)
		}
	}
	if tick != last+1 {
		return Entry{}, fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, tick, last)
	}

	hash := hex.EncodeToString(chain(prev, tick, data, digest))
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticks (run_id, tick, snapshot_json, digest, hash) VALUES (?, ?, ?, ?, ?)`,
		runID.String(), int64(tick), string(data), digest, hash); err != nil {
		return Entry{}, fmt.Errorf("failed to append tick %d: %w", tick, err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, err
	}
	return Entry{Tick: tick, Snapshot: snap, Digest: digest, Hash: hash, raw: data}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func requireRun(ctx context.Context, q queryer, runID uuid.UUID) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID.String()).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Run loads a run's metadata and configuration.
func (l *Ledger) Run(ctx context.Context, runID uuid.UUID) (Run, error) {
	var (
		seed    int64
		cfgYAML string
		created time.Time
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT seed, config_yaml, created_at FROM runs WHERE id = ?`, runID.String()).
		Scan(&seed, &cfgYAML, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return Run{}, err
	}
	cfg, err := config.Unmarshal([]byte(cfgYAML))
	if err != nil {
		return Run{}, err
	}

	var ticks sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM ticks WHERE run_id = ?`, runID.String()).Scan(&ticks); err != nil {
		return Run{}, err
	}
	return Run{ID: runID, Seed: uint64(seed), Config: cfg, CreatedAt: created, Ticks: uint64(ticks.Int64)}, nil
}

// Runs lists every recorded run, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("bad run id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		r, err := l.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Entries returns a run's ticks in order.
func (l *Ledger) Entries(ctx context.Context, runID uuid.UUID) ([]Entry, error) {
	if err := requireRun(ctx, l.db, runID); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT tick, snapshot_json, digest, hash FROM ticks WHERE run_id = ? ORDER BY tick`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			data string
		)
		if err := rows.Scan(&e.Tick, &data, &e.Digest, &e.Hash); err != nil {
			return nil, err
		}
		e.raw = []byte(data)
		if err := json.Unmarshal(e.raw, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("%w: tick %d snapshot: %v", ErrTampered, e.Tick, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify recomputes the hash chain of a run.
func (l *Ledger) Verify(ctx context.Context, runID uuid.UUID) error {
	entries, err := l.Entries(ctx, runID)
	if err != nil {
		return err
	}
	prev := genesis
	for i, e := range entries {
		if e.Tick != uint64(i+1) {
			return fmt.Errorf("%w: tick %d at position %d", ErrTampered, e.Tick, i)
		}
		sum := chain(prev, e.Tick, e.raw, e.Digest)
		if hex.EncodeToString(sum) != e.Hash {
			logging.LedgerError("run %s: hash mismatch at tick %d", runID, e.Tick)
			return fmt.Errorf("%w: tick %d", ErrTampered, e.Tick)
		}
		prev = sum
	}
	logging.Ledger("run %s verified: %d ticks", runID, len(entries))
	return nil
}
