package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"cogkernel/internal/core"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"

	"github.com/google/uuid"
)

// ErrDivergence means a replayed tick produced a different digest.
var ErrDivergence = errors.New("replay diverged")

// SaveFormulas checkpoints the store as it stood after tick.
func (l *Ledger) SaveFormulas(ctx context.Context, runID uuid.UUID, tick uint64, formulas []types.Formula) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := requireRun(ctx, tx, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM formulas WHERE run_id = ? AND tick = ?`, runID.String(), int64(tick)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO formulas (run_id, tick, id, kind, subject, predicates_json, condition_id,
			consequence_id, confidence_bits, created_at, active, abstract)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range formulas {
		preds, err := json.Marshal(f.Predicates)
		if err != nil {
			return fmt.Errorf("formula %d: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID.String(), int64(tick), int64(f.ID), int64(f.Kind), f.Subject, string(preds),
			int64(f.Condition), int64(f.Consequence), int64(math.Float64bits(f.Confidence)),
			int64(f.CreatedAt), f.Active, f.Abstract,
		); err != nil {
			return fmt.Errorf("failed to save formula %d: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Ledger("run %s: checkpointed %d formulas at tick %d", runID, len(formulas), tick)
	return nil
}

// LoadFormulas reads the checkpoint taken at tick, in id order.
func (l *Ledger) LoadFormulas(ctx context.Context, runID uuid.UUID, tick uint64) ([]types.Formula, error) {
	if err := requireRun(ctx, l.db, runID); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, kind, subject, predicates_json, condition_id, consequence_id,
			confidence_bits, created_at, active, abstract
		FROM formulas WHERE run_id = ? AND tick = ? ORDER BY id`, runID.String(), int64(tick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Formula
	for rows.Next() {
		var (
			id, kind, cond, cons, bits, created int64
			preds                               string
			f                                   types.Formula
		)
		if err := rows.Scan(&id, &kind, &f.Subject, &preds, &cond, &cons, &bits, &created, &f.Active, &f.Abstract); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(preds), &f.Predicates); err != nil {
			return nil, fmt.Errorf("formula %d predicates: %w", id, err)
		}
		f.ID = types.FormulaID(id)
		f.Kind = types.FormulaKind(kind)
		f.Condition = types.FormulaID(cond)
		f.Consequence = types.FormulaID(cons)
		f.Confidence = math.Float64frombits(uint64(bits))
		f.CreatedAt = uint64(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Rehydrate rebuilds a run's kernel by replaying its logged snapshots into
// a fresh kernel with the logged configuration. Every tick's digest must
// match the logged one.
func (l *Ledger) Rehydrate(ctx context.Context, runID uuid.UUID) (*core.Kernel, error) {
	timer := logging.StartTimer(logging.CategoryLedger, "ledger.Rehydrate")
	defer timer.Stop()

	if err := l.Verify(ctx, runID); err != nil {
		return nil, err
	}
	run, err := l.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	entries, err := l.Entries(ctx, runID)
	if err != nil {
		return nil, err
	}

	k, err := core.New(*run.Config)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := k.Tick(e.Snapshot); err != nil {
			return nil, fmt.Errorf("replay tick %d: %w", e.Tick, err)
		}
		if got := k.Digest(); got != e.Digest {
			logging.LedgerError("run %s: replay diverged at tick %d", runID, e.Tick)
			return nil, fmt.Errorf("%w at tick %d: got %s, logged %s", ErrDivergence, e.Tick, got, e.Digest)
		}
	}
	logging.Ledger("run %s rehydrated at tick %d", runID, k.CurrentTick())
	return k, nil
}
