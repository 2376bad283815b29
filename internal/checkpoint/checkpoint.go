// Package checkpoint persists history-dependent value buffers so that an
// accumulating run can stop and pick up where it left off. Storage is a
// single sqlite file: one row per (run, step, value name), the buffer as a
// little-endian float64 blob.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/value"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id TEXT NOT NULL,
	step   INTEGER NOT NULL,
	name   TEXT NOT NULL,
	data   BLOB NOT NULL,
	PRIMARY KEY (run_id, step, name)
);
`

// Store is a sqlite-backed checkpoint store bound to one run.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens or creates a checkpoint file. An empty runID starts a fresh
// run under a new identity; passing a known runID resumes it.
func Open(path, runID string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing checkpoint store %s: %w", path, err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Store{db: db, runID: runID}, nil
}

// RunID returns the identity of the run this store is bound to.
func (s *Store) RunID() string { return s.runID }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save writes every history-dependent value of the arena at the given step,
// replacing an earlier checkpoint of the same step.
func (s *Store) Save(ctx context.Context, step int, arena *value.Arena) error {
	logger := ctxlog.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (run_id, step, name, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	saved := 0
	var failed error
	arena.Each(func(_ value.Handle, v *value.Value) {
		if failed != nil || !v.IsHistory() {
			return
		}
		if _, err := stmt.ExecContext(ctx, s.runID, step, v.Name(), encode(v.Data())); err != nil {
			failed = fmt.Errorf("checkpointing %s: %w", v.Name(), err)
			return
		}
		saved++
	})
	if failed != nil {
		return failed
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Debug("Checkpoint written.", "run_id", s.runID, "step", step, "values", saved)
	return nil
}

// LoadLatest restores the most recent checkpoint of this run into the
// arena's history values. It returns the checkpointed step, or -1 when the
// run has no checkpoint yet. Buffers whose size no longer matches the
// stored blob are configuration drift and fail the load.
func (s *Store) LoadLatest(ctx context.Context, arena *value.Arena) (int, error) {
	logger := ctxlog.FromContext(ctx)

	var step sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(step) FROM checkpoints WHERE run_id = ?`, s.runID).Scan(&step)
	if err != nil {
		return -1, err
	}
	if !step.Valid {
		return -1, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, data FROM checkpoints WHERE run_id = ? AND step = ?`, s.runID, step.Int64)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return -1, err
		}
		h, ok := arena.Lookup(name)
		if !ok {
			logger.Warn("Checkpoint holds a value absent from this configuration, skipping.", "name", name)
			continue
		}
		v := arena.Get(h)
		buf := v.Data()
		if len(blob) != 8*len(buf) {
			return -1, fmt.Errorf("checkpointed %s holds %d elements, configuration has %d", name, len(blob)/8, len(buf))
		}
		decode(blob, buf)
		restored++
	}
	if err := rows.Err(); err != nil {
		return -1, err
	}

	logger.Info("Checkpoint restored.", "run_id", s.runID, "step", step.Int64, "values", restored)
	return int(step.Int64), nil
}

func encode(data []float64) []byte {
	out := make([]byte, 8*len(data))
	for i, x := range data {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(x))
	}
	return out
}

func decode(blob []byte, into []float64) {
	for i := range into {
		into[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8*i:]))
	}
}
