package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/agoscinski/colvar/internal/checkpoint"
	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/engine"
	"github.com/agoscinski/colvar/internal/host"
	"github.com/agoscinski/colvar/internal/traj"
)

// Run drives the engine over the configured trajectory, one step per frame.
// With a checkpoint store configured, history-dependent values are restored
// before the first step and saved after every step, so an interrupted run
// resumes where it stopped.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	reader, err := traj.Open(a.cfg.TrajPath)
	if err != nil {
		return fmt.Errorf("failed to open trajectory: %w", err)
	}
	defer reader.Close()

	var store *checkpoint.Store
	startStep := 0
	if a.cfg.CheckpointPath != "" {
		store, err = checkpoint.Open(a.cfg.CheckpointPath, a.cfg.RunID)
		if err != nil {
			return err
		}
		defer store.Close()
		last, err := store.LoadLatest(ctx, a.arena)
		if err != nil {
			return fmt.Errorf("failed to restore checkpoint: %w", err)
		}
		if last >= 0 {
			startStep = last + 1
		}
		a.logger.Info("Checkpointing enabled.", "run_id", store.RunID(), "start_step", startStep)
	}

	// A resumed run restarts the trajectory file from the top; the frames
	// already folded into the checkpointed state must not be fed again.
	for skipped := 0; skipped < startStep; skipped++ {
		if _, err := reader.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Warn("Trajectory ended before the checkpointed step.",
					"start_step", startStep, "frames_skipped", skipped)
				break
			}
			return fmt.Errorf("failed to fast-forward to step %d: %w", startStep, err)
		}
	}

	ec := &engine.EvalContext{}
	frames := 0
	start := time.Now()
	a.results = &host.Results{}

	for step := startStep; ; step++ {
		if a.cfg.Steps > 0 && frames >= a.cfg.Steps {
			break
		}
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", frames, err)
		}

		if a.atoms.SetFrame(frame) {
			a.logger.Debug("Atom count changed, re-planning fusion.", "atoms", frame.NumberOfAtoms(), "step", step)
			if err := a.engine.Plan(ctx); err != nil {
				return err
			}
		}

		if err := a.engine.Step(ctx, ec, step); err != nil {
			return err
		}
		a.atoms.CollectResults(a.results)
		a.results.Bias = ec.Bias
		if store != nil {
			if err := store.Save(ctx, step, a.arena); err != nil {
				return err
			}
		}
		frames++
	}

	elapsed := time.Since(start)
	a.logger.Info("Run finished.",
		"frames", humanize.Comma(int64(frames)),
		"elapsed", elapsed.Round(time.Millisecond).String(),
		"last_bias", ec.Bias,
	)

	a.logger.Debug("App.Run method finished.")
	return a.outputs.Close()
}
