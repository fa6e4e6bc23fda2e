// Package pipeline runs the sync as an ordered list of steps selected by the
// run mode. Steps share a SyncContext and the first failing step ends the
// run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/errors"
	"github.com/schaermu/syncicloudgit/internal/printer"
)

// StepsFor returns the steps run in the given mode
func StepsFor(mode config.Mode) ([]Step, error) {
	switch mode {
	case config.ModeClone:
		return []Step{CloneOnly{}}, nil
	case config.ModeUpdate:
		return []Step{AcquireOrRefresh{}}, nil
	case config.ModeSync:
		return []Step{LoadOnly{}, CloudSync{}, ReportDiff{}, CommitAll{}, PushAll{}}, nil
	case config.ModeAll:
		return []Step{AcquireOrRefresh{}, CloneOnly{}, CloudSync{}, ReportDiff{}, CommitAll{}, PushAll{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", errors.ErrUnknownMode, mode)
}

const maxDetailLen = 60

// Pipeline is an ordered list of steps
type Pipeline struct {
	steps []Step
}

// New creates the pipeline for mode
func New(mode config.Mode) (*Pipeline, error) {
	steps, err := StepsFor(mode)
	if err != nil {
		return nil, err
	}
	return &Pipeline{steps: steps}, nil
}

// Steps returns the steps in execution order
func (p *Pipeline) Steps() []Step {
	return p.steps
}

// Run executes the steps in order, stopping at the first failure, then
// prints the run summary and the final status line.
func (p *Pipeline) Run(ctx context.Context, sc *SyncContext) error {
	sc.Logger.Info("starting sync", "mode", sc.Mode(), "steps", len(p.steps))

	err := p.runSteps(ctx, sc)

	sc.Printer.Summary(sc.Results)
	fmt.Fprintln(sc.Printer.Writer())
	if err != nil {
		sc.Logger.Error("sync failed", "error", err)
		sc.Printer.Failure("Sync operation failed!")
		return err
	}

	sc.Logger.Info("sync completed successfully")
	sc.Printer.Success("Sync operation completed successfully!")
	return nil
}

func (p *Pipeline) runSteps(ctx context.Context, sc *SyncContext) error {
	for _, step := range p.steps {
		name := step.Name()

		if err := ctx.Err(); err != nil {
			sc.record(name, printer.StatusFailed, 0, err)
			return fmt.Errorf("step %q not started: %w", name, err)
		}

		if skipper, ok := step.(Skipper); ok && skipper.Skip(sc) {
			sc.Logger.Debug("skipping step", "step", name)
			sc.Results = append(sc.Results, printer.Row{Step: name, Status: printer.StatusSkipped})
			continue
		}

		sc.Printer.Heading(name)
		sc.Logger.Debug("running step", "step", name)

		start := time.Now()
		err := step.Execute(ctx, sc)
		elapsed := time.Since(start)

		if err != nil {
			sc.Printer.Failure("%s failed: %v", name, err)
			sc.record(name, printer.StatusFailed, elapsed, err)
			return fmt.Errorf("step %q failed: %w", name, err)
		}
		sc.record(name, printer.StatusSuccess, elapsed, nil)
	}
	return nil
}

func (sc *SyncContext) record(step string, status printer.Status, elapsed time.Duration, err error) {
	row := printer.Row{Step: step, Status: status, Duration: elapsed}
	if err != nil {
		row.Detail = summarizeError(err)
	}
	sc.Results = append(sc.Results, row)
}

// summarizeError shortens an error for the summary table, preferring the
// failed operation name.
func summarizeError(err error) string {
	if op := errors.Op(err); op != "" {
		return op
	}
	msg := err.Error()
	if len(msg) > maxDetailLen {
		msg = msg[:maxDetailLen-3] + "..."
	}
	return msg
}
