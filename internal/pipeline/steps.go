package pipeline

import (
	"context"
	"fmt"

	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/errors"
	"github.com/schaermu/syncicloudgit/internal/git"
)

// Step is one stage of a run. A non-nil error fails the run.
type Step interface {
	Name() string
	Execute(ctx context.Context, sc *SyncContext) error
}

// Skipper is implemented by steps that can be treated as trivially
// successful depending on earlier results.
type Skipper interface {
	Skip(sc *SyncContext) bool
}

// AcquireOrRefresh refreshes an existing working copy. An absent working
// copy is fine in all mode, where CloneOnly follows, and a failure otherwise.
type AcquireOrRefresh struct{}

func (AcquireOrRefresh) Name() string { return "Acquire or refresh repository" }

func (AcquireOrRefresh) Execute(ctx context.Context, sc *SyncContext) error {
	found, err := sc.Repo.AcquireOrRefresh(ctx)
	if err != nil {
		return err
	}

	sc.RepositoryWasUpdated = found
	if found {
		sc.Printer.Success("Repository updated from remote")
		return nil
	}

	if sc.Mode() == config.ModeAll {
		sc.Printer.Info("No existing repository found, it will be cloned")
		return nil
	}
	return notFound(sc)
}

// CloneOnly clones the remote into the configured path
type CloneOnly struct{}

func (CloneOnly) Name() string { return "Clone repository" }

// Skip is true in all mode once AcquireOrRefresh refreshed a working copy
func (CloneOnly) Skip(sc *SyncContext) bool {
	return sc.Mode() == config.ModeAll && sc.RepositoryWasUpdated
}

func (CloneOnly) Execute(ctx context.Context, sc *SyncContext) error {
	if err := sc.Repo.Clone(ctx); err != nil {
		return err
	}
	sc.Printer.Success("Repository cloned to %s", sc.Settings.Git.RepoPath)
	return nil
}

// LoadOnly opens an existing working copy without network access
type LoadOnly struct{}

func (LoadOnly) Name() string { return "Load repository" }

func (LoadOnly) Execute(ctx context.Context, sc *SyncContext) error {
	found, err := sc.Repo.LoadOnly(ctx)
	if err != nil {
		return err
	}
	if !found {
		return notFound(sc)
	}
	sc.Printer.Success("Repository loaded from %s", sc.Settings.Git.RepoPath)
	return nil
}

// CloudSync mirrors the cloud folder into the working copy
type CloudSync struct{}

func (CloudSync) Name() string { return "Sync from cloud" }

func (CloudSync) Execute(ctx context.Context, sc *SyncContext) error {
	if err := sc.Mirror.SyncToRepo(ctx); err != nil {
		return err
	}
	sc.Printer.Success("Synced %d files from %s", sc.Mirror.FileCount(), sc.Mirror.RemotePath())
	return nil
}

// ReportDiff prints the working copy status. It never fails.
type ReportDiff struct{}

func (ReportDiff) Name() string { return "Detect changes" }

func (ReportDiff) Execute(ctx context.Context, sc *SyncContext) error {
	sc.Repo.DiffSummary(ctx, sc.Printer.Writer())
	return nil
}

// CommitAll commits every changed submodule and then the main repository
type CommitAll struct{}

func (CommitAll) Name() string { return "Commit changes" }

func (CommitAll) Execute(ctx context.Context, sc *SyncContext) error {
	report, err := sc.Repo.CommitAll(ctx)
	warnFailedSubmodules(sc, report, "commit")
	if err != nil {
		return err
	}

	if !report.Changed() {
		sc.Printer.Info("No changes to commit")
		return nil
	}
	sc.Printer.Success("Committed changes in %s", report)
	return nil
}

// PushAll pushes every unit with unpushed commits
type PushAll struct{}

func (PushAll) Name() string { return "Push changes" }

func (PushAll) Execute(ctx context.Context, sc *SyncContext) error {
	report, err := sc.Repo.PushAll(ctx)
	warnFailedSubmodules(sc, report, "push")
	if err != nil {
		return err
	}

	if !report.Changed() {
		sc.Printer.Info("No changes to push")
		return nil
	}
	sc.Printer.Success("Pushed %s", report)
	return nil
}

func warnFailedSubmodules(sc *SyncContext, report git.Report, action string) {
	for _, res := range report.Failed() {
		if res.Unit == git.MainUnit {
			continue
		}
		sc.Printer.Warn("Failed to %s %s: %v", action, res.Unit, res.Err)
	}
}

func notFound(sc *SyncContext) error {
	return fmt.Errorf("%w at %s (use --step=clone or --step=all to create it)",
		errors.ErrRepositoryNotFound, sc.Settings.Git.RepoPath)
}
