package pipeline

import (
	"context"
	"io"
	"log/slog"

	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/git"
	"github.com/schaermu/syncicloudgit/internal/printer"
)

// Repository is the version-control side of a run
type Repository interface {
	AcquireOrRefresh(ctx context.Context) (bool, error)
	LoadOnly(ctx context.Context) (bool, error)
	Clone(ctx context.Context) error
	CommitAll(ctx context.Context) (git.Report, error)
	PushAll(ctx context.Context) (git.Report, error)
	DiffSummary(ctx context.Context, w io.Writer)
}

// Mirror is the cloud side of a run
type Mirror interface {
	SyncToRepo(ctx context.Context) error
	RemotePath() string
	FileCount() int
}

// SyncContext carries the state shared by the steps of one run. It is
// created once per run and handed to every step in turn.
type SyncContext struct {
	Settings *config.Settings
	Repo     Repository
	Mirror   Mirror
	Printer  *printer.Printer
	Logger   *slog.Logger

	// RepositoryWasUpdated is set by AcquireOrRefresh when an existing
	// working copy was refreshed; a later CloneOnly is then skipped.
	RepositoryWasUpdated bool

	// Results holds one row per step, in execution order
	Results []printer.Row
}

// Mode returns the run mode
func (sc *SyncContext) Mode() config.Mode {
	return sc.Settings.Sync.Step
}
