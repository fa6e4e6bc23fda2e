package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/errors"
	"github.com/schaermu/syncicloudgit/internal/git"
	"github.com/schaermu/syncicloudgit/internal/printer"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	found        bool
	acquireErr   error
	loadErr      error
	cloneErr     error
	commitErr    error
	pushErr      error
	commitReport git.Report
	pushReport   git.Report
	calls        []string
}

func (m *mockRepo) AcquireOrRefresh(context.Context) (bool, error) {
	m.calls = append(m.calls, "acquire")
	return m.found, m.acquireErr
}

func (m *mockRepo) LoadOnly(context.Context) (bool, error) {
	m.calls = append(m.calls, "load")
	return m.found, m.loadErr
}

func (m *mockRepo) Clone(context.Context) error {
	m.calls = append(m.calls, "clone")
	return m.cloneErr
}

func (m *mockRepo) CommitAll(context.Context) (git.Report, error) {
	m.calls = append(m.calls, "commit")
	return m.commitReport, m.commitErr
}

func (m *mockRepo) PushAll(context.Context) (git.Report, error) {
	m.calls = append(m.calls, "push")
	return m.pushReport, m.pushErr
}

func (m *mockRepo) DiffSummary(_ context.Context, w io.Writer) {
	m.calls = append(m.calls, "diff")
	fmt.Fprintln(w, "main repository: no changes")
}

// mockMirror implements Mirror for testing.
type mockMirror struct {
	syncErr error
	called  bool
}

func (m *mockMirror) SyncToRepo(context.Context) error {
	m.called = true
	return m.syncErr
}

func (m *mockMirror) RemotePath() string { return "iclouddrive:Documents" }
func (m *mockMirror) FileCount() int     { return 4 }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestContext(mode config.Mode, repo Repository, mirror Mirror) (*SyncContext, *bytes.Buffer) {
	var out bytes.Buffer
	s := config.Default()
	s.Sync.Step = mode
	s.Git.RepoPath = "/srv/synced_repo"
	return &SyncContext{
		Settings: s,
		Repo:     repo,
		Mirror:   mirror,
		Printer:  printer.New(&out),
		Logger:   testLogger(),
	}, &out
}

func run(t *testing.T, sc *SyncContext) error {
	t.Helper()
	p, err := New(sc.Mode())
	require.NoError(t, err)
	return p.Run(context.Background(), sc)
}

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return names
}

func TestStepsFor(t *testing.T) {
	tests := []struct {
		mode config.Mode
		want []Step
	}{
		{config.ModeClone, []Step{CloneOnly{}}},
		{config.ModeUpdate, []Step{AcquireOrRefresh{}}},
		{config.ModeSync, []Step{LoadOnly{}, CloudSync{}, ReportDiff{}, CommitAll{}, PushAll{}}},
		{config.ModeAll, []Step{AcquireOrRefresh{}, CloneOnly{}, CloudSync{}, ReportDiff{}, CommitAll{}, PushAll{}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := StepsFor(tt.mode)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StepsFor(%s) mismatch (-want +got):\n%s", tt.mode, diff)
			}

			p, err := New(tt.mode)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, p.Steps()); diff != "" {
				t.Errorf("New(%s).Steps() mismatch (-want +got):\n%s", tt.mode, diff)
			}
		})
	}
}

func TestStepsFor_UnknownMode(t *testing.T) {
	_, err := StepsFor("push")
	assert.True(t, errors.Is(err, errors.ErrUnknownMode))

	_, err = New("")
	assert.True(t, errors.Is(err, errors.ErrUnknownMode))
}

func TestRun_AllMode_ExistingRepositorySkipsClone(t *testing.T) {
	repo := &mockRepo{found: true}
	mirror := &mockMirror{}
	sc, out := newTestContext(config.ModeAll, repo, mirror)

	require.NoError(t, run(t, sc))

	assert.Equal(t, []string{"acquire", "diff", "commit", "push"}, repo.calls)
	assert.True(t, mirror.called)
	assert.True(t, sc.RepositoryWasUpdated)

	require.Len(t, sc.Results, 6)
	assert.Equal(t, "Clone repository", sc.Results[1].Step)
	assert.Equal(t, printer.StatusSkipped, sc.Results[1].Status)
	assert.NotContains(t, out.String(), "--- Clone repository ---")
	assert.Contains(t, out.String(), "✅ Synced 4 files from iclouddrive:Documents")
	assert.Contains(t, out.String(), "Sync operation completed successfully!")
}

func TestRun_AllMode_MissingRepositoryClones(t *testing.T) {
	repo := &mockRepo{found: false}
	sc, out := newTestContext(config.ModeAll, repo, &mockMirror{})

	require.NoError(t, run(t, sc))

	assert.Equal(t, []string{"acquire", "clone", "diff", "commit", "push"}, repo.calls)
	assert.False(t, sc.RepositoryWasUpdated)
	assert.Contains(t, out.String(), "ℹ️ No existing repository found")
	assert.Contains(t, out.String(), "✅ Repository cloned to /srv/synced_repo")
}

func TestRun_UpdateMode(t *testing.T) {
	t.Run("missing repository fails", func(t *testing.T) {
		repo := &mockRepo{found: false}
		sc, out := newTestContext(config.ModeUpdate, repo, nil)

		err := run(t, sc)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrRepositoryNotFound))
		assert.Contains(t, out.String(), "--step=clone or --step=all")
		assert.Contains(t, out.String(), "❌ Sync operation failed!")
	})

	t.Run("existing repository succeeds", func(t *testing.T) {
		repo := &mockRepo{found: true}
		sc, out := newTestContext(config.ModeUpdate, repo, nil)

		require.NoError(t, run(t, sc))
		assert.Equal(t, []string{"acquire"}, repo.calls)
		assert.Contains(t, out.String(), "✅ Repository updated from remote")
	})

	t.Run("git failure fails", func(t *testing.T) {
		repo := &mockRepo{found: true, acquireErr: errors.New("git.pull", fmt.Errorf("conflict"))}
		sc, _ := newTestContext(config.ModeUpdate, repo, nil)

		err := run(t, sc)
		assert.Equal(t, "git.pull", errors.Op(err))
		assert.Equal(t, "git.pull", sc.Results[0].Detail)
	})
}

func TestRun_CloneMode(t *testing.T) {
	repo := &mockRepo{}
	sc, _ := newTestContext(config.ModeClone, repo, nil)
	require.NoError(t, run(t, sc))
	assert.Equal(t, []string{"clone"}, repo.calls)

	repo = &mockRepo{cloneErr: errors.New("git.clone", fmt.Errorf("destination exists"))}
	sc, _ = newTestContext(config.ModeClone, repo, nil)
	assert.Error(t, run(t, sc))
}

func TestRun_SyncMode_MissingRepository(t *testing.T) {
	repo := &mockRepo{found: false}
	mirror := &mockMirror{}
	sc, _ := newTestContext(config.ModeSync, repo, mirror)

	err := run(t, sc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRepositoryNotFound))
	assert.False(t, mirror.called)
	assert.Equal(t, []string{"load"}, repo.calls)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	repo := &mockRepo{found: true}
	mirror := &mockMirror{syncErr: errors.New("cloud.sync", fmt.Errorf("exit status 1"))}
	sc, out := newTestContext(config.ModeSync, repo, mirror)

	err := run(t, sc)
	require.Error(t, err)
	assert.ErrorContains(t, err, `step "Sync from cloud" failed`)
	assert.Equal(t, []string{"load"}, repo.calls)

	require.Len(t, sc.Results, 2)
	assert.Equal(t, printer.StatusFailed, sc.Results[1].Status)
	assert.Equal(t, "cloud.sync", sc.Results[1].Detail)
	assert.Contains(t, out.String(), "❌ Sync from cloud failed: cloud.sync: exit status 1")
	assert.NotContains(t, out.String(), "--- Commit changes ---")
}

func TestRun_SubmoduleFailuresAreWarnings(t *testing.T) {
	repo := &mockRepo{
		found: true,
		commitReport: git.Report{Results: []git.UnitResult{
			{Unit: "submodule 'lib'", Err: fmt.Errorf("hook rejected commit")},
			{Unit: git.MainUnit, Changed: true},
		}},
		pushReport: git.Report{Results: []git.UnitResult{
			{Unit: "submodule 'lib'", Err: fmt.Errorf("permission denied")},
			{Unit: git.MainUnit, Changed: true},
		}},
	}
	sc, out := newTestContext(config.ModeSync, repo, &mockMirror{})

	require.NoError(t, run(t, sc))
	assert.Contains(t, out.String(), "⚠️ Failed to commit submodule 'lib': hook rejected commit")
	assert.Contains(t, out.String(), "⚠️ Failed to push submodule 'lib': permission denied")
	assert.Contains(t, out.String(), "✅ Committed changes in main repository")
	assert.Contains(t, out.String(), "✅ Pushed main repository")
}

func TestRun_MainCommitFailureFails(t *testing.T) {
	repo := &mockRepo{
		found:     true,
		commitErr: errors.New("git.commit", fmt.Errorf("index.lock exists")),
		commitReport: git.Report{Results: []git.UnitResult{
			{Unit: git.MainUnit, Err: fmt.Errorf("index.lock exists")},
		}},
	}
	sc, out := newTestContext(config.ModeSync, repo, &mockMirror{})

	err := run(t, sc)
	require.Error(t, err)
	assert.Equal(t, "git.commit", errors.Op(err))
	assert.NotContains(t, repo.calls, "push")
	assert.NotContains(t, out.String(), "⚠️")
}

func TestRun_NothingToCommit(t *testing.T) {
	repo := &mockRepo{found: true}
	sc, out := newTestContext(config.ModeSync, repo, &mockMirror{})

	require.NoError(t, run(t, sc))
	assert.Contains(t, out.String(), "ℹ️ No changes to commit")
	assert.Contains(t, out.String(), "ℹ️ No changes to push")
	assert.Contains(t, out.String(), "main repository: no changes")
}

func TestRun_CancelledContext(t *testing.T) {
	repo := &mockRepo{found: true}
	sc, _ := newTestContext(config.ModeSync, repo, &mockMirror{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(config.ModeSync)
	require.NoError(t, err)
	err = p.Run(ctx, sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, repo.calls)
}

func TestSummarizeError(t *testing.T) {
	assert.Equal(t, "cloud.sync", summarizeError(errors.New("cloud.sync", fmt.Errorf("boom"))))
	assert.Equal(t, "plain failure", summarizeError(fmt.Errorf("plain failure")))

	long := summarizeError(fmt.Errorf("%080d", 0))
	assert.Len(t, long, maxDetailLen)
	assert.True(t, len(long) > 3 && long[len(long)-3:] == "...")
}
