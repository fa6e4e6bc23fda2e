package git

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/schaermu/syncicloudgit/internal/errors"
)

// MainUnit labels the main repository in reports
const MainUnit = "main repository"

// UnitResult is the outcome of one repository in a commit or push pass
type UnitResult struct {
	Unit    string
	Changed bool
	Err     error
}

// Report collects the per-unit outcomes of a commit or push pass, submodules
// first and the main repository last.
type Report struct {
	Results []UnitResult
}

// Changed returns true if any unit created a commit or pushed
func (r Report) Changed() bool {
	for _, res := range r.Results {
		if res.Changed {
			return true
		}
	}
	return false
}

// Failed returns the units that reported an error
func (r Report) Failed() []UnitResult {
	var failed []UnitResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// ChangedUnits returns the labels of the units that changed
func (r Report) ChangedUnits() []string {
	var units []string
	for _, res := range r.Results {
		if res.Changed {
			units = append(units, res.Unit)
		}
	}
	return units
}

// String lists the changed units, e.g. "submodule 'docs', main repository"
func (r Report) String() string {
	return strings.Join(r.ChangedUnits(), ", ")
}

func submoduleUnit(sm *Submodule) string {
	return fmt.Sprintf("submodule '%s'", sm.Name)
}

// CommitAll commits pending changes in every open submodule and then in the
// main repository. Submodule failures are recorded in the report and do not
// stop the pass; a main repository failure is returned.
func (s *Store) CommitAll(ctx context.Context) (Report, error) {
	var report Report
	if s.repo == nil {
		return report, errors.New("git.commit", fmt.Errorf("repository is not open"))
	}

	for _, sm := range s.repo.OpenSubmodules() {
		changed, err := s.commitUnit(ctx, sm.Dir, false)
		if err != nil {
			s.logger.Warn("failed to commit submodule", "submodule", sm.Name, "error", err)
		} else if changed {
			s.logger.Info("committed submodule changes", "submodule", sm.Name)
		}
		report.Results = append(report.Results, UnitResult{Unit: submoduleUnit(sm), Changed: changed, Err: err})
	}

	changed, err := s.commitUnit(ctx, s.repo.Path, true)
	report.Results = append(report.Results, UnitResult{Unit: MainUnit, Changed: changed, Err: err})
	if err != nil {
		return report, errors.New("git.commit", err)
	}
	if changed {
		s.logger.Info("committed main repository changes")
	}

	return report, nil
}

// commitUnit stages and commits everything in dir when it has changes. The
// main repository ignores uncommitted work inside submodules but still sees
// moved submodule pointers.
func (s *Store) commitUnit(ctx context.Context, dir string, main bool) (bool, error) {
	dirty, err := s.isDirty(ctx, dir, main)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	if _, err := s.git.Run(ctx, dir, "add", "-A"); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}
	if _, err := s.git.Run(ctx, dir, "commit", "-m", s.settings.Git.CommitMessage); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

func (s *Store) isDirty(ctx context.Context, dir string, main bool) (bool, error) {
	args := []string{"status", "--porcelain"}
	if main {
		args = append(args, "--ignore-submodules=dirty")
	}
	out, err := s.git.Run(ctx, dir, args...)
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// PushAll pushes every open submodule and then the main repository. Units
// that are detached or have nothing ahead of their upstream are skipped.
func (s *Store) PushAll(ctx context.Context) (Report, error) {
	var report Report
	if s.repo == nil {
		return report, errors.New("git.push", fmt.Errorf("repository is not open"))
	}

	for _, sm := range s.repo.OpenSubmodules() {
		pushed, err := s.pushUnit(ctx, sm.Dir)
		if err != nil {
			s.logger.Warn("failed to push submodule", "submodule", sm.Name, "error", err)
		} else if pushed {
			s.logger.Info("pushed submodule", "submodule", sm.Name)
		}
		report.Results = append(report.Results, UnitResult{Unit: submoduleUnit(sm), Changed: pushed, Err: err})
	}

	pushed, err := s.pushUnit(ctx, s.repo.Path)
	report.Results = append(report.Results, UnitResult{Unit: MainUnit, Changed: pushed, Err: err})
	if err != nil {
		return report, errors.New("git.push", err)
	}
	if pushed {
		s.logger.Info("pushed main repository")
	}

	return report, nil
}

func (s *Store) pushUnit(ctx context.Context, dir string) (bool, error) {
	branch, ok := s.currentBranch(ctx, dir)
	if !ok {
		s.logger.Info("HEAD is detached, skipping push", "dir", dir)
		return false, nil
	}

	ahead, err := s.aheadCount(ctx, dir, branch)
	if err != nil {
		return false, err
	}
	if ahead == 0 {
		s.logger.Debug("nothing to push", "dir", dir, "branch", branch)
		return false, nil
	}

	s.logger.Info("pushing commits", "dir", dir, "branch", branch, "ahead", ahead)
	if _, err := s.git.Run(ctx, dir, "push", "origin", branch); err != nil {
		return false, fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return true, nil
}

// aheadCount returns the number of local commits not on the remote. The
// upstream tracking ref is preferred, then origin/<branch>. When neither
// exists every commit counts as ahead.
func (s *Store) aheadCount(ctx context.Context, dir, branch string) (int, error) {
	if _, err := s.git.Run(ctx, dir, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		// unborn branch
		return 0, nil
	}

	base := ""
	if _, err := s.git.Run(ctx, dir, "rev-parse", "--verify", "-q", "@{upstream}"); err == nil {
		base = "@{upstream}"
	} else if _, err := s.git.Run(ctx, dir, "rev-parse", "--verify", "-q", "refs/remotes/origin/"+branch); err == nil {
		base = "origin/" + branch
	}

	rangeSpec := "HEAD"
	if base != "" {
		rangeSpec = base + "..HEAD"
	}

	out, err := s.git.Run(ctx, dir, "rev-list", "--count", rangeSpec)
	if err != nil {
		return 0, fmt.Errorf("failed to count unpushed commits: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return n, nil
}

// DiffSummary writes the porcelain status of the main repository and each
// open submodule to w. Errors are written as lines; it never fails.
func (s *Store) DiffSummary(ctx context.Context, w io.Writer) {
	if s.repo == nil {
		fmt.Fprintln(w, "repository is not open")
		return
	}

	s.writeStatus(ctx, w, MainUnit, s.repo.Path)
	for _, sm := range s.repo.OpenSubmodules() {
		s.writeStatus(ctx, w, submoduleUnit(sm), sm.Dir)
	}
}

func (s *Store) writeStatus(ctx context.Context, w io.Writer, unit, dir string) {
	out, err := s.git.Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		fmt.Fprintf(w, "%s: failed to read status: %v\n", unit, err)
		return
	}

	out = strings.TrimRight(out, "\n")
	if strings.TrimSpace(out) == "" {
		fmt.Fprintf(w, "%s: no changes\n", unit)
		return
	}

	fmt.Fprintf(w, "%s:\n", unit)
	for _, line := range strings.Split(out, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
