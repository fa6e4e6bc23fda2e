package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/syncicloudgit/internal/auth"
	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/errors"
)

// fallbackBranches are tried in order when HEAD is detached
var fallbackBranches = []string{"main", "master"}

// Repository is an open working copy
type Repository struct {
	Path       string
	Submodules []*Submodule
}

// Submodule is a submodule declared in .gitmodules
type Submodule struct {
	Name string
	Path string // relative to the parent repository
	URL  string // as declared, without credentials
	Dir  string // absolute working copy path
	Open bool   // initialized and usable
}

// OpenSubmodules returns the submodules whose working copy was initialized
func (r *Repository) OpenSubmodules() []*Submodule {
	var open []*Submodule
	for _, sm := range r.Submodules {
		if sm.Open {
			open = append(open, sm)
		}
	}
	return open
}

// Store manages the local working copy of the sync target
type Store struct {
	settings *config.Settings
	git      Runner
	logger   *slog.Logger
	repo     *Repository
}

// NewStore creates a store for the repository configured in settings
func NewStore(settings *config.Settings, runner Runner, logger *slog.Logger) *Store {
	return &Store{
		settings: settings,
		git:      runner,
		logger:   logger,
	}
}

// Path returns the configured working copy path
func (s *Store) Path() string {
	return s.settings.Git.RepoPath
}

// Repository returns the open repository, or nil before acquire or clone
func (s *Store) Repository() *Repository {
	return s.repo
}

// Exists reports whether a working copy is present at the configured path
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.Path(), ".git"))
	return err == nil
}

// AcquireOrRefresh opens an existing working copy and brings it up to date
// with its remote. It returns false without running git when no working
// copy exists.
func (s *Store) AcquireOrRefresh(ctx context.Context) (bool, error) {
	if !s.Exists() {
		s.logger.Info("no existing repository found", "path", s.Path())
		return false, nil
	}

	if err := s.open(ctx); err != nil {
		return false, err
	}

	dir := s.Path()
	branch := s.ensureBranch(ctx, dir)

	if _, err := s.git.Run(ctx, dir, "remote", "set-url", "origin", s.settings.AuthRemoteURL()); err != nil {
		return false, errors.New("git.remote", fmt.Errorf("failed to set origin url: %w", err))
	}

	s.logger.Info("fetching updates", "path", dir)
	if _, err := s.git.Run(ctx, dir, "fetch", "origin"); err != nil {
		return false, errors.New("git.fetch", fmt.Errorf("failed to fetch origin: %w", err))
	}

	if branch == "" {
		s.logger.Warn("HEAD is detached, skipping pull", "path", dir)
	} else {
		s.logger.Info("pulling latest changes", "branch", branch)
		if _, err := s.git.Run(ctx, dir, "pull", "--no-rebase", "origin", branch); err != nil {
			return false, errors.New("git.pull", fmt.Errorf("failed to pull %s: %w", branch, err))
		}
	}

	if err := s.UpdateSubmodules(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// LoadOnly opens an existing working copy without any network access
func (s *Store) LoadOnly(ctx context.Context) (bool, error) {
	if !s.Exists() {
		s.logger.Info("no existing repository found", "path", s.Path())
		return false, nil
	}

	if err := s.open(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Clone clones the remote into the configured path and initializes its
// submodules.
func (s *Store) Clone(ctx context.Context) error {
	dir := s.Path()
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return errors.New("git.clone", fmt.Errorf("failed to create parent directory: %w", err))
	}

	s.logger.Info("cloning repository", "url", auth.StripCredentials(s.settings.Git.RemoteURL), "path", dir)
	if _, err := s.git.Run(ctx, "", "clone", s.settings.AuthRemoteURL(), dir); err != nil {
		return errors.New("git.clone", fmt.Errorf("git clone failed: %w", err))
	}

	if err := s.open(ctx); err != nil {
		return err
	}

	return s.UpdateSubmodules(ctx)
}

// UpdateSubmodules initializes every declared submodule at the latest tip
// of its tracked branch, then leaves each one on a named branch with the
// commit identity and authenticated origin applied. Only the bulk update is
// fatal; per-submodule setup failures are logged and ignored.
func (s *Store) UpdateSubmodules(ctx context.Context) error {
	if s.repo == nil {
		return errors.New("git.submodule", fmt.Errorf("repository is not open"))
	}

	dir := s.repo.Path
	subs, err := s.readSubmodules(ctx, dir)
	if err != nil {
		return errors.New("git.submodule", err)
	}
	s.repo.Submodules = subs
	if len(subs) == 0 {
		return nil
	}

	for _, sm := range subs {
		authURL := s.submoduleAuthURL(sm)
		if authURL == sm.URL {
			continue
		}
		key := "submodule." + sm.Name + ".url"
		if _, err := s.git.Run(ctx, dir, "config", key, authURL); err != nil {
			return errors.New("git.submodule", fmt.Errorf("failed to configure %s: %w", key, err))
		}
	}

	s.logger.Info("updating submodules", "count", len(subs))
	if _, err := s.git.Run(ctx, dir, "submodule", "update", "--init", "--remote", "--recursive"); err != nil {
		return errors.New("git.submodule", fmt.Errorf("submodule update failed: %w", err))
	}

	for _, sm := range subs {
		if _, err := os.Stat(filepath.Join(sm.Dir, ".git")); err != nil {
			s.logger.Debug("submodule not initialized", "submodule", sm.Name, "error", err)
			continue
		}
		sm.Open = true
		s.prepareSubmodule(ctx, sm)
	}

	return nil
}

// prepareSubmodule puts a submodule on a named branch so later commits are
// pushable. Every failure here is non-fatal.
func (s *Store) prepareSubmodule(ctx context.Context, sm *Submodule) {
	for _, branch := range fallbackBranches {
		if _, err := s.git.Run(ctx, sm.Dir, "checkout", branch); err != nil {
			s.logger.Debug("submodule checkout failed", "submodule", sm.Name, "branch", branch, "error", err)
			continue
		}
		// submodule update --remote detaches at the remote tip; catch the
		// local branch up to it.
		if _, err := s.git.Run(ctx, sm.Dir, "merge", "--ff-only", "origin/"+branch); err != nil {
			s.logger.Debug("submodule fast-forward failed", "submodule", sm.Name, "branch", branch, "error", err)
		}
		break
	}

	if err := s.applyIdentity(ctx, sm.Dir); err != nil {
		s.logger.Debug("failed to set submodule identity", "submodule", sm.Name, "error", err)
	}

	if authURL := s.submoduleAuthURL(sm); authURL != sm.URL {
		if _, err := s.git.Run(ctx, sm.Dir, "remote", "set-url", "origin", authURL); err != nil {
			s.logger.Debug("failed to set submodule origin", "submodule", sm.Name, "error", err)
		}
	}
}

func (s *Store) submoduleAuthURL(sm *Submodule) string {
	return auth.InjectCredentials(sm.URL, s.settings.Git.Username, s.settings.Git.PAT)
}

// open records the working copy as open and applies the commit identity
func (s *Store) open(ctx context.Context) error {
	dir := s.Path()
	if err := s.applyIdentity(ctx, dir); err != nil {
		return errors.New("git.config", err)
	}

	subs, err := s.readSubmodules(ctx, dir)
	if err != nil {
		return errors.New("git.submodule", err)
	}
	for _, sm := range subs {
		if _, err := os.Stat(filepath.Join(sm.Dir, ".git")); err == nil {
			sm.Open = true
		}
	}

	s.repo = &Repository{Path: dir, Submodules: subs}
	return nil
}

func (s *Store) applyIdentity(ctx context.Context, dir string) error {
	if _, err := s.git.Run(ctx, dir, "config", "user.name", s.settings.Git.CommitUsername); err != nil {
		return fmt.Errorf("failed to set user.name: %w", err)
	}
	if _, err := s.git.Run(ctx, dir, "config", "user.email", s.settings.Git.CommitEmail); err != nil {
		return fmt.Errorf("failed to set user.email: %w", err)
	}
	return nil
}

// ensureBranch returns the checked out branch. A detached HEAD is moved to
// the first fallback branch that exists; if none does, HEAD stays detached
// and the empty string is returned.
func (s *Store) ensureBranch(ctx context.Context, dir string) string {
	if branch, ok := s.currentBranch(ctx, dir); ok {
		return branch
	}

	for _, branch := range fallbackBranches {
		if _, err := s.git.Run(ctx, dir, "checkout", branch); err == nil {
			s.logger.Info("checked out branch for detached HEAD", "branch", branch)
			return branch
		}
	}
	return ""
}

// CurrentBranch returns the branch checked out in the main working copy
func (s *Store) CurrentBranch(ctx context.Context) (string, bool) {
	return s.currentBranch(ctx, s.Path())
}

func (s *Store) currentBranch(ctx context.Context, dir string) (string, bool) {
	out, err := s.git.Run(ctx, dir, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return "", false
	}
	branch := strings.TrimSpace(out)
	return branch, branch != ""
}

// readSubmodules parses .gitmodules in dir. A missing file means no
// submodules.
func (s *Store) readSubmodules(ctx context.Context, dir string) ([]*Submodule, error) {
	if _, err := os.Stat(filepath.Join(dir, ".gitmodules")); err != nil {
		return nil, nil
	}

	out, err := s.git.Run(ctx, dir, "config", "-f", ".gitmodules", "--get-regexp", `^submodule\..*\.(path|url)$`)
	if err != nil {
		// exit status 1 with no output: the file declares nothing
		if strings.TrimSpace(out) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .gitmodules: %w", err)
	}

	return parseSubmoduleConfig(dir, out), nil
}

// parseSubmoduleConfig turns `git config --get-regexp` output into
// submodules, preserving declaration order.
func parseSubmoduleConfig(dir, out string) []*Submodule {
	var subs []*Submodule
	byName := map[string]*Submodule{}

	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(key, "submodule.")
		idx := strings.LastIndex(key, ".")
		if idx <= 0 {
			continue
		}
		name, field := key[:idx], key[idx+1:]

		sm, ok := byName[name]
		if !ok {
			sm = &Submodule{Name: name}
			byName[name] = sm
			subs = append(subs, sm)
		}
		switch field {
		case "path":
			sm.Path = value
			sm.Dir = filepath.Join(dir, value)
		case "url":
			sm.URL = value
		}
	}

	// A submodule without a path cannot be checked out.
	valid := subs[:0]
	for _, sm := range subs {
		if sm.Path != "" {
			valid = append(valid, sm)
		}
	}
	return valid
}
