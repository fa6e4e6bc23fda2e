package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/syncicloudgit/internal/auth"
	"github.com/schaermu/syncicloudgit/internal/errors"
)

// Mode selects which pipeline steps run
type Mode string

const (
	ModeAll    Mode = "all"
	ModeClone  Mode = "clone"
	ModeUpdate Mode = "update"
	ModeSync   Mode = "sync"
)

// Modes lists every valid mode in display order.
var Modes = []Mode{ModeAll, ModeClone, ModeUpdate, ModeSync}

// ParseMode converts s into a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (must be all, clone, update, or sync)", errors.ErrUnknownMode, s)
	}
	return m, nil
}

// Valid returns true for the four known modes
func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeClone, ModeUpdate, ModeSync:
		return true
	}
	return false
}

const (
	DefaultRemoteName     = "iclouddrive"
	DefaultCommitMessage  = "Sync git with iCloud Drive"
	DefaultCommitUsername = "Sync Bot"
	DefaultCommitEmail    = "sync-bot@example.com"
	DefaultRepoDir        = "synced_repo"
	DefaultSyncTimeout    = 30 * time.Minute
)

// DefaultExcludePatterns are always passed to the transfer engine, ahead of
// any user patterns, so the cloud side can never overwrite git metadata.
var DefaultExcludePatterns = []string{
	".git/**",
	".git",
	".gitignore",
	".gitmodules",
	".gitattributes",
	".github/**",
}

// Settings holds the resolved configuration for one run
type Settings struct {
	Git    GitConfig    `yaml:"git"`
	Rclone RcloneConfig `yaml:"rclone"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
}

// GitConfig configures the target repository
type GitConfig struct {
	RemoteURL      string `yaml:"remote_url"`
	Username       string `yaml:"username"`
	PAT            string `yaml:"pat"`
	RepoPath       string `yaml:"repo_path"`
	CommitMessage  string `yaml:"commit_message"`
	CommitUsername string `yaml:"commit_username"`
	CommitEmail    string `yaml:"commit_email"`
}

// RcloneConfig configures the cloud source
type RcloneConfig struct {
	ConfigContent   string   `yaml:"config_content"`
	RemoteName      string   `yaml:"remote_name"`
	RemoteFolder    string   `yaml:"remote_folder"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// SyncConfig configures the pipeline run
type SyncConfig struct {
	Step    Mode          `yaml:"step"`
	Verbose bool          `yaml:"verbose"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures diagnostic logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns settings populated with every default value.
func Default() *Settings {
	repoPath := DefaultRepoDir
	if wd, err := os.Getwd(); err == nil {
		repoPath = filepath.Join(wd, DefaultRepoDir)
	}
	return &Settings{
		Git: GitConfig{
			RepoPath:       repoPath,
			CommitMessage:  DefaultCommitMessage,
			CommitUsername: DefaultCommitUsername,
			CommitEmail:    DefaultCommitEmail,
		},
		Rclone: RcloneConfig{
			RemoteName: DefaultRemoteName,
		},
		Sync: SyncConfig{
			Step:    ModeAll,
			Timeout: DefaultSyncTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML settings file on top of the defaults
func Load(path string) (*Settings, error) {
	s := Default()
	if err := s.LoadFile(path); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile overlays the YAML file at path onto s. Keys missing from the file
// keep their current value.
func (s *Settings) LoadFile(path string) error {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	s.expandEnv()
	return nil
}

// expandEnv expands environment variables in path-like string fields
func (s *Settings) expandEnv() {
	s.Git.RemoteURL = os.ExpandEnv(s.Git.RemoteURL)
	s.Git.RepoPath = os.ExpandEnv(s.Git.RepoPath)
	s.Rclone.RemoteFolder = os.ExpandEnv(s.Rclone.RemoteFolder)
}

// Validate checks the settings for errors. Missing values are reported with
// both the flag and the environment variable that can supply them.
func (s *Settings) Validate() error {
	if err := s.require(FlagGitRemoteURL, FlagGitUsername, FlagGitPAT); err != nil {
		return err
	}
	if err := s.ValidateRemote(); err != nil {
		return err
	}

	if !s.Sync.Step.Valid() {
		return fmt.Errorf("%w: %q (must be all, clone, update, or sync)", errors.ErrUnknownMode, s.Sync.Step)
	}
	if s.Git.RepoPath == "" {
		return fmt.Errorf("--%s must not be empty", FlagGitRepoPath)
	}

	return nil
}

// ValidateRemote checks only the settings needed to reach the cloud folder.
func (s *Settings) ValidateRemote() error {
	if err := s.require(FlagRcloneConfigContent, FlagRcloneRemoteFolder); err != nil {
		return err
	}
	if s.Rclone.RemoteName == "" {
		return fmt.Errorf("--%s must not be empty", FlagRcloneRemoteName)
	}
	if s.Sync.Timeout <= 0 {
		return fmt.Errorf("--%s must be positive, got %s", FlagSyncTimeout, s.Sync.Timeout)
	}
	return nil
}

func (s *Settings) require(flags ...string) error {
	for _, name := range flags {
		o, ok := optionByName(name)
		if !ok {
			continue
		}
		p, ok := o.field(s).(*string)
		if ok && strings.TrimSpace(*p) == "" {
			return fmt.Errorf("%w: set --%s or %s", errors.ErrMissingSetting, name, EnvName(name))
		}
	}
	return nil
}

// EffectiveExcludes returns the baseline patterns followed by the user
// patterns, order preserved and without de-duplication.
func (s *Settings) EffectiveExcludes() []string {
	patterns := make([]string, 0, len(DefaultExcludePatterns)+len(s.Rclone.ExcludePatterns))
	patterns = append(patterns, DefaultExcludePatterns...)
	patterns = append(patterns, s.Rclone.ExcludePatterns...)
	return patterns
}

// AuthRemoteURL returns the remote URL with the git credentials embedded
func (s *Settings) AuthRemoteURL() string {
	return auth.InjectCredentials(s.Git.RemoteURL, s.Git.Username, s.Git.PAT)
}

// RemotePath returns the rclone path of the cloud folder, e.g. iclouddrive:Documents
func (s *Settings) RemotePath() string {
	return s.Rclone.RemoteName + ":" + s.Rclone.RemoteFolder
}

// Secrets returns every configured secret value, for redaction.
func (s *Settings) Secrets() []string {
	return []string{s.Git.PAT}
}

// String renders the settings with secrets masked
func (s *Settings) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git.remote_url=%s\n", auth.StripCredentials(s.Git.RemoteURL))
	fmt.Fprintf(&b, "git.username=%s\n", s.Git.Username)
	fmt.Fprintf(&b, "git.pat=%s\n", mask(s.Git.PAT))
	fmt.Fprintf(&b, "git.repo_path=%s\n", s.Git.RepoPath)
	fmt.Fprintf(&b, "git.commit_message=%s\n", s.Git.CommitMessage)
	fmt.Fprintf(&b, "git.commit_username=%s\n", s.Git.CommitUsername)
	fmt.Fprintf(&b, "git.commit_email=%s\n", s.Git.CommitEmail)
	fmt.Fprintf(&b, "rclone.config_content=%s\n", mask(s.Rclone.ConfigContent))
	fmt.Fprintf(&b, "rclone.remote_name=%s\n", s.Rclone.RemoteName)
	fmt.Fprintf(&b, "rclone.remote_folder=%s\n", s.Rclone.RemoteFolder)
	fmt.Fprintf(&b, "rclone.exclude_patterns=%s\n", strings.Join(s.Rclone.ExcludePatterns, ","))
	fmt.Fprintf(&b, "sync.step=%s\n", s.Sync.Step)
	fmt.Fprintf(&b, "sync.verbose=%t\n", s.Sync.Verbose)
	fmt.Fprintf(&b, "sync.timeout=%s", s.Sync.Timeout)
	return b.String()
}

// LogValue implements slog.LogValuer with secrets masked.
func (s *Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("remote_url", auth.StripCredentials(s.Git.RemoteURL)),
		slog.String("username", s.Git.Username),
		slog.String("pat", mask(s.Git.PAT)),
		slog.String("repo_path", s.Git.RepoPath),
		slog.String("remote", s.RemotePath()),
		slog.Int("exclude_patterns", len(s.Rclone.ExcludePatterns)),
		slog.String("step", string(s.Sync.Step)),
		slog.Duration("timeout", s.Sync.Timeout),
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return auth.Mask
}
