// Package cloud mirrors a cloud storage folder into the local working copy
// using an rclone-compatible transfer engine. The cloud side is the source
// of truth and is only ever read.
package cloud

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/errors"
	"github.com/schaermu/syncicloudgit/internal/rclone"
)

// Engine provides the transfer operations the mirror needs
type Engine interface {
	// List returns the entries directly below remotePath
	List(ctx context.Context, remotePath string, args []string) ([]rclone.Entry, error)
	// Sync makes dst identical to src
	Sync(ctx context.Context, src, dst string, args []string) error
}

// Transfer tuning passed to every sync
var syncFlags = []string{
	"--transfers", "3",
	"--checkers", "4",
	"--tpslimit", "10",
	"--retries", "5",
	"--low-level-retries", "10",
	"--delete-excluded=false",
	"--checksum",
	"-v",
}

// maxLoggedPatterns is the number of exclude patterns logged in full
const maxLoggedPatterns = 10

// Mirror copies the configured cloud folder into the repository path
type Mirror struct {
	settings   *config.Settings
	engine     Engine
	logger     *slog.Logger
	configPath string
	fileCount  int
}

// New writes the rclone config content to a private temp file and returns
// a mirror using it. Callers must Close the mirror to remove the file.
func New(settings *config.Settings, engine Engine, logger *slog.Logger) (*Mirror, error) {
	if strings.TrimSpace(settings.Rclone.ConfigContent) == "" {
		return nil, errors.New("cloud.config", errors.ErrEmptyRcloneConfig)
	}

	f, err := os.CreateTemp("", "syncicloudgit-rclone-*.conf")
	if err != nil {
		return nil, errors.New("cloud.config", fmt.Errorf("failed to create rclone config file: %w", err))
	}
	path := f.Name()

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, errors.New("cloud.config", fmt.Errorf("failed to restrict rclone config file: %w", err))
	}
	if _, err := f.WriteString(settings.Rclone.ConfigContent); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, errors.New("cloud.config", fmt.Errorf("failed to write rclone config file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.New("cloud.config", fmt.Errorf("failed to write rclone config file: %w", err))
	}

	logger.Debug("wrote rclone config", "path", path)
	return &Mirror{
		settings:   settings,
		engine:     engine,
		logger:     logger,
		configPath: path,
	}, nil
}

// Close removes the temporary rclone config file. It is safe to call more
// than once.
func (m *Mirror) Close() error {
	if m.configPath == "" {
		return nil
	}
	path := m.configPath
	m.configPath = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove rclone config file: %w", err)
	}
	return nil
}

// ConfigPath returns the temp config file path, empty after Close
func (m *Mirror) ConfigPath() string {
	return m.configPath
}

// RemotePath returns the rclone path of the cloud folder
func (m *Mirror) RemotePath() string {
	return m.settings.RemotePath()
}

// FileCount returns the number of files found after the last successful sync
func (m *Mirror) FileCount() int {
	return m.fileCount
}

// TestConnection lists the cloud folder and returns the number of entries.
// An empty folder is not an error.
func (m *Mirror) TestConnection(ctx context.Context) (int, error) {
	if m.configPath == "" {
		return 0, errors.New("cloud.list", fmt.Errorf("mirror is closed"))
	}

	m.logger.Info("testing cloud connection", "remote", m.RemotePath())
	entries, err := m.engine.List(ctx, m.RemotePath(), []string{"--config", m.configPath})
	if err != nil {
		return 0, errors.New("cloud.list", err)
	}

	m.logger.Info("cloud connection ok", "remote", m.RemotePath(), "items", len(entries))
	return len(entries), nil
}

// Args returns the sync arguments: config, tuning flags and one --exclude
// per effective pattern, in order.
func (m *Mirror) Args() []string {
	excludes := m.settings.EffectiveExcludes()
	args := make([]string, 0, 2+len(syncFlags)+2*len(excludes))
	args = append(args, "--config", m.configPath)
	args = append(args, syncFlags...)
	for _, pattern := range excludes {
		args = append(args, "--exclude", pattern)
	}
	return args
}

// SyncToRepo mirrors the cloud folder into the repository path. The
// transfer is bounded by the configured sync timeout.
func (m *Mirror) SyncToRepo(ctx context.Context) error {
	dest := m.settings.Git.RepoPath
	if err := os.MkdirAll(dest, 0755); err != nil {
		return errors.New("cloud.sync", fmt.Errorf("failed to create destination: %w", err))
	}

	if _, err := m.TestConnection(ctx); err != nil {
		return err
	}

	args := m.Args()
	m.logger.Info("syncing from cloud",
		"source", m.RemotePath(),
		"destination", dest,
		"exclude_patterns", loggedPatterns(m.settings.EffectiveExcludes()),
	)

	syncCtx, cancel := context.WithTimeout(ctx, m.settings.Sync.Timeout)
	defer cancel()

	if err := m.engine.Sync(syncCtx, m.RemotePath(), dest, args); err != nil {
		if stderrors.Is(syncCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", m.settings.Sync.Timeout, err)
		}
		return errors.New("cloud.sync", err)
	}

	count, err := countFiles(dest)
	if err != nil {
		m.logger.Warn("failed to count synced files", "path", dest, "error", err)
	}
	m.fileCount = count
	m.logger.Info("sync completed", "files", count)
	return nil
}

// loggedPatterns returns the patterns for logging, truncated to the first
// eight followed by "..." when there are more than ten.
func loggedPatterns(patterns []string) []string {
	if len(patterns) <= maxLoggedPatterns {
		return patterns
	}
	out := make([]string, 0, 9)
	out = append(out, patterns[:8]...)
	return append(out, "...")
}

// countFiles counts regular files below root, skipping .git* entries
func countFiles(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != root && strings.HasPrefix(d.Name(), ".git") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	return count, err
}
