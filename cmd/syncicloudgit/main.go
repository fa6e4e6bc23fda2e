package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/syncicloudgit/internal/cloud"
	"github.com/schaermu/syncicloudgit/internal/config"
	"github.com/schaermu/syncicloudgit/internal/git"
	"github.com/schaermu/syncicloudgit/internal/pipeline"
	"github.com/schaermu/syncicloudgit/internal/printer"
	"github.com/schaermu/syncicloudgit/internal/rclone"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "syncicloudgit",
	Short: "Mirror an iCloud Drive folder into a Git repository",
	Long: `syncicloudgit mirrors a cloud storage folder (iCloud Drive over WebDAV, or any
rclone remote) into a Git repository, then commits and pushes the result,
cascading through Git submodules.

The cloud folder is the source of truth and is never written to.

Every flag can also be set through an environment variable named after the
flag with the SYNC_ICLOUD_GIT__ prefix, e.g. SYNC_ICLOUD_GIT__GIT_REMOTE_URL,
or through a YAML file passed with --config. Flags win over environment
variables, which win over the file.

Steps:
  all     refresh or clone, sync from cloud, commit, push (default)
  clone   clone the repository only
  update  refresh an existing working copy only
  sync    sync from cloud into an existing working copy, commit, push`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSync,
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the configured cloud folder can be listed",
	Long: `test-connection writes the rclone config to a temporary file, lists the
configured remote folder and reports the number of items found. Nothing is
transferred and the Git settings are not required.`,
	Args: cobra.NoArgs,
	RunE: runTestConnection,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "syncicloudgit %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(testConnectionCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(settings, cmd.ErrOrStderr())

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("configuration loaded", "settings", settings)

	mirror, err := cloud.New(settings, rclone.NewClient("", logger), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mirror.Close(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	p, err := pipeline.New(settings.Sync.Step)
	if err != nil {
		return err
	}

	runner := git.NewShellRunner(logger, settings.Secrets()...)
	sc := &pipeline.SyncContext{
		Settings: settings,
		Repo:     git.NewStore(settings, runner, logger),
		Mirror:   mirror,
		Printer:  printer.New(cmd.OutOrStdout()),
		Logger:   logger,
	}

	return p.Run(ctx, sc)
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(settings, cmd.ErrOrStderr())

	if err := settings.ValidateRemote(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := printer.New(cmd.OutOrStdout())
	out.Heading("Test connection")

	client := rclone.NewClient("", logger)
	if v, err := client.Version(ctx); err == nil {
		out.Info("Using %s", v)
	}

	mirror, err := cloud.New(settings, client, logger)
	if err != nil {
		return err
	}
	defer func() { _ = mirror.Close() }()

	count, err := mirror.TestConnection(ctx)
	if err != nil {
		out.Failure("Could not list %s: %v", mirror.RemotePath(), err)
		return err
	}

	out.Success("Connected to %s, found %d items", mirror.RemotePath(), count)
	return nil
}

// loadSettings resolves flags, environment variables and the optional
// settings file.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Resolve(cmd.Flags(), os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return settings, nil
}

// setupLogger writes diagnostics to w, keeping stdout for progress output.
// --verbose forces debug level.
func setupLogger(settings *config.Settings, w io.Writer) *slog.Logger {
	var level slog.Level
	switch settings.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if settings.Sync.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if settings.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
