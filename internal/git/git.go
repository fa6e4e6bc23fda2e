package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/schaermu/syncicloudgit/internal/auth"
)

// Runner executes git subcommands in a working directory
type Runner interface {
	// Run executes git with args in dir and returns its stdout
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecError is returned when a git command exits unsuccessfully
type ExecError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ShellRunner implements Runner by shelling out to the git command
type ShellRunner struct {
	secrets []string
	logger  *slog.Logger
}

// NewShellRunner creates a runner that masks the given secrets in logs and
// error messages.
func NewShellRunner(logger *slog.Logger, secrets ...string) *ShellRunner {
	return &ShellRunner{
		secrets: secrets,
		logger:  logger,
	}
}

// Run executes git. Prompts are disabled so a missing credential fails fast
// instead of blocking on the terminal.
func (r *ShellRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running git", "dir", dir, "args", r.redactArgs(args))

	if err := cmd.Run(); err != nil {
		return stdout.String(), &ExecError{
			Args:   r.redactArgs(args),
			Stderr: auth.Redact(strings.TrimSpace(stderr.String()), r.secrets...),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (r *ShellRunner) redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = auth.Redact(a, r.secrets...)
	}
	return out
}
