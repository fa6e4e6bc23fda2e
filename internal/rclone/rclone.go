package rclone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Entry is one item of `rclone lsjson` output
type Entry struct {
	Path     string    `json:"Path"`
	Name     string    `json:"Name"`
	Size     int64     `json:"Size"`
	MimeType string    `json:"MimeType"`
	ModTime  time.Time `json:"ModTime"`
	IsDir    bool      `json:"IsDir"`
}

// Client runs the rclone binary
type Client struct {
	binary string
	logger *slog.Logger
}

// NewClient creates a client for the given rclone binary. An empty binary
// means "rclone" from PATH.
func NewClient(binary string, logger *slog.Logger) *Client {
	if binary == "" {
		binary = "rclone"
	}
	return &Client{
		binary: binary,
		logger: logger,
	}
}

// Version returns the first line of `rclone version`
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "version")
	if err != nil {
		return "", fmt.Errorf("rclone not available: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return line, nil
}

// List returns the entries directly below remotePath
func (c *Client) List(ctx context.Context, remotePath string, args []string) ([]Entry, error) {
	cmdArgs := append([]string{"lsjson"}, args...)
	cmdArgs = append(cmdArgs, remotePath)

	out, err := c.run(ctx, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("rclone lsjson failed: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse rclone lsjson output: %w", err)
	}
	return entries, nil
}

// Sync makes dst identical to src
func (c *Client) Sync(ctx context.Context, src, dst string, args []string) error {
	cmdArgs := append([]string{"sync", src, dst}, args...)
	if _, err := c.run(ctx, cmdArgs...); err != nil {
		return fmt.Errorf("rclone sync failed: %w", err)
	}
	return nil
}

// run executes rclone and returns stdout. Progress and -v output arrive on
// stderr and are logged at debug level.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	// An inherited RCLONE_CONFIG would shadow the --config flag.
	cmd.Env = filterEnv(os.Environ(), "RCLONE_CONFIG")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	for _, line := range strings.Split(strings.TrimSpace(stderr.String()), "\n") {
		if line != "" {
			c.logger.Debug("rclone", "output", line)
		}
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, lastLines(stderr.String(), 5))
	}
	return stdout.String(), nil
}

// filterEnv returns env without the variable named key
func filterEnv(env []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
