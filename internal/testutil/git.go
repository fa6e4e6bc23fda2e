package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when the git binary is not installed and
// isolates git from the user's global and system configuration.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	// Local file remotes are needed for submodule fixtures.
	t.Setenv("GIT_CONFIG_COUNT", "2")
	t.Setenv("GIT_CONFIG_KEY_0", "protocol.file.allow")
	t.Setenv("GIT_CONFIG_VALUE_0", "always")
	t.Setenv("GIT_CONFIG_KEY_1", "init.defaultBranch")
	t.Setenv("GIT_CONFIG_VALUE_1", "main")
}

// Git runs git in dir and returns its trimmed output, failing the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{"-c", "user.name=Test", "-c", "user.email=test@test.com"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// InitRepo creates a repository on branch main in dir.
func InitRepo(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	Git(t, dir, "init", "-b", "main")
}

// WriteFile creates or overwrites a file below dir, creating parents.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// CommitFile creates or overwrites a file and commits it.
func CommitFile(t *testing.T, repoDir, name, content, msg string) {
	t.Helper()
	WriteFile(t, repoDir, name, content)
	Git(t, repoDir, "add", name)
	Git(t, repoDir, "commit", "-m", msg)
}

// InitRemote creates a bare repository with one commit on main holding
// the given files and returns its path.
func InitRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	work := filepath.Join(t.TempDir(), "seed")
	InitRepo(t, work)
	if len(files) == 0 {
		files = map[string]string{"README.md": "# test\n"}
	}
	for name, content := range files {
		WriteFile(t, work, name, content)
	}
	Git(t, work, "add", "-A")
	Git(t, work, "commit", "-m", "Initial commit")

	bare := filepath.Join(t.TempDir(), "remote.git")
	Git(t, "", "clone", "--bare", work, bare)
	return bare
}

// AddSubmodule adds remote as a submodule tracking main at path inside the
// bare repository parent, committing and pushing the change.
func AddSubmodule(t *testing.T, parent, remote, path string) {
	t.Helper()
	work := filepath.Join(t.TempDir(), "work")
	Git(t, "", "clone", parent, work)
	Git(t, work, "submodule", "add", "-b", "main", remote, path)
	Git(t, work, "commit", "-m", "Add submodule "+path)
	Git(t, work, "push", "origin", "main")
}

// PushFile commits a file to the main branch of a bare remote through a
// throwaway clone.
func PushFile(t *testing.T, remote, name, content, msg string) {
	t.Helper()
	work := filepath.Join(t.TempDir(), "work")
	Git(t, "", "clone", remote, work)
	CommitFile(t, work, name, content, msg)
	Git(t, work, "push", "origin", "main")
}

// CommitCount returns the number of commits on ref in a repository.
func CommitCount(t *testing.T, dir, ref string) string {
	t.Helper()
	return Git(t, dir, "rev-list", "--count", ref)
}
