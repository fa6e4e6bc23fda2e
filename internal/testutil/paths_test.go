package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot returned error: %v", err)
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}
}

func TestProjectFile(t *testing.T) {
	path := ProjectFile(t, "syncicloudgit.example.yaml")
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %s", path)
	}
}
