package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/logger"
	"github.com/nullable-eth/kosmokopy/internal/remote"
)

func newTestBackend() *StandardBackend {
	return NewStandardBackend(config.Default(), remote.NewManager(config.Default(), config.SSHConfig{}, logger.New("error")))
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// Local-to-local transfers must leave a complete file at the final
// name and no stray temp file behind.
func TestStandardBackendLocalToLocalWritesCompleteFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.txt")
	dstPath := filepath.Join(dstDir, "a.txt")
	mustWrite(t, srcPath, "hello world")

	b := newTestBackend()
	if err := b.TransferOne(context.Background(), endpoint.Local{Path: srcPath}, endpoint.Local{Path: dstPath}, false); err != nil {
		t.Fatalf("TransferOne: %v", err)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("dst content = %q, want %q", got, "hello world")
	}

	entries, err := os.ReadDir(dstDir)
	if err != nil {
		t.Fatalf("read dst dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dst dir has %d entries, want exactly 1 (no stray temp files)", len(entries))
	}
}

// Zero-byte files must round-trip as zero-byte files, not errors.
func TestStandardBackendLocalToLocalZeroByteFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "empty.bin")
	dstPath := filepath.Join(dstDir, "empty.bin")
	mustWrite(t, srcPath, "")

	b := newTestBackend()
	if err := b.TransferOne(context.Background(), endpoint.Local{Path: srcPath}, endpoint.Local{Path: dstPath}, false); err != nil {
		t.Fatalf("TransferOne: %v", err)
	}
	info, err := os.Stat(dstPath)
	if err != nil {
		t.Fatalf("stat dst: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("dst size = %d, want 0", info.Size())
	}
}

// When replace is false, a destination that appears between name
// selection and transfer must not be silently clobbered.
func TestStandardBackendLocalToLocalRefusesUnauthorizedOverwrite(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.txt")
	dstPath := filepath.Join(dstDir, "a.txt")
	mustWrite(t, srcPath, "new")
	mustWrite(t, dstPath, "existing")

	b := newTestBackend()
	err := b.TransferOne(context.Background(), endpoint.Local{Path: srcPath}, endpoint.Local{Path: dstPath}, false)
	if err == nil {
		t.Fatalf("expected an error when replace=false and destination already exists")
	}
	got, readErr := os.ReadFile(dstPath)
	if readErr != nil {
		t.Fatalf("read dst: %v", readErr)
	}
	if string(got) != "existing" {
		t.Fatalf("destination was modified despite replace=false: %q", got)
	}
}

// When replace is true, an existing destination is clobbered with the
// new content (ConflictMode Overwrite).
func TestStandardBackendLocalToLocalHonorsReplace(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.txt")
	dstPath := filepath.Join(dstDir, "a.txt")
	mustWrite(t, srcPath, "new")
	mustWrite(t, dstPath, "existing")

	b := newTestBackend()
	if err := b.TransferOne(context.Background(), endpoint.Local{Path: srcPath}, endpoint.Local{Path: dstPath}, true); err != nil {
		t.Fatalf("TransferOne: %v", err)
	}
	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("dst content = %q, want %q", got, "new")
	}
}

// The destination's parent directory is created if missing, for both
// single- and multi-level nesting.
func TestStandardBackendLocalToLocalCreatesParentDirs(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.txt")
	dstPath := filepath.Join(dstDir, "deep", "nested", "a.txt")
	mustWrite(t, srcPath, "content")

	b := newTestBackend()
	if err := b.TransferOne(context.Background(), endpoint.Local{Path: srcPath}, endpoint.Local{Path: dstPath}, false); err != nil {
		t.Fatalf("TransferOne: %v", err)
	}
	if _, err := os.Stat(dstPath); err != nil {
		t.Fatalf("expected nested destination to exist: %v", err)
	}
}

func TestRemoteParentDir(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/a/b/c.txt", "/a/b"},
		{"/a/c.txt", "/a"},
		{"/c.txt", "/"},
		{"/a/b/", "/a"},
	}
	for _, c := range cases {
		if got := remoteParentDir(c.in); got != c.want {
			t.Errorf("remoteParentDir(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
