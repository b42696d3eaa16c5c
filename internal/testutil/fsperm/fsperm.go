// Package fsperm asserts that persisted secrets stay private to the owner.
package fsperm

import (
	"os"
	"runtime"
	"testing"
)

// AssertPrivateFile verifies that path is a regular file readable by the
// owner only.
func AssertPrivateFile(t testing.TB, path string) {
	t.Helper()
	assertMode(t, path, false, 0o600)
}

// AssertPrivateDir verifies that dir is a directory closed to group and
// others.
func AssertPrivateDir(t testing.TB, dir string) {
	t.Helper()
	assertMode(t, dir, true, 0o700)
}

func assertMode(t testing.TB, path string, dir bool, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.IsDir() != dir {
		t.Fatalf("%s: dir=%v, want dir=%v", path, info.IsDir(), dir)
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("expected perm %04o, got %04o for %s", want, perm, path)
	}
}
