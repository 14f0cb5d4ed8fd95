package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeEmpty(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveOperatorPath(t *testing.T) {
	t.Run("explicit flag wins", func(t *testing.T) {
		var stderr bytes.Buffer
		got, err := resolveOperatorPath(" ./ops/fc1.pwf ", "", &stderr)
		if err != nil {
			t.Fatalf("resolveOperatorPath returned error: %v", err)
		}
		if got != filepath.Clean("./ops/fc1.pwf") {
			t.Fatalf("unexpected path: %q", got)
		}
	})

	t.Run("single operator in directory", func(t *testing.T) {
		dir := t.TempDir()
		writeEmpty(t, filepath.Join(dir, "fc1.pwf"))
		writeEmpty(t, filepath.Join(dir, "notes.txt"))

		var stderr bytes.Buffer
		got, err := resolveOperatorPath("", dir, &stderr)
		if err != nil {
			t.Fatalf("resolveOperatorPath returned error: %v", err)
		}
		if got != filepath.Join(dir, "fc1.pwf") {
			t.Fatalf("unexpected path: %q", got)
		}
		if !bytes.Contains(stderr.Bytes(), []byte("using operator")) {
			t.Fatalf("expected notice on stderr, got %q", stderr.String())
		}
	})

	t.Run("multiple operators require flag", func(t *testing.T) {
		dir := t.TempDir()
		writeEmpty(t, filepath.Join(dir, "a.pwf"))
		writeEmpty(t, filepath.Join(dir, "b.pwf"))

		var stderr bytes.Buffer
		if _, err := resolveOperatorPath("", dir, &stderr); err == nil {
			t.Fatal("expected error for ambiguous operators directory")
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeEmpty(t, filepath.Join(dir, "conv1.pwf"))
		t.Setenv(envBasaltOperatorsDir, dir)

		var stderr bytes.Buffer
		got, err := resolveOperatorPath("", "", &stderr)
		if err != nil {
			t.Fatalf("resolveOperatorPath returned error: %v", err)
		}
		if got != filepath.Join(dir, "conv1.pwf") {
			t.Fatalf("unexpected path: %q", got)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(envBasaltOperatorsDir, "")
		var stderr bytes.Buffer
		if _, err := resolveOperatorPath("", "", &stderr); err == nil {
			t.Fatal("expected error when nothing is configured")
		}
	})
}

func TestDiscoverPWFOperators(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, filepath.Join(dir, "b.pwf"))
	writeEmpty(t, filepath.Join(dir, "a.PWF"))
	writeEmpty(t, filepath.Join(dir, "ignored.json"))
	if err := os.Mkdir(filepath.Join(dir, "sub.pwf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := discoverPWFOperators(dir)
	if err != nil {
		t.Fatalf("discoverPWFOperators returned error: %v", err)
	}
	want := []string{filepath.Join(dir, "a.PWF"), filepath.Join(dir, "b.pwf")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("operators = %v, want %v", got, want)
	}
}
