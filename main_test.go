package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}, {"-V"}} {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		if code := run(context.Background(), args, stdout, stderr); code != 0 {
			t.Errorf("%v: exit code %d, stderr %q", args, code, stderr.String())
		}
		if stdout.String() != version+"\n" {
			t.Errorf("%v: stdout %q", args, stdout.String())
		}
	}
}

func TestRun_Help(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	if code := run(context.Background(), []string{"--help"}, stdout, stderr); code != 0 {
		t.Errorf("exit code: got %d, want 0", code)
	}
	out := stderr.String()
	for _, want := range []string{"Usage: run-that", "--bucket", "--path", "cache"} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %q:\n%s", want, out)
		}
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"--no-such-flag"},
		{"frobnicate"},
	}
	for _, args := range tests {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		if code := run(context.Background(), args, stdout, stderr); code != 2 {
			t.Errorf("%v: exit code %d, want 2", args, code)
		}
	}
}

func TestRun_BadPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(t.TempDir(), "missing"), file} {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		if code := run(context.Background(), []string{"--path", path, "buckets"}, stdout, stderr); code != 1 {
			t.Errorf("%s: exit code %d, want 1", path, code)
		}
		if !strings.Contains(stderr.String(), "--path") {
			t.Errorf("%s: stderr %q", path, stderr.String())
		}
	}
}

func TestRun_BadBucketFlag(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run(context.Background(), []string{"--path", t.TempDir(), "--bucket", "git:no-hash", "buckets"}, stdout, stderr)
	if code != 1 {
		t.Errorf("exit code: got %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "missing '#'") {
		t.Errorf("stderr: %q", stderr.String())
	}
}
