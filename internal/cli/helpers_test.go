package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"runthat/internal/source"
)

// scriptGit fakes git by writing the scripts registered for a URL into every
// worktree. The clone records its URL so worktrees can find it.
type scriptGit struct {
	scripts map[string]map[string]string // url -> script name -> shell body
}

const urlFile = ".fake-url"

func (g *scriptGit) Clone(_ context.Context, url, dir string) error {
	if _, ok := g.scripts[url]; !ok {
		return &source.SourceError{Op: source.OpClone, ExitCode: 128, Stderr: "fatal: repository '" + url + "' not found"}
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, urlFile), []byte(url), 0644)
}

func (g *scriptGit) FastForwardPull(context.Context, string) error { return nil }

func (g *scriptGit) AddWorktree(_ context.Context, repoDir, worktreeDir, ref string) error {
	url, err := os.ReadFile(filepath.Join(repoDir, urlFile))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(worktreeDir, "bin"), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(worktreeDir, ".git"), []byte("gitdir: "+repoDir), 0644); err != nil {
		return err
	}
	for name, body := range g.scripts[string(url)] {
		script := "#!/bin/sh\n" + body + "\n"
		if err := os.WriteFile(filepath.Join(worktreeDir, "bin", name), []byte(script), 0755); err != nil {
			return err
		}
	}
	return nil
}

func (g *scriptGit) CommitHash(context.Context, string, string) (string, error) {
	return "abc123", nil
}

func (g *scriptGit) RevListCount(context.Context, string, string, string) (int, error) {
	return 0, nil
}

func (g *scriptGit) RemoveWorktree(_ context.Context, _, worktreeDir string) error {
	return os.RemoveAll(worktreeDir)
}

func (g *scriptGit) PruneWorktrees(context.Context, string) error { return nil }

// harness is a workspace with a config file, a private cache and captured
// output streams.
type harness struct {
	t        *testing.T
	workDir  string
	cacheDir string
	git      *scriptGit
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	env      *Env
}

func newHarness(t *testing.T, buckets string) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		workDir:  t.TempDir(),
		cacheDir: t.TempDir(),
		git:      &scriptGit{scripts: map[string]map[string]string{}},
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}

	config := fmt.Sprintf("cache_dir = '%s'\n\n[buckets]\n%s", h.cacheDir, buckets)
	if err := os.WriteFile(filepath.Join(h.workDir, ".run-that"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	h.env = &Env{
		WorkDir:  h.workDir,
		Environ:  []string{},
		Stdin:    strings.NewReader(""),
		Stdout:   h.stdout,
		Stderr:   h.stderr,
		LookPath: func(string) (string, error) { return "/usr/bin/git", nil },
		NewGit: func(string, io.Writer) source.Git {
			return h.git
		},
	}
	return h
}

// repo registers a fake remote holding the given scripts.
func (h *harness) repo(url string, scripts map[string]string) {
	h.git.scripts[url] = scripts
}

func (h *harness) execute(args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	return BuildApp("1.2.3", h.env).Execute(context.Background(), args)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
