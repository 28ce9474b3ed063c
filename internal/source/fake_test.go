package source

import (
	"context"
	"os"
	"path/filepath"
)

// fakeGit simulates the git CLI on the filesystem and records every call.
type fakeGit struct {
	calls []string

	cloneErr    error
	pullErr     error
	worktreeErr error
	revParseErr error
	revListErr  error
	removeErr   error

	local    string
	upstream string
	behind   int
}

func newFakeGit() *fakeGit {
	return &fakeGit{local: "abc123", upstream: "abc123"}
}

func (f *fakeGit) Clone(_ context.Context, url, dir string) error {
	f.calls = append(f.calls, "clone")
	if f.cloneErr != nil {
		return f.cloneErr
	}
	return os.MkdirAll(filepath.Join(dir, ".git"), 0755)
}

func (f *fakeGit) FastForwardPull(_ context.Context, dir string) error {
	f.calls = append(f.calls, "pull")
	return f.pullErr
}

func (f *fakeGit) AddWorktree(_ context.Context, repoDir, worktreeDir, ref string) error {
	f.calls = append(f.calls, "worktree "+ref)
	if f.worktreeErr != nil {
		return f.worktreeErr
	}
	if err := os.MkdirAll(worktreeDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(worktreeDir, ".git"), []byte("gitdir: "+repoDir+"\n"), 0644)
}

func (f *fakeGit) CommitHash(_ context.Context, dir, rev string) (string, error) {
	f.calls = append(f.calls, "rev-parse "+rev)
	if f.revParseErr != nil {
		return "", f.revParseErr
	}
	if rev == "origin/HEAD" {
		return f.upstream, nil
	}
	return f.local, nil
}

func (f *fakeGit) RevListCount(_ context.Context, dir, from, to string) (int, error) {
	f.calls = append(f.calls, "rev-list")
	return f.behind, f.revListErr
}

func (f *fakeGit) RemoveWorktree(_ context.Context, repoDir, worktreeDir string) error {
	f.calls = append(f.calls, "remove "+filepath.Base(worktreeDir))
	if f.removeErr != nil {
		return f.removeErr
	}
	return os.RemoveAll(worktreeDir)
}

func (f *fakeGit) PruneWorktrees(_ context.Context, repoDir string) error {
	f.calls = append(f.calls, "prune")
	return nil
}

// networkCalls returns the clone and pull calls only.
func (f *fakeGit) networkCalls() []string {
	var out []string
	for _, c := range f.calls {
		if c == "clone" || c == "pull" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGit) reset() { f.calls = nil }
