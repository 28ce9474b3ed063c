// pattern: Imperative Shell

package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Git is the narrow set of version-control operations the reifier needs.
// CLI implements it by shelling out to the git binary.
type Git interface {
	// Clone clones url into dir.
	Clone(ctx context.Context, url, dir string) error
	// FastForwardPull updates the clone at dir, refusing non fast-forwards.
	FastForwardPull(ctx context.Context, dir string) error
	// AddWorktree checks ref out into worktreeDir, sharing repoDir's objects.
	AddWorktree(ctx context.Context, repoDir, worktreeDir, ref string) error
	// CommitHash resolves rev to a commit hash inside dir.
	CommitHash(ctx context.Context, dir, rev string) (string, error)
	// RevListCount counts commits reachable from to but not from from.
	RevListCount(ctx context.Context, dir, from, to string) (int, error)
	// RemoveWorktree deletes a worktree registered in repoDir.
	RemoveWorktree(ctx context.Context, repoDir, worktreeDir string) error
	// PruneWorktrees drops stale worktree records from repoDir.
	PruneWorktrees(ctx context.Context, repoDir string) error
}

// CLI runs git as a subprocess.
type CLI struct {
	binary string
	// progress receives the stderr of network and checkout operations so the
	// user sees clone progress and credential prompts. Nil discards it.
	progress io.Writer
	stdin    io.Reader
}

// NewCLI returns a Git backed by the given binary ("git" when empty).
// progress may be nil.
func NewCLI(binary string, progress io.Writer) *CLI {
	if binary == "" {
		binary = "git"
	}
	c := &CLI{binary: binary, progress: progress}
	if progress != nil {
		c.stdin = os.Stdin
	}
	return c
}

// Clone runs "git clone", streaming progress to the terminal.
func (g *CLI) Clone(ctx context.Context, url, dir string) error {
	_, err := g.run(ctx, OpClone, "", true, "clone", "--", url, dir)
	return err
}

// FastForwardPull runs "git pull --ff-only" in dir.
func (g *CLI) FastForwardPull(ctx context.Context, dir string) error {
	_, err := g.run(ctx, OpPull, dir, true, "pull", "--ff-only")
	return err
}

// AddWorktree adds a detached worktree. A branch name is anchored at its
// remote-tracking ref when one exists, which keeps the default branch (already
// checked out in the clone) usable and always picks the freshly pulled commit.
func (g *CLI) AddWorktree(ctx context.Context, repoDir, worktreeDir, ref string) error {
	anchor := ref
	if _, err := g.CommitHash(ctx, repoDir, "refs/remotes/origin/"+ref); err == nil {
		anchor = "origin/" + ref
	}
	_, err := g.run(ctx, OpWorktree, repoDir, true, "worktree", "add", "--detach", worktreeDir, anchor)
	return err
}

// CommitHash resolves rev with "git rev-parse --verify".
func (g *CLI) CommitHash(ctx context.Context, dir, rev string) (string, error) {
	out, err := g.run(ctx, OpRevParse, dir, false, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevListCount returns the size of "git rev-list from..to".
func (g *CLI) RevListCount(ctx context.Context, dir, from, to string) (int, error) {
	out, err := g.run(ctx, OpRevList, dir, false, "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, &SourceError{Op: OpRevList, Dir: dir, ExitCode: -1, Err: err}
	}
	return n, nil
}

// RemoveWorktree runs "git worktree remove --force", discarding local edits.
func (g *CLI) RemoveWorktree(ctx context.Context, repoDir, worktreeDir string) error {
	_, err := g.run(ctx, OpRemove, repoDir, false, "worktree", "remove", "--force", worktreeDir)
	return err
}

func (g *CLI) PruneWorktrees(ctx context.Context, repoDir string) error {
	_, err := g.run(ctx, OpPrune, repoDir, false, "worktree", "prune")
	return err
}

// run executes git and returns its stdout. Any failure, including a non-zero
// exit, becomes a *SourceError for op.
func (g *CLI) run(ctx context.Context, op, dir string, interactive bool, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if interactive && g.progress != nil {
		cmd.Stderr = io.MultiWriter(g.progress, &stderr)
		cmd.Stdin = g.stdin
	}

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &SourceError{Op: op, Dir: dir, ExitCode: code, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}
