// pattern: Imperative Shell
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"runthat/internal/config"
	"runthat/internal/logging"
)

const (
	// DefaultMaxAge is how long a cache entry is trusted before the next use
	// pulls from the remote.
	DefaultMaxAge = 24 * time.Hour

	cacheDirName = "run-that"
	gitDirName   = "git"
	headDirName  = "HEAD"

	// scratchPrefix names the directory a clone runs in before it becomes HEAD.
	scratchPrefix = ".clone-"

	defaultLockRetry = 100 * time.Millisecond
)

// Reifier materializes source descriptors as directories in a local cache.
type Reifier struct {
	root      string
	git       Git
	logger    *logging.ScopedLogger
	now       func() time.Time
	maxAge    time.Duration
	lockRetry time.Duration
}

// Option configures a Reifier.
type Option func(*Reifier)

// WithLogger sets the logger for update notices and drift warnings.
func WithLogger(l *logging.ScopedLogger) Option {
	return func(r *Reifier) { r.logger = l }
}

// WithClock overrides the time source used by the freshness policy.
func WithClock(now func() time.Time) Option {
	return func(r *Reifier) { r.now = now }
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(r *Reifier) { r.maxAge = d }
}

// NewReifier returns a Reifier keeping its git cache under
// <cacheRoot>/run-that/git.
func NewReifier(cacheRoot string, git Git, opts ...Option) *Reifier {
	r := &Reifier{
		root:      GitCacheRoot(cacheRoot),
		git:       git,
		logger:    logging.NopLogger(),
		now:       time.Now,
		maxAge:    DefaultMaxAge,
		lockRetry: defaultLockRetry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GitCacheRoot returns the directory holding all git cache entries.
func GitCacheRoot(cacheRoot string) string {
	return filepath.Join(cacheRoot, cacheDirName, gitDirName)
}

// EntryDir returns the cache entry for url: <repo-name>-<sha256(url)>.
func (r *Reifier) EntryDir(url string) string {
	return filepath.Join(r.root, entryName(url))
}

func entryName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return RepoName(url) + "-" + hex.EncodeToString(sum[:])
}

// RepoName returns the last path segment of a repository URL without a
// trailing ".git". scp-style "host:repo" URLs split on ':' too.
func RepoName(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if trimmed == "" || trimmed == "." || trimmed == ".." {
		return "repo"
	}
	return trimmed
}

// Reify returns a local directory holding the contents of src.
func (r *Reifier) Reify(ctx context.Context, src config.Source) (string, error) {
	switch s := src.(type) {
	case config.GitSource:
		return r.reifyGit(ctx, s)
	default:
		return "", &SourceError{Op: OpSource, ExitCode: -1, Err: fmt.Errorf("unsupported source type %q", src.Type())}
	}
}

func (r *Reifier) reifyGit(ctx context.Context, src config.GitSource) (string, error) {
	if err := src.Validate(); err != nil {
		return "", &SourceError{Op: OpSource, ExitCode: -1, Err: err}
	}

	entryDir := r.EntryDir(src.URL)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return "", &SourceError{Op: OpMkdir, Dir: entryDir, ExitCode: -1, Err: err}
	}

	unlock, err := lockEntry(ctx, entryDir, r.lockRetry)
	if err != nil {
		return "", err
	}
	defer unlock()

	logger := r.logger.With("repo", RepoName(src.URL), "reference", src.Reference)

	meta, found, err := loadMeta(entryDir)
	if err != nil {
		return "", err
	}

	worktreeDir := filepath.Join(entryDir, filepath.FromSlash(src.Reference))
	now := r.now()

	switch {
	case !found:
		logger.Debug("cold cache, fetching repository", "url", src.URL)
		if err := r.update(ctx, entryDir, src.URL, CacheMeta{URL: src.URL}, now); err != nil {
			return "", err
		}
	case now.Sub(meta.LastUpdate) > r.maxAge:
		logger.Debug("cache is stale, updating", "last_update", meta.LastUpdate)
		if err := r.update(ctx, entryDir, src.URL, meta, now); err != nil {
			return "", err
		}
	case !isDir(worktreeDir):
		logger.Debug("reference not cached yet, updating")
		if err := r.update(ctx, entryDir, src.URL, meta, now); err != nil {
			return "", err
		}
	default:
		logger.Info("cache updated recently, skipping update", "last_update", meta.LastUpdate.Local().Format(time.RFC3339))
	}

	if !isDir(worktreeDir) {
		if err := os.MkdirAll(filepath.Dir(worktreeDir), 0755); err != nil {
			return "", &SourceError{Op: OpMkdir, Dir: entryDir, ExitCode: -1, Err: err}
		}
		logger.Debug("adding worktree", "dir", worktreeDir)
		if err := r.git.AddWorktree(ctx, filepath.Join(entryDir, headDirName), worktreeDir, src.Reference); err != nil {
			return "", err
		}
	}

	r.checkDrift(ctx, logger, worktreeDir)

	if err := os.Chtimes(worktreeDir, now, now); err != nil {
		logger.Warn("failed to record last access", "error", err)
	}
	return worktreeDir, nil
}

// update clones or fast-forwards HEAD and records the update time.
func (r *Reifier) update(ctx context.Context, entryDir, url string, meta CacheMeta, now time.Time) error {
	headDir := filepath.Join(entryDir, headDirName)
	if isDir(headDir) {
		if err := r.git.FastForwardPull(ctx, headDir); err != nil {
			return err
		}
	} else if err := r.clone(ctx, entryDir, url); err != nil {
		return err
	}

	meta.URL = url
	meta.LastUpdate = now
	return saveMeta(entryDir, meta)
}

// clone clones into a scratch directory and renames it to HEAD so an
// interrupted clone never leaves a half-populated HEAD behind.
func (r *Reifier) clone(ctx context.Context, entryDir, url string) error {
	tmp, err := os.MkdirTemp(entryDir, scratchPrefix+"*")
	if err != nil {
		return &SourceError{Op: OpMkdir, Dir: entryDir, ExitCode: -1, Err: err}
	}
	if err := r.git.Clone(ctx, url, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(entryDir, headDirName)); err != nil {
		_ = os.RemoveAll(tmp)
		return &SourceError{Op: OpClone, Dir: entryDir, ExitCode: -1, Err: err}
	}
	return nil
}

// checkDrift warns when the worktree is behind the remote's default branch.
// Failures are logged and otherwise ignored.
func (r *Reifier) checkDrift(ctx context.Context, logger *logging.ScopedLogger, worktreeDir string) {
	local, err := r.git.CommitHash(ctx, worktreeDir, "HEAD")
	if err != nil {
		logger.Warn("drift check failed", "error", err)
		return
	}
	upstream, err := r.git.CommitHash(ctx, worktreeDir, "origin/HEAD")
	if err != nil {
		logger.Warn("drift check failed", "error", err)
		return
	}
	if local == upstream {
		return
	}

	behind, err := r.git.RevListCount(ctx, worktreeDir, local, upstream)
	if err != nil {
		logger.Warn("drift check failed", "error", err)
		return
	}
	if behind > 0 {
		logger.Warn(fmt.Sprintf("pinned reference is %d commits behind upstream", behind), "behind", behind)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
