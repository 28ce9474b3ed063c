// pattern: Imperative Shell
package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"runthat/internal/logging"
)

// Entry describes one cached repository.
type Entry struct {
	Dir        string
	URL        string
	LastUpdate time.Time
	Worktrees  []Worktree
	// Scratch lists clone directories left behind by an interrupted clone.
	Scratch []Worktree
}

// Worktree is a reference checked out inside an entry. Reference is empty for
// a scratch clone.
type Worktree struct {
	Reference  string
	Dir        string
	LastAccess time.Time
}

// List returns every git cache entry under cacheRoot, sorted by directory.
// A missing cache is not an error.
func List(cacheRoot string) ([]Entry, error) {
	root := GitCacheRoot(cacheRoot)
	dirents, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &SourceError{Op: OpMeta, Dir: root, ExitCode: -1, Err: err}
	}

	var entries []Entry
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entry, err := readEntry(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readEntry(dir string) (Entry, error) {
	entry := Entry{Dir: dir}
	meta, found, err := loadMeta(dir)
	if err != nil {
		return Entry{}, err
	}
	if found {
		entry.URL = meta.URL
		entry.LastUpdate = meta.LastUpdate
	}

	entry.Worktrees, err = findWorktrees(dir)
	if err != nil {
		return Entry{}, err
	}
	entry.Scratch, err = findScratch(dir)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// findScratch returns the scratch clone directories at the top of an entry.
func findScratch(entryDir string) ([]Worktree, error) {
	dirents, err := os.ReadDir(entryDir)
	if err != nil {
		return nil, &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	var out []Worktree
	for _, d := range dirents {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), scratchPrefix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, Worktree{Dir: filepath.Join(entryDir, d.Name()), LastAccess: info.ModTime()})
	}
	return out, nil
}

// findWorktrees walks an entry for directories holding a ".git" file. Nested
// references such as "feature/x" live in nested directories.
func findWorktrees(entryDir string) ([]Worktree, error) {
	var out []Worktree
	err := filepath.WalkDir(entryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == entryDir {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(entryDir, path)
		if _, err := os.Lstat(filepath.Join(path, ".git")); err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		// HEAD is the main clone, reported as the "HEAD" reference.
		out = append(out, Worktree{Reference: filepath.ToSlash(rel), Dir: path, LastAccess: info.ModTime()})
		return filepath.SkipDir
	})
	if err != nil {
		return nil, &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	slices.SortFunc(out, func(a, b Worktree) int { return strings.Compare(a.Reference, b.Reference) })
	return out, nil
}

// PruneOptions controls Prune.
type PruneOptions struct {
	// OlderThan removes worktrees not accessed within this duration.
	OlderThan time.Duration
	// DryRun reports what would be removed without touching the cache.
	DryRun bool
	Now    func() time.Time
	Logger *logging.ScopedLogger
}

// Prune removes worktrees whose last access is older than opts.OlderThan,
// along with any scratch directory of an interrupted clone.
// The HEAD clone is never removed since every worktree shares its objects.
// Each entry is locked while it is pruned. Failures on one worktree do not
// stop the others; they are joined into the returned error.
func Prune(ctx context.Context, git Git, cacheRoot string, opts PruneOptions) ([]Worktree, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	cutoff := opts.Now().Add(-opts.OlderThan)

	entries, err := List(cacheRoot)
	if err != nil {
		return nil, err
	}

	var removed []Worktree
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		r, err := pruneEntry(ctx, git, entry, cutoff, opts)
		removed = append(removed, r...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func pruneEntry(ctx context.Context, git Git, entry Entry, cutoff time.Time, opts PruneOptions) ([]Worktree, error) {
	var stale []Worktree
	for _, wt := range entry.Worktrees {
		if wt.Reference != headDirName && wt.LastAccess.Before(cutoff) {
			stale = append(stale, wt)
		}
	}
	if len(stale) == 0 && len(entry.Scratch) == 0 {
		return nil, nil
	}
	if opts.DryRun {
		return append(entry.Scratch, stale...), nil
	}

	unlock, err := lockEntry(ctx, entry.Dir, defaultLockRetry)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var removed []Worktree
	var errs []error

	// Clones only run under the entry lock, so whatever scratch directory is
	// still here belongs to a clone that was killed.
	scratch, err := findScratch(entry.Dir)
	if err != nil {
		errs = append(errs, err)
	}
	for _, wt := range scratch {
		if err := os.RemoveAll(wt.Dir); err != nil {
			opts.Logger.Warn("failed to remove interrupted clone", "dir", wt.Dir, "error", err)
			errs = append(errs, &SourceError{Op: OpRemove, Dir: wt.Dir, ExitCode: -1, Err: err})
			continue
		}
		opts.Logger.Info("removed interrupted clone", "dir", wt.Dir)
		removed = append(removed, wt)
	}

	headDir := filepath.Join(entry.Dir, headDirName)
	var removedWorktrees int
	for _, wt := range stale {
		logger := opts.Logger.With("dir", wt.Dir, "reference", wt.Reference)
		if err := git.RemoveWorktree(ctx, headDir, wt.Dir); err != nil {
			logger.Warn("failed to remove worktree", "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Info("removed worktree", "last_access", wt.LastAccess.Format(time.RFC3339))
		removed = append(removed, wt)
		removedWorktrees++
	}

	if removedWorktrees > 0 {
		if err := git.PruneWorktrees(ctx, headDir); err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
