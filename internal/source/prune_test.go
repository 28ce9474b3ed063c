package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func references(wts []Worktree) []string {
	refs := make([]string, len(wts))
	for i, wt := range wts {
		refs[i] = wt.Reference
	}
	return refs
}

// populate reifies main at t0 and feature/dev twenty days later.
func populate(t *testing.T, git *fakeGit) (*Reifier, string) {
	t.Helper()
	cacheRoot := t.TempDir()
	c := &clock{now: t0}
	r := NewReifier(cacheRoot, git, WithClock(c.Now))
	ctx := context.Background()

	if _, err := r.Reify(ctx, scriptsRepo); err != nil {
		t.Fatalf("Reify main: %v", err)
	}
	c.now = t0.Add(20 * 24 * time.Hour)
	dev := scriptsRepo
	dev.Reference = "feature/dev"
	if _, err := r.Reify(ctx, dev); err != nil {
		t.Fatalf("Reify dev: %v", err)
	}
	git.reset()
	return r, cacheRoot
}

func TestList(t *testing.T) {
	git := newFakeGit()
	r, cacheRoot := populate(t, git)

	entries, err := List(cacheRoot)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}

	e := entries[0]
	if e.Dir != r.EntryDir(scriptsRepo.URL) {
		t.Errorf("Dir: got %s, want %s", e.Dir, r.EntryDir(scriptsRepo.URL))
	}
	if e.URL != scriptsRepo.URL {
		t.Errorf("URL: got %q", e.URL)
	}
	if want := []string{"HEAD", "feature/dev", "main"}; !slices.Equal(references(e.Worktrees), want) {
		t.Errorf("worktrees: got %v, want %v", references(e.Worktrees), want)
	}
	for _, wt := range e.Worktrees {
		if wt.Reference == "main" && !wt.LastAccess.Equal(t0) {
			t.Errorf("main LastAccess: got %v, want %v", wt.LastAccess, t0)
		}
	}
}

func TestList_MissingCache(t *testing.T) {
	entries, err := List(filepath.Join(t.TempDir(), "nothing-here"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries: got %v, want none", entries)
	}
}

func TestPrune(t *testing.T) {
	git := newFakeGit()
	r, cacheRoot := populate(t, git)

	removed, err := Prune(context.Background(), git, cacheRoot, PruneOptions{
		OlderThan: 7 * 24 * time.Hour,
		Now:       func() time.Time { return t0.Add(21 * 24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got := references(removed); !slices.Equal(got, []string{"main"}) {
		t.Errorf("removed: got %v, want [main]", got)
	}
	if want := []string{"remove main", "prune"}; !slices.Equal(git.calls, want) {
		t.Errorf("calls: got %v, want %v", git.calls, want)
	}

	entry := r.EntryDir(scriptsRepo.URL)
	if isDir(filepath.Join(entry, "main")) {
		t.Error("main worktree still present")
	}
	if !isDir(filepath.Join(entry, "HEAD")) {
		t.Error("HEAD clone removed")
	}
	if !isDir(filepath.Join(entry, "feature", "dev")) {
		t.Error("recent worktree removed")
	}
}

func TestPrune_DryRun(t *testing.T) {
	git := newFakeGit()
	r, cacheRoot := populate(t, git)

	removed, err := Prune(context.Background(), git, cacheRoot, PruneOptions{
		OlderThan: 0,
		DryRun:    true,
		Now:       func() time.Time { return t0.Add(30 * 24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got := references(removed); !slices.Equal(got, []string{"feature/dev", "main"}) {
		t.Errorf("removed: got %v, want [feature/dev main]", got)
	}
	if len(git.calls) != 0 {
		t.Errorf("dry run called git: %v", git.calls)
	}
	if !isDir(filepath.Join(r.EntryDir(scriptsRepo.URL), "main")) {
		t.Error("dry run removed a worktree")
	}
}

// leaveScratch simulates a clone killed before it was renamed to HEAD.
func leaveScratch(t *testing.T, entryDir string) string {
	t.Helper()
	dir := filepath.Join(entryDir, scratchPrefix+"123")
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestPrune_RemovesInterruptedClone(t *testing.T) {
	git := newFakeGit()
	r, cacheRoot := populate(t, git)
	scratch := leaveScratch(t, r.EntryDir(scriptsRepo.URL))

	entries, err := List(cacheRoot)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Scratch) != 1 || entries[0].Scratch[0].Dir != scratch {
		t.Fatalf("List scratch: got %+v", entries)
	}
	if slices.Contains(references(entries[0].Worktrees), scratchPrefix+"123") {
		t.Errorf("scratch clone listed as a worktree: %v", references(entries[0].Worktrees))
	}

	dry, err := Prune(context.Background(), git, cacheRoot, PruneOptions{
		OlderThan: 365 * 24 * time.Hour,
		DryRun:    true,
		Now:       func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("dry Prune: %v", err)
	}
	if len(dry) != 1 || dry[0].Dir != scratch {
		t.Errorf("dry run: got %+v, want %s", dry, scratch)
	}
	if !isDir(scratch) {
		t.Fatal("dry run removed the scratch clone")
	}

	removed, err := Prune(context.Background(), git, cacheRoot, PruneOptions{
		OlderThan: 365 * 24 * time.Hour,
		Now:       func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 1 || removed[0].Dir != scratch || removed[0].Reference != "" {
		t.Errorf("removed: got %+v, want %s", removed, scratch)
	}
	if isDir(scratch) {
		t.Error("scratch clone still present")
	}
	if len(git.calls) != 0 {
		t.Errorf("no worktree was stale, git called: %v", git.calls)
	}
	if !isDir(filepath.Join(r.EntryDir(scriptsRepo.URL), "main")) {
		t.Error("fresh worktree removed")
	}
}

func TestPrune_RemoveFailureContinues(t *testing.T) {
	git := newFakeGit()
	_, cacheRoot := populate(t, git)
	git.removeErr = &SourceError{Op: OpRemove, ExitCode: 128}

	removed, err := Prune(context.Background(), git, cacheRoot, PruneOptions{
		Now: func() time.Time { return t0.Add(30 * 24 * time.Hour) },
	})
	var serr *SourceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed: got %v, want none", references(removed))
	}
	if want := []string{"remove dev", "remove main"}; !slices.Equal(git.calls, want) {
		t.Errorf("calls: got %v, want %v", git.calls, want)
	}
}

func TestMeta_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2026, 5, 4, 3, 2, 1, 999, time.FixedZone("x", 3600))

	if err := saveMeta(dir, CacheMeta{URL: "https://example.com/x.git", LastUpdate: when}); err != nil {
		t.Fatalf("saveMeta: %v", err)
	}
	meta, found, err := loadMeta(dir)
	if err != nil || !found {
		t.Fatalf("loadMeta: found=%v err=%v", found, err)
	}
	if !meta.LastUpdate.Equal(when.Truncate(time.Second)) {
		t.Errorf("LastUpdate: got %v, want %v", meta.LastUpdate, when.Truncate(time.Second))
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, metaFileName+".*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left: %v", leftovers)
	}
}

func TestMeta_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, metaFileName), []byte("last_update = ["), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err := loadMeta(dir)
	var serr *SourceError
	if !errors.As(err, &serr) || serr.Op != OpMeta {
		t.Fatalf("expected metadata SourceError, got %v", err)
	}
}
