// pattern: Imperative Shell
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"runthat/internal/source"
)

// defaultPruneAge is how long an unused worktree survives `cache prune`.
const defaultPruneAge = 30 * 24 * time.Hour

// RegisterCacheCommands registers the cache command group commands.
func RegisterCacheCommands(group *Group, env *Env) {
	group.AddCommand(&Command{
		Name:    "list",
		Summary: "List cached repositories and their worktrees",
		Usage:   "Usage: run-that cache list",
		Run: func(ctx context.Context, args []string) error {
			if err := parseNoArgs("cache list", args); err != nil {
				return err
			}
			return runCacheListCommand(env)
		},
	})

	group.AddCommand(&Command{
		Name:    "prune",
		Summary: "Remove unused worktrees and interrupted clones",
		Usage:   "Usage: run-that cache prune [--older-than DURATION] [--dry-run]",
		Run: func(ctx context.Context, args []string) error {
			fs := newFlagSet("cache prune")
			olderThan := fs.Duration("older-than", defaultPruneAge, "remove worktrees unused for this long")
			dryRun := fs.Bool("dry-run", false, "only print what would be removed")
			if err := fs.Parse(args); err != nil {
				return flagError(err)
			}
			if fs.NArg() > 0 {
				return usageErrorf("cache prune takes no arguments")
			}
			if *olderThan < 0 {
				return usageErrorf("--older-than cannot be negative")
			}
			return runCachePruneCommand(ctx, env, *olderThan, *dryRun)
		},
	})
}

func runCacheListCommand(env *Env) error {
	return env.withSession(func(s *session) error {
		entries, err := source.List(s.cacheRoot())
		if err != nil {
			return err
		}

		styles := NewStyles(env.Stdout, s.cfg.Theme)
		if len(entries) == 0 {
			fmt.Fprintln(env.Stdout, styles.MutedStyle().Render("cache is empty: "+source.GitCacheRoot(s.cacheRoot())))
			return nil
		}

		t := styles.Table("REPOSITORY", "REFERENCE", "LAST USED", "LAST UPDATE")
		for _, e := range entries {
			url := e.URL
			if url == "" {
				url = filepath.Base(e.Dir)
			}
			for _, wt := range e.Worktrees {
				t.Row(url, wt.Reference, formatTime(wt.LastAccess), formatTime(e.LastUpdate))
			}
			for _, wt := range e.Scratch {
				t.Row(url, "(interrupted clone)", formatTime(wt.LastAccess), "-")
			}
		}
		fmt.Fprintln(env.Stdout, t.Render())
		return nil
	})
}

func runCachePruneCommand(ctx context.Context, env *Env, olderThan time.Duration, dryRun bool) error {
	return env.withSession(func(s *session) error {
		var git source.Git
		if !dryRun {
			var err error
			if git, err = s.git(); err != nil {
				return err
			}
		}

		removed, err := source.Prune(ctx, git, s.cacheRoot(), source.PruneOptions{
			OlderThan: olderThan,
			DryRun:    dryRun,
			Logger:    s.logs.For("source"),
		})

		verb := "removed"
		if dryRun {
			verb = "would remove"
		}
		for _, wt := range removed {
			fmt.Fprintf(env.Stdout, "%s %s\n", verb, wt.Dir)
		}
		if len(removed) == 0 {
			fmt.Fprintln(env.Stdout, "nothing to prune")
		}
		return err
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
