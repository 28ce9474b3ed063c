// pattern: Imperative Shell
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"runthat/internal/registry"
)

// BuildApp creates and configures the CLI application with all commands and groups.
func BuildApp(version string, env *Env) *App {
	env.defaults()
	app := NewApp(version, env.Stderr)

	app.AddCommand(&Command{
		Name:    "run",
		Summary: "Run a script from the highest priority bucket providing it",
		Usage:   "Usage: run-that run [-s] <script> [--] [args...]",
		Run: func(ctx context.Context, args []string) error {
			return runRunCommand(ctx, env, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "which",
		Summary: "Print the path a script resolves to",
		Usage:   "Usage: run-that which [-v] <script>",
		Run: func(ctx context.Context, args []string) error {
			return runWhichCommand(ctx, env, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "list",
		Summary: "List the scripts every bucket provides",
		Usage:   "Usage: run-that list",
		Run: func(ctx context.Context, args []string) error {
			if err := parseNoArgs("list", args); err != nil {
				return err
			}
			return runListCommand(ctx, env)
		},
	})

	app.AddCommand(&Command{
		Name:    "buckets",
		Summary: "Show the configured buckets and config files",
		Usage:   "Usage: run-that buckets",
		Run: func(ctx context.Context, args []string) error {
			if err := parseNoArgs("buckets", args); err != nil {
				return err
			}
			return runBucketsCommand(env)
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: run-that version",
		Run: func(ctx context.Context, args []string) error {
			fmt.Fprintln(env.Stdout, version)
			return nil
		},
	})

	cacheGroup := app.AddGroup("cache", "Inspect and prune the source cache")
	RegisterCacheCommands(cacheGroup, env)

	return app
}

// flagError converts a pflag parse error into ErrHelp or a *UsageError.
func flagError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return ErrHelp
	}
	return &UsageError{Msg: err.Error()}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseNoArgs(name string, args []string) error {
	fs := newFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return flagError(err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("%s takes no arguments", name)
	}
	return nil
}

// parseRunArgs splits the run command line into the script name and the
// arguments passed to it verbatim. Flag parsing stops at the script name.
func parseRunArgs(args []string) (string, []string, error) {
	fs := newFlagSet("run")
	fs.SetInterspersed(false)
	script := fs.StringP("script", "s", "", "name of the script to run")
	if err := fs.Parse(args); err != nil {
		return "", nil, flagError(err)
	}

	rest := fs.Args()
	name := *script
	if name == "" {
		if len(rest) == 0 {
			return "", nil, usageErrorf("missing script name")
		}
		name, rest = rest[0], rest[1:]
		if len(rest) > 0 && rest[0] == "--" {
			rest = rest[1:]
		}
	}
	return name, rest, nil
}

func runRunCommand(ctx context.Context, env *Env, args []string) error {
	name, scriptArgs, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	return env.withSession(func(s *session) error {
		m, err := s.registries(ctx)
		if err != nil {
			return err
		}
		err = m.RunScript(ctx, name, scriptArgs, env.WorkDir)
		if err != nil {
			s.log.Debug("script finished", "script", name, "error", err)
		}
		return err
	})
}

func runWhichCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("which")
	verbose := fs.BoolP("verbose", "v", false, "also print the bucket, priority and source")
	if err := fs.Parse(args); err != nil {
		return flagError(err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("which takes exactly one script name")
	}
	name := fs.Arg(0)

	return env.withSession(func(s *session) error {
		m, err := s.registries(ctx)
		if err != nil {
			return err
		}
		r, err := m.Resolve(name)
		if err != nil {
			return err
		}
		path, _ := r.ScriptPath(name)
		if *verbose {
			fmt.Fprintf(env.Stdout, "%s\t%s\t%d\t%s\n", path, r.Name(), r.Priority(), r.Source())
			return nil
		}
		fmt.Fprintln(env.Stdout, path)
		return nil
	})
}

func runListCommand(ctx context.Context, env *Env) error {
	return env.withSession(func(s *session) error {
		m, err := s.registries(ctx)
		if err != nil {
			return err
		}
		listings, err := m.Scripts()
		if err != nil {
			return err
		}

		styles := NewStyles(env.Stdout, s.cfg.Theme)
		for i, l := range listings {
			if i > 0 {
				fmt.Fprintln(env.Stdout)
			}
			title := fmt.Sprintf("%s (priority %d)", l.Registry.Name(), l.Registry.Priority())
			fmt.Fprintf(env.Stdout, "%s %s\n", styles.TitleStyle().Render(title), styles.MutedStyle().Render(l.Registry.Source().String()))
			if len(l.Scripts) == 0 {
				fmt.Fprintf(env.Stdout, "  %s\n", styles.MutedStyle().Render("(no scripts)"))
			}
			for _, script := range l.Scripts {
				fmt.Fprintf(env.Stdout, "  %s\n", describeScript(styles, m, l.Registry, script))
			}
		}
		return nil
	})
}

// describeScript renders a script name with its resolution status.
func describeScript(styles *Styles, m *registry.MultiRegistry, r *registry.Registry, script string) string {
	winner, err := m.Resolve(script)
	var ambiguous *registry.AmbiguousResolutionError
	switch {
	case errors.As(err, &ambiguous):
		return script + " " + styles.ErrorStyle().Render("(ambiguous: "+strings.Join(ambiguous.Buckets, ", ")+")")
	case err != nil:
		return script + " " + styles.ErrorStyle().Render("("+err.Error()+")")
	case winner != r:
		return styles.MutedStyle().Render(script + " (shadowed by " + winner.Name() + ")")
	default:
		return styles.AccentStyle().Render(script)
	}
}

func runBucketsCommand(env *Env) error {
	return env.withSession(func(s *session) error {
		defs, err := s.buckets()
		if err != nil {
			return err
		}

		styles := NewStyles(env.Stdout, s.cfg.Theme)
		if len(defs) == 0 {
			fmt.Fprintln(env.Stdout, styles.WarnStyle().Render("no buckets configured"))
		} else {
			t := styles.Table("BUCKET", "PRIORITY", "SOURCE")
			for _, def := range defs {
				t.Row(def.Name, strconv.Itoa(def.Priority), def.Source.String())
			}
			fmt.Fprintln(env.Stdout, t.Render())
		}

		if len(s.cfg.Sources) > 0 {
			fmt.Fprintln(env.Stdout, styles.MutedStyle().Render("config files (nearest last):"))
			for _, path := range s.cfg.Sources {
				fmt.Fprintf(env.Stdout, "  %s\n", path)
			}
		}
		return nil
	})
}
