// pattern: Functional Core
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// ProgramName is the executable name used in help output.
const ProgramName = "run-that"

// ErrHelp is returned when help was requested and printed.
var ErrHelp = errors.New("help requested")

// UsageError reports a command line that could not be understood.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Command represents a single CLI command with its metadata and handler.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Run     func(ctx context.Context, args []string) error
}

// Group represents a group of related commands.
type Group struct {
	Name     string
	Summary  string
	Commands map[string]*Command
}

// App represents the top-level CLI application with groups and ungrouped commands.
type App struct {
	groups   map[string]*Group
	commands map[string]*Command
	version  string
	stderr   io.Writer
}

// NewApp creates a new CLI application. Help and usage text go to stderr.
func NewApp(version string, stderr io.Writer) *App {
	return &App{
		groups:   make(map[string]*Group),
		commands: make(map[string]*Command),
		version:  version,
		stderr:   stderr,
	}
}

// AddGroup creates and registers a new command group.
func (a *App) AddGroup(name, summary string) *Group {
	g := &Group{
		Name:     name,
		Summary:  summary,
		Commands: make(map[string]*Command),
	}
	a.groups[name] = g
	return g
}

// AddCommand registers an ungrouped (top-level) command.
func (a *App) AddCommand(cmd *Command) {
	a.commands[cmd.Name] = cmd
}

// AddCommand registers a command in the group.
func (g *Group) AddCommand(cmd *Command) {
	g.Commands[cmd.Name] = cmd
}

// Execute dispatches the CLI arguments to the appropriate command and returns
// its error. Help output returns ErrHelp; unknown commands a *UsageError.
func (a *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.PrintHelp(a.stderr)
		return usageErrorf("no command given")
	}

	cmdName := args[0]
	if cmdName == "help" || cmdName == "--help" || cmdName == "-h" {
		a.PrintHelp(a.stderr)
		return ErrHelp
	}

	if cmd, ok := a.commands[cmdName]; ok {
		return a.run(ctx, cmd, args[1:])
	}

	if group, ok := a.groups[cmdName]; ok {
		if len(args) < 2 || args[1] == "help" || args[1] == "--help" || args[1] == "-h" {
			group.PrintHelp(a.stderr)
			return ErrHelp
		}

		if cmd, ok := group.Commands[args[1]]; ok {
			return a.run(ctx, cmd, args[2:])
		}

		group.PrintHelp(a.stderr)
		return usageErrorf("unknown command %q in group %q", args[1], group.Name)
	}

	a.PrintHelp(a.stderr)
	return usageErrorf("unknown command %q", cmdName)
}

// run invokes cmd, printing its usage when it fails to parse its arguments.
func (a *App) run(ctx context.Context, cmd *Command, args []string) error {
	err := cmd.Run(ctx, args)
	var usageErr *UsageError
	switch {
	case errors.Is(err, ErrHelp):
		fmt.Fprintf(a.stderr, "%s\n", cmd.Usage)
	case errors.As(err, &usageErr):
		fmt.Fprintf(a.stderr, "%s\n", cmd.Usage)
	}
	return err
}

// PrintHelp prints the top-level help text.
func (a *App) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [options] <command> [args...]\n\n", ProgramName)
	fmt.Fprintf(w, "Commands:\n")

	for _, name := range slices.Sorted(maps.Keys(a.commands)) {
		cmd := a.commands[name]
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}

	if len(a.groups) > 0 {
		fmt.Fprintf(w, "\nCommand Groups:\n")
		for _, name := range slices.Sorted(maps.Keys(a.groups)) {
			group := a.groups[name]
			fmt.Fprintf(w, "  %-10s %s\n", group.Name, group.Summary)
		}
		fmt.Fprintf(w, "\nUse \"%s <group> help\" for group details.\n", ProgramName)
	}

	fmt.Fprintf(w, "\nOptions:\n")
}

// PrintHelp prints help for a specific group.
func (g *Group) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s %s <command>\n\n", ProgramName, g.Name)
	fmt.Fprintf(w, "Commands:\n")
	// Sort command names for deterministic output
	names := slices.Sorted(maps.Keys(g.Commands))
	for _, name := range names {
		cmd := g.Commands[name]
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintf(w, "\nUse \"%s %s <command> --help\" for command details.\n", ProgramName, g.Name)
}
