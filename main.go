// pattern: Imperative Shell
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"

	"runthat/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses the global options, dispatches the command and returns the
// process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cli.ProgramName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	// Stop parsing flags after the first non-flag arg (the subcommand),
	// so that flags after it belong to the subcommand or the script.
	fs.SetInterspersed(false)

	env := &cli.Env{Stdout: stdout, Stderr: stderr}
	fs.StringVarP(&env.WorkDir, "path", "p", "", "directory to resolve config from and run scripts in (default: current directory)")
	fs.StringVarP(&env.Bucket, "bucket", "b", "", "use only this bucket: git:<url>#<reference> or an inline TOML table")
	fs.StringVar(&env.LogLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
	fs.StringVar(&env.LogFile, "log-file", "", "also write debug logs as JSON to this file")
	showVersion := fs.BoolP("version", "V", false, "print version and exit")

	usage := func() {
		cli.BuildApp(version, &cli.Env{Stdout: stdout, Stderr: stderr}).PrintHelp(stderr)
		fmt.Fprint(stderr, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage()
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		usage()
		return cli.ExitUsage
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	if env.WorkDir != "" {
		dir, err := resolveWorkDir(env.WorkDir)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return cli.ExitFailure
		}
		env.WorkDir = dir
	}

	err := cli.BuildApp(version, env).Execute(ctx, fs.Args())
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, fs.FlagUsages())
	}
	cli.Report(stderr, err)
	return cli.ExitCode(err)
}

// resolveWorkDir makes the --path directory absolute and checks it exists.
func resolveWorkDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving --path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("--path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("--path %s is not a directory", abs)
	}
	return abs, nil
}
