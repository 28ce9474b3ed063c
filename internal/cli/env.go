// pattern: Imperative Shell
package cli

import (
	"context"
	"io"
	"os"

	"runthat/internal/config"
	"runthat/internal/logging"
	"runthat/internal/registry"
	"runthat/internal/source"
)

// Env carries the global options and process streams shared by every command.
// Zero-valued fields fall back to the real process environment.
type Env struct {
	// WorkDir is where config lookup starts and scripts run (--path).
	WorkDir string
	// Bucket is an ad hoc bucket replacing the configured ones (--bucket).
	Bucket string
	// LogLevel overrides the configured log level when set (--log-level).
	LogLevel string
	// LogFile enables the rotated JSON log file (--log-file).
	LogFile string

	// Environ is the environment used for config overrides.
	Environ []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// LookPath resolves the git binary. Defaults to exec.LookPath.
	LookPath config.LookPathFunc
	// NewGit builds the git implementation. Defaults to source.NewCLI.
	NewGit func(binary string, progress io.Writer) source.Git
	// Logs replaces the log manager built from LogLevel and LogFile.
	Logs logging.LoggerProvider
}

func (e *Env) defaults() {
	if e.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			e.WorkDir = wd
		} else {
			e.WorkDir = "."
		}
	}
	if e.Environ == nil {
		e.Environ = os.Environ()
	}
	if e.Stdin == nil {
		e.Stdin = os.Stdin
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.NewGit == nil {
		e.NewGit = func(binary string, progress io.Writer) source.Git {
			return source.NewCLI(binary, progress)
		}
	}
}

// session is the per-invocation state built from the merged configuration.
type session struct {
	env  *Env
	cfg  config.Config
	logs logging.LoggerProvider
	log  *logging.ScopedLogger
}

// open loads the configuration and starts logging.
func (e *Env) open() (*session, error) {
	e.defaults()

	cfg, err := config.LoadFrom(e.WorkDir, e.Environ)
	if err != nil {
		return nil, err
	}

	logs := e.Logs
	if logs == nil {
		level := cfg.LogLevel
		if e.LogLevel != "" {
			level = e.LogLevel
		}
		m, err := logging.NewManager(logging.Config{
			Level:    level,
			Console:  e.Stderr,
			FilePath: e.LogFile,
		})
		if err != nil {
			return nil, err
		}
		logs = m
	}

	s := &session{env: e, cfg: cfg, logs: logs, log: logs.For("cli")}
	s.log.Debug("configuration loaded", "files", cfg.Sources, "work_dir", e.WorkDir)
	return s, nil
}

func (s *session) Close() {
	_ = s.logs.Close()
}

// git resolves the git binary and returns the configured implementation.
func (s *session) git() (source.Git, error) {
	var (
		binary string
		err    error
	)
	if s.env.LookPath != nil {
		binary, err = s.cfg.ResolveGitBinaryWith(s.env.LookPath)
	} else {
		binary, err = s.cfg.ResolveGitBinary()
	}
	if err != nil {
		return nil, err
	}
	return s.env.NewGit(binary, s.env.Stderr), nil
}

func (s *session) cacheRoot() string {
	return s.cfg.ResolveCacheRoot()
}

// buckets returns the ad hoc bucket when one was given, otherwise the
// configured buckets by descending priority.
func (s *session) buckets() ([]config.BucketDefinition, error) {
	if s.env.Bucket != "" {
		def, err := config.ParseBucketFlag(s.env.Bucket)
		if err != nil {
			return nil, err
		}
		return []config.BucketDefinition{def}, nil
	}
	return s.cfg.Buckets(), nil
}

// registries materializes every bucket and returns the combined registry.
func (s *session) registries(ctx context.Context) (*registry.MultiRegistry, error) {
	defs, err := s.buckets()
	if err != nil {
		return nil, err
	}

	git, err := s.git()
	if err != nil {
		return nil, err
	}
	reifier := source.NewReifier(s.cacheRoot(), git, source.WithLogger(s.logs.For("source")))

	opts := []registry.Option{
		registry.WithLogger(s.logs.For("registry")),
		registry.WithStdio(s.env.Stdin, s.env.Stdout, s.env.Stderr),
	}
	if s.env.Bucket != "" {
		return registry.NewSingle(ctx, defs[0], reifier, opts...)
	}
	return registry.NewMulti(ctx, defs, reifier, opts...)
}

// withSession opens a session, runs fn and closes it.
func (e *Env) withSession(fn func(*session) error) error {
	s, err := e.open()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
