// pattern: Imperative Shell
package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"runthat/internal/config"
	"runthat/internal/logging"
)

const binDirName = "bin"

// SourceReifier turns a bucket's source into a local directory.
type SourceReifier interface {
	Reify(ctx context.Context, src config.Source) (string, error)
}

// Registry is one bucket whose source has been materialized on disk.
type Registry struct {
	name     string
	priority int
	source   config.Source
	root     string
	logger   *logging.ScopedLogger
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for script launches.
func WithLogger(l *logging.ScopedLogger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithStdio replaces the standard streams handed to scripts.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Registry) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// New reifies def's source and returns the resulting registry.
func New(ctx context.Context, def config.BucketDefinition, reifier SourceReifier, opts ...Option) (*Registry, error) {
	root, err := reifier.Reify(ctx, def.Source)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		name:     def.Name,
		priority: def.Priority,
		source:   def.Source,
		root:     root,
		logger:   logging.NopLogger(),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) Name() string          { return r.name }
func (r *Registry) Priority() int         { return r.priority }
func (r *Registry) Source() config.Source { return r.source }
func (r *Registry) Root() string          { return r.root }

// ScriptPath returns the file a script name resolves to: <root>/<name>, then
// <root>/bin/<name>. Only regular files match.
func (r *Registry) ScriptPath(name string) (string, bool) {
	if !validScriptName(name) {
		return "", false
	}
	for _, dir := range []string{r.root, filepath.Join(r.root, binDirName)} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// HasScript reports whether the registry provides name.
func (r *Registry) HasScript(name string) bool {
	_, ok := r.ScriptPath(name)
	return ok
}

// RunScript runs name with args in workDir, wired to the registry's standard
// streams, and waits for it. The script is not killed when ctx is cancelled:
// an interrupt from the terminal reaches it directly and it decides how to
// exit.
func (r *Registry) RunScript(ctx context.Context, name string, args []string, workDir string) error {
	path, ok := r.ScriptPath(name)
	if !ok {
		return &ScriptNotFoundError{Name: name, Registry: r.name}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.logger.Debug("running script", "bucket", r.name, "path", path, "args", args, "dir", workDir)

	cmd := exec.Command(path, args...)
	cmd.Dir = workDir
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ScriptExecutionError{Path: path, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &ScriptExecutionError{Path: path, ExitCode: -1, Err: err}
	}
	return nil
}

// Scripts lists the executable files the registry provides, sorted. A name
// present at the root and in bin/ is listed once.
func (r *Registry) Scripts() ([]string, error) {
	var names []string
	for _, dir := range []string{r.root, filepath.Join(r.root, binDirName)} {
		dirents, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, d := range dirents {
			if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
				continue
			}
			info, err := d.Info()
			if err != nil || info.Mode().Perm()&0111 == 0 {
				continue
			}
			names = append(names, d.Name())
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func validScriptName(name string) bool {
	if strings.TrimSpace(name) == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
