// pattern: Imperative Shell

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RUN_THAT_"
	// EnvBucketPrefix prefixes per-bucket overrides: RUN_THAT_BUCKET_<NAME>.
	EnvBucketPrefix = EnvPrefix + "BUCKET_"

	// AdHocBucketName names the bucket given on the command line.
	AdHocBucketName = "command-line"
)

// tomlFiles and yamlFiles are looked up in every directory from the working
// directory up to the filesystem root.
var (
	tomlFiles = []string{".run-that", ".run-that.toml"}
	yamlFiles = []string{".run-that.yaml", ".run-that.yml"}
)

// Config is the merged configuration seen by the rest of the program.
type Config struct {
	LogLevel  string
	CacheDir  string
	GitBinary string
	// Theme is the catppuccin flavor used for styled output.
	Theme string

	buckets map[string]BucketDefinition
	// Sources lists the config files that were merged, farthest first.
	Sources []string
}

// document is the on-disk shape shared by the TOML and YAML files.
type document struct {
	LogLevel  string         `toml:"log_level" yaml:"log_level"`
	CacheDir  string         `toml:"cache_dir" yaml:"cache_dir"`
	GitBinary string         `toml:"git_binary" yaml:"git_binary"`
	Theme     string         `toml:"theme" yaml:"theme"`
	Buckets   map[string]any `toml:"buckets" yaml:"buckets"`
}

// LookPathFunc is the function signature for looking up executables.
type LookPathFunc func(name string) (string, error)

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Theme:    "mocha",
		buckets:  make(map[string]BucketDefinition),
	}
}

// LoadFrom merges the config files visible from workingDir, farthest ancestor
// first so that nearer files win, then applies the environment overrides in
// environ (KEY=VALUE pairs).
func LoadFrom(workingDir string, environ []string) (Config, error) {
	cfg := DefaultConfig()

	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return cfg, &ConfigError{Path: workingDir, Msg: "resolving working directory", Err: err}
	}

	for _, dir := range ancestors(abs) {
		for _, name := range tomlFiles {
			if err := cfg.mergeFile(filepath.Join(dir, name), decodeTOML); err != nil {
				return DefaultConfig(), err
			}
		}
		for _, name := range yamlFiles {
			if err := cfg.mergeFile(filepath.Join(dir, name), decodeYAML); err != nil {
				return DefaultConfig(), err
			}
		}
	}

	if err := cfg.applyEnv(environ); err != nil {
		return DefaultConfig(), err
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ancestors returns dir and all its parents, root first.
func ancestors(dir string) []string {
	var dirs []string
	for {
		dirs = append(dirs, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	slices.Reverse(dirs)
	return dirs
}

type decodeFunc func(data []byte, doc *document) error

func decodeTOML(data []byte, doc *document) error {
	return toml.NewDecoder(bytes.NewReader(data)).Decode(doc)
}

func decodeYAML(data []byte, doc *document) error {
	return yaml.Unmarshal(data, doc)
}

func (c *Config) mergeFile(path string, decode decodeFunc) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Msg: "reading file", Err: err}
	}

	var doc document
	if err := decode(data, &doc); err != nil {
		return &ConfigError{Path: path, Msg: "parsing file", Err: err}
	}

	if doc.LogLevel != "" {
		c.LogLevel = doc.LogLevel
	}
	if doc.CacheDir != "" {
		c.CacheDir = doc.CacheDir
	}
	if doc.GitBinary != "" {
		c.GitBinary = doc.GitBinary
	}
	if doc.Theme != "" {
		c.Theme = doc.Theme
	}
	for name, raw := range doc.Buckets {
		def, enabled, err := ParseBucket(name, raw)
		if err != nil {
			var cerr *ConfigError
			if errors.As(err, &cerr) {
				cerr.Path = path
			}
			return err
		}
		c.setBucket(name, def, enabled)
	}

	c.Sources = append(c.Sources, path)
	return nil
}

func (c *Config) applyEnv(environ []string) error {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		switch {
		case key == EnvPrefix+"LOG_LEVEL":
			if value != "" {
				c.LogLevel = value
			}
		case key == EnvPrefix+"CACHE_DIR":
			if value != "" {
				c.CacheDir = value
			}
		case key == EnvPrefix+"GIT":
			if value != "" {
				c.GitBinary = value
			}
		case key == EnvPrefix+"THEME":
			if value != "" {
				c.Theme = value
			}
		case strings.HasPrefix(key, EnvBucketPrefix):
			name := strings.ToLower(strings.TrimPrefix(key, EnvBucketPrefix))
			if name == "" {
				continue
			}
			def, enabled, err := ParseBucket(name, value)
			if err != nil {
				return err
			}
			c.setBucket(name, def, enabled)
		}
	}
	return nil
}

func (c *Config) setBucket(name string, def BucketDefinition, enabled bool) {
	if c.buckets == nil {
		c.buckets = make(map[string]BucketDefinition)
	}
	if !enabled {
		delete(c.buckets, name)
		return
	}
	c.buckets[name] = def
}

// Buckets returns the enabled buckets by descending priority, ties by name.
func (c *Config) Buckets() []BucketDefinition {
	out := make([]BucketDefinition, 0, len(c.buckets))
	for _, def := range c.buckets {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b BucketDefinition) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// ResolveCacheRoot returns the directory under which run-that keeps its cache.
// It is the configured cache_dir when set, otherwise the platform cache home.
func (c *Config) ResolveCacheRoot() string {
	if c.CacheDir != "" {
		return expandHome(c.CacheDir)
	}
	return xdg.CacheHome
}

// ResolveGitBinary returns the path of the git executable to shell out to.
func (c *Config) ResolveGitBinary() (string, error) {
	return c.ResolveGitBinaryWith(exec.LookPath)
}

// ResolveGitBinaryWith resolves the configured git binary (default "git")
// using the provided lookup function.
func (c *Config) ResolveGitBinaryWith(lookPath LookPathFunc) (string, error) {
	name := c.GitBinary
	if name == "" {
		name = "git"
	}
	path, err := lookPath(expandHome(name))
	if err != nil {
		return "", &ConfigError{Msg: fmt.Sprintf("git binary %q not found in PATH", name), Err: err}
	}
	return path, nil
}

// ParseBucketFlag parses the ad hoc bucket given on the command line. It
// accepts the shorthand form or an inline TOML table such as
// {priority = 1, source = {type = "Git", url = "...", reference = "main"}}.
func ParseBucketFlag(value string) (BucketDefinition, error) {
	value = strings.TrimSpace(value)
	var raw any = value
	if strings.HasPrefix(value, "{") {
		var doc map[string]any
		if err := toml.Unmarshal([]byte("bucket = "+value), &doc); err != nil {
			return BucketDefinition{}, &ConfigError{Bucket: AdHocBucketName, Msg: "parsing inline table", Err: err}
		}
		raw = doc["bucket"]
	}

	def, enabled, err := ParseBucket(AdHocBucketName, raw)
	if err != nil {
		return BucketDefinition{}, err
	}
	if !enabled {
		return BucketDefinition{}, bucketErrorf(AdHocBucketName, "empty bucket specification")
	}
	return def, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
