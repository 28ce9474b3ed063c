// pattern: Functional Core
package config

import (
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"
)

// SourceTypeGit is the structured-form type tag of a git source.
const SourceTypeGit = "Git"

// Source describes where a bucket's scripts come from.
// GitSource is the only implementation today.
type Source interface {
	// Type returns the structured-form type tag (e.g. "Git").
	Type() string
	// Validate reports a malformed descriptor.
	Validate() error
	// String renders the descriptor in shorthand form.
	String() string
}

// GitSource is a git repository pinned to a branch, tag or commit-ish.
type GitSource struct {
	URL       string
	Reference string
}

func (s GitSource) Type() string { return SourceTypeGit }

func (s GitSource) String() string { return "git:" + s.URL + "#" + s.Reference }

// Validate checks that the URL and reference are usable. The reference becomes
// a directory name inside the cache entry, so it may not escape it.
func (s GitSource) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("git source url cannot be empty")
	}
	if strings.HasPrefix(s.URL, "-") {
		return fmt.Errorf("git source url %q cannot start with '-'", s.URL)
	}
	if strings.TrimSpace(s.Reference) == "" {
		return fmt.Errorf("git source reference cannot be empty")
	}
	if strings.HasPrefix(s.Reference, "-") {
		return fmt.Errorf("git reference %q cannot start with '-'", s.Reference)
	}
	if filepath.IsAbs(s.Reference) || path.IsAbs(s.Reference) {
		return fmt.Errorf("git reference %q cannot be an absolute path", s.Reference)
	}
	segs := strings.Split(filepath.ToSlash(s.Reference), "/")
	for _, seg := range segs {
		if seg == ".." {
			return fmt.Errorf("git reference %q cannot contain '..'", s.Reference)
		}
		if strings.HasPrefix(seg, ".") {
			return fmt.Errorf("git reference %q cannot have a component starting with '.'", s.Reference)
		}
	}
	if reservedReferences[segs[0]] {
		return fmt.Errorf("git reference %q collides with a cache file name", s.Reference)
	}
	return nil
}

// reservedReferences are names used at the top of a cache entry. HEAD is the
// shared clone, so a worktree may not live at or below it.
var reservedReferences = map[string]bool{
	"HEAD":      true,
	"meta.toml": true,
}

// BucketDefinition is one validated, enabled bucket.
type BucketDefinition struct {
	Name     string
	Priority int
	Source   Source
}

// ConfigError reports a malformed bucket definition or configuration file.
type ConfigError struct {
	Bucket string // bucket name, empty when the error is not bucket specific
	Path   string // config file, empty when not file specific
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config")
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	if e.Bucket != "" {
		fmt.Fprintf(&sb, " bucket %q", e.Bucket)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func bucketErrorf(bucket, format string, args ...any) *ConfigError {
	return &ConfigError{Bucket: bucket, Msg: fmt.Sprintf(format, args...)}
}

// ParseShorthand parses "git:<url>#<reference>" into a priority 0 bucket.
// The type is split at the first ':' and the reference at the last '#', so
// URLs carrying a scheme or an scp-style host still parse.
func ParseShorthand(name, s string) (BucketDefinition, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return BucketDefinition{}, bucketErrorf(name, "missing ':' separator in %q (want git:<url>#<reference>)", s)
	}

	var src Source
	switch {
	case strings.EqualFold(kind, "git"):
		i := strings.LastIndex(rest, "#")
		if i < 0 {
			return BucketDefinition{}, bucketErrorf(name, "missing '#' in git source %q (want git:<url>#<reference>)", s)
		}
		src = GitSource{URL: rest[:i], Reference: rest[i+1:]}
	default:
		return BucketDefinition{}, bucketErrorf(name, "unknown source type %q", kind)
	}

	if err := src.Validate(); err != nil {
		return BucketDefinition{}, &ConfigError{Bucket: name, Msg: "invalid source", Err: err}
	}
	return BucketDefinition{Name: name, Source: src}, nil
}

// ParseBucket normalizes one raw bucket value as produced by the TOML or YAML
// decoders. A shorthand string and a structured table produce the same
// definition. enabled is false for disabling values (nil, false, "").
func ParseBucket(name string, raw any) (def BucketDefinition, enabled bool, err error) {
	switch v := raw.(type) {
	case nil:
		return BucketDefinition{}, false, nil
	case bool:
		if !v {
			return BucketDefinition{}, false, nil
		}
		return BucketDefinition{}, false, bucketErrorf(name, "true is not a bucket definition (use false to disable)")
	case string:
		if strings.TrimSpace(v) == "" {
			return BucketDefinition{}, false, nil
		}
		def, err := ParseShorthand(name, v)
		return def, err == nil, err
	case map[string]any:
		def, err := parseStructured(name, v)
		return def, err == nil, err
	default:
		return BucketDefinition{}, false, bucketErrorf(name, "unsupported bucket value of type %T", raw)
	}
}

func parseStructured(name string, m map[string]any) (BucketDefinition, error) {
	def := BucketDefinition{Name: name}

	if p, ok := m["priority"]; ok && p != nil {
		prio, err := toPriority(p)
		if err != nil {
			return BucketDefinition{}, &ConfigError{Bucket: name, Msg: "invalid priority", Err: err}
		}
		def.Priority = prio
	}

	rawSrc, ok := m["source"]
	if !ok || rawSrc == nil {
		return BucketDefinition{}, bucketErrorf(name, "missing source")
	}
	srcMap, ok := rawSrc.(map[string]any)
	if !ok {
		return BucketDefinition{}, bucketErrorf(name, "source must be a table, got %T", rawSrc)
	}

	kind, _ := srcMap["type"].(string)
	switch {
	case kind == "":
		return BucketDefinition{}, bucketErrorf(name, "missing source type")
	case strings.EqualFold(kind, SourceTypeGit):
		url, _ := srcMap["url"].(string)
		ref, _ := srcMap["reference"].(string)
		def.Source = GitSource{URL: url, Reference: ref}
	default:
		return BucketDefinition{}, bucketErrorf(name, "unknown source type %q", kind)
	}

	if err := def.Source.Validate(); err != nil {
		return BucketDefinition{}, &ConfigError{Bucket: name, Msg: "invalid source", Err: err}
	}
	return def, nil
}

func toPriority(v any) (int, error) {
	var n int64
	switch p := v.(type) {
	case int:
		n = int64(p)
	case int64:
		n = p
	case uint64:
		if p > math.MaxInt32 {
			return 0, fmt.Errorf("priority %d out of range", p)
		}
		n = int64(p)
	case float64:
		if p != math.Trunc(p) {
			return 0, fmt.Errorf("priority %v is not an integer", p)
		}
		n = int64(p)
	default:
		return 0, fmt.Errorf("priority must be an integer, got %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("priority %d cannot be negative", n)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("priority %d out of range", n)
	}
	return int(n), nil
}
