// pattern: Functional Core
package config

import (
	"errors"
	"strings"
	"testing"
)

func TestParseShorthand_MatchesStructured(t *testing.T) {
	tests := []struct {
		url string
		ref string
	}{
		{"https://github.com/org/scripts.git", "main"},
		{"git@github.com:org/scripts.git", "v1.0.0"},
		{"ssh://git@host:2222/org/scripts", "feature/deploy"},
		{"/srv/git/scripts", "3f2c1ab"},
		{"file:///srv/git/scripts#odd", "main"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			short, err := ParseShorthand("b", "git:"+tt.url+"#"+tt.ref)
			if err != nil {
				t.Fatalf("ParseShorthand: %v", err)
			}

			structured, enabled, err := ParseBucket("b", map[string]any{
				"source": map[string]any{
					"type":      "Git",
					"url":       tt.url,
					"reference": tt.ref,
				},
			})
			if err != nil || !enabled {
				t.Fatalf("ParseBucket: enabled=%v err=%v", enabled, err)
			}

			if short != structured {
				t.Errorf("shorthand %#v != structured %#v", short, structured)
			}
			if short.Priority != 0 {
				t.Errorf("Priority: got %d, want 0", short.Priority)
			}
		})
	}
}

func TestParseShorthand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing type separator", "https//example.com/x.git", "missing ':'"},
		{"unknown type", "hg:https://example.com/x#main", "unknown source type"},
		{"missing hash", "git:https://example.com/x.git", "missing '#'"},
		{"empty url", "git:#main", "url cannot be empty"},
		{"empty reference", "git:https://example.com/x.git#", "reference cannot be empty"},
		{"traversal", "git:https://example.com/x.git#../../etc", "cannot contain '..'"},
		{"option-like reference", "git:https://example.com/x.git#--upload-pack=x", "cannot start with '-'"},
		{"reserved reference", "git:https://example.com/x.git#meta.toml", "collides"},
		{"clone reference", "git:https://example.com/x.git#HEAD", "collides"},
		{"reference below clone", "git:https://example.com/x.git#HEAD/sub", "collides"},
		{"hidden component", "git:https://example.com/x.git#.lock", "starting with '.'"},
		{"hidden nested component", "git:https://example.com/x.git#release/.clone-1", "starting with '.'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseShorthand("b", tt.input)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseBucket_DisablingValues(t *testing.T) {
	for _, raw := range []any{nil, false, "", "   "} {
		_, enabled, err := ParseBucket("b", raw)
		if err != nil {
			t.Errorf("ParseBucket(%#v): unexpected error %v", raw, err)
		}
		if enabled {
			t.Errorf("ParseBucket(%#v): expected disabled", raw)
		}
	}
}

func TestParseBucket_StructuredErrors(t *testing.T) {
	gitSource := map[string]any{"type": "Git", "url": "u", "reference": "r"}

	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"true", true, "not a bucket definition"},
		{"number", 42, "unsupported bucket value"},
		{"missing source", map[string]any{"priority": int64(1)}, "missing source"},
		{"source not table", map[string]any{"source": "git:u#r"}, "source must be a table"},
		{"missing type", map[string]any{"source": map[string]any{"url": "u", "reference": "r"}}, "missing source type"},
		{"unknown type", map[string]any{"source": map[string]any{"type": "Svn"}}, "unknown source type"},
		{"negative priority", map[string]any{"priority": int64(-1), "source": gitSource}, "cannot be negative"},
		{"fractional priority", map[string]any{"priority": 1.5, "source": gitSource}, "not an integer"},
		{"string priority", map[string]any{"priority": "high", "source": gitSource}, "must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseBucket("b", tt.raw)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseBucket_PriorityTypes(t *testing.T) {
	src := map[string]any{"type": "git", "url": "u", "reference": "r"}
	for _, p := range []any{7, int64(7), uint64(7), 7.0} {
		def, _, err := ParseBucket("b", map[string]any{"priority": p, "source": src})
		if err != nil {
			t.Fatalf("priority %T: %v", p, err)
		}
		if def.Priority != 7 {
			t.Errorf("priority %T: got %d, want 7", p, def.Priority)
		}
	}
}

func TestParseBucketFlag(t *testing.T) {
	def, err := ParseBucketFlag("git:https://example.com/x.git#main")
	if err != nil {
		t.Fatalf("shorthand: %v", err)
	}
	if def.Name != AdHocBucketName {
		t.Errorf("Name: got %q, want %q", def.Name, AdHocBucketName)
	}

	def, err = ParseBucketFlag(`{priority = 4, source = {type = "Git", url = "https://example.com/x.git", reference = "dev"}}`)
	if err != nil {
		t.Fatalf("inline table: %v", err)
	}
	if def.Priority != 4 {
		t.Errorf("Priority: got %d, want 4", def.Priority)
	}
	if def.Source.(GitSource).Reference != "dev" {
		t.Errorf("Reference: got %q, want %q", def.Source.(GitSource).Reference, "dev")
	}

	if _, err := ParseBucketFlag(""); err == nil {
		t.Error("expected error for empty bucket flag")
	}
	if _, err := ParseBucketFlag("{priority = "); err == nil {
		t.Error("expected error for malformed inline table")
	}
}

func TestGitSource_String(t *testing.T) {
	s := GitSource{URL: "https://example.com/x.git", Reference: "main"}
	if got := s.String(); got != "git:https://example.com/x.git#main" {
		t.Errorf("String: got %q", got)
	}
	round, err := ParseShorthand("b", s.String())
	if err != nil {
		t.Fatalf("ParseShorthand: %v", err)
	}
	if round.Source != s {
		t.Errorf("round trip: got %#v, want %#v", round.Source, s)
	}
}
