// pattern: Functional Core

package registry

import (
	"fmt"
	"strings"
)

// ScriptNotFoundError means no registry provides the script.
type ScriptNotFoundError struct {
	Name     string
	Registry string // empty when every registry was searched
}

func (e *ScriptNotFoundError) Error() string {
	if e.Registry != "" {
		return fmt.Sprintf("script %q not found in registry %q", e.Name, e.Registry)
	}
	return fmt.Sprintf("%s not found in any registry", e.Name)
}

// AmbiguousResolutionError means two or more registries provide the script
// at the same, highest priority.
type AmbiguousResolutionError struct {
	Name     string
	Priority int
	Buckets  []string
}

func (e *AmbiguousResolutionError) Error() string {
	return fmt.Sprintf("script %q is ambiguous: buckets %s all provide it at priority %d",
		e.Name, strings.Join(e.Buckets, ", "), e.Priority)
}

// ScriptExecutionError reports a script that could not be started or exited
// unsuccessfully. ExitCode is -1 when the script did not exit normally.
type ScriptExecutionError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *ScriptExecutionError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("script %s exited with status %d", e.Path, e.ExitCode)
	}
	return fmt.Sprintf("script %s failed: %v", e.Path, e.Err)
}

func (e *ScriptExecutionError) Unwrap() error { return e.Err }
