// pattern: Functional Core

package source

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Operations reported by SourceError.
const (
	OpMkdir    = "mkdir"
	OpLock     = "lock"
	OpMeta     = "metadata"
	OpClone    = "clone"
	OpPull     = "pull"
	OpWorktree = "worktree add"
	OpRevParse = "rev-parse"
	OpRevList  = "rev-list"
	OpRemove   = "worktree remove"
	OpPrune    = "worktree prune"
	OpSource   = "source"
)

// SourceError reports a failure to materialize a source. ExitCode is the git
// process status, or -1 when no process exit status is involved.
type SourceError struct {
	Op       string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SourceError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "source %s failed", e.Op)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&sb, " [exit status %d]", e.ExitCode)
	}
	if e.Dir != "" {
		fmt.Fprintf(&sb, " in %s", e.Dir)
	}
	if msg := lastLine(e.Stderr); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *SourceError) Unwrap() error { return e.Err }

// lastLine returns the final message git wrote, without progress redraws or
// terminal escapes.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := strings.TrimRight(lines[len(lines)-1], "\r")
	if i := strings.LastIndex(line, "\r"); i >= 0 {
		line = line[i+1:]
	}
	return strings.TrimSpace(ansi.Strip(line))
}
