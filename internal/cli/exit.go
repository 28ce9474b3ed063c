// pattern: Functional Core
package cli

import (
	"errors"
	"fmt"
	"io"

	"runthat/internal/registry"
)

// Exit codes for failures that are not a script's own exit status.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitCode maps an error returned by Execute to a process exit status. A
// script that exited unsuccessfully passes its own status through.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, ErrHelp) {
		return 0
	}

	var execErr *registry.ScriptExecutionError
	if errors.As(err, &execErr) && execErr.ExitCode > 0 {
		return execErr.ExitCode
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsage
	}
	return ExitFailure
}

// Report prints err for the user, including a script's non-zero exit.
func Report(w io.Writer, err error) {
	if err == nil || errors.Is(err, ErrHelp) {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
