// pattern: Imperative Shell
package source

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = ".lock"

// lockEntry takes an exclusive lock on a cache entry, waiting until it is
// free or ctx is done. The returned func releases it.
func lockEntry(ctx context.Context, entryDir string, retry time.Duration) (func(), error) {
	fl := flock.New(filepath.Join(entryDir, lockFileName))
	locked, err := fl.TryLockContext(ctx, retry)
	if err != nil {
		return nil, &SourceError{Op: OpLock, Dir: entryDir, ExitCode: -1, Err: err}
	}
	if !locked {
		return nil, &SourceError{Op: OpLock, Dir: entryDir, ExitCode: -1, Err: ctx.Err()}
	}
	return func() { _ = fl.Unlock() }, nil
}
