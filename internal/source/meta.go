// pattern: Imperative Shell

package source

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const metaFileName = "meta.toml"

// CacheMeta is the per-entry metadata persisted as meta.toml.
type CacheMeta struct {
	URL        string    `toml:"url"`
	LastUpdate time.Time `toml:"last_update"`
}

// loadMeta reads the metadata of an entry. found is false when no metadata
// has been written yet.
func loadMeta(entryDir string) (meta CacheMeta, found bool, err error) {
	path := filepath.Join(entryDir, metaFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return CacheMeta{}, false, nil
	}
	if err != nil {
		return CacheMeta{}, false, &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	if err := toml.Unmarshal(data, &meta); err != nil {
		return CacheMeta{}, false, &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	return meta, true, nil
}

// saveMeta replaces the entry's metadata atomically.
func saveMeta(entryDir string, meta CacheMeta) error {
	meta.LastUpdate = meta.LastUpdate.UTC().Truncate(time.Second)
	data, err := toml.Marshal(meta)
	if err != nil {
		return &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}

	tmp, err := os.CreateTemp(entryDir, metaFileName+".*")
	if err != nil {
		return &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	if err := os.Rename(tmp.Name(), filepath.Join(entryDir, metaFileName)); err != nil {
		return &SourceError{Op: OpMeta, Dir: entryDir, ExitCode: -1, Err: err}
	}
	return nil
}
