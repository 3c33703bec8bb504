package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Load reads the snapshot in dir. A missing snapshot is not an error: it
// yields the empty state at seq 0.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", f.Name())
	}
	return &s, nil
}
