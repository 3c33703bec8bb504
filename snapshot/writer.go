package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const fileName = "snapshot.bin"

type Writer struct {
	Dir string
}

// Write replaces the snapshot in Dir. The file is written aside and
// renamed, so a crash leaves either the old or the new snapshot.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create snapshot dir %s", w.Dir)
	}

	f, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encode snapshot at seq %d", s.Seq)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.Dir, fileName))
}
