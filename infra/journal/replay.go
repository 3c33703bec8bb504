package journal

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order and returns the
// last sequence number seen. Records with seq <= after are skipped, which
// lets a caller resume from a snapshot. A torn frame at the end of the
// last segment ends the replay; anywhere else it is an error.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	lastSeq = after
	var prev uint64
	for i, path := range files {
		last := i == len(files)-1
		if prev, err = replaySegment(path, prev, after, last, fn); err != nil {
			return lastSeq, err
		}
		if prev > lastSeq {
			lastSeq = prev
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, prev, after uint64, last bool, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return prev, err
	}
	defer f.Close()

	for {
		rec, err := readFrame(f)
		if err != nil {
			if err == io.EOF || (last && errors.Is(err, ErrTorn)) {
				return prev, nil
			}
			return prev, errors.Wrapf(err, "replay %s", path)
		}
		if rec.Seq <= prev {
			return prev, errors.Newf("journal: non-monotonic seq %d after %d in %s", rec.Seq, prev, path)
		}
		prev = rec.Seq
		if rec.Seq <= after {
			continue
		}
		if err := fn(rec); err != nil {
			return prev, err
		}
	}
}
