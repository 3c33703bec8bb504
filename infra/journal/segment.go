package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	index  int
	path   string
	file   *os.File
	offset int64
	// broken is set when a failed write left bytes that could not be cut
	// off; nothing more may be appended to the segment.
	broken bool
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	path := segmentPath(dir, index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{index: index, path: path, file: f, offset: st.Size()}, nil
}

// append writes one frame. A short write is truncated away so the segment
// still ends on a frame boundary.
func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err == nil {
		s.offset += int64(n)
		return nil
	}
	if n > 0 {
		if terr := s.file.Truncate(s.offset); terr != nil {
			s.broken = true
			return errors.CombineErrors(err, terr)
		}
	}
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns segment paths in index order.
func listSegments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func parseSegmentIndex(path string) (int, bool) {
	var idx int
	if _, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx); err != nil {
		return 0, false
	}
	return idx, true
}
