// Package journal is the segmented, CRC-framed transition log of control
// block lifecycle events. Appends are serialized; Replay reads every
// segment in order and insists on strictly increasing sequence numbers.
package journal

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"refkit/infra/sequence"
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncInterval, when positive, fsyncs the active segment periodically
	// until Close. Otherwise durability waits for Sync or Close.
	SyncInterval time.Duration
}

type Journal struct {
	mu      sync.Mutex
	dir     string
	segSize int64
	current *segment
	seq     *sequence.Sequencer
	closed  bool
	// rotateErr is the last failed rotation; appends continue in the
	// current segment until a later rotation succeeds.
	rotateErr error
	stop      chan struct{}
	done      chan struct{}
}

// Open creates dir if needed and starts a fresh segment after the highest
// existing one, so earlier segments are never appended to again. A torn
// frame left at the end of the newest segment by a crash is cut off first.
// Sequence numbering resumes after the highest seq already on disk.
func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize <= 0 {
		return nil, errors.Newf("journal: segment size must be positive, got %d", cfg.SegmentSize)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		if err := repairTail(files[len(files)-1]); err != nil {
			return nil, err
		}
	}
	next := 0
	var last uint64
	for _, path := range files {
		if idx, ok := parseSegmentIndex(path); ok && idx >= next {
			next = idx + 1
		}
		maxSeq, err := segmentMaxSeq(path)
		if err != nil {
			return nil, errors.Wrapf(err, "scan segment %s", path)
		}
		if maxSeq > last {
			last = maxSeq
		}
	}

	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, errors.Wrap(err, "open journal segment")
	}
	j := &Journal{
		dir:     cfg.Dir,
		segSize: cfg.SegmentSize,
		current: seg,
		seq:     sequence.New(last),
	}
	if cfg.SyncInterval > 0 {
		j.stop = make(chan struct{})
		j.done = make(chan struct{})
		go j.autoSync(cfg.SyncInterval)
	}
	return j, nil
}

func (j *Journal) autoSync(every time.Duration) {
	defer close(j.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-t.C:
			_ = j.Sync()
		}
	}
}

func (j *Journal) Dir() string { return j.dir }

// LastSeq is the highest sequence number written so far.
func (j *Journal) LastSeq() uint64 { return j.seq.Current() }

// ResumeAfter moves numbering past seq, which a snapshot may cover even
// after the segments holding it were truncated. It never moves back.
func (j *Journal) ResumeAfter(seq uint64) {
	j.seq.Reset(seq)
}

// Log appends a transition for block, assigning the next sequence number
// under the append lock so file order and seq order always agree.
func (j *Journal) Log(t RecordType, block uint64) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := NewTransition(t, j.seq.Current()+1, block)
	if err := j.appendLocked(rec); err != nil {
		return 0, err
	}
	return rec.Seq, nil
}

// Append writes a caller-numbered record. r.Seq must be above LastSeq.
func (j *Journal) Append(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appendLocked(r)
}

func (j *Journal) appendLocked(r *Record) error {
	if j.closed {
		return errors.New("journal: append after close")
	}
	if last := j.seq.Current(); r.Seq <= last {
		return errors.Newf("journal: seq %d not above last %d", r.Seq, last)
	}
	if j.current.broken || j.current.offset >= j.segSize {
		j.rotateErr = j.rotate()
		if j.rotateErr != nil && j.current.broken {
			return errors.Wrapf(j.rotateErr, "append seq %d", r.Seq)
		}
	}
	if err := j.current.append(encodeFrame(r)); err != nil {
		return errors.Wrapf(err, "append seq %d", r.Seq)
	}
	j.seq.Reset(r.Seq)
	return nil
}

// rotate opens the next segment before closing the current one, so a
// failure leaves the journal appending where it was.
func (j *Journal) rotate() error {
	seg, err := openSegment(j.dir, j.current.index+1)
	if err != nil {
		return errors.Wrap(err, "rotate journal segment")
	}
	old := j.current
	j.current = seg
	if err := old.sync(); err != nil {
		_ = old.close()
		return errors.Wrapf(err, "sync segment %s", old.path)
	}
	return old.close()
}

// Err returns the last segment rotation failure, or nil once a rotation
// has succeeded again.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rotateErr
}

// Sync flushes the current segment to stable storage. It also reports a
// pending rotation failure.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.current.sync(); err != nil {
		return err
	}
	return j.rotateErr
}

// TruncateBefore removes closed segments whose records all have
// seq <= seq. The active segment and any segment opened after the call
// starts are never removed.
func (j *Journal) TruncateBefore(seq uint64) (removed int, err error) {
	j.mu.Lock()
	active := j.current.index
	j.mu.Unlock()

	files, err := listSegments(j.dir)
	if err != nil {
		return 0, err
	}
	for _, path := range files {
		idx, ok := parseSegmentIndex(path)
		if !ok || idx >= active {
			continue
		}
		maxSeq, err := segmentMaxSeq(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, errors.Wrapf(err, "remove segment %s", path)
			}
			removed++
		}
	}
	return removed, nil
}

// repairTail truncates path after its last complete frame.
func repairTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var good int64
	for {
		rec, err := readFrame(f)
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, ErrTorn) {
			return errors.Wrapf(f.Truncate(good), "truncate torn tail of %s", path)
		}
		if err != nil {
			return errors.Wrapf(err, "check tail of %s", path)
		}
		good += int64(headerSize + len(rec.Data) + 4)
	}
}

func segmentMaxSeq(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return maxSeqInSegment(f)
}

func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	if j.stop != nil {
		close(j.stop)
		<-j.done
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.current.sync(); err != nil {
		_ = j.current.close()
		return err
	}
	return j.current.close()
}
