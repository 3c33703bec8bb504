package journal

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
)

// RecordType is the lifecycle transition a record describes.
type RecordType uint8

const (
	RecordAlive RecordType = iota + 1
	RecordReleased
	RecordFreed
)

func (t RecordType) String() string {
	switch t {
	case RecordAlive:
		return "ALIVE"
	case RecordReleased:
		return "RELEASED"
	case RecordFreed:
		return "FREED"
	default:
		return "UNKNOWN"
	}
}

// ErrCorrupt is returned by Replay for a frame that fails its checksum or
// carries a malformed payload.
var ErrCorrupt = errors.New("journal: corrupt record")

// ErrTorn marks a frame cut short by a crash or an in-flight append. It
// also matches ErrCorrupt.
var ErrTorn = errors.Mark(errors.New("journal: torn frame"), ErrCorrupt)

// Record is one framed journal entry.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

// NewTransition builds a record whose payload is a block ID.
func NewTransition(t RecordType, seq, block uint64) *Record {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, block)
	return NewRecord(t, seq, data)
}

// BlockID decodes the payload written by NewTransition.
func (r *Record) BlockID() (uint64, error) {
	if len(r.Data) != 8 {
		return 0, errors.Wrapf(ErrCorrupt, "seq %d: payload is %d bytes, want 8", r.Seq, len(r.Data))
	}
	return binary.BigEndian.Uint64(r.Data), nil
}
