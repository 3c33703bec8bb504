package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"

	"refkit/domain/rc"
)

// PublishState tracks an entry through the broadcast outbox.
type PublishState uint8

const (
	Pending PublishState = iota
	Sent
	Acked
	Failed
)

func (s PublishState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Sent:
		return "SENT"
	case Acked:
		return "ACKED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is the latest known lifecycle state of one block.
type Entry struct {
	State       rc.State
	Publish     PublishState
	Retries     uint32
	LastAttempt int64
}

const entrySize = 1 + 1 + 4 + 8

// binary encoding: [state:1][publish:1][retries:4][lastAttempt:8]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	buf[0] = byte(e.State)
	buf[1] = byte(e.Publish)
	binary.BigEndian.PutUint32(buf[2:6], e.Retries)
	binary.BigEndian.PutUint64(buf[6:14], uint64(e.LastAttempt))
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) != entrySize {
		return Entry{}, errors.Newf("ledger: entry is %d bytes, want %d", len(b), entrySize)
	}
	return Entry{
		State:       rc.State(b[0]),
		Publish:     PublishState(b[1]),
		Retries:     binary.BigEndian.Uint32(b[2:6]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[6:14])),
	}, nil
}

const keyPrefix = "block/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte(keyPrefix + "~")
)

func keyFor(block uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, block))
}

func parseKey(b []byte) (uint64, error) {
	if len(b) <= len(keyPrefix) {
		return 0, errors.Newf("ledger: malformed key %q", b)
	}
	id, err := strconv.ParseUint(string(b[len(keyPrefix):]), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "ledger: malformed key %q", b)
	}
	return id, nil
}
