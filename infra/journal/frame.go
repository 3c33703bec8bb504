package journal

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const headerSize = 1 + 8 + 8 + 4

func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func encodeFrame(r *Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

// readFrame returns io.EOF only on a clean frame boundary.
func readFrame(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrTorn, "header")
		}
		return nil, err
	}

	l := binary.BigEndian.Uint32(header[17:21])
	body := make([]byte, l+4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(ErrTorn, "payload")
	}

	payload := body[:l]
	crc := binary.BigEndian.Uint32(body[l:])
	if checksum(append(header, payload...)) != crc {
		return nil, errors.Wrapf(ErrCorrupt, "crc mismatch at seq %d", binary.BigEndian.Uint64(header[1:9]))
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// maxSeqInSegment scans a segment without verifying checksums. It is used
// only to decide whether a segment can be truncated.
func maxSeqInSegment(r io.ReadSeeker) (uint64, error) {
	var max uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}
		if seq := binary.BigEndian.Uint64(header[1:9]); seq > max {
			max = seq
		}
		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := r.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
