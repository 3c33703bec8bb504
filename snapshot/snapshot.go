package snapshot

import (
	"time"

	"refkit/domain/rc"
)

// Snapshot is the audited state as of journal sequence Seq. Blocks holds
// only blocks that have not reached Freed.
type Snapshot struct {
	Seq uint64
	// MaxBlock is the highest block ID seen; allocation resumes above it.
	MaxBlock   uint64
	Created    time.Time
	Totals     Totals
	Blocks     []BlockEntry
	Violations []string
}

// Totals counts transitions observed since the first journal record.
type Totals struct {
	Blocks   uint64
	Alive    uint64
	Released uint64
	Freed    uint64
}

type BlockEntry struct {
	ID    uint64
	State rc.State
}
