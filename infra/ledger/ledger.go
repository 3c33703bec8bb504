// Package ledger keeps the latest lifecycle state of every control block in
// pebble, together with its broadcast outbox state.
package ledger

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"refkit/domain/rc"
)

// ErrNotFound is returned for a block the ledger has never seen.
var ErrNotFound = errors.New("ledger: block not found")

type Ledger struct {
	// mu serializes read-modify-write updates; pebble handles the rest.
	mu sync.Mutex
	db *pebble.DB
}

func Open(dir string) (*Ledger, error) {
	return OpenWithOptions(dir, &pebble.Options{})
}

func OpenWithOptions(dir string, opts *pebble.Options) (*Ledger, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", dir)
	}
	return &Ledger{db: db}, nil
}

// Flush forces memtable contents to disk.
func (l *Ledger) Flush() error {
	return l.db.Flush()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores a new lifecycle state for block and queues it for broadcast.
func (l *Ledger) Record(block uint64, state rc.State) error {
	e := Entry{State: state, Publish: Pending}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Set(keyFor(block), encodeEntry(e), pebble.NoSync)
}

func (l *Ledger) Get(block uint64) (Entry, error) {
	val, closer, err := l.db.Get(keyFor(block))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Entry{}, errors.Wrapf(ErrNotFound, "block %d", block)
		}
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(val)
}

// MarkSent, MarkAcked and MarkFailed only apply while the stored state is
// still the one that was published; a newer transition keeps it Pending.
func (l *Ledger) MarkSent(block uint64, published rc.State) (bool, error) {
	return l.update(block, published, func(e *Entry) {
		e.Publish = Sent
	})
}

func (l *Ledger) MarkAcked(block uint64, published rc.State) (bool, error) {
	return l.update(block, published, func(e *Entry) {
		e.Publish = Acked
	})
}

func (l *Ledger) MarkFailed(block uint64, published rc.State) (bool, error) {
	return l.update(block, published, func(e *Entry) {
		e.Publish = Failed
		e.Retries++
	})
}

func (l *Ledger) update(block uint64, published rc.State, fn func(*Entry)) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.Get(block)
	if err != nil {
		return false, err
	}
	if e.State != published {
		return false, nil
	}
	fn(&e)
	e.LastAttempt = time.Now().UnixNano()
	if err := l.db.Set(keyFor(block), encodeEntry(e), pebble.NoSync); err != nil {
		return false, err
	}
	return true, nil
}

// Delete drops a block, normally once it is Freed and Acked.
func (l *Ledger) Delete(block uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(keyFor(block), pebble.NoSync)
}

// PruneExhausted deletes Freed blocks whose broadcast failed maxRetries
// times. Nothing would ever publish or remove them otherwise. It returns
// the deleted block IDs.
func (l *Ledger) PruneExhausted(maxRetries uint32) ([]uint64, error) {
	exhausted := func(e Entry) bool {
		return e.State == rc.Freed && e.Publish == Failed && e.Retries >= maxRetries
	}
	var ids []uint64
	err := l.Scan(func(id uint64, e Entry) error {
		if exhausted(e) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.db.NewBatch()
	defer b.Close()
	pruned := ids[:0]
	for _, id := range ids {
		// recheck under the lock; the block may have been recorded again
		e, err := l.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !exhausted(e) {
			continue
		}
		if err := b.Delete(keyFor(id), nil); err != nil {
			return nil, err
		}
		pruned = append(pruned, id)
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return nil, errors.Wrap(err, "prune exhausted entries")
	}
	return pruned, nil
}

// Scan iterates every entry in block order. fn must not call back into
// the ledger's mutating methods.
func (l *Ledger) Scan(fn func(block uint64, e Entry) error) error {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanByState iterates entries whose lifecycle state is state.
func (l *Ledger) ScanByState(state rc.State, fn func(block uint64, e Entry) error) error {
	return l.Scan(func(id uint64, e Entry) error {
		if e.State != state {
			return nil
		}
		return fn(id, e)
	})
}

// ScanPending iterates entries waiting for broadcast: Pending ones, Sent
// ones left unacked by an interrupted pass, and Failed ones with fewer
// than maxRetries attempts.
func (l *Ledger) ScanPending(maxRetries uint32, fn func(block uint64, e Entry) error) error {
	return l.Scan(func(id uint64, e Entry) error {
		switch {
		case e.Publish == Pending, e.Publish == Sent:
		case e.Publish == Failed && e.Retries < maxRetries:
		default:
			return nil
		}
		return fn(id, e)
	})
}

// Counts returns the number of entries per lifecycle state.
func (l *Ledger) Counts() (map[rc.State]int, error) {
	out := make(map[rc.State]int)
	err := l.Scan(func(_ uint64, e Entry) error {
		out[e.State]++
		return nil
	})
	return out, err
}
