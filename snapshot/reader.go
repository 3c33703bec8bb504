package snapshot

import "refkit/infra/memory"

/*
Reader is a thin adapter over memory.ReaderEpoch. It marks when a read
section begins and ends; epoching and reclamation happen elsewhere.
*/
type Reader struct {
	epoch *memory.ReaderEpoch
}

func NewReader() *Reader {
	return &Reader{
		epoch: memory.NewReaderEpoch(),
	}
}

// Begin marks the start of a read section.
func (r *Reader) Begin() {
	r.epoch.Enter()
}

// End marks the end of a read section.
func (r *Reader) End() {
	r.epoch.Exit()
}

// View runs fn inside a read section.
func (r *Reader) View(fn func()) {
	r.Begin()
	defer r.End()
	fn()
}

// Epoch exposes the underlying epoch for reclaimers.
func (r *Reader) Epoch() *memory.ReaderEpoch {
	return r.epoch
}
