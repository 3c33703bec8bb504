// Package broadcaster is the background job that drains the ledger outbox:
// it publishes every pending lifecycle entry, marks it acked, and drops
// freed blocks once their last transition is out.
package broadcaster

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/ledger"
)

type Options struct {
	Interval   time.Duration
	MaxRetries uint32
}

type Stats struct {
	Published uint64
	Failed    uint64
	Pruned    uint64
	// Dropped counts freed blocks removed after exhausting their retries.
	Dropped uint64
}

type Broadcaster struct {
	ledger *ledger.Ledger
	pub    Publisher
	codec  Codec
	opts   Options
	log    *zap.Logger

	published atomic.Uint64
	failed    atomic.Uint64
	pruned    atomic.Uint64
	dropped   atomic.Uint64
}

func New(l *ledger.Ledger, pub Publisher, codec Codec, opts Options, log *zap.Logger) *Broadcaster {
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		ledger: l,
		pub:    pub,
		codec:  codec,
		opts:   opts,
		log:    log.Named("broadcaster"),
	}
}

// Run flushes the outbox every Interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("started", zap.Duration("interval", b.opts.Interval))
	t := time.NewTicker(b.opts.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped", zap.Uint64("published", b.published.Load()))
			return nil
		case <-t.C:
			if _, err := b.Flush(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("flush failed", zap.Error(err))
			}
		}
	}
}

type pending struct {
	block uint64
	state rc.State
}

// Flush makes one pass over the outbox and returns how many entries were
// published. A failed publish is recorded on the entry and retried on a
// later pass; it does not abort the pass.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	var batch []pending
	err := b.ledger.ScanPending(b.opts.MaxRetries, func(id uint64, e ledger.Entry) error {
		batch = append(batch, pending{block: id, state: e.State})
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "scan outbox")
	}

	n := 0
	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := b.publishOne(ctx, p)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}

	dropped, err := b.ledger.PruneExhausted(b.opts.MaxRetries)
	if err != nil {
		return n, err
	}
	if len(dropped) > 0 {
		b.dropped.Add(uint64(len(dropped)))
		b.log.Warn("dropped freed blocks after exhausting retries",
			zap.Int("count", len(dropped)), zap.Uint64s("blocks", dropped))
	}
	return n, nil
}

func (b *Broadcaster) publishOne(ctx context.Context, p pending) (bool, error) {
	ok, err := b.ledger.MarkSent(p.block, p.state)
	if err != nil || !ok {
		// superseded by a newer transition; the next pass picks it up
		return false, err
	}

	payload, err := b.codec.Encode(Event{
		V:     eventVersion,
		Block: p.block,
		State: p.state.String(),
		At:    time.Now().UnixNano(),
	})
	if err != nil {
		return false, errors.Wrapf(err, "encode block %d", p.block)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, p.block)
	if err := b.pub.Publish(ctx, key, payload); err != nil {
		b.failed.Add(1)
		b.log.Debug("publish failed", zap.Uint64("block", p.block), zap.Error(err))
		_, merr := b.ledger.MarkFailed(p.block, p.state)
		return false, merr
	}
	b.published.Add(1)

	acked, err := b.ledger.MarkAcked(p.block, p.state)
	if err != nil {
		return true, err
	}
	if acked && p.state == rc.Freed {
		if err := b.ledger.Delete(p.block); err != nil {
			return true, err
		}
		b.pruned.Add(1)
	}
	return true, nil
}

func (b *Broadcaster) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
		Pruned:    b.pruned.Load(),
		Dropped:   b.dropped.Load(),
	}
}

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
