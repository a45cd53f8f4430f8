// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/invariants"
)

// Reader is a compacting reader: a Source producing the compacted form of
// another Source. It reconciles duplicate rows, drops shadowed data, purges
// deletions the purge oracle allows to be purged and elides partitions left
// empty.
//
// A Reader supports all forwarding methods. Skipping to the next partition and
// restricting to a partition range are emulated if the underlying source
// lacks them; forwarding within partitions requires
// ForwardingIntraPartition, and a source that can do it.
//
// A Reader permits a single call at a time. A call made while another is in
// flight fails with an error marked ErrReentrant (and ErrMisuse). Close may be
// called at any time.
type Reader struct {
	opts    *Options
	oracle  PurgeOracle
	fw      forwarder
	c       compactor
	metrics Metrics
	// windowDone is set once the compactor has seen the end of the current
	// window.
	windowDone bool
	// err is the sticky error that failed the stream.
	err    error
	closer invariants.CloseChecker

	mu struct {
		sync.Mutex
		busy    bool
		closing bool
		closed  bool
		cancel  context.CancelFunc
		metrics Metrics
	}
}

var _ Source = (*Reader)(nil)

// NewCompactingReader returns a Reader compacting source as of
// compactionTime. The oracle supplies the purge threshold of every partition
// the reader processes; it is called once per partition, when the partition
// starts.
//
// The reader takes ownership of source and closes it when closed. If
// NewCompactingReader fails, the caller retains ownership. It fails with an
// error marked ErrUnsupported if mode is ForwardingIntraPartition but source
// cannot forward within partitions.
func NewCompactingReader(
	source Source, compactionTime GCTime, oracle PurgeOracle, mode ForwardingMode, opts *Options,
) (*Reader, error) {
	if source == nil {
		return nil, base.MisuseErrorf("mutcompact: nil source")
	}
	if oracle == nil {
		return nil, base.MisuseErrorf("mutcompact: nil purge oracle")
	}
	opts = opts.Clone()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.EnsureDefaults()
	r := &Reader{
		opts:   opts,
		oracle: oracle,
	}
	if err := r.fw.init(source, mode, &r.metrics); err != nil {
		return nil, err
	}
	r.c.init(opts, compactionTime, mode, &r.metrics)
	return r, nil
}

// enter marks the start of a call on the reader. The returned context is
// canceled if the reader is closed before the call returns.
func (r *Reader) enter(ctx context.Context, op string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mu.closed || r.mu.closing {
		return nil, ErrClosed
	}
	if r.mu.busy {
		return nil, base.ReentrantError(op)
	}
	// The source is only released once the reader is marked closed.
	r.closer.AssertNotClosed()
	r.mu.busy = true
	ctx, r.mu.cancel = context.WithCancel(ctx)
	return ctx, nil
}

// exit marks the end of a call. If the reader was closed during the call, its
// resources are released now.
func (r *Reader) exit() {
	r.mu.Lock()
	r.mu.cancel()
	r.mu.cancel = nil
	r.mu.busy = false
	r.mu.metrics = r.metrics
	release := r.mu.closing
	if release {
		r.mu.closing = false
		r.mu.closed = true
	}
	r.mu.Unlock()
	if release {
		if err := r.release(); err != nil {
			r.opts.Logger.Errorf("mutcompact: closing source: %v", err)
		}
	}
}

// fail records err as the sticky error of the reader, unless it reports a
// misuse, which leaves the stream intact.
func (r *Reader) fail(err error) error {
	if err != nil && !errors.Is(err, ErrMisuse) {
		r.err = err
	}
	return err
}

// Next implements Source.
func (r *Reader) Next(ctx context.Context) (*Fragment, error) {
	ctx, err := r.enter(ctx, "Next")
	if err != nil {
		return nil, err
	}
	defer r.exit()
	if r.err != nil {
		return nil, r.err
	}
	f, err := r.next(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	return f, nil
}

func (r *Reader) next(ctx context.Context) (*Fragment, error) {
	for {
		if f := r.c.pop(); f != nil {
			r.metrics.FragmentsOut++
			return f, nil
		}
		f, err := r.fw.pull(ctx, &r.c)
		if err != nil {
			return nil, err
		}
		if f == nil {
			if !r.c.p.open {
				return nil, nil
			}
			if r.fw.mode != ForwardingIntraPartition {
				return nil, r.c.corruptionf("stream ends inside partition %s", r.c.p.key)
			}
			if r.windowDone {
				return nil, nil
			}
			r.windowDone = true
			if err := r.c.endWindow(); err != nil {
				return nil, err
			}
			continue
		}
		if f.Kind == KindPartitionStart {
			threshold, err := r.purgeThreshold(ctx, f.Key)
			if err != nil {
				return nil, err
			}
			r.c.startPartition(f, threshold)
			r.windowDone = false
			continue
		}
		if err := r.c.add(f); err != nil {
			return nil, err
		}
	}
}

// purgeThreshold consults the oracle for the partition key. The oracle's
// error is returned unchanged.
func (r *Reader) purgeThreshold(ctx context.Context, key DecoratedKey) (Timestamp, error) {
	r.metrics.OracleCalls++
	start := time.Now()
	ts, err := r.oracle(ctx, key)
	d := time.Since(start)
	if r.opts.OracleLatency != nil {
		r.opts.OracleLatency.Observe(float64(d.Nanoseconds()))
	}
	if err != nil {
		r.opts.EventListener.OracleFailed(OracleFailedInfo{Key: key, Duration: d, Err: err})
		return 0, err
	}
	return ts, nil
}

// NextPartition implements Source. Fragments of the current partition that
// have not been returned yet are dropped. Called between partitions it does
// nothing.
func (r *Reader) NextPartition(ctx context.Context) error {
	ctx, err := r.enter(ctx, "NextPartition")
	if err != nil {
		return err
	}
	defer r.exit()
	if r.err != nil {
		return r.err
	}
	r.c.clearOutput()
	if !r.c.p.open {
		return nil
	}
	r.windowDone = false
	return r.fail(r.fw.nextPartition(ctx, &r.c))
}

// FastForwardToPartitions implements Source. It may only be called between
// partitions, once every fragment of the previous partition has been
// returned, and the range must lie past the partitions already read.
func (r *Reader) FastForwardToPartitions(ctx context.Context, pr PartitionRange) error {
	ctx, err := r.enter(ctx, "FastForwardToPartitions")
	if err != nil {
		return err
	}
	defer r.exit()
	if r.err != nil {
		return r.err
	}
	if r.c.p.open || r.c.buffered() {
		return base.MisuseErrorf("fast-forward to %s with a partition in progress", pr)
	}
	return r.fail(r.fw.fastForwardToPartitions(ctx, pr))
}

// FastForwardToPositions implements Source. It requires
// ForwardingIntraPartition and a partition in progress. Windows must move
// forward: pr may not start before the end of the previous window.
//
// A bound at a row position is moved to just before the row's key, which
// leaves the rows in the window unchanged. The source sees the moved bounds,
// and range tombstones cut by the window are re-opened and closed there.
func (r *Reader) FastForwardToPositions(ctx context.Context, pr PositionRange) error {
	ctx, err := r.enter(ctx, "FastForwardToPositions")
	if err != nil {
		return err
	}
	defer r.exit()
	if r.err != nil {
		return r.err
	}
	pr = pr.TombstoneBounds()
	switch {
	case r.fw.mode != ForwardingIntraPartition:
		return base.MisuseErrorf("fast-forward to %s: reader does not forward within partitions", pr)
	case !r.c.p.open:
		return base.MisuseErrorf("fast-forward to %s: no partition in progress", pr)
	case base.ComparePositions(r.c.cmp, pr.Start, r.c.p.window.End) < 0:
		return base.MisuseErrorf("fast-forward to %s: window starts before the end of window %s",
			pr, r.c.p.window)
	}
	r.c.clearWindowOutput()
	r.windowDone = false
	return r.fail(r.fw.fastForwardToPositions(ctx, pr, &r.c))
}

// Capabilities implements Source.
func (r *Reader) Capabilities() Capabilities {
	return Capabilities{
		NextPartition:       true,
		PartitionForwarding: true,
		PositionForwarding:  r.fw.mode == ForwardingIntraPartition,
	}
}

// Metrics returns a snapshot of the reader's counters, as of the end of the
// last completed call.
func (r *Reader) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.metrics
}

// Close implements Source. It releases the buffered fragments and closes the
// source. If a call is in flight, its context is canceled and the release
// happens when it returns.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.mu.closed || r.mu.closing {
		r.mu.Unlock()
		return base.MisuseErrorf("mutcompact: reader closed twice")
	}
	if r.mu.busy {
		r.mu.closing = true
		r.mu.cancel()
		r.mu.Unlock()
		return nil
	}
	r.mu.closed = true
	r.mu.Unlock()
	return r.release()
}

func (r *Reader) release() error {
	r.closer.Close()
	r.c.clearOutput()
	r.c.closePartition()
	r.fw.held = nil
	err := r.fw.source.Close()
	r.fw.source = nil
	return err
}
