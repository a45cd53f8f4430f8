// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"context"

	"github.com/cockroachdb/mutcompact/internal/base"
)

// forwarder pulls fragments from the source and carries out forwarding
// requests. The source's capabilities are read once, when the reader is
// created. Skipping to the next partition and restricting the stream to a
// partition range are emulated when the source cannot do them itself;
// forwarding within partitions cannot be emulated.
type forwarder struct {
	source  Source
	caps    Capabilities
	mode    ForwardingMode
	metrics *Metrics

	// rng is the partition range in force, if emulated is set.
	rng      PartitionRange
	emulated bool
	// held is a partition-start read past the end of rng. It is reconsidered
	// once the range moves forward.
	held *Fragment
	// skipping is set while the rest of an abandoned partition is discarded.
	skipping bool
	// exhausted is set once the source has ended the stream, or the current
	// window when forwarding within partitions.
	exhausted bool
	// lastKey is the key of the last partition handed out or skipped.
	lastKey    DecoratedKey
	sawLastKey bool
}

func (fw *forwarder) init(source Source, mode ForwardingMode, metrics *Metrics) error {
	caps := source.Capabilities()
	if mode == ForwardingIntraPartition && (!caps.PositionForwarding || !caps.NextPartition) {
		return base.UnsupportedErrorf("%s forwarding requires a source with next-partition and "+
			"position forwarding (source has %s)", mode, caps)
	}
	*fw = forwarder{
		source:  source,
		caps:    caps,
		mode:    mode,
		metrics: metrics,
	}
	return nil
}

// pull returns the next fragment to compact, or nil at the end of the stream
// or window. Partition-starts are validated by c as they are read.
func (fw *forwarder) pull(ctx context.Context, c *compactor) (*Fragment, error) {
	for {
		var f *Fragment
		if fw.held != nil {
			f, fw.held = fw.held, nil
		} else {
			if fw.exhausted {
				return nil, nil
			}
			var err error
			if f, err = fw.source.Next(ctx); err != nil {
				return nil, err
			}
			if f == nil {
				fw.exhausted = true
				return nil, nil
			}
			fw.metrics.FragmentsIn++
			if f.Kind == KindPartitionStart {
				if err := c.checkPartitionStart(f); err != nil {
					return nil, err
				}
			}
		}

		if fw.skipping {
			if f.Kind != KindPartitionStart {
				continue
			}
			fw.skipping = false
		}
		if f.Kind != KindPartitionStart {
			return f, nil
		}

		if fw.emulated {
			if fw.rng.AfterEnd(f.Key) {
				fw.held = f
				return nil, nil
			}
			if fw.rng.BeforeStart(f.Key) {
				fw.metrics.PartitionsSkipped++
				fw.setLastKey(f.Key)
				if err := fw.skipPartition(ctx); err != nil {
					return nil, err
				}
				continue
			}
		}
		fw.setLastKey(f.Key)
		return f, nil
	}
}

func (fw *forwarder) setLastKey(k DecoratedKey) {
	fw.lastKey = k
	fw.sawLastKey = true
}

// skipPartition discards the rest of the partition the source is in.
func (fw *forwarder) skipPartition(ctx context.Context) error {
	if fw.caps.NextPartition {
		fw.exhausted = false
		return fw.source.NextPartition(ctx)
	}
	fw.skipping = true
	return nil
}

// nextPartition abandons the partition c has open.
func (fw *forwarder) nextPartition(ctx context.Context, c *compactor) error {
	c.abandonPartition()
	return fw.skipPartition(ctx)
}

// fastForwardToPartitions restricts the stream to r. No partition may be in
// progress.
func (fw *forwarder) fastForwardToPartitions(ctx context.Context, r PartitionRange) error {
	if fw.sawLastKey && !r.BeforeStart(fw.lastKey) {
		return base.MisuseErrorf("fast-forward to %s does not move past partition %s", r, fw.lastKey)
	}
	if !fw.caps.PartitionForwarding {
		fw.rng = r
		fw.emulated = true
		return nil
	}
	fw.held = nil
	fw.skipping = false
	fw.exhausted = false
	return fw.source.FastForwardToPartitions(ctx, r)
}

// fastForwardToPositions opens the window r on the partition c has open.
func (fw *forwarder) fastForwardToPositions(
	ctx context.Context, r PositionRange, c *compactor,
) error {
	c.setWindow(r)
	fw.exhausted = false
	return fw.source.FastForwardToPositions(ctx, r)
}
