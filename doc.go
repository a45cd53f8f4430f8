// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package mutcompact provides a compacting reader for mutation streams.
//
// A mutation stream is an ordered sequence of fragments describing a set of
// partitions: for each partition a partition-start, an optional static row,
// clustered rows and range tombstone changes in clustering order, and a
// partition-end. Streams may contain several versions of the same data and
// deletions of data that is no longer present.
//
// A Reader wraps a Source and produces the compacted form of its stream:
// duplicate rows are reconciled, data shadowed by a deletion is dropped, and
// deletions are themselves purged once the purge oracle reports that no
// other copy of the data they delete can exist and the gc grace period has
// passed. Partitions left without content are elided.
//
//	r, err := mutcompact.NewCompactingReader(src, compactionTime, oracle,
//		mutcompact.ForwardingNone, nil)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	for {
//		f, err := r.Next(ctx)
//		if err != nil {
//			return err
//		}
//		if f == nil {
//			break
//		}
//		...
//	}
//
// A Reader is itself a Source, and supports skipping to the next partition
// and fast-forwarding to a partition range whether or not its source does.
// Forwarding within partitions (ForwardingIntraPartition) requires a source
// that can do it.
//
// Errors are marked with one of ErrCorruption, ErrUnsupported or ErrMisuse
// and can be tested with errors.Is. Errors returned by the source and the
// purge oracle are passed through unchanged.
package mutcompact
