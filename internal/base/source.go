// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"context"
	"fmt"
)

// Source is a pull-based stream of mutation fragments. Partitions are produced
// in decorated key order, and the fragments of a partition in position order.
//
// Next returns the next fragment, or (nil, nil) once the stream (or, for a
// source forwarding within partitions, the current window) is exhausted. The
// caller owns the returned fragment and may modify it.
//
// The forwarding methods are optional; Capabilities reports which of them the
// source implements. A source returns an error marked ErrUnsupported from a
// method it does not implement.
//
// NextPartition abandons the rest of the current partition; the following
// call to Next returns the next partition-start.
//
// FastForwardToPartitions restricts all subsequent output to partitions in r.
// It may only be called between partitions.
//
// FastForwardToPositions is only implemented by sources that forward within
// partitions. Such a source produces, for each partition, its partition-start
// and static row and then ends the window. Each call to
// FastForwardToPositions opens a window on the current partition: the source
// produces the fragments positioned in r and then ends the window again. A
// range tombstone that spans r.Start is re-opened with a change at r.Start,
// and one still open at r.End is closed with a change at r.End, so every
// window is balanced on its own, which is why the bounds a source is handed
// are never row positions (see PositionRange.TombstoneBounds). Windows must
// move forward. Such a source never produces partition-end; NextPartition
// moves on to the next partition.
//
// A Source is not safe for concurrent use. Close releases the source and
// everything it owns.
type Source interface {
	Next(ctx context.Context) (*Fragment, error)
	NextPartition(ctx context.Context) error
	FastForwardToPartitions(ctx context.Context, r PartitionRange) error
	FastForwardToPositions(ctx context.Context, r PositionRange) error
	Capabilities() Capabilities
	Close() error
}

// Capabilities describes the optional forwarding methods a Source implements.
type Capabilities struct {
	NextPartition       bool
	PartitionForwarding bool
	PositionForwarding  bool
}

func (c Capabilities) String() string {
	return fmt.Sprintf("next-partition=%t partition-forwarding=%t position-forwarding=%t",
		c.NextPartition, c.PartitionForwarding, c.PositionForwarding)
}

// ForwardingMode selects whether a reader forwards within partitions.
type ForwardingMode int8

const (
	// ForwardingNone produces whole partitions, closed by partition-end.
	ForwardingNone ForwardingMode = iota
	// ForwardingIntraPartition produces partitions one window at a time, as
	// described on Source.
	ForwardingIntraPartition
)

func (m ForwardingMode) String() string {
	switch m {
	case ForwardingNone:
		return "none"
	case ForwardingIntraPartition:
		return "intra-partition"
	}
	return fmt.Sprintf("ForwardingMode(%d)", int8(m))
}

// PurgeOracle returns the purge threshold for a partition: the highest
// timestamp at or below which deletions in the partition, and the data they
// shadow, may be dropped for good. It may block, and is called at most once
// per partition.
type PurgeOracle func(ctx context.Context, key DecoratedKey) (Timestamp, error)

// NeverPurge is a PurgeOracle that forbids purging deletions.
func NeverPurge(context.Context, DecoratedKey) (Timestamp, error) {
	return TimestampMissing, nil
}

// AlwaysPurge is a PurgeOracle that allows every deletion to be purged once
// it is past the gc grace period.
func AlwaysPurge(context.Context, DecoratedKey) (Timestamp, error) {
	return TimestampMax, nil
}
