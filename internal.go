// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import "github.com/cockroachdb/mutcompact/internal/base"

// Timestamp exports the base.Timestamp type.
type Timestamp = base.Timestamp

// TimestampMissing and TimestampMax export the bounds of the timestamp
// order.
const (
	TimestampMissing = base.TimestampMissing
	TimestampMax     = base.TimestampMax
)

// GCTime exports the base.GCTime type.
type GCTime = base.GCTime

// Tombstone exports the base.Tombstone type.
type Tombstone = base.Tombstone

// NoTombstone exports base.NoTombstone.
var NoTombstone = base.NoTombstone

// Cell exports the base.Cell type.
type Cell = base.Cell

// Kind exports the base.Kind type.
type Kind = base.Kind

// Fragment kinds.
const (
	KindPartitionStart       = base.KindPartitionStart
	KindStaticRow            = base.KindStaticRow
	KindClusteredRow         = base.KindClusteredRow
	KindRangeTombstoneChange = base.KindRangeTombstoneChange
	KindPartitionEnd         = base.KindPartitionEnd
)

// Fragment exports the base.Fragment type.
type Fragment = base.Fragment

// DecoratedKey exports the base.DecoratedKey type.
type DecoratedKey = base.DecoratedKey

// Position exports the base.Position type.
type Position = base.Position

// MinPosition and MaxPosition export the bounds of the clustering order.
var (
	MinPosition = base.MinPosition
	MaxPosition = base.MaxPosition
)

// PositionRange exports the base.PositionRange type.
type PositionRange = base.PositionRange

// AllPositions exports base.AllPositions.
var AllPositions = base.AllPositions

// PartitionRange exports the base.PartitionRange type.
type PartitionRange = base.PartitionRange

// AllPartitions exports base.AllPartitions.
var AllPartitions = base.AllPartitions

// Comparer exports the base.Comparer type.
type Comparer = base.Comparer

// DefaultComparer exports the base.DefaultComparer variable.
var DefaultComparer = base.DefaultComparer

// ReverseComparer exports the base.ReverseComparer variable.
var ReverseComparer = base.ReverseComparer

// Partitioner exports the base.Partitioner type.
type Partitioner = base.Partitioner

// HashPartitioner exports the base.HashPartitioner variable.
var HashPartitioner = base.HashPartitioner

// OrderedPartitioner exports the base.OrderedPartitioner variable.
var OrderedPartitioner = base.OrderedPartitioner

// Source exports the base.Source interface.
type Source = base.Source

// Capabilities exports the base.Capabilities type.
type Capabilities = base.Capabilities

// ForwardingMode exports the base.ForwardingMode type.
type ForwardingMode = base.ForwardingMode

// Forwarding modes.
const (
	ForwardingNone           = base.ForwardingNone
	ForwardingIntraPartition = base.ForwardingIntraPartition
)

// PurgeOracle exports the base.PurgeOracle type.
type PurgeOracle = base.PurgeOracle

// NeverPurge exports base.NeverPurge.
var NeverPurge PurgeOracle = base.NeverPurge

// AlwaysPurge exports base.AlwaysPurge.
var AlwaysPurge PurgeOracle = base.AlwaysPurge

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports base.DefaultLogger.
var DefaultLogger = base.DefaultLogger

// ErrCorruption marks errors reporting a malformed input stream.
var ErrCorruption = base.ErrCorruption

// ErrUnsupported marks errors reporting a missing source capability.
var ErrUnsupported = base.ErrUnsupported

// ErrMisuse marks errors reporting a call made in an invalid state.
var ErrMisuse = base.ErrMisuse

// ErrReentrant marks errors reporting overlapping calls on one reader.
var ErrReentrant = base.ErrReentrant

// ErrClosed is returned by calls on a closed reader.
var ErrClosed = base.ErrClosed

// ParseFragments parses fragments written in the notation printed by
// Fragment.String, one per line. Blank lines and lines starting with '#' are
// skipped.
func ParseFragments(p *Partitioner, input string) ([]*Fragment, error) {
	return base.ParseFragments(p, input)
}
