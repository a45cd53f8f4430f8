// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across mutcompact, including
// fragments, keys, positions, tombstones and the Source interface.
//
// # Streams
//
// A mutation stream is a sequence of fragments. Partitions are delimited by a
// partition-start and a partition-end fragment, and appear in decorated key
// order (see DecoratedKey). Within a partition, an optional static row comes
// first, followed by clustered rows and range tombstone changes in position
// order.
//
// # Positions
//
// A Position is a point in the clustering order of a partition. Rows sit at a
// clustering key with weight 0. Range tombstone changes sit just before (weight
// -1) or just after (weight +1) a clustering key, so that a range tombstone
// change never coincides with a row. MinPosition and MaxPosition bound every
// partition.
//
// # Deletions
//
// A Tombstone shadows writes whose timestamp is at or below its own. Stream
// invariants aside, the only rule that decides whether a write is visible is
// that liveness law; a PurgePolicy decides whether a deletion may be dropped
// from a stream for good.
package base
