// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"math"

	"github.com/cockroachdb/redact"
)

// Timestamp is the logical write time of a cell or a deletion. Timestamps are
// assigned by writers and are unrelated to the gc clock. When two versions of
// the same cell meet, the one with the higher timestamp wins.
type Timestamp int64

const (
	// TimestampMissing sorts before every valid timestamp. It is the
	// timestamp reported by the absent tombstone, and a purge threshold of
	// TimestampMissing allows nothing to be purged.
	TimestampMissing Timestamp = math.MinInt64
	// TimestampMax is the largest timestamp. A purge threshold of TimestampMax
	// allows everything to be purged.
	TimestampMax Timestamp = math.MaxInt64
)

func (t Timestamp) String() string {
	switch t {
	case TimestampMissing:
		return "missing"
	case TimestampMax:
		return "max"
	}
	return fmt.Sprintf("%d", int64(t))
}

// SafeFormat implements redact.SafeFormatter.
func (t Timestamp) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(t.String()))
}

// GCTime is a point in time on the gc clock, in seconds. Deletion times and
// expiry times are GCTimes; so is the compaction time a reader is created
// with.
type GCTime int64

// Tombstone is a deletion marker. It shadows every cell whose timestamp is
// less than or equal to its own. The deletion time records when the deletion
// was issued and gates when the tombstone itself may be purged.
//
// The zero value is the absent tombstone, so that fragments built without a
// tombstone delete nothing. Tombstones that delete are built with
// MakeTombstone.
type Tombstone struct {
	ts  Timestamp
	dt  GCTime
	set bool
}

// NoTombstone is the absent tombstone. It shadows nothing.
var NoTombstone = Tombstone{}

// MakeTombstone constructs a tombstone.
func MakeTombstone(ts Timestamp, deletionTime GCTime) Tombstone {
	return Tombstone{ts: ts, dt: deletionTime, set: true}
}

// IsEmpty returns true if t is the absent tombstone.
func (t Tombstone) IsEmpty() bool {
	return !t.set
}

// Timestamp returns the timestamp of t, or TimestampMissing if t is absent.
func (t Tombstone) Timestamp() Timestamp {
	if !t.set {
		return TimestampMissing
	}
	return t.ts
}

// DeletionTime returns the deletion time of t, or zero if t is absent.
func (t Tombstone) DeletionTime() GCTime {
	return t.dt
}

// Compare orders tombstones by timestamp and then by deletion time. The absent
// tombstone sorts first.
func (t Tombstone) Compare(o Tombstone) int {
	switch {
	case t.set != o.set:
		if t.set {
			return +1
		}
		return -1
	case t.ts < o.ts:
		return -1
	case t.ts > o.ts:
		return +1
	case t.dt < o.dt:
		return -1
	case t.dt > o.dt:
		return +1
	}
	return 0
}

// Shadows returns true if a write at ts is deleted by t. Ties go to the
// tombstone.
func (t Tombstone) Shadows(ts Timestamp) bool {
	return t.set && ts <= t.ts
}

// MaxTombstone returns the greater of a and b.
func MaxTombstone(a, b Tombstone) Tombstone {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

func (t Tombstone) String() string {
	if t.IsEmpty() {
		return "none"
	}
	return fmt.Sprintf("%d/%d", int64(t.ts), int64(t.dt))
}

// SafeFormat implements redact.SafeFormatter.
func (t Tombstone) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(t.String()))
}

// PurgePolicy decides whether deletions may be dropped for good. A deletion is
// purgeable when its timestamp is at or below the partition's purge threshold
// and its deletion time is older than GCBefore. A deletion that is not
// purgeable must be kept, since it may still shadow data that this stream does
// not see.
type PurgePolicy struct {
	Threshold Timestamp
	GCBefore  GCTime
}

// CanPurge returns true if a deletion with the given timestamp and deletion
// time may be dropped.
func (p PurgePolicy) CanPurge(ts Timestamp, deletionTime GCTime) bool {
	return ts <= p.Threshold && deletionTime < p.GCBefore
}

// CanPurgeTombstone returns true if t may be dropped. The absent tombstone is
// trivially purgeable.
func (p PurgePolicy) CanPurgeTombstone(t Tombstone) bool {
	return t.IsEmpty() || p.CanPurge(t.ts, t.dt)
}
