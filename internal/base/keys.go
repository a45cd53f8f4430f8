// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/cockroachdb/redact"
)

// DecoratedKey is a partition key together with its token. Partitions are
// ordered by token first and by key bytes second, which is the order a stream
// must produce them in.
type DecoratedKey struct {
	Token uint64
	Key   []byte
}

// Compare orders decorated keys.
func (k DecoratedKey) Compare(o DecoratedKey) int {
	if c := cmp.Compare(k.Token, o.Token); c != 0 {
		return c
	}
	return bytes.Compare(k.Key, o.Key)
}

// Clone returns a copy of k that does not alias the key bytes.
func (k DecoratedKey) Clone() DecoratedKey {
	return DecoratedKey{Token: k.Token, Key: append([]byte(nil), k.Key...)}
}

func (k DecoratedKey) String() string {
	return fmt.Sprintf("%s", FormatBytes(k.Key))
}

// SafeFormat implements redact.SafeFormatter. Keys are user data and are
// redacted.
func (k DecoratedKey) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(k.String())
}

// Region partitions the space of positions within a partition.
type Region int8

const (
	// RegionBeforeRows sorts before every clustering position. The static row
	// lives here.
	RegionBeforeRows Region = -1
	// RegionRows holds clustering positions.
	RegionRows Region = 0
	// RegionAfterRows sorts after every clustering position.
	RegionAfterRows Region = +1
)

// Position is a point in the clustering order of a partition. Within
// RegionRows, positions order by Key and then by Weight: a weight of -1 sits
// just before Key, 0 at Key and +1 just after it. Clustered rows sit at weight
// 0; range tombstone changes sit at weight -1 or +1, so a range tombstone
// boundary never coincides with a row.
type Position struct {
	Region Region
	Key    []byte
	Weight int8
}

// MinPosition sorts before every position.
var MinPosition = Position{Region: RegionBeforeRows}

// MaxPosition sorts after every position.
var MaxPosition = Position{Region: RegionAfterRows}

// BeforeKey returns the position just before key.
func BeforeKey(key []byte) Position {
	return Position{Key: key, Weight: -1}
}

// AtKey returns the position of the row at key.
func AtKey(key []byte) Position {
	return Position{Key: key}
}

// AfterKey returns the position just after key.
func AfterKey(key []byte) Position {
	return Position{Key: key, Weight: +1}
}

// IsRow returns true if the position is the position of a clustered row.
func (p Position) IsRow() bool {
	return p.Region == RegionRows && p.Weight == 0
}

// Clone returns a copy of p that does not alias the key bytes.
func (p Position) Clone() Position {
	if p.Key != nil {
		p.Key = append([]byte(nil), p.Key...)
	}
	return p
}

// ComparePositions orders two positions using cmp for clustering keys.
func ComparePositions(cmp Compare, a, b Position) int {
	if a.Region != b.Region {
		if a.Region < b.Region {
			return -1
		}
		return +1
	}
	if a.Region != RegionRows {
		return 0
	}
	if c := cmp(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Weight < b.Weight:
		return -1
	case a.Weight > b.Weight:
		return +1
	}
	return 0
}

func (p Position) String() string {
	switch p.Region {
	case RegionBeforeRows:
		return "*"
	case RegionAfterRows:
		return "*"
	}
	switch p.Weight {
	case -1:
		return fmt.Sprintf("<%s", FormatBytes(p.Key))
	case +1:
		return fmt.Sprintf(">%s", FormatBytes(p.Key))
	}
	return fmt.Sprintf("%s", FormatBytes(p.Key))
}

// SafeFormat implements redact.SafeFormatter.
func (p Position) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(p.String())
}

// PositionRange is the half-open window [Start, End) of positions within a
// partition.
type PositionRange struct {
	Start, End Position
}

// AllPositions is the window covering every position.
var AllPositions = PositionRange{Start: MinPosition, End: MaxPosition}

// Contains returns true if p falls inside the window.
func (r PositionRange) Contains(cmp Compare, p Position) bool {
	return ComparePositions(cmp, r.Start, p) <= 0 && ComparePositions(cmp, p, r.End) < 0
}

// Empty returns true if the window contains no position.
func (r PositionRange) Empty(cmp Compare) bool {
	return ComparePositions(cmp, r.Start, r.End) >= 0
}

// TombstoneBounds returns the window with any bound at a row position moved
// to just before the row's key. No position sorts strictly between the two,
// so the window holds the same rows, and a range tombstone change may sit at
// either bound.
func (r PositionRange) TombstoneBounds() PositionRange {
	if r.Start.IsRow() {
		r.Start = BeforeKey(r.Start.Key)
	}
	if r.End.IsRow() {
		r.End = BeforeKey(r.End.Key)
	}
	return r
}

func (r PositionRange) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// PartitionBound is one end of a PartitionRange. A nil Key leaves that end
// unbounded.
type PartitionBound struct {
	Key       *DecoratedKey
	Inclusive bool
}

// Unbounded returns true if the bound does not constrain the range.
func (b PartitionBound) Unbounded() bool {
	return b.Key == nil
}

// PartitionRange is a range of partitions in decorated key order.
type PartitionRange struct {
	Start, End PartitionBound
}

// AllPartitions is the range covering every partition.
var AllPartitions = PartitionRange{}

// InclusiveRange returns the range [start, end].
func InclusiveRange(start, end DecoratedKey) PartitionRange {
	return PartitionRange{
		Start: PartitionBound{Key: &start, Inclusive: true},
		End:   PartitionBound{Key: &end, Inclusive: true},
	}
}

// BeforeStart returns true if k sorts before the start of the range.
func (r PartitionRange) BeforeStart(k DecoratedKey) bool {
	if r.Start.Unbounded() {
		return false
	}
	c := k.Compare(*r.Start.Key)
	return c < 0 || (c == 0 && !r.Start.Inclusive)
}

// AfterEnd returns true if k sorts after the end of the range.
func (r PartitionRange) AfterEnd(k DecoratedKey) bool {
	if r.End.Unbounded() {
		return false
	}
	c := k.Compare(*r.End.Key)
	return c > 0 || (c == 0 && !r.End.Inclusive)
}

// Contains returns true if k falls inside the range.
func (r PartitionRange) Contains(k DecoratedKey) bool {
	return !r.BeforeStart(k) && !r.AfterEnd(k)
}

func (r PartitionRange) String() string {
	var buf bytes.Buffer
	if r.Start.Inclusive {
		buf.WriteByte('[')
	} else {
		buf.WriteByte('(')
	}
	if r.Start.Unbounded() {
		buf.WriteByte('*')
	} else {
		buf.WriteString(r.Start.Key.String())
	}
	buf.WriteByte(',')
	if r.End.Unbounded() {
		buf.WriteByte('*')
	} else {
		buf.WriteString(r.End.Key.String())
	}
	if r.End.Inclusive {
		buf.WriteByte(']')
	} else {
		buf.WriteByte(')')
	}
	return buf.String()
}
