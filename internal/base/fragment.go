// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/redact"
)

// Kind enumerates the kinds of mutation fragments.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindPartitionStart opens a partition. It carries the partition key and
	// the partition tombstone.
	KindPartitionStart
	// KindStaticRow carries the cells of the partition's static row.
	KindStaticRow
	// KindClusteredRow carries a row at a clustering position, with an
	// optional row tombstone.
	KindClusteredRow
	// KindRangeTombstoneChange sets the range tombstone in effect from its
	// position onwards. A change to NoTombstone closes the open range.
	KindRangeTombstoneChange
	// KindPartitionEnd closes the partition.
	KindPartitionEnd
)

var kindNames = []string{
	KindInvalid:              "invalid",
	KindPartitionStart:       "partition-start",
	KindStaticRow:            "static-row",
	KindClusteredRow:         "row",
	KindRangeTombstoneChange: "rtc",
	KindPartitionEnd:         "partition-end",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SafeFormat implements redact.SafeFormatter.
func (k Kind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// Cell is one column value of a row, tagged with its write timestamp.
//
// A dead cell is a cell tombstone: it has no value, and DeletionTime records
// when it was deleted. A live cell may expire: once the gc clock reaches
// Expiry, the cell is treated as a cell tombstone with deletion time
// Expiry-TTL.
type Cell struct {
	Column    string
	Timestamp Timestamp
	Value     []byte

	Dead         bool
	DeletionTime GCTime

	// Expiry is zero for cells that never expire.
	Expiry GCTime
	TTL    int32
}

// Expiring returns true if the cell is live and carries a time-to-live.
func (c *Cell) Expiring() bool {
	return !c.Dead && c.Expiry != 0
}

// Expired returns true if the cell is an expiring cell whose expiry has
// passed at now.
func (c *Cell) Expired(now GCTime) bool {
	return c.Expiring() && c.Expiry <= now
}

// Kill turns an expired cell into the cell tombstone it stands for.
func (c *Cell) Kill() {
	c.Dead = true
	c.DeletionTime = c.Expiry - GCTime(c.TTL)
	c.Value = nil
	c.Expiry = 0
	c.TTL = 0
}

// Reconcile returns the version of a column that wins when a and b meet.
// The higher timestamp wins. On equal timestamps a deletion beats a write, a
// later expiry beats an earlier one, and finally the larger value wins, so
// that the outcome does not depend on the order of the inputs.
func Reconcile(a, b Cell) Cell {
	switch {
	case a.Timestamp != b.Timestamp:
		if a.Timestamp > b.Timestamp {
			return a
		}
		return b
	case a.Dead != b.Dead:
		if a.Dead {
			return a
		}
		return b
	case a.Dead:
		if a.DeletionTime >= b.DeletionTime {
			return a
		}
		return b
	case a.Expiry != b.Expiry:
		// A cell that never expires outlives any expiring one.
		if a.Expiry == 0 || (b.Expiry != 0 && a.Expiry > b.Expiry) {
			return a
		}
		return b
	}
	if bytes.Compare(a.Value, b.Value) >= 0 {
		return a
	}
	return b
}

func (c Cell) String() string {
	switch {
	case c.Dead:
		return fmt.Sprintf("%s@%d/%d", c.Column, int64(c.Timestamp), int64(c.DeletionTime))
	case c.Expiry != 0:
		return fmt.Sprintf("%s=%s@%d~%d/%d", c.Column, FormatBytes(c.Value), int64(c.Timestamp),
			int64(c.Expiry), c.TTL)
	}
	return fmt.Sprintf("%s=%s@%d", c.Column, FormatBytes(c.Value), int64(c.Timestamp))
}

// Fragment is the unit of a mutation stream. Kind selects which of the other
// fields are meaningful:
//
//	partition-start:  Key, Tombstone (partition tombstone)
//	static-row:       Cells
//	row:              Position, Tombstone (row tombstone), Cells
//	rtc:              Position, Tombstone (range tombstone, or NoTombstone)
//	partition-end:    none
//
// Cells are sorted by column and hold at most one cell per column.
type Fragment struct {
	Kind      Kind
	Key       DecoratedKey
	Tombstone Tombstone
	Position  Position
	Cells     []Cell
}

// PartitionStart returns a partition-start fragment.
func PartitionStart(key DecoratedKey, tomb Tombstone) *Fragment {
	return &Fragment{Kind: KindPartitionStart, Key: key, Tombstone: tomb}
}

// StaticRow returns a static row fragment.
func StaticRow(cells ...Cell) *Fragment {
	return &Fragment{Kind: KindStaticRow, Tombstone: NoTombstone, Position: MinPosition, Cells: cells}
}

// ClusteredRow returns a clustered row fragment.
func ClusteredRow(key []byte, tomb Tombstone, cells ...Cell) *Fragment {
	return &Fragment{Kind: KindClusteredRow, Position: AtKey(key), Tombstone: tomb, Cells: cells}
}

// RangeTombstoneChange returns a range tombstone change fragment.
func RangeTombstoneChange(pos Position, tomb Tombstone) *Fragment {
	return &Fragment{Kind: KindRangeTombstoneChange, Position: pos, Tombstone: tomb}
}

// PartitionEnd returns a partition-end fragment.
func PartitionEnd() *Fragment {
	return &Fragment{Kind: KindPartitionEnd, Tombstone: NoTombstone}
}

// Clone returns a deep copy of f.
func (f *Fragment) Clone() *Fragment {
	n := &Fragment{
		Kind:      f.Kind,
		Key:       f.Key,
		Tombstone: f.Tombstone,
		Position:  f.Position.Clone(),
	}
	if f.Key.Key != nil {
		n.Key = f.Key.Clone()
	}
	if f.Cells != nil {
		n.Cells = make([]Cell, len(f.Cells))
		for i := range f.Cells {
			n.Cells[i] = f.Cells[i]
			if f.Cells[i].Value != nil {
				n.Cells[i].Value = append([]byte(nil), f.Cells[i].Value...)
			}
		}
	}
	return n
}

// String formats the fragment in the fixture notation understood by
// ParseFragment.
func (f *Fragment) String() string {
	var buf strings.Builder
	buf.WriteString(f.Kind.String())
	switch f.Kind {
	case KindPartitionStart:
		fmt.Fprintf(&buf, " %s", f.Key)
		if !f.Tombstone.IsEmpty() {
			fmt.Fprintf(&buf, " tomb=%s", f.Tombstone)
		}
	case KindStaticRow:
		for _, c := range f.Cells {
			fmt.Fprintf(&buf, " %s", c)
		}
	case KindClusteredRow:
		fmt.Fprintf(&buf, " %s", FormatBytes(f.Position.Key))
		if !f.Tombstone.IsEmpty() {
			fmt.Fprintf(&buf, " tomb=%s", f.Tombstone)
		}
		for _, c := range f.Cells {
			fmt.Fprintf(&buf, " %s", c)
		}
	case KindRangeTombstoneChange:
		fmt.Fprintf(&buf, " %s", f.Position)
		if !f.Tombstone.IsEmpty() {
			fmt.Fprintf(&buf, " tomb=%s", f.Tombstone)
		}
	}
	return buf.String()
}

// SafeFormat implements redact.SafeFormatter. Only the kind, the position
// weight and the tombstone are considered safe.
func (f *Fragment) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(f.Kind)
	switch f.Kind {
	case KindPartitionStart:
		w.Printf(" %s", f.Key)
	case KindClusteredRow, KindRangeTombstoneChange:
		w.Printf(" %s", f.Position)
	}
	if !f.Tombstone.IsEmpty() {
		w.Printf(" tomb=%s", f.Tombstone)
	}
}
