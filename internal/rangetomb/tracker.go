// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rangetomb tracks range tombstone changes through a partition and
// reduces them to the minimal sequence of changes that still describes the
// surviving range deletions.
package rangetomb

import (
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/invariants"
)

// Tracker follows the range tombstone in effect in an input partition and
// decides which changes the output must carry.
//
// The input tombstone is whatever the last change set; it is what shadows the
// rows that follow. The output tombstone is chosen by the caller for each
// change (a change may be dropped from the output because it is shadowed or
// purgeable, in which case the output sees NoTombstone). Output changes are
// held back until a later position is reached, so that several changes at
// the same position collapse into one, and a change that leaves the output
// tombstone as it was is dropped. Two abutting runs deleting with an equal
// tombstone thus come out as a single run.
type Tracker struct {
	cmp base.Compare
	// input is the tombstone open in the input stream.
	input base.Tombstone
	// output is the tombstone open in the output stream as of the last flushed
	// change.
	output  base.Tombstone
	pending struct {
		valid bool
		pos   base.Position
		tomb  base.Tombstone
	}
	// Merged counts the input changes that did not produce an output change.
	Merged int
}

// Init initializes the tracker for a new stream.
func (t *Tracker) Init(cmp base.Compare) {
	*t = Tracker{cmp: cmp}
	t.Reset()
}

// Reset forgets all state for the current partition.
func (t *Tracker) Reset() {
	t.input = base.NoTombstone
	t.output = base.NoTombstone
	t.pending.valid = false
	t.pending.pos = base.Position{}
	t.pending.tomb = base.NoTombstone
}

// Input returns the range tombstone currently open in the input.
func (t *Tracker) Input() base.Tombstone {
	return t.input
}

// Output returns the range tombstone open in the output, counting the pending
// change if there is one.
func (t *Tracker) Output() base.Tombstone {
	if t.pending.valid {
		return t.pending.tomb
	}
	return t.output
}

// Pending returns the position of the pending output change, if any.
func (t *Tracker) Pending() (base.Position, bool) {
	return t.pending.pos, t.pending.valid
}

// Change records an input change at pos. in is the new input tombstone, out
// the tombstone the output should see from pos onwards. Any pending change at
// an earlier position must have been flushed.
func (t *Tracker) Change(pos base.Position, in, out base.Tombstone) {
	t.input = in
	if t.pending.valid {
		if invariants.Enabled && base.ComparePositions(t.cmp, t.pending.pos, pos) != 0 {
			panic("rangetomb: change recorded past an unflushed change")
		}
		// Collapse into the pending change at the same position.
		t.pending.tomb = out
		t.Merged++
		return
	}
	t.pending.valid = true
	t.pending.pos = pos.Clone()
	t.pending.tomb = out
}

// Flush returns the pending output change, or nil if there is none or it
// would not change the output tombstone.
func (t *Tracker) Flush() *base.Fragment {
	if !t.pending.valid {
		return nil
	}
	t.pending.valid = false
	if t.pending.tomb == t.output {
		t.Merged++
		return nil
	}
	t.output = t.pending.tomb
	return base.RangeTombstoneChange(t.pending.pos, t.pending.tomb)
}

// FlushBefore flushes the pending change if it sits strictly before pos.
func (t *Tracker) FlushBefore(pos base.Position) *base.Fragment {
	if !t.pending.valid || base.ComparePositions(t.cmp, t.pending.pos, pos) >= 0 {
		return nil
	}
	return t.Flush()
}
