// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"sort"

	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/invariants"
	"github.com/cockroachdb/mutcompact/internal/rangetomb"
)

// compactor reconciles and purges the fragments of a stream, one partition at
// a time. It is fed the raw fragments of a partition and appends the minimal
// equivalent sequence of fragments to out. The compactor never blocks: the
// purge threshold of a partition is looked up by the caller and handed to
// startPartition.
//
// Compaction follows these rules:
//
// 1. Shadowing
//
// A write with timestamp C under a deletion with timestamp T is dead iff
// C <= T. The deletions covering a row are the partition tombstone, the range
// tombstone open at the row and the row's own tombstone; a static row is only
// covered by the partition tombstone. Shadowed cells are always dropped: they
// can never become visible again. A tombstone shadowed by a greater covering
// tombstone is dropped as well.
//
// 2. Purging
//
// A deletion (partition, row or range tombstone, or dead cell) is purgeable
// if its timestamp is at or below the partition's purge threshold and its
// deletion time is older than the gc grace period allows. Purgeable deletions
// are dropped, but still shadow the data of this stream: anything they shadow
// has a timestamp at or below theirs, and so at or below the threshold. Data
// above the threshold is never purged.
//
// 3. Expiry
//
// A live cell whose expiry has passed at the compaction time is turned into a
// dead cell, and from then on follows the rules above.
//
// 4. Coalescing
//
// Row fragments at the same position are folded into one. Per column the
// version with the higher timestamp survives (see base.Reconcile); row
// tombstones merge to the greater one.
//
// 5. Range tombstones
//
// Range tombstone changes pass through a rangetomb.Tracker, which drops
// changes that leave the output tombstone unchanged. Changes to a shadowed or
// purgeable tombstone are emitted as closing changes.
//
// 6. Elision
//
// The partition-start is held back until the partition is known to produce
// something: a surviving partition tombstone, static row, row or range
// tombstone change. A partition that produces nothing is dropped entirely,
// partition-start and partition-end included.
type compactor struct {
	cmp            base.Compare
	partitioner    *Partitioner
	compactionTime GCTime
	gcBefore       GCTime
	intra          bool
	metrics        *Metrics
	events         *EventListener

	// out holds the compacted fragments not yet handed out. outPos is the
	// index of the next one.
	out    []*Fragment
	outPos int

	// lastKey is the key of the most recent partition-start in the input.
	lastKey      DecoratedKey
	sawPartition bool

	// p is the state of the partition being compacted.
	p struct {
		open bool
		key  DecoratedKey
		// tomb is the input partition tombstone. It keeps shadowing data even if
		// it was purged from the output.
		tomb         Tombstone
		policy       base.PurgePolicy
		start        *Fragment
		startEmitted bool
		sawStatic    bool
		sawClustered bool
		lastPos      Position
		// window is the position range the source is producing.
		window      PositionRange
		fragmentsIn int
		// pendingRow is the row under construction. Fragments at the same
		// position are folded into it.
		pendingRow  *Fragment
		lastEmitted Position
	}
	rts rangetomb.Tracker
}

func (c *compactor) init(
	opts *Options, compactionTime GCTime, mode ForwardingMode, metrics *Metrics,
) {
	*c = compactor{
		cmp:            opts.Comparer.Compare,
		partitioner:    opts.Partitioner,
		compactionTime: compactionTime,
		gcBefore:       opts.gcBefore(compactionTime),
		intra:          mode == ForwardingIntraPartition,
		metrics:        metrics,
		events:         opts.EventListener,
	}
	c.rts.Init(c.cmp)
}

func (c *compactor) corruptionf(format string, args ...interface{}) error {
	err := base.CorruptionErrorf(format, args...)
	info := CorruptionInfo{Err: err}
	if c.p.open {
		info.Key = c.p.key
	}
	c.events.CorruptionDetected(info)
	return err
}

// pop returns the next compacted fragment, or nil if there is none.
func (c *compactor) pop() *Fragment {
	if c.outPos >= len(c.out) {
		return nil
	}
	f := c.out[c.outPos]
	c.out[c.outPos] = nil
	c.outPos++
	if c.outPos == len(c.out) {
		c.out = c.out[:0]
		c.outPos = 0
	}
	return f
}

// buffered returns true if compacted fragments are waiting to be handed out.
func (c *compactor) buffered() bool {
	return c.outPos < len(c.out)
}

func (c *compactor) clearOutput() {
	for i := range c.out {
		c.out[i] = nil
	}
	c.out = c.out[:0]
	c.outPos = 0
}

// clearWindowOutput drops the buffered fragments of the current window, but
// keeps a buffered partition-start: it has been emitted as far as the
// compactor is concerned, and the next window's fragments follow it.
func (c *compactor) clearWindowOutput() {
	var start *Fragment
	for _, f := range c.out[c.outPos:] {
		if f.Kind == KindPartitionStart {
			start = f
		}
	}
	c.clearOutput()
	if start != nil {
		c.out = append(c.out, start)
	}
}

func (c *compactor) push(f *Fragment) {
	if invariants.Enabled && (f.Kind == KindClusteredRow || f.Kind == KindRangeTombstoneChange) {
		invariants.CheckOrder(base.ComparePositions(c.cmp, c.p.lastEmitted, f.Position),
			"%s after %s", f.Position, c.p.lastEmitted)
		c.p.lastEmitted = f.Position
	}
	c.out = append(c.out, f)
}

func (c *compactor) emitStart() {
	c.p.startEmitted = true
	c.push(c.p.start)
}

func (c *compactor) emit(f *Fragment) {
	if !c.p.startEmitted {
		c.emitStart()
	}
	c.push(f)
}

// checkPartitionStart validates a partition-start read from the source,
// before its purge threshold is looked up. Partitions skipped by forwarding
// are checked too, so that the partition order is verified for the whole
// input.
func (c *compactor) checkPartitionStart(f *Fragment) error {
	if c.p.open {
		return c.corruptionf("partition-start %s inside partition %s", f.Key, c.p.key)
	}
	if c.partitioner != nil && c.partitioner.Token(f.Key.Key) != f.Key.Token {
		return c.corruptionf("partition %s: token does not match partitioner %s",
			f.Key, c.partitioner.Name)
	}
	if c.sawPartition && f.Key.Compare(c.lastKey) <= 0 {
		return c.corruptionf("partition %s out of order after %s", f.Key, c.lastKey)
	}
	c.sawPartition = true
	c.lastKey = f.Key.Clone()
	return nil
}

// startPartition opens the partition f starts, with the given purge
// threshold.
func (c *compactor) startPartition(f *Fragment, threshold Timestamp) {
	c.metrics.Partitions++
	c.p.open = true
	c.p.key = f.Key
	c.p.tomb = f.Tombstone
	c.p.policy = base.PurgePolicy{Threshold: threshold, GCBefore: c.gcBefore}
	c.p.startEmitted = false
	c.p.sawStatic = false
	c.p.sawClustered = false
	c.p.lastPos = base.MinPosition
	c.p.lastEmitted = base.MinPosition
	c.p.fragmentsIn = 1
	c.p.pendingRow = nil
	if c.intra {
		// The first window only holds the static row.
		c.p.window = PositionRange{Start: base.MinPosition, End: base.MinPosition}
	} else {
		c.p.window = base.AllPositions
	}
	c.rts.Reset()

	tomb := f.Tombstone
	if !tomb.IsEmpty() && c.p.policy.CanPurgeTombstone(tomb) {
		c.metrics.TombstonesDropped++
		tomb = NoTombstone
	}
	f.Tombstone = tomb
	c.p.start = f
	if !tomb.IsEmpty() {
		c.emitStart()
	}
}

// add compacts a fragment of the open partition.
func (c *compactor) add(f *Fragment) error {
	if !c.p.open {
		return c.corruptionf("%s outside of a partition", f.Kind)
	}
	c.p.fragmentsIn++
	switch f.Kind {
	case KindPartitionStart:
		return c.checkPartitionStart(f)
	case KindStaticRow:
		return c.addStaticRow(f)
	case KindClusteredRow:
		return c.addRow(f)
	case KindRangeTombstoneChange:
		return c.addRangeTombstoneChange(f)
	case KindPartitionEnd:
		if c.intra {
			return c.corruptionf("partition-end in partition %s while forwarding within partitions", c.p.key)
		}
		return c.endPartition()
	default:
		return c.corruptionf("unknown fragment kind %s", f.Kind)
	}
}

func (c *compactor) addStaticRow(f *Fragment) error {
	if c.p.sawStatic || c.p.sawClustered {
		return c.corruptionf("static row out of order in partition %s", c.p.key)
	}
	c.p.sawStatic = true
	f.Tombstone = NoTombstone
	f.Position = base.MinPosition
	f.Cells = c.compactCells(normalizeCells(f.Cells), c.p.tomb)
	if len(f.Cells) == 0 {
		c.metrics.RowsDropped++
		return nil
	}
	c.emit(f)
	return nil
}

// checkPosition verifies that a clustered fragment at pos respects the
// clustering order and falls inside the current window. A range tombstone
// change may also sit at the end of the window, to close a range tombstone
// there.
func (c *compactor) checkPosition(f *Fragment) error {
	pos := f.Position
	if base.ComparePositions(c.cmp, pos, c.p.lastPos) < 0 {
		return c.corruptionf("%s at %s out of order after %s in partition %s",
			f.Kind, pos, c.p.lastPos, c.p.key)
	}
	inWindow := c.p.window.Contains(c.cmp, pos)
	if !inWindow && f.Kind == KindRangeTombstoneChange {
		inWindow = base.ComparePositions(c.cmp, c.p.window.Start, pos) <= 0 &&
			base.ComparePositions(c.cmp, pos, c.p.window.End) == 0
	}
	if !inWindow {
		return c.corruptionf("%s at %s outside window %s in partition %s",
			f.Kind, pos, c.p.window, c.p.key)
	}
	c.p.lastPos = pos
	c.p.sawClustered = true
	return nil
}

func (c *compactor) addRow(f *Fragment) error {
	if !f.Position.IsRow() {
		return c.corruptionf("row at %s: not a row position", f.Position)
	}
	if err := c.checkPosition(f); err != nil {
		return err
	}
	f.Cells = normalizeCells(f.Cells)
	if c.p.pendingRow != nil {
		if base.ComparePositions(c.cmp, c.p.pendingRow.Position, f.Position) == 0 {
			coalesceRows(c.p.pendingRow, f)
			c.metrics.RowsCoalesced++
			return nil
		}
		c.flushRow()
	}
	c.flushRangeTombstoneBefore(f.Position)
	c.p.pendingRow = f
	return nil
}

func (c *compactor) addRangeTombstoneChange(f *Fragment) error {
	pos := f.Position
	if pos.Region != base.RegionRows || pos.Weight == 0 {
		return c.corruptionf("range tombstone change at %s: must sit before or after a key", pos)
	}
	if err := c.checkPosition(f); err != nil {
		return err
	}
	if f.Tombstone.IsEmpty() && c.rts.Input().IsEmpty() {
		// A close with nothing open only follows a change at the same
		// position, which it collapses into.
		if p, ok := c.rts.Pending(); !ok || base.ComparePositions(c.cmp, p, pos) != 0 {
			return c.corruptionf("range tombstone closed at %s with none open in partition %s",
				pos, c.p.key)
		}
	}
	if c.p.pendingRow != nil {
		c.flushRow()
	}
	c.flushRangeTombstoneBefore(pos)
	in, out := f.Tombstone, f.Tombstone
	if !in.IsEmpty() && (c.p.tomb.Shadows(in.Timestamp()) || c.p.policy.CanPurgeTombstone(in)) {
		c.metrics.TombstonesDropped++
		out = NoTombstone
	}
	c.rts.Change(pos, in, out)
	return nil
}

func (c *compactor) flushRangeTombstoneBefore(pos Position) {
	if f := c.rts.FlushBefore(pos); f != nil {
		c.emit(f)
	}
}

func (c *compactor) flushRangeTombstone() {
	if f := c.rts.Flush(); f != nil {
		c.emit(f)
	}
}

// flushRow compacts the pending row and emits it if anything is left.
func (c *compactor) flushRow() {
	row := c.p.pendingRow
	c.p.pendingRow = nil

	shadow := base.MaxTombstone(c.p.tomb, c.rts.Input())
	covering := base.MaxTombstone(shadow, row.Tombstone)
	if !row.Tombstone.IsEmpty() &&
		(shadow.Shadows(row.Tombstone.Timestamp()) || c.p.policy.CanPurgeTombstone(row.Tombstone)) {
		c.metrics.TombstonesDropped++
		row.Tombstone = NoTombstone
	}
	row.Cells = c.compactCells(row.Cells, covering)
	if len(row.Cells) == 0 && row.Tombstone.IsEmpty() {
		c.metrics.RowsDropped++
		return
	}
	c.emit(row)
}

// compactCells drops the cells that are shadowed by covering or are
// purgeable cell tombstones. cells is modified in place.
func (c *compactor) compactCells(cells []Cell, covering Tombstone) []Cell {
	out := cells[:0]
	for _, cell := range cells {
		if cell.Expired(c.compactionTime) {
			cell.Kill()
			c.metrics.CellsExpired++
		}
		if covering.Shadows(cell.Timestamp) ||
			(cell.Dead && c.p.policy.CanPurge(cell.Timestamp, cell.DeletionTime)) {
			c.metrics.CellsDropped++
			continue
		}
		out = append(out, cell)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *compactor) endPartition() error {
	if c.p.pendingRow != nil {
		c.flushRow()
	}
	c.flushRangeTombstone()
	if t := c.rts.Input(); !t.IsEmpty() {
		return c.corruptionf("partition %s ends with range tombstone %s open", c.p.key, t)
	}
	if c.p.startEmitted {
		c.emit(base.PartitionEnd())
	} else {
		c.elide()
	}
	c.closePartition()
	return nil
}

// endWindow flushes the pending state at the end of a window, when
// forwarding within partitions.
func (c *compactor) endWindow() error {
	if c.p.pendingRow != nil {
		c.flushRow()
	}
	c.flushRangeTombstone()
	if t := c.rts.Input(); !t.IsEmpty() {
		return c.corruptionf("window %s of partition %s ends with range tombstone %s open",
			c.p.window, c.p.key, t)
	}
	return nil
}

// setWindow moves to the window r of the open partition. Pending state of the
// previous window is dropped; the source re-opens range tombstones spanning
// r.Start.
func (c *compactor) setWindow(r PositionRange) {
	c.p.pendingRow = nil
	c.rts.Reset()
	c.p.window = r
	c.p.lastPos = r.Start
	c.p.lastEmitted = r.Start
}

// abandonPartition drops the open partition. When forwarding within
// partitions this is how partitions end, so one that produced nothing counts
// as elided.
func (c *compactor) abandonPartition() {
	if c.intra && !c.p.startEmitted {
		c.elide()
	}
	c.closePartition()
}

func (c *compactor) elide() {
	c.metrics.PartitionsElided++
	c.events.PartitionElided(PartitionElidedInfo{
		Key:            c.p.key,
		FragmentsIn:    c.p.fragmentsIn,
		PurgeThreshold: c.p.policy.Threshold,
	})
}

func (c *compactor) closePartition() {
	c.p.open = false
	c.p.start = nil
	c.p.pendingRow = nil
	c.rts.Reset()
	c.metrics.RangeTombstonesMerged += int64(c.rts.Merged)
	c.rts.Merged = 0
}

// normalizeCells sorts cells by column and reconciles duplicate columns.
func normalizeCells(cells []Cell) []Cell {
	sorted := true
	for i := 1; i < len(cells); i++ {
		if cells[i-1].Column >= cells[i].Column {
			sorted = false
			break
		}
	}
	if sorted {
		return cells
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].Column < cells[j].Column
	})
	out := cells[:1]
	for _, cell := range cells[1:] {
		if last := &out[len(out)-1]; last.Column == cell.Column {
			*last = base.Reconcile(*last, cell)
			continue
		}
		out = append(out, cell)
	}
	return out
}

// coalesceRows folds src into dst. Both rows sit at the same position and
// have normalized cells.
func coalesceRows(dst, src *Fragment) {
	dst.Tombstone = base.MaxTombstone(dst.Tombstone, src.Tombstone)
	if len(src.Cells) == 0 {
		return
	}
	merged := make([]Cell, 0, len(dst.Cells)+len(src.Cells))
	i, j := 0, 0
	for i < len(dst.Cells) && j < len(src.Cells) {
		a, b := dst.Cells[i], src.Cells[j]
		switch {
		case a.Column < b.Column:
			merged = append(merged, a)
			i++
		case a.Column > b.Column:
			merged = append(merged, b)
			j++
		default:
			merged = append(merged, base.Reconcile(a, b))
			i++
			j++
		}
	}
	merged = append(merged, dst.Cells[i:]...)
	merged = append(merged, src.Cells[j:]...)
	dst.Cells = merged
}
