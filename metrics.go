// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"strconv"

	"github.com/cockroachdb/redact"
)

// Metrics holds counters describing the work a compacting reader has done.
type Metrics struct {
	// FragmentsIn is the number of fragments read from the source.
	FragmentsIn int64
	// FragmentsOut is the number of fragments returned to the consumer.
	FragmentsOut int64
	// Partitions is the number of partitions started.
	Partitions int64
	// PartitionsElided is the number of partitions that produced no output.
	PartitionsElided int64
	// PartitionsSkipped is the number of partitions skipped by forwarding.
	PartitionsSkipped int64
	// RowsCoalesced is the number of row fragments folded into an earlier
	// fragment at the same position.
	RowsCoalesced int64
	// RowsDropped is the number of rows left with nothing to emit.
	RowsDropped int64
	// CellsDropped is the number of cells dropped, shadowed or purged.
	CellsDropped int64
	// CellsExpired is the number of expiring cells turned into cell
	// tombstones.
	CellsExpired int64
	// TombstonesDropped is the number of partition, row and range tombstones
	// dropped because they were shadowed or purgeable.
	TombstonesDropped int64
	// RangeTombstonesMerged is the number of input range tombstone changes
	// that produced no output change.
	RangeTombstonesMerged int64
	// OracleCalls is the number of purge oracle calls.
	OracleCalls int64
}

// Add accumulates the counters of o into m.
func (m *Metrics) Add(o *Metrics) {
	m.FragmentsIn += o.FragmentsIn
	m.FragmentsOut += o.FragmentsOut
	m.Partitions += o.Partitions
	m.PartitionsElided += o.PartitionsElided
	m.PartitionsSkipped += o.PartitionsSkipped
	m.RowsCoalesced += o.RowsCoalesced
	m.RowsDropped += o.RowsDropped
	m.CellsDropped += o.CellsDropped
	m.CellsExpired += o.CellsExpired
	m.TombstonesDropped += o.TombstonesDropped
	m.RangeTombstonesMerged += o.RangeTombstonesMerged
	m.OracleCalls += o.OracleCalls
}

// Table returns the metrics as rows of name and value, in display order.
func (m *Metrics) Table() [][2]string {
	row := func(name string, v int64) [2]string {
		return [2]string{name, strconv.FormatInt(v, 10)}
	}
	return [][2]string{
		row("fragments-in", m.FragmentsIn),
		row("fragments-out", m.FragmentsOut),
		row("partitions", m.Partitions),
		row("partitions-elided", m.PartitionsElided),
		row("partitions-skipped", m.PartitionsSkipped),
		row("rows-coalesced", m.RowsCoalesced),
		row("rows-dropped", m.RowsDropped),
		row("cells-dropped", m.CellsDropped),
		row("cells-expired", m.CellsExpired),
		row("tombstones-dropped", m.TombstonesDropped),
		row("range-tombstones-merged", m.RangeTombstonesMerged),
		row("oracle-calls", m.OracleCalls),
	}
}

func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("fragments: %d in, %d out\n", redact.Safe(m.FragmentsIn), redact.Safe(m.FragmentsOut))
	w.Printf("partitions: %d (%d elided, %d skipped)\n",
		redact.Safe(m.Partitions), redact.Safe(m.PartitionsElided), redact.Safe(m.PartitionsSkipped))
	w.Printf("rows: %d coalesced, %d dropped\n", redact.Safe(m.RowsCoalesced), redact.Safe(m.RowsDropped))
	w.Printf("cells: %d dropped, %d expired\n", redact.Safe(m.CellsDropped), redact.Safe(m.CellsExpired))
	w.Printf("tombstones: %d dropped, %d range changes merged\n",
		redact.Safe(m.TombstonesDropped), redact.Safe(m.RangeTombstonesMerged))
	w.Printf("oracle calls: %d\n", redact.Safe(m.OracleCalls))
}
