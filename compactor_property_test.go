// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"context"
	"fmt"
	randv1 "math/rand"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/metamorphic"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/fragstream"
	"github.com/cockroachdb/mutcompact/internal/fragtest"
	"github.com/cockroachdb/mutcompact/internal/testutils"
	"github.com/kr/pretty"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"
)

type clusteredOp int8

const (
	opRow clusteredOp = iota
	opDuplicateRow
	opRangeTombstone
	opSkip
)

// streamGenerator produces random well-formed streams. Timestamps lie in
// [1,10], deletion times in [1,99] and expiries in [50,150], so that a
// compaction time of 100 leaves some of everything purgeable and some not.
type streamGenerator struct {
	rng  *rand.Rand
	next func() clusteredOp
	out  []*Fragment
}

func newStreamGenerator(seed uint64) *streamGenerator {
	rng := rand.New(rand.NewPCG(0, seed))
	return &streamGenerator{
		rng: rng,
		next: metamorphic.Weighted[clusteredOp]{
			{Item: opRow, Weight: 8},
			{Item: opDuplicateRow, Weight: 2},
			{Item: opRangeTombstone, Weight: 3},
			{Item: opSkip, Weight: 4},
		}.RandomDeck(randv1.New(randv1.NewSource(rng.Int64()))),
	}
}

func (g *streamGenerator) timestamp() Timestamp {
	return Timestamp(1 + g.rng.IntN(10))
}

func (g *streamGenerator) tombstone() Tombstone {
	return base.MakeTombstone(g.timestamp(), GCTime(1+g.rng.IntN(99)))
}

func (g *streamGenerator) cells() []Cell {
	var cells []Cell
	for _, col := range []string{"a", "b", "c"} {
		if g.rng.IntN(2) == 0 {
			continue
		}
		c := Cell{Column: col, Timestamp: g.timestamp()}
		switch g.rng.IntN(6) {
		case 0:
			c.Dead = true
			c.DeletionTime = GCTime(1 + g.rng.IntN(99))
		case 1:
			c.Value = []byte(fmt.Sprintf("x%d", g.rng.IntN(10)))
			c.Expiry = GCTime(50 + g.rng.IntN(101))
			c.TTL = 10
		default:
			c.Value = []byte(fmt.Sprintf("v%d", g.rng.IntN(10)))
		}
		cells = append(cells, c)
	}
	return cells
}

func (g *streamGenerator) row(key []byte) *Fragment {
	tomb := NoTombstone
	if g.rng.IntN(7) == 0 {
		tomb = g.tombstone()
	}
	return base.ClusteredRow(key, tomb, g.cells()...)
}

func (g *streamGenerator) partition(key string) {
	tomb := NoTombstone
	if g.rng.IntN(4) == 0 {
		tomb = g.tombstone()
	}
	g.out = append(g.out, base.PartitionStart(OrderedPartitioner.Decorate([]byte(key)), tomb))
	if g.rng.IntN(3) == 0 {
		g.out = append(g.out, base.StaticRow(g.cells()...))
	}
	open := NoTombstone
	const rows = 15
	for i := 0; i < rows; i++ {
		ck := []byte(fmt.Sprintf("c%02d", i))
		switch g.next() {
		case opSkip:
		case opRow:
			g.out = append(g.out, g.row(ck))
		case opDuplicateRow:
			g.out = append(g.out, g.row(ck), g.row(ck))
		case opRangeTombstone:
			change := NoTombstone
			if open.IsEmpty() || g.rng.IntN(3) > 0 {
				change = g.tombstone()
			}
			if change == open {
				change = NoTombstone
			}
			if change != open {
				g.out = append(g.out, base.RangeTombstoneChange(base.BeforeKey(ck), change))
				open = change
			}
			g.out = append(g.out, g.row(ck))
		}
	}
	if !open.IsEmpty() {
		last := []byte(fmt.Sprintf("c%02d", rows-1))
		g.out = append(g.out, base.RangeTombstoneChange(base.AfterKey(last), NoTombstone))
	}
	g.out = append(g.out, base.PartitionEnd())
}

func (g *streamGenerator) stream() []*Fragment {
	g.out = nil
	for i := 0; i < 20; i++ {
		if g.rng.IntN(2) == 0 {
			g.partition(fmt.Sprintf("p%02d", i))
		}
	}
	return g.out
}

// hashedOracle derives a threshold in [0,11] from the partition key, so
// that some partitions purge nothing and some purge every deletion.
func hashedOracle(_ context.Context, key DecoratedKey) (Timestamp, error) {
	return Timestamp(xxhash.Sum64(key.Key) % 12), nil
}

func compactStream(
	t *testing.T, frags []*Fragment, oracle PurgeOracle, compactionTime GCTime,
) []*Fragment {
	t.Helper()
	src := fragtest.NewSource(frags, Capabilities{})
	r, err := NewCompactingReader(src, compactionTime, oracle, ForwardingNone, &Options{
		Partitioner: OrderedPartitioner,
		Logger:      testutils.Logger{T: t},
	})
	require.NoError(t, err)
	out, err := fragstream.Drain(context.Background(), r)
	if err != nil {
		t.Fatalf("%v\ninput:\n%s", err, fragstream.Format(frags))
	}
	require.NoError(t, r.Close())
	return out
}

// visibleCells returns the cells a reader of the stream would see at
// compactionTime, keyed by partition, row and column.
func visibleCells(frags []*Fragment, compactionTime GCTime) map[string]string {
	versions := make(map[string]Cell)
	covering := make(map[string]Tombstone)
	var partition string
	partitionTomb, rangeTomb := NoTombstone, NoTombstone
	add := func(row string, tomb Tombstone, cells []Cell) {
		if cur, ok := covering[row]; ok {
			tomb = base.MaxTombstone(cur, tomb)
		}
		covering[row] = tomb
		for _, c := range cells {
			k := row + "/" + c.Column
			if v, ok := versions[k]; ok {
				c = base.Reconcile(v, c)
			}
			versions[k] = c
		}
	}
	for _, f := range frags {
		switch f.Kind {
		case KindPartitionStart:
			partition = f.Key.String()
			partitionTomb, rangeTomb = f.Tombstone, NoTombstone
		case KindStaticRow:
			add(partition+"/static", partitionTomb, f.Cells)
		case KindClusteredRow:
			tomb := base.MaxTombstone(base.MaxTombstone(partitionTomb, rangeTomb), f.Tombstone)
			add(partition+"/"+string(f.Position.Key), tomb, f.Cells)
		case KindRangeTombstoneChange:
			rangeTomb = f.Tombstone
		}
	}
	visible := make(map[string]string)
	for k, c := range versions {
		row := k[:strings.LastIndexByte(k, '/')]
		if c.Dead || c.Expired(compactionTime) || covering[row].Shadows(c.Timestamp) {
			continue
		}
		visible[k] = fmt.Sprintf("%s@%d", c.Value, int64(c.Timestamp))
	}
	return visible
}

func countDeletions(frags []*Fragment) int {
	n := 0
	for _, f := range frags {
		switch f.Kind {
		case KindPartitionStart, KindClusteredRow:
			if !f.Tombstone.IsEmpty() {
				n++
			}
		case KindRangeTombstoneChange:
			n++
		}
		for _, c := range f.Cells {
			if c.Dead {
				n++
			}
		}
	}
	return n
}

func requireSameStream(t *testing.T, expected, actual []*Fragment) {
	t.Helper()
	e, a := fragstream.Format(expected), fragstream.Format(actual)
	if e == a {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       difflib.SplitLines(e),
		B:       difflib.SplitLines(a),
		Context: 3,
	})
	require.NoError(t, err)
	t.Fatalf("streams differ:\n%s", diff)
}

func TestCompactorProperties(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	g := newStreamGenerator(seed)

	const compactionTime = 100
	for i := 0; i < 200; i++ {
		input := g.stream()
		out := compactStream(t, input, hashedOracle, compactionTime)

		// Compaction never changes what a reader sees.
		if before, after := visibleCells(input, compactionTime), visibleCells(out, compactionTime); !equalMaps(before, after) {
			t.Fatalf("visible cells changed:\n%s\ninput:\n%s\noutput:\n%s",
				strings.Join(pretty.Diff(before, after), "\n"),
				fragstream.Format(input), fragstream.Format(out))
		}

		// The output is a well-formed stream that is already compacted.
		requireSameStream(t, out, compactStream(t, out, hashedOracle, compactionTime))

		// No partition is emitted without content.
		for j := 1; j < len(out); j++ {
			if out[j].Kind == KindPartitionEnd && out[j-1].Kind == KindPartitionStart {
				require.False(t, out[j-1].Tombstone.IsEmpty(),
					"empty partition %s in output:\n%s", out[j-1].Key, fragstream.Format(out))
			}
		}

		// Nothing is purged if the oracle allows nothing, and partition
		// tombstones are never shadowed.
		kept := compactStream(t, input, NeverPurge, compactionTime)
		require.Equal(t, partitionTombstones(input), partitionTombstones(kept))
		require.Equal(t, visibleCells(input, compactionTime), visibleCells(kept, compactionTime))

		// Everything is purged if the oracle and the clock allow it.
		purged := compactStream(t, input, AlwaysPurge, 1000)
		require.Zero(t, countDeletions(purged), "deletions survived:\n%s", fragstream.Format(purged))
		require.Equal(t, visibleCells(input, 1000), visibleCells(purged, 1000))
	}
}

func partitionTombstones(frags []*Fragment) map[string]Tombstone {
	m := make(map[string]Tombstone)
	for _, f := range frags {
		if f.Kind == KindPartitionStart && !f.Tombstone.IsEmpty() {
			m[f.Key.String()] = f.Tombstone
		}
	}
	return m
}

func equalMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || v != w {
			return false
		}
	}
	return true
}

// windowBounds lists the positions a random window may be bounded by, in
// clustering order.
func windowBounds() []Position {
	var bounds []Position
	for i := 0; i < 15; i++ {
		ck := []byte(fmt.Sprintf("c%02d", i))
		bounds = append(bounds, base.BeforeKey(ck), base.AtKey(ck), base.AfterKey(ck))
	}
	return append(bounds, MaxPosition)
}

// randomWindows returns up to three non-empty, forward-moving windows.
func randomWindows(rng *rand.Rand, bounds []Position) []PositionRange {
	var windows []PositionRange
	last := len(bounds) - 1
	for i, w := 0, 0; w < 3; w++ {
		start := i + rng.IntN(4)
		if start >= last {
			break
		}
		end := min(start+1+rng.IntN(12), last)
		windows = append(windows, PositionRange{Start: bounds[start], End: bounds[end]})
		i = end
	}
	return windows
}

// compactWindows reads frags through a reader forwarding within partitions,
// opening random windows on every partition. It returns the concatenated
// output and the rows the windows covered, keyed as in visibleCells.
func compactWindows(
	t *testing.T, frags []*Fragment, rng *rand.Rand,
) (out []*Fragment, covered map[string]bool) {
	t.Helper()
	ctx := context.Background()
	caps := Capabilities{NextPartition: true, PartitionForwarding: true, PositionForwarding: true}
	r, err := NewCompactingReader(fragtest.NewSource(frags, caps), 100, hashedOracle,
		ForwardingIntraPartition, &Options{Logger: testutils.Logger{T: t}})
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	drain := func() {
		window, err := fragstream.Drain(ctx, r)
		if err != nil {
			t.Fatalf("%v\ninput:\n%s", err, fragstream.Format(frags))
		}
		out = append(out, window...)
	}
	bounds := windowBounds()
	covered = make(map[string]bool)
	for {
		drain()
		if !r.c.p.open {
			return out, covered
		}
		partition := r.c.p.key.String()
		covered[partition+"/static"] = true
		for _, w := range randomWindows(rng, bounds) {
			for i := 0; i < 15; i++ {
				ck := fmt.Sprintf("c%02d", i)
				if w.Contains(DefaultComparer.Compare, base.AtKey([]byte(ck))) {
					covered[partition+"/"+ck] = true
				}
			}
			require.NoError(t, r.FastForwardToPositions(ctx, w))
			drain()
		}
		require.NoError(t, r.NextPartition(ctx))
	}
}

func requireOrdered(t *testing.T, frags []*Fragment) {
	t.Helper()
	last := MinPosition
	for _, f := range frags {
		switch f.Kind {
		case KindPartitionStart:
			last = MinPosition
		case KindClusteredRow, KindRangeTombstoneChange:
			if base.ComparePositions(DefaultComparer.Compare, last, f.Position) > 0 {
				t.Fatalf("%s after %s in output:\n%s", f.Position, last, fragstream.Format(frags))
			}
			last = f.Position
		}
	}
}

func TestCompactorWindowProperties(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	g := newStreamGenerator(seed)
	rng := rand.New(rand.NewPCG(1, seed))

	const compactionTime = 100
	for i := 0; i < 200; i++ {
		input := g.stream()
		out, covered := compactWindows(t, input, rng)
		requireOrdered(t, out)

		// The windows see exactly what a full read sees of the rows they
		// cover.
		expected := make(map[string]string)
		for k, v := range visibleCells(input, compactionTime) {
			if covered[k[:strings.LastIndexByte(k, '/')]] {
				expected[k] = v
			}
		}
		if actual := visibleCells(out, compactionTime); !equalMaps(expected, actual) {
			t.Fatalf("visible cells differ:\n%s\ninput:\n%s\noutput:\n%s",
				strings.Join(pretty.Diff(expected, actual), "\n"),
				fragstream.Format(input), fragstream.Format(out))
		}
	}
}

// splitPartitions formats a compacted stream partition by partition.
func splitPartitions(frags []*Fragment) map[string]string {
	m := make(map[string]string)
	var key string
	for _, f := range frags {
		if f.Kind == KindPartitionStart {
			key = f.Key.String()
		}
		m[key] += f.String() + "\n"
	}
	return m
}

func TestCompactorNextPartitionProperties(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	g := newStreamGenerator(seed)
	rng := rand.New(rand.NewPCG(2, seed))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		input := g.stream()
		expected := splitPartitions(compactStream(t, input, hashedOracle, 100))

		// Alternate between a source that skips partitions itself and one
		// the reader skips for.
		caps := Capabilities{NextPartition: i%2 == 0}
		r, err := NewCompactingReader(fragtest.NewSource(input, caps), 100, hashedOracle,
			ForwardingNone, &Options{Logger: testutils.Logger{T: t}})
		require.NoError(t, err)

		seen := make(map[string]string)
		var key string
		for {
			f, err := r.Next(ctx)
			require.NoError(t, err)
			if f == nil {
				break
			}
			if f.Kind == KindPartitionStart {
				key = f.Key.String()
			}
			seen[key] += f.String() + "\n"
			if f.Kind != KindPartitionEnd && rng.IntN(8) == 0 {
				require.NoError(t, r.NextPartition(ctx))
			}
		}
		require.NoError(t, r.Close())

		// Every partition is seen, and what is seen of a skipped partition is
		// a prefix of its full compaction.
		require.Equal(t, len(expected), len(seen), "input:\n%s", fragstream.Format(input))
		for k, v := range seen {
			require.True(t, strings.HasPrefix(expected[k], v),
				"partition %s:\n%s\nexpected prefix of:\n%s", k, v, expected[k])
		}
	}
}
