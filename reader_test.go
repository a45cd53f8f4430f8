// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/fragstream"
	"github.com/cockroachdb/mutcompact/internal/fragtest"
	"github.com/stretchr/testify/require"
)

// errKind prints an error prefixed with the kind it is marked with.
func errKind(err error) string {
	switch {
	case errors.Is(err, ErrCorruption):
		return "corruption: " + err.Error()
	case errors.Is(err, ErrUnsupported):
		return "unsupported: " + err.Error()
	case errors.Is(err, ErrReentrant):
		return "reentrant: " + err.Error()
	case errors.Is(err, ErrMisuse):
		return "misuse: " + err.Error()
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return err.Error()
}

// parseOracle parses a list of key:threshold pairs; the key * sets the
// threshold of every other partition. The values "never", "always" and
// "fail" select a fixed oracle.
func parseOracle(vals []string) (PurgeOracle, error) {
	thresholds := map[string]Timestamp{}
	def := base.TimestampMissing
	for _, v := range vals {
		switch v {
		case "never":
			return NeverPurge, nil
		case "always":
			return AlwaysPurge, nil
		case "fail":
			return func(context.Context, DecoratedKey) (Timestamp, error) {
				return 0, errors.New("oracle unavailable")
			}, nil
		}
		key, tsStr, ok := strings.Cut(v, ":")
		if !ok {
			return nil, errors.Newf("oracle: expected <key>:<ts>, got %q", v)
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, err
		}
		if key == "*" {
			def = Timestamp(ts)
		} else {
			thresholds[key] = Timestamp(ts)
		}
	}
	return func(_ context.Context, k DecoratedKey) (Timestamp, error) {
		if ts, ok := thresholds[string(k.Key)]; ok {
			return ts, nil
		}
		return def, nil
	}, nil
}

func runReaderOps(t *testing.T, r *Reader, src *fragtest.Source, input string) string {
	ctx := context.Background()
	var b strings.Builder
	printErr := func(err error) {
		if err != nil {
			fmt.Fprintf(&b, "err=%s\n", errKind(err))
		}
	}
	for _, line := range crstrings.Lines(input) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "next":
			f, err := r.Next(ctx)
			switch {
			case err != nil:
				printErr(err)
			case f == nil:
				fmt.Fprintf(&b, ".\n")
			default:
				fmt.Fprintf(&b, "%s\n", f)
			}
		case "drain":
			frags, err := fragstream.Drain(ctx, r)
			b.WriteString(fragstream.Format(frags))
			if err != nil {
				printErr(err)
			} else {
				fmt.Fprintf(&b, ".\n")
			}
		case "next-partition":
			printErr(r.NextPartition(ctx))
		case "ff-partitions":
			pr, err := base.ParsePartitionRange(OrderedPartitioner, fields[1])
			require.NoError(t, err)
			printErr(r.FastForwardToPartitions(ctx, pr))
		case "ff-positions":
			pr, err := base.ParsePositionRange(fields[1])
			require.NoError(t, err)
			printErr(r.FastForwardToPositions(ctx, pr))
		case "metrics":
			m := r.Metrics()
			b.WriteString(m.String())
		case "source-log":
			fmt.Fprintf(&b, "%s\n", strings.Join(src.Log, "\n"))
		case "close":
			printErr(r.Close())
		default:
			t.Fatalf("unknown op: %s", fields[0])
		}
	}
	return b.String()
}

func TestCompactingReader(t *testing.T) {
	defer leaktest.AfterTest(t)()

	var frags []*Fragment
	var caps Capabilities
	datadriven.RunTest(t, "testdata/compacting_reader", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "define":
			caps = Capabilities{}
			for _, arg := range d.CmdArgs {
				switch arg.Key {
				case "caps":
					var err error
					caps, err = fragtest.ParseCapabilities(strings.Join(arg.Vals, ","))
					require.NoError(t, err)
				default:
					t.Fatalf("%s: unknown arg: %s", d.Cmd, arg.Key)
				}
			}
			var err error
			frags, err = base.ParseFragments(OrderedPartitioner, d.Input)
			if err != nil {
				return err.Error()
			}
			return ""

		case "compact":
			mode := ForwardingNone
			compactionTime := GCTime(100)
			oracle := PurgeOracle(NeverPurge)
			var logger base.InMemLogger
			opts := &Options{Logger: &logger}
			for _, arg := range d.CmdArgs {
				switch arg.Key {
				case "mode":
					switch arg.Vals[0] {
					case "none":
					case "intra":
						mode = ForwardingIntraPartition
					default:
						t.Fatalf("unknown mode %q", arg.Vals[0])
					}
				case "compaction-time":
					v, err := strconv.ParseInt(arg.Vals[0], 10, 64)
					require.NoError(t, err)
					compactionTime = GCTime(v)
				case "gc-grace":
					v, err := time.ParseDuration(arg.Vals[0])
					require.NoError(t, err)
					opts.GCGracePeriod = v
				case "oracle":
					var err error
					oracle, err = parseOracle(arg.Vals)
					require.NoError(t, err)
				case "partitioner":
					opts.Partitioner = HashPartitioner
				case "log":
				default:
					t.Fatalf("%s: unknown arg: %s", d.Cmd, arg.Key)
				}
			}
			src := fragtest.NewSource(frags, caps)
			r, err := NewCompactingReader(src, compactionTime, oracle, mode, opts)
			if err != nil {
				return fmt.Sprintf("err=%s\n", errKind(err))
			}
			input := d.Input
			if input == "" {
				input = "drain"
			}
			out := runReaderOps(t, r, src, input)
			if d.HasArg("log") {
				out += logger.String()
			}
			if !src.Closed() {
				require.NoError(t, r.Close())
			}
			return out

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func TestCompactingReaderCapabilityContract(t *testing.T) {
	for _, caps := range []Capabilities{
		{},
		{NextPartition: true},
		{PositionForwarding: true},
		{NextPartition: true, PartitionForwarding: true},
	} {
		t.Run(caps.String(), func(t *testing.T) {
			src := fragtest.NewSource(nil, caps)
			calls := 0
			oracle := func(context.Context, DecoratedKey) (Timestamp, error) {
				calls++
				return 0, nil
			}
			r, err := NewCompactingReader(src, 100, oracle, ForwardingIntraPartition, nil)
			require.Nil(t, r)
			require.True(t, errors.Is(err, ErrUnsupported), "%v", err)
			require.Empty(t, src.Log)
			require.Zero(t, calls)
			require.False(t, src.Closed())

			// Without intra-partition forwarding the same source is fine.
			r, err = NewCompactingReader(src, 100, oracle, ForwardingNone, nil)
			require.NoError(t, err)
			require.Equal(t, Capabilities{NextPartition: true, PartitionForwarding: true}, r.Capabilities())
			require.NoError(t, r.Close())
			require.True(t, src.Closed())
		})
	}

	src := fragtest.NewSource(nil, Capabilities{NextPartition: true, PositionForwarding: true})
	r, err := NewCompactingReader(src, 100, NeverPurge, ForwardingIntraPartition, nil)
	require.NoError(t, err)
	require.Equal(t, Capabilities{NextPartition: true, PartitionForwarding: true, PositionForwarding: true},
		r.Capabilities())
	require.NoError(t, r.Close())
}

func TestCompactingReaderArgs(t *testing.T) {
	src := fragtest.NewSource(nil, Capabilities{})
	_, err := NewCompactingReader(nil, 100, NeverPurge, ForwardingNone, nil)
	require.True(t, errors.Is(err, ErrMisuse))
	_, err = NewCompactingReader(src, 100, nil, ForwardingNone, nil)
	require.True(t, errors.Is(err, ErrMisuse))
	_, err = NewCompactingReader(src, 100, NeverPurge, ForwardingNone, &Options{GCGracePeriod: -time.Second})
	require.Error(t, err)
	require.False(t, src.Closed())
}

// Fragments built as struct literals carry the zero tombstone, which deletes
// nothing; a deletion at timestamp 0 must be made explicitly.
func TestCompactingReaderFragmentLiterals(t *testing.T) {
	cells := func(col, val string) []Cell {
		return []Cell{{Column: col, Value: []byte(val)}}
	}
	frags := []*Fragment{
		{Kind: KindPartitionStart, Key: OrderedPartitioner.Decorate([]byte("a"))},
		{Kind: KindStaticRow, Cells: cells("s", "x")},
		{Kind: KindClusteredRow, Position: base.AtKey([]byte("b")), Cells: cells("c", "v")},
		{Kind: KindRangeTombstoneChange, Position: base.BeforeKey([]byte("c")), Tombstone: base.MakeTombstone(0, 50)},
		{Kind: KindClusteredRow, Position: base.AtKey([]byte("c")), Cells: cells("c", "w")},
		{Kind: KindRangeTombstoneChange, Position: base.AfterKey([]byte("c"))},
		{Kind: KindPartitionEnd},
	}
	for _, oracle := range []PurgeOracle{NeverPurge, AlwaysPurge} {
		r, err := NewCompactingReader(fragtest.NewSource(frags, Capabilities{}), 100, oracle, ForwardingNone, nil)
		require.NoError(t, err)
		out, err := fragstream.Drain(context.Background(), r)
		require.NoError(t, err)
		require.NoError(t, r.Close())

		expected := "partition-start a\nstatic-row s=x@0\nrow b c=v@0\n"
		if r.Metrics().TombstonesDropped == 0 {
			expected += "rtc <c tomb=0/50\nrtc >c\n"
		}
		require.Equal(t, expected+"partition-end\n", fragstream.Format(out))
	}
}

const reentrancyInput = `
partition-start a
row b c=x@1
partition-end
`

func TestCompactingReaderReentrant(t *testing.T) {
	defer leaktest.AfterTest(t)()

	src, err := fragtest.Parse(OrderedPartitioner, reentrancyInput, Capabilities{})
	require.NoError(t, err)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var r *Reader
	var nestedErr error
	blocked := false
	src.Hook = func(ctx context.Context, op string) error {
		if blocked {
			return nil
		}
		blocked = true
		// A call made on the reader while it is inside the source fails.
		_, nestedErr = r.Next(ctx)
		close(entered)
		<-unblock
		return nil
	}
	r, err = NewCompactingReader(src, 100, NeverPurge, ForwardingNone, nil)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := r.Next(context.Background())
		done <- err
	}()
	<-entered
	require.True(t, errors.Is(nestedErr, ErrReentrant), "%v", nestedErr)
	require.True(t, errors.Is(nestedErr, ErrMisuse), "%v", nestedErr)
	close(unblock)
	require.NoError(t, <-done)

	// Misuse is not sticky: the stream carries on.
	f, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "row b c=x@1", f.String())
	require.NoError(t, r.Close())
}

func TestCompactingReaderCloseInFlight(t *testing.T) {
	defer leaktest.AfterTest(t)()

	src, err := fragtest.Parse(OrderedPartitioner, reentrancyInput, Capabilities{})
	require.NoError(t, err)
	entered := make(chan struct{})
	src.Hook = func(ctx context.Context, op string) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}
	r, err := NewCompactingReader(src, 100, NeverPurge, ForwardingNone, nil)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := r.Next(context.Background())
		done <- err
	}()
	<-entered
	// Close cancels the in-flight call, and the source is released once the
	// call returns.
	require.NoError(t, r.Close())
	require.ErrorIs(t, <-done, context.Canceled)
	require.True(t, src.Closed())

	_, err = r.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.True(t, errors.Is(r.Close(), ErrMisuse))
}

func TestCompactingReaderClose(t *testing.T) {
	src, err := fragtest.Parse(OrderedPartitioner, reentrancyInput, Capabilities{})
	require.NoError(t, err)
	r, err := NewCompactingReader(src, 100, NeverPurge, ForwardingNone, nil)
	require.NoError(t, err)

	f, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindPartitionStart, f.Kind)

	// Buffered fragments and the source are released on close.
	require.NoError(t, r.Close())
	require.True(t, src.Closed())
	require.False(t, r.c.buffered())
	require.Nil(t, r.c.p.pendingRow)

	ctx := context.Background()
	require.ErrorIs(t, r.NextPartition(ctx), ErrClosed)
	require.ErrorIs(t, r.FastForwardToPartitions(ctx, AllPartitions), ErrClosed)
	require.ErrorIs(t, r.FastForwardToPositions(ctx, AllPositions), ErrClosed)
	require.True(t, errors.Is(r.Close(), ErrMisuse))
}

func TestCompactingReaderSourceError(t *testing.T) {
	ioErr := errors.New("disk on fire")
	for call := 1; call <= 4; call++ {
		t.Run(strconv.Itoa(call), func(t *testing.T) {
			src, err := fragtest.Parse(OrderedPartitioner, reentrancyInput, Capabilities{})
			require.NoError(t, err)
			src.InjectError(call, ioErr)
			r, err := NewCompactingReader(src, 100, NeverPurge, ForwardingNone, nil)
			require.NoError(t, err)
			defer func() { require.NoError(t, r.Close()) }()

			_, err = fragstream.Drain(context.Background(), r)
			// The source's error comes back unchanged, and sticks.
			require.Equal(t, ioErr, err)
			_, err = r.Next(context.Background())
			require.Equal(t, ioErr, err)
			require.Equal(t, ioErr, r.NextPartition(context.Background()))
		})
	}
}

func TestCompactingReaderChain(t *testing.T) {
	defer leaktest.AfterTest(t)()

	const input = `
partition-start a
row b c=x@3
row b c=y@5
rtc <c tomb=4/150
row d c=z@2 e=w@6
rtc >d
partition-end
partition-start f tomb=9/10
row g c=v@8
partition-end
`
	src, err := fragtest.Parse(OrderedPartitioner, input, Capabilities{})
	require.NoError(t, err)
	inner, err := NewCompactingReader(src, 100, NeverPurge, ForwardingNone, nil)
	require.NoError(t, err)
	outer, err := NewCompactingReader(inner, 100, AlwaysPurge, ForwardingNone, nil)
	require.NoError(t, err)

	frags, err := fragstream.Drain(context.Background(), outer)
	require.NoError(t, err)
	require.Equal(t, `partition-start a
row b c=y@5
rtc <c tomb=4/150
row d e=w@6
rtc >d
partition-end
`, fragstream.Format(frags))

	// Closing the outer reader closes the whole chain.
	require.NoError(t, outer.Close())
	require.True(t, src.Closed())
	require.Equal(t, int64(1), outer.Metrics().PartitionsElided)
	require.Equal(t, int64(1), inner.Metrics().RowsCoalesced)
}
