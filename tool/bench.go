// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/mutcompact"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/fragstream"
	"github.com/spf13/cobra"
)

const (
	minLatency = 10 * time.Nanosecond
	maxLatency = 10 * time.Second
)

// benchT implements the bench command.
type benchT struct {
	Root *cobra.Command

	partitions int
	rows       int
	seed       uint64
	threshold  int64
}

func newBench() *benchT {
	b := &benchT{}
	b.Root = &cobra.Command{
		Use:   "bench",
		Short: "benchmark the compacting reader",
		Long: `
Compact a randomly generated stream and report the latency of the calls to
Next along with the reader metrics.
`,
		Args: cobra.NoArgs,
		RunE: b.run,
	}
	b.Root.Flags().IntVar(
		&b.partitions, "partitions", 1000, "number of partitions to generate")
	b.Root.Flags().IntVar(
		&b.rows, "rows", 100, "maximum number of rows per partition")
	b.Root.Flags().Uint64Var(
		&b.seed, "seed", 0, "random seed (0 picks one)")
	b.Root.Flags().Int64Var(
		&b.threshold, "threshold", 50, "purge threshold of every partition")
	return b
}

// generate returns a random stream. Timestamps lie in [1,100] and deletion
// times in [1,1000].
func (b *benchT) generate(rng *rand.Rand) []*mutcompact.Fragment {
	tomb := func() mutcompact.Tombstone {
		return base.MakeTombstone(mutcompact.Timestamp(1+rng.IntN(100)), mutcompact.GCTime(1+rng.IntN(1000)))
	}
	var out []*mutcompact.Fragment
	for i := 0; i < b.partitions; i++ {
		key := mutcompact.OrderedPartitioner.Decorate([]byte(fmt.Sprintf("p%08d", i)))
		ptomb := mutcompact.NoTombstone
		if rng.IntN(10) == 0 {
			ptomb = tomb()
		}
		out = append(out, base.PartitionStart(key, ptomb))
		for j, n := 0, rng.IntN(b.rows+1); j < n; j++ {
			rtomb := mutcompact.NoTombstone
			if rng.IntN(20) == 0 {
				rtomb = tomb()
			}
			var cells []mutcompact.Cell
			for _, col := range []string{"a", "b", "c", "d"} {
				c := mutcompact.Cell{Column: col, Timestamp: mutcompact.Timestamp(1 + rng.IntN(100))}
				if rng.IntN(8) == 0 {
					c.Dead = true
					c.DeletionTime = mutcompact.GCTime(1 + rng.IntN(1000))
				} else {
					c.Value = []byte(fmt.Sprintf("v%d", rng.IntN(1000)))
				}
				cells = append(cells, c)
			}
			out = append(out, base.ClusteredRow([]byte(fmt.Sprintf("r%06d", j)), rtomb, cells...))
		}
		out = append(out, base.PartitionEnd())
	}
	return out
}

func (b *benchT) run(cmd *cobra.Command, args []string) error {
	seed := b.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	fmt.Fprintf(stdout, "seed: %d\n", seed)
	frags := b.generate(rand.New(rand.NewPCG(0, seed)))

	threshold := mutcompact.Timestamp(b.threshold)
	oracle := func(context.Context, mutcompact.DecoratedKey) (mutcompact.Timestamp, error) {
		return threshold, nil
	}
	src := fragstream.NewSource(frags, mutcompact.Capabilities{})
	r, err := mutcompact.NewCompactingReader(src, 1000, oracle, mutcompact.ForwardingNone,
		&mutcompact.Options{Logger: logger{}})
	if err != nil {
		return err
	}
	defer r.Close()

	hist := hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 3)
	ctx := context.Background()
	start := time.Now()
	for {
		begin := time.Now()
		f, err := r.Next(ctx)
		if err != nil {
			return err
		}
		_ = hist.RecordValue(max(time.Since(begin).Nanoseconds(), minLatency.Nanoseconds()))
		if f == nil {
			break
		}
	}
	elapsed := time.Since(start)

	m := r.Metrics()
	fmt.Fprintf(stdout, "%d fragments in %s (%.0f fragments/sec)\n",
		m.FragmentsIn, elapsed, float64(m.FragmentsIn)/elapsed.Seconds())
	fmt.Fprintf(stdout, "next latency: p50 %s p95 %s p99 %s max %s\n",
		time.Duration(hist.ValueAtQuantile(50)),
		time.Duration(hist.ValueAtQuantile(95)),
		time.Duration(hist.ValueAtQuantile(99)),
		time.Duration(hist.Max()))
	fmt.Fprint(stdout, m.String())
	return nil
}
