// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact"
	"github.com/cockroachdb/mutcompact/internal/fragstream"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// compactT implements the compact command.
type compactT struct {
	Root *cobra.Command

	t              *T
	oracleFile     string
	optionsFile    string
	compactionTime int64
	gcGrace        time.Duration
	concurrency    int
	stats          bool
	verbose        bool
}

type compactResult struct {
	out     []*mutcompact.Fragment
	metrics mutcompact.Metrics
}

func newCompact(t *T) *compactT {
	c := &compactT{t: t}
	c.Root = &cobra.Command{
		Use:   "compact <fixtures>",
		Short: "compact fixture streams",
		Long: `
Compact the streams in the given fixture files and print the result in
fixture notation. Files named *.sz are read as snappy-framed streams and
files named *.zst as zstd streams. Fixtures are compacted concurrently.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.run,
	}
	c.Root.Flags().StringVar(
		&c.oracleFile, "oracle", "", "purge threshold file (key=ts lines, * for the default)")
	c.Root.Flags().StringVar(
		&c.optionsFile, "options", "", "reader options file")
	c.Root.Flags().Int64Var(
		&c.compactionTime, "compaction-time", 0, "compaction time in seconds (0 means now)")
	c.Root.Flags().DurationVar(
		&c.gcGrace, "gc-grace", 0, "gc grace period (overrides the options file)")
	c.Root.Flags().IntVarP(
		&c.concurrency, "concurrency", "c", 4, "number of fixtures compacted concurrently")
	c.Root.Flags().BoolVar(
		&c.stats, "stats", false, "print reader metrics")
	c.Root.Flags().BoolVarP(
		&c.verbose, "verbose", "v", false, "log reader events")
	return c
}

func (c *compactT) options(cmd *cobra.Command) (*mutcompact.Options, error) {
	opts := &mutcompact.Options{}
	if c.optionsFile != "" {
		data, err := os.ReadFile(c.optionsFile)
		if err != nil {
			return nil, err
		}
		if err := opts.Parse(string(data), c.t.parseHooks()); err != nil {
			return nil, errors.Wrapf(err, "%s", c.optionsFile)
		}
	}
	if cmd.Flags().Changed("gc-grace") {
		opts.GCGracePeriod = c.gcGrace
	}
	opts.Logger = logger{}
	if c.verbose {
		l := mutcompact.MakeLoggingEventListener(opts.Logger)
		opts.EventListener = &l
	}
	return opts, opts.Validate()
}

func (c *compactT) run(cmd *cobra.Command, args []string) error {
	opts, err := c.options(cmd)
	if err != nil {
		return err
	}
	oracle := mutcompact.NeverPurge
	if c.oracleFile != "" {
		table, err := loadThresholds(c.oracleFile)
		if err != nil {
			return err
		}
		oracle = table.Oracle
	}
	compactionTime := mutcompact.GCTime(c.compactionTime)
	if compactionTime == 0 {
		compactionTime = mutcompact.GCTime(time.Now().Unix())
	}
	parser := opts.Partitioner
	if parser == nil {
		parser = mutcompact.OrderedPartitioner
	}

	results := make([]compactResult, len(args))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(c.concurrency, 1))
	for i, path := range args {
		g.Go(func() error {
			frags, err := readFixture(path, parser)
			if err != nil {
				return err
			}
			out, m, err := compactFragments(ctx, frags, compactionTime, oracle, opts)
			if err != nil {
				return errors.Wrapf(err, "%s", path)
			}
			results[i] = compactResult{out: out, metrics: m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, path := range args {
		if len(args) > 1 {
			fmt.Fprintf(stdout, "# %s\n", path)
		}
		fmt.Fprint(stdout, fragstream.Format(results[i].out))
	}
	if c.stats {
		c.printStats(args, results)
	}
	return nil
}

func (c *compactT) printStats(args []string, results []compactResult) {
	header := []string{"metric"}
	for _, path := range args {
		header = append(header, filepath.Base(path))
	}
	var total mutcompact.Metrics
	tables := make([][][2]string, len(results))
	for i := range results {
		total.Add(&results[i].metrics)
		tables[i] = results[i].metrics.Table()
	}
	if len(results) > 1 {
		header = append(header, "total")
		tables = append(tables, total.Table())
	}

	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader(header)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	for row := range tables[0] {
		line := []string{tables[0][row][0]}
		for _, t := range tables {
			line = append(line, t[row][1])
		}
		tbl.Append(line)
	}
	tbl.Render()
}

// compactFragments runs frags through a compacting reader.
func compactFragments(
	ctx context.Context,
	frags []*mutcompact.Fragment,
	compactionTime mutcompact.GCTime,
	oracle mutcompact.PurgeOracle,
	opts *mutcompact.Options,
) ([]*mutcompact.Fragment, mutcompact.Metrics, error) {
	src := fragstream.NewSource(frags, mutcompact.Capabilities{})
	r, err := mutcompact.NewCompactingReader(src, compactionTime, oracle, mutcompact.ForwardingNone, opts)
	if err != nil {
		_ = src.Close()
		return nil, mutcompact.Metrics{}, err
	}
	out, err := fragstream.Drain(ctx, r)
	err = errors.CombineErrors(err, r.Close())
	return out, r.Metrics(), err
}
