// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/mutcompact"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestCompactCompressedFixtures(t *testing.T) {
	data, err := os.ReadFile("testdata/fixtures/basic.frag")
	require.NoError(t, err)
	dir := t.TempDir()

	sz := filepath.Join(dir, "basic.frag.sz")
	f, err := os.Create(sz)
	require.NoError(t, err)
	w := snappy.NewBufferedWriter(f)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	zst := filepath.Join(dir, "basic.frag.zst")
	f, err = os.Create(zst)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write(data)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	args := []string{"compact", "--compaction-time=100", "--oracle=testdata/fixtures/oracle"}
	expected := runTool(append(args, "testdata/fixtures/basic.frag")...)
	require.Equal(t, "partition-start a\nrow r1 c=w@5\npartition-end\n", expected)
	require.Equal(t, expected, runTool(append(args, sz)...))
	require.Equal(t, expected, runTool(append(args, zst)...))
}

func TestCompactStats(t *testing.T) {
	out := runTool("compact", "--compaction-time=100", "--oracle=testdata/fixtures/oracle", "--stats",
		"testdata/fixtures/basic.frag", "testdata/fixtures/ranges.frag")
	lines := strings.Split(out, "\n")
	var header, partitions string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "metric"):
			header = l
		case strings.Contains(l, "partitions-elided"):
			partitions = l
		}
	}
	require.Contains(t, header, "basic.frag")
	require.Contains(t, header, "ranges.frag")
	require.Contains(t, header, "total")
	require.Equal(t, []string{"partitions-elided", "2", "0", "2"}, strings.Fields(strings.ReplaceAll(partitions, "|", " ")))
}

func TestCompactVerbose(t *testing.T) {
	out := runTool("compact", "--compaction-time=100", "--oracle=testdata/fixtures/oracle", "-v",
		"testdata/fixtures/basic.frag")
	require.Contains(t, out, "partition b elided")
	require.Contains(t, out, "partition c elided")
	require.True(t, strings.HasSuffix(out, "partition-start a\nrow r1 c=w@5\npartition-end\n"), out)
}

func TestThresholdTable(t *testing.T) {
	table, err := parseThresholds(strings.NewReader(`
# comment
a=3
b = max

*=7
`))
	require.NoError(t, err)
	for key, expected := range map[string]mutcompact.Timestamp{
		"a": 3,
		"b": mutcompact.TimestampMax,
		"c": 7,
	} {
		ts, err := table.Oracle(context.Background(), mutcompact.OrderedPartitioner.Decorate([]byte(key)))
		require.NoError(t, err)
		require.Equal(t, expected, ts, key)
	}

	table, err = parseThresholds(strings.NewReader("a=1\n"))
	require.NoError(t, err)
	ts, err := table.Oracle(context.Background(), mutcompact.OrderedPartitioner.Decorate([]byte("z")))
	require.NoError(t, err)
	require.Equal(t, mutcompact.TimestampMissing, ts)

	_, err = parseThresholds(strings.NewReader("a\n"))
	require.ErrorContains(t, err, `line 1: expected key=ts: "a"`)
	_, err = parseThresholds(strings.NewReader("\na=x\n"))
	require.ErrorContains(t, err, "line 2")
}

func TestBench(t *testing.T) {
	out := runTool("bench", "--partitions=20", "--rows=10", "--seed=1")
	require.Contains(t, out, "seed: 1\n")
	require.Contains(t, out, "next latency: p50")
	require.Contains(t, out, "partitions: 20 (")
}
