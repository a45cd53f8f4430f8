// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact"
	"github.com/cockroachdb/swiss"
)

// thresholdTable is a purge oracle backed by a table of per-partition purge
// thresholds. Partitions missing from the table get the default threshold,
// which allows nothing to be purged unless set.
//
// The table is read-only once loaded and may be shared by concurrent readers.
type thresholdTable struct {
	m   swiss.Map[string, mutcompact.Timestamp]
	def mutcompact.Timestamp
}

func newThresholdTable() *thresholdTable {
	t := &thresholdTable{def: mutcompact.TimestampMissing}
	t.m.Init(16)
	return t
}

// loadThresholds reads a threshold file. Each line is key=ts; the key *
// sets the default. A ts of max allows everything to be purged. Blank lines
// and lines starting with '#' are skipped.
func loadThresholds(path string) (*thresholdTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := parseThresholds(f)
	return t, errors.Wrapf(err, "%s", path)
}

func parseThresholds(r io.Reader) (*thresholdTable, error) {
	t := newThresholdTable()
	s := bufio.NewScanner(r)
	for lineNum := 1; s.Scan(); lineNum++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("line %d: expected key=ts: %q", lineNum, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		var ts mutcompact.Timestamp
		if value == "max" {
			ts = mutcompact.TimestampMax
		} else {
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNum)
			}
			ts = mutcompact.Timestamp(v)
		}
		if key == "*" {
			t.def = ts
			continue
		}
		t.m.Put(key, ts)
	}
	return t, s.Err()
}

// Oracle implements mutcompact.PurgeOracle.
func (t *thresholdTable) Oracle(_ context.Context, key mutcompact.DecoratedKey) (mutcompact.Timestamp, error) {
	if ts, ok := t.m.Get(string(key.Key)); ok {
		return ts, nil
	}
	return t.def, nil
}
