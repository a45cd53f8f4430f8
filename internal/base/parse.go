// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseFragment parses the fixture notation produced by Fragment.String:
//
//	partition-start <key> [tomb=<ts>/<dt>]
//	static-row <cell>...
//	row <ck> [tomb=<ts>/<dt>] <cell>...
//	rtc <pos> [tomb=<ts>/<dt>]
//	partition-end
//
// A cell is c=v@ts, c=v@ts~expiry/ttl or, for a dead cell, c@ts/dt. A range
// tombstone change position is <ck (before ck) or >ck (after ck).
func ParseFragment(p *Partitioner, s string) (*Fragment, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.Errorf("empty fragment")
	}
	args := fields[1:]
	switch fields[0] {
	case "partition-start":
		if len(args) < 1 || len(args) > 2 {
			return nil, errors.Errorf("partition-start: expected <key> [tomb=ts/dt]: %q", s)
		}
		tomb, rest, err := parseOptionalTombstone(args[1:])
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			return nil, errors.Errorf("partition-start: unexpected %q", rest)
		}
		return PartitionStart(p.Decorate([]byte(args[0])), tomb), nil

	case "static-row":
		cells, err := parseCells(args)
		if err != nil {
			return nil, err
		}
		return StaticRow(cells...), nil

	case "row":
		if len(args) < 1 {
			return nil, errors.Errorf("row: missing clustering key: %q", s)
		}
		tomb, rest, err := parseOptionalTombstone(args[1:])
		if err != nil {
			return nil, err
		}
		cells, err := parseCells(rest)
		if err != nil {
			return nil, err
		}
		return ClusteredRow([]byte(args[0]), tomb, cells...), nil

	case "rtc":
		if len(args) < 1 {
			return nil, errors.Errorf("rtc: missing position: %q", s)
		}
		pos, err := ParsePosition(args[0])
		if err != nil {
			return nil, err
		}
		tomb, rest, err := parseOptionalTombstone(args[1:])
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			return nil, errors.Errorf("rtc: unexpected %q", rest)
		}
		return RangeTombstoneChange(pos, tomb), nil

	case "partition-end":
		if len(args) > 0 {
			return nil, errors.Errorf("partition-end: unexpected %q", args)
		}
		return PartitionEnd(), nil
	}
	return nil, errors.Errorf("unknown fragment kind %q", fields[0])
}

// ParseFragments parses one fragment per non-blank line. Lines starting with
// '#' are comments.
func ParseFragments(p *Partitioner, input string) ([]*Fragment, error) {
	var frags []*Fragment
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, err := ParseFragment(p, line)
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	return frags, nil
}

// ParseTombstone parses a tombstone written as <ts>/<dt>, or "none".
func ParseTombstone(s string) (Tombstone, error) {
	if s == "none" {
		return NoTombstone, nil
	}
	tsStr, dtStr, ok := strings.Cut(s, "/")
	if !ok {
		return NoTombstone, errors.Errorf("tombstone %q: expected <ts>/<dt>", s)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return NoTombstone, errors.Wrapf(err, "tombstone %q", s)
	}
	dt, err := strconv.ParseInt(dtStr, 10, 64)
	if err != nil {
		return NoTombstone, errors.Wrapf(err, "tombstone %q", s)
	}
	return MakeTombstone(Timestamp(ts), GCTime(dt)), nil
}

func parseOptionalTombstone(args []string) (Tombstone, []string, error) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "tomb=") {
		return NoTombstone, args, nil
	}
	t, err := ParseTombstone(strings.TrimPrefix(args[0], "tomb="))
	return t, args[1:], err
}

// ParseCell parses a single cell.
func ParseCell(s string) (Cell, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return Cell{}, errors.Errorf("cell %q: missing @timestamp", s)
	}
	head, tail := s[:at], s[at+1:]
	var c Cell
	if col, val, ok := strings.Cut(head, "="); ok {
		c.Column = col
		c.Value = []byte(val)
		tsStr, expStr, expiring := strings.Cut(tail, "~")
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return Cell{}, errors.Wrapf(err, "cell %q", s)
		}
		c.Timestamp = Timestamp(ts)
		if expiring {
			expiry, ttl, ok := strings.Cut(expStr, "/")
			if !ok {
				return Cell{}, errors.Errorf("cell %q: expected ~<expiry>/<ttl>", s)
			}
			e, err := strconv.ParseInt(expiry, 10, 64)
			if err != nil {
				return Cell{}, errors.Wrapf(err, "cell %q", s)
			}
			t, err := strconv.ParseInt(ttl, 10, 32)
			if err != nil {
				return Cell{}, errors.Wrapf(err, "cell %q", s)
			}
			if e == 0 {
				return Cell{}, errors.Errorf("cell %q: expiry must be non-zero", s)
			}
			c.Expiry, c.TTL = GCTime(e), int32(t)
		}
		return c, nil
	}
	c.Column = head
	c.Dead = true
	tsStr, dtStr, ok := strings.Cut(tail, "/")
	if !ok {
		return Cell{}, errors.Errorf("dead cell %q: expected <col>@<ts>/<dt>", s)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Cell{}, errors.Wrapf(err, "cell %q", s)
	}
	dt, err := strconv.ParseInt(dtStr, 10, 64)
	if err != nil {
		return Cell{}, errors.Wrapf(err, "cell %q", s)
	}
	c.Timestamp, c.DeletionTime = Timestamp(ts), GCTime(dt)
	return c, nil
}

func parseCells(args []string) ([]Cell, error) {
	var cells []Cell
	for _, a := range args {
		c, err := ParseCell(a)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].Column < cells[j].Column
	})
	for i := 1; i < len(cells); i++ {
		if cells[i].Column == cells[i-1].Column {
			return nil, errors.Errorf("duplicate column %q", cells[i].Column)
		}
	}
	return cells, nil
}

// ParsePosition parses a position: <ck, >ck, ck, or * (only meaningful as a
// range bound, see ParsePositionRange).
func ParsePosition(s string) (Position, error) {
	switch {
	case s == "":
		return Position{}, errors.Errorf("empty position")
	case s == "*":
		return MinPosition, nil
	case s[0] == '<':
		return BeforeKey([]byte(s[1:])), nil
	case s[0] == '>':
		return AfterKey([]byte(s[1:])), nil
	}
	return AtKey([]byte(s)), nil
}

// ParsePositionRange parses a window written as <start>-<end>, where a bound
// of * leaves that side open, e.g. "<b->d" or "*-<c".
func ParsePositionRange(s string) (PositionRange, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return PositionRange{}, errors.Errorf("position range %q: expected <start>-<end>", s)
	}
	start, err := ParsePosition(startStr)
	if err != nil {
		return PositionRange{}, err
	}
	end, err := ParsePosition(endStr)
	if err != nil {
		return PositionRange{}, err
	}
	if endStr == "*" {
		end = MaxPosition
	}
	return PositionRange{Start: start, End: end}, nil
}

// ParsePartitionRange parses a range of partition keys in interval notation,
// e.g. "[a,c)", "(b,*]" or "[*,*]".
func ParsePartitionRange(p *Partitioner, s string) (PartitionRange, error) {
	if len(s) < 3 {
		return PartitionRange{}, errors.Errorf("partition range %q: too short", s)
	}
	var r PartitionRange
	switch s[0] {
	case '[':
		r.Start.Inclusive = true
	case '(':
	default:
		return PartitionRange{}, errors.Errorf("partition range %q: expected [ or (", s)
	}
	switch s[len(s)-1] {
	case ']':
		r.End.Inclusive = true
	case ')':
	default:
		return PartitionRange{}, errors.Errorf("partition range %q: expected ] or )", s)
	}
	startStr, endStr, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return PartitionRange{}, errors.Errorf("partition range %q: expected <start>,<end>", s)
	}
	if startStr != "*" {
		k := p.Decorate([]byte(startStr))
		r.Start.Key = &k
	}
	if endStr != "*" {
		k := p.Decorate([]byte(endStr))
		r.End.Key = &k
	}
	return r, nil
}
