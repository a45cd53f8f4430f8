// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package fragstream implements an in-memory mutation stream: a base.Source
// over a slice of fragments, with every forwarding capability available on
// request.
package fragstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact/internal/base"
)

// Source is an in-memory base.Source over a fixed list of fragments. Every
// fragment it returns is a fresh clone.
//
// The forwarding methods are implemented only if enabled in the source's
// capabilities. With PositionForwarding, the source follows the window
// protocol described on base.Source: partition-ends in the input are not
// produced, and range tombstones are re-opened and closed at window bounds.
// Window bounds cut by a range tombstone should not be row positions, since
// a range tombstone change cannot sit at one; the compacting reader moves
// such bounds with PositionRange.TombstoneBounds before forwarding.
type Source struct {
	caps base.Capabilities
	cmp  base.Compare

	// Plain mode.
	frags       []*base.Fragment
	pos         int
	inPartition bool

	// Window mode.
	parts   []partition
	pi      int
	atStart bool
	queue   []*base.Fragment

	rng    base.PartitionRange
	ranged bool

	closed bool
}

type partition struct {
	start     *base.Fragment
	static    *base.Fragment
	clustered []*base.Fragment
}

var _ base.Source = (*Source)(nil)

// NewSource returns a source producing frags.
func NewSource(frags []*base.Fragment, caps base.Capabilities) *Source {
	s := &Source{
		caps:    caps,
		cmp:     base.DefaultComparer.Compare,
		frags:   frags,
		atStart: true,
	}
	if caps.PositionForwarding {
		for _, f := range frags {
			switch {
			case f.Kind == base.KindPartitionStart:
				s.parts = append(s.parts, partition{start: f})
			case len(s.parts) == 0, f.Kind == base.KindPartitionEnd:
			case f.Kind == base.KindStaticRow:
				s.parts[len(s.parts)-1].static = f
			default:
				p := &s.parts[len(s.parts)-1]
				p.clustered = append(p.clustered, f)
			}
		}
	}
	return s
}

// Closed returns true once Close has been called.
func (s *Source) Closed() bool {
	return s.closed
}

func (s *Source) checkOpen(op string) error {
	if s.closed {
		return errors.Newf("fragstream: %s on closed source", op)
	}
	return nil
}

// Next implements base.Source.
func (s *Source) Next(ctx context.Context) (*base.Fragment, error) {
	if err := s.checkOpen("Next"); err != nil {
		return nil, err
	}
	if s.caps.PositionForwarding {
		return s.nextWindowed(), nil
	}
	for s.pos < len(s.frags) {
		f := s.frags[s.pos]
		if f.Kind == base.KindPartitionStart && s.ranged {
			if s.rng.AfterEnd(f.Key) {
				return nil, nil
			}
			if s.rng.BeforeStart(f.Key) {
				s.pos++
				s.skipToPartitionStart()
				continue
			}
		}
		s.pos++
		switch f.Kind {
		case base.KindPartitionStart:
			s.inPartition = true
		case base.KindPartitionEnd:
			s.inPartition = false
		}
		return f.Clone(), nil
	}
	return nil, nil
}

func (s *Source) nextWindowed() *base.Fragment {
	if s.atStart {
		for s.pi < len(s.parts) {
			p := s.parts[s.pi]
			if s.ranged && s.rng.AfterEnd(p.start.Key) {
				return nil
			}
			if s.ranged && s.rng.BeforeStart(p.start.Key) {
				s.pi++
				continue
			}
			s.atStart = false
			s.queue = s.queue[:0]
			if p.static != nil {
				s.queue = append(s.queue, p.static.Clone())
			}
			return p.start.Clone()
		}
		return nil
	}
	if len(s.queue) == 0 {
		return nil
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f
}

func (s *Source) skipToPartitionStart() {
	for s.pos < len(s.frags) && s.frags[s.pos].Kind != base.KindPartitionStart {
		s.pos++
	}
	s.inPartition = false
}

// NextPartition implements base.Source.
func (s *Source) NextPartition(ctx context.Context) error {
	if err := s.checkOpen("NextPartition"); err != nil {
		return err
	}
	if !s.caps.NextPartition {
		return base.UnsupportedErrorf("fragstream: next-partition not supported")
	}
	if s.caps.PositionForwarding {
		if !s.atStart {
			s.pi++
			s.atStart = true
			s.queue = s.queue[:0]
		}
		return nil
	}
	if s.inPartition {
		s.skipToPartitionStart()
	}
	return nil
}

// FastForwardToPartitions implements base.Source.
func (s *Source) FastForwardToPartitions(ctx context.Context, r base.PartitionRange) error {
	if err := s.checkOpen("FastForwardToPartitions"); err != nil {
		return err
	}
	if !s.caps.PartitionForwarding {
		return base.UnsupportedErrorf("fragstream: partition forwarding not supported")
	}
	s.rng = r
	s.ranged = true
	if s.caps.PositionForwarding {
		if !s.atStart {
			s.pi++
			s.atStart = true
			s.queue = s.queue[:0]
		}
		return nil
	}
	if s.inPartition {
		s.skipToPartitionStart()
	}
	return nil
}

// FastForwardToPositions implements base.Source.
func (s *Source) FastForwardToPositions(ctx context.Context, r base.PositionRange) error {
	if err := s.checkOpen("FastForwardToPositions"); err != nil {
		return err
	}
	if !s.caps.PositionForwarding {
		return base.UnsupportedErrorf("fragstream: position forwarding not supported")
	}
	if s.atStart || s.pi >= len(s.parts) {
		return base.MisuseErrorf("fragstream: fast-forward to %s outside a partition", r)
	}
	s.queue = s.window(s.parts[s.pi].clustered, r)
	return nil
}

// window returns the clustered fragments in r, with the range tombstone open
// at r.Start re-opened there and the one open at r.End closed there.
func (s *Source) window(clustered []*base.Fragment, r base.PositionRange) []*base.Fragment {
	var out []*base.Fragment
	open := base.NoTombstone
	reopened := false
	for _, f := range clustered {
		if base.ComparePositions(s.cmp, f.Position, r.Start) < 0 {
			if f.Kind == base.KindRangeTombstoneChange {
				open = f.Tombstone
			}
			continue
		}
		if !reopened {
			reopened = true
			atStart := f.Kind == base.KindRangeTombstoneChange &&
				base.ComparePositions(s.cmp, f.Position, r.Start) == 0
			if atStart {
				// The change at r.Start supersedes the open tombstone. A close
				// there has nothing to close within the window.
				open = base.NoTombstone
				if f.Tombstone.IsEmpty() {
					continue
				}
			} else if !open.IsEmpty() {
				out = append(out, base.RangeTombstoneChange(r.Start.Clone(), open))
			}
		}
		if base.ComparePositions(s.cmp, f.Position, r.End) >= 0 {
			break
		}
		out = append(out, f.Clone())
		if f.Kind == base.KindRangeTombstoneChange {
			open = f.Tombstone
		}
	}
	if !reopened && !open.IsEmpty() {
		out = append(out, base.RangeTombstoneChange(r.Start.Clone(), open))
	}
	if !open.IsEmpty() {
		out = append(out, base.RangeTombstoneChange(r.End.Clone(), base.NoTombstone))
	}
	return out
}

// Capabilities implements base.Source.
func (s *Source) Capabilities() base.Capabilities {
	return s.caps
}

// Close implements base.Source.
func (s *Source) Close() error {
	if s.closed {
		return errors.New("fragstream: source closed twice")
	}
	s.closed = true
	s.frags = nil
	s.parts = nil
	s.queue = nil
	return nil
}

// Drain reads src until the end of the stream or window.
func Drain(ctx context.Context, src base.Source) ([]*base.Fragment, error) {
	var out []*base.Fragment
	for {
		f, err := src.Next(ctx)
		if err != nil {
			return out, err
		}
		if f == nil {
			return out, nil
		}
		out = append(out, f)
	}
}

// Format prints fragments in fixture notation, one per line.
func Format(frags []*base.Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		fmt.Fprintf(&b, "%s\n", f)
	}
	return b.String()
}
