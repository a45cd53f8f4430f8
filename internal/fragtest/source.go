// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package fragtest wraps in-memory fragment sources with the instrumentation
// tests need: a log of the calls made, error injection and hooks.
package fragtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/cockroachdb/mutcompact/internal/fragstream"
)

// Source is a fragstream.Source that records the calls made on it and can be
// made to fail them.
type Source struct {
	stream *fragstream.Source

	calls int
	errAt int
	err   error

	// Hook, if set, runs at the start of every method call except
	// Capabilities and Close. An error it returns fails the call.
	Hook func(ctx context.Context, op string) error
	// Log records the calls made on the source.
	Log []string
}

var _ base.Source = (*Source)(nil)

// NewSource returns a source producing frags.
func NewSource(frags []*base.Fragment, caps base.Capabilities) *Source {
	return &Source{stream: fragstream.NewSource(frags, caps)}
}

// Parse returns a source producing the fragments in input, which uses the
// fixture notation of base.ParseFragments.
func Parse(p *base.Partitioner, input string, caps base.Capabilities) (*Source, error) {
	frags, err := base.ParseFragments(p, input)
	if err != nil {
		return nil, err
	}
	return NewSource(frags, caps), nil
}

// InjectError makes the n-th call (counting from 1, and ignoring Capabilities
// and Close) fail with err.
func (s *Source) InjectError(n int, err error) {
	s.errAt = n
	s.err = err
}

// Closed returns true once Close has been called.
func (s *Source) Closed() bool {
	return s.stream.Closed()
}

func (s *Source) enter(ctx context.Context, op string) error {
	s.Log = append(s.Log, op)
	if s.stream.Closed() {
		return errors.Newf("fragtest: %s on closed source", op)
	}
	s.calls++
	if s.errAt == s.calls {
		return s.err
	}
	if s.Hook != nil {
		return s.Hook(ctx, op)
	}
	return nil
}

// Next implements base.Source.
func (s *Source) Next(ctx context.Context) (*base.Fragment, error) {
	if err := s.enter(ctx, "Next"); err != nil {
		return nil, err
	}
	return s.stream.Next(ctx)
}

// NextPartition implements base.Source.
func (s *Source) NextPartition(ctx context.Context) error {
	if err := s.enter(ctx, "NextPartition"); err != nil {
		return err
	}
	return s.stream.NextPartition(ctx)
}

// FastForwardToPartitions implements base.Source.
func (s *Source) FastForwardToPartitions(ctx context.Context, r base.PartitionRange) error {
	if err := s.enter(ctx, fmt.Sprintf("FastForwardToPartitions(%s)", r)); err != nil {
		return err
	}
	return s.stream.FastForwardToPartitions(ctx, r)
}

// FastForwardToPositions implements base.Source.
func (s *Source) FastForwardToPositions(ctx context.Context, r base.PositionRange) error {
	if err := s.enter(ctx, fmt.Sprintf("FastForwardToPositions(%s)", r)); err != nil {
		return err
	}
	return s.stream.FastForwardToPositions(ctx, r)
}

// Capabilities implements base.Source.
func (s *Source) Capabilities() base.Capabilities {
	return s.stream.Capabilities()
}

// Close implements base.Source.
func (s *Source) Close() error {
	s.Log = append(s.Log, "Close")
	return s.stream.Close()
}

// ParseCapabilities parses a comma-separated list of capability names:
// next-partition, partition-forwarding, position-forwarding, all or none.
func ParseCapabilities(s string) (base.Capabilities, error) {
	var caps base.Capabilities
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "", "none":
		case "next-partition":
			caps.NextPartition = true
		case "partition-forwarding":
			caps.PartitionForwarding = true
		case "position-forwarding":
			caps.PositionForwarding = true
		case "all":
			caps = base.Capabilities{NextPartition: true, PartitionForwarding: true, PositionForwarding: true}
		default:
			return caps, errors.Newf("unknown capability %q", name)
		}
	}
	return caps, nil
}
