// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the mutcompact command line tools.
package tool

import (
	"github.com/cockroachdb/mutcompact"
	"github.com/spf13/cobra"
)

// T is the container for all of the mutcompact tools.
type T struct {
	Commands []*cobra.Command

	compact *compactT
	bench   *benchT

	comparers    map[string]*mutcompact.Comparer
	partitioners map[string]*mutcompact.Partitioner
}

// New creates a new set of tools.
func New() *T {
	t := &T{
		comparers:    make(map[string]*mutcompact.Comparer),
		partitioners: make(map[string]*mutcompact.Partitioner),
	}
	t.RegisterComparer(mutcompact.DefaultComparer)
	t.RegisterComparer(mutcompact.ReverseComparer)
	t.RegisterPartitioner(mutcompact.HashPartitioner)
	t.RegisterPartitioner(mutcompact.OrderedPartitioner)

	t.compact = newCompact(t)
	t.bench = newBench()
	t.Commands = []*cobra.Command{
		t.compact.Root,
		t.bench.Root,
	}
	return t
}

// RegisterComparer registers a comparer that options files may name.
func (t *T) RegisterComparer(c *mutcompact.Comparer) {
	t.comparers[c.Name] = c
}

// RegisterPartitioner registers a partitioner that options files may name.
func (t *T) RegisterPartitioner(p *mutcompact.Partitioner) {
	t.partitioners[p.Name] = p
}

func (t *T) parseHooks() *mutcompact.ParseHooks {
	return &mutcompact.ParseHooks{
		NewComparer: func(name string) (*mutcompact.Comparer, error) {
			if c, ok := t.comparers[name]; ok {
				return c, nil
			}
			return nil, errorf("unknown comparer %q", name)
		},
		NewPartitioner: func(name string) (*mutcompact.Partitioner, error) {
			if p, ok := t.partitioners[name]; ok {
				return p, nil
			}
			return nil, errorf("unknown partitioner %q", name)
		},
	}
}
