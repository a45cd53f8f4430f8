// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact/internal/base"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the optional parameters for a compacting reader. A nil
// *Options is valid and means all defaults.
type Options struct {
	// Comparer defines the clustering order of the input stream. The default
	// is DefaultComparer.
	Comparer *Comparer

	// Partitioner, if set, is used to verify that the token of every
	// partition-start matches its key. A mismatch is reported as corruption.
	Partitioner *Partitioner

	// GCGracePeriod delays the purging of deletions: a deletion may only be
	// purged once its deletion time is older than the compaction time minus
	// GCGracePeriod. Whole seconds are used.
	GCGracePeriod time.Duration

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// EventListener provides hooks to listening to significant reader events.
	EventListener *EventListener

	// OracleLatency, if set, observes the duration of every purge oracle
	// call, in nanoseconds.
	OracleLatency prometheus.Histogram
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	o.Comparer = o.Comparer.EnsureDefaults()
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	return o
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		if o.EventListener != nil {
			l := *o.EventListener
			n.EventListener = &l
		}
	}
	return n
}

// Validate verifies that the options are mutually consistent.
func (o *Options) Validate() error {
	var buf strings.Builder
	if o.GCGracePeriod < 0 {
		fmt.Fprintf(&buf, "GCGracePeriod (%s) must be >= 0\n", o.GCGracePeriod)
	}
	if o.Comparer != nil && o.Comparer.Compare == nil {
		fmt.Fprintf(&buf, "Comparer %q has no Compare function\n", o.Comparer.Name)
	}
	if o.Partitioner != nil && o.Partitioner.Token == nil {
		fmt.Fprintf(&buf, "Partitioner %q has no Token function\n", o.Partitioner.Name)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// gcBefore returns the gc time before which deletions may be purged.
func (o *Options) gcBefore(compactionTime GCTime) GCTime {
	return compactionTime - GCTime(o.GCGracePeriod/time.Second)
}

func (o *Options) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[Version]\n")
	fmt.Fprintf(&buf, "  mutcompact_version=0.1\n")
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Options]\n")
	comparer := base.DefaultComparer
	if o.Comparer != nil {
		comparer = o.Comparer
	}
	fmt.Fprintf(&buf, "  comparer=%s\n", comparer.Name)
	fmt.Fprintf(&buf, "  gc_grace_period=%s\n", o.GCGracePeriod)
	if o.Partitioner != nil {
		fmt.Fprintf(&buf, "  partitioner=%s\n", o.Partitioner.Name)
	}
	return buf.String()
}

// ParseHooks contains callbacks to create options fields which can have
// user-defined implementations.
type ParseHooks struct {
	NewComparer    func(name string) (*Comparer, error)
	NewPartitioner func(name string) (*Partitioner, error)
	SkipUnknown    func(name, value string) bool
}

// Parse parses the options from the specified string. Note that certain
// options cannot be parsed into populated fields. For example, the Logger and
// EventListener are not round-tripped.
func (o *Options) Parse(s string, hooks *ParseHooks) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			// Skip blank lines and comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			continue
		}
		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return errors.Newf("mutcompact: invalid key=value syntax: %q", errors.Safe(line))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])

		var err error
		switch {
		case section == "Version":
			switch key {
			case "mutcompact_version":
			default:
				err = o.unknownOption(hooks, section, key, value)
			}

		case section == "Options":
			switch key {
			case "comparer":
				o.Comparer, err = parseComparer(value, hooks)
			case "gc_grace_period":
				o.GCGracePeriod, err = time.ParseDuration(value)
			case "partitioner":
				o.Partitioner, err = parsePartitioner(value, hooks)
			default:
				err = o.unknownOption(hooks, section, key, value)
			}

		default:
			if hooks == nil || hooks.SkipUnknown == nil || !hooks.SkipUnknown(section+"."+key, value) {
				err = errors.Errorf("mutcompact: unknown section: %q", errors.Safe(section))
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) unknownOption(hooks *ParseHooks, section, key, value string) error {
	if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
		return nil
	}
	return errors.Errorf("mutcompact: unknown option: %s.%s",
		errors.Safe(section), errors.Safe(key))
}

func parseComparer(name string, hooks *ParseHooks) (*Comparer, error) {
	switch name {
	case base.DefaultComparer.Name:
		return base.DefaultComparer, nil
	case base.ReverseComparer.Name:
		return base.ReverseComparer, nil
	}
	if hooks != nil && hooks.NewComparer != nil {
		return hooks.NewComparer(name)
	}
	return nil, errors.Errorf("mutcompact: unknown comparer %q", errors.Safe(name))
}

func parsePartitioner(name string, hooks *ParseHooks) (*Partitioner, error) {
	switch name {
	case base.HashPartitioner.Name:
		return base.HashPartitioner, nil
	case base.OrderedPartitioner.Name:
		return base.OrderedPartitioner, nil
	}
	if hooks != nil && hooks.NewPartitioner != nil {
		return hooks.NewPartitioner(name)
	}
	return nil, errors.Errorf("mutcompact: unknown partitioner %q", errors.Safe(name))
}
