// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mutcompact

import (
	"time"

	"github.com/cockroachdb/redact"
)

// PartitionElidedInfo contains the info for a partition elided from the
// output because nothing in it survived compaction.
type PartitionElidedInfo struct {
	Key DecoratedKey
	// FragmentsIn is the number of input fragments the partition had.
	FragmentsIn int
	// PurgeThreshold is the threshold the oracle returned for the partition.
	PurgeThreshold Timestamp
}

func (i PartitionElidedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i PartitionElidedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("partition %s elided: %d fragments purged (purge threshold %s)",
		i.Key, redact.Safe(i.FragmentsIn), i.PurgeThreshold)
}

// CorruptionInfo contains the info for a detected stream corruption.
type CorruptionInfo struct {
	// Key is the partition being compacted when the corruption was found, if
	// any.
	Key DecoratedKey
	Err error
}

func (i CorruptionInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CorruptionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Key.Key != nil {
		w.Printf("corruption in partition %s: %v", i.Key, i.Err)
		return
	}
	w.Printf("corruption: %v", i.Err)
}

// OracleFailedInfo contains the info for a failed purge oracle call.
type OracleFailedInfo struct {
	Key      DecoratedKey
	Duration time.Duration
	Err      error
}

func (i OracleFailedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i OracleFailedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("purge oracle for partition %s failed after %s: %v",
		i.Key, redact.Safe(i.Duration.String()), i.Err)
}

// EventListener contains a set of functions that will be invoked when various
// significant reader events occur. Note that the functions should not run for
// an excessive amount of time as they are invoked synchronously by the reader
// and may block the consumer.
type EventListener struct {
	// PartitionElided is invoked after a partition is dropped entirely.
	PartitionElided func(PartitionElidedInfo)

	// CorruptionDetected is invoked when the input stream violates the stream
	// invariants. The reader fails right after.
	CorruptionDetected func(CorruptionInfo)

	// OracleFailed is invoked when the purge oracle returns an error.
	OracleFailed func(OracleFailedInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.CorruptionDetected == nil {
		if logger != nil {
			l.CorruptionDetected = func(info CorruptionInfo) {
				logger.Errorf("%s", info)
			}
		} else {
			l.CorruptionDetected = func(info CorruptionInfo) {}
		}
	}
	if l.OracleFailed == nil {
		if logger != nil {
			l.OracleFailed = func(info OracleFailedInfo) {
				logger.Errorf("%s", info)
			}
		} else {
			l.OracleFailed = func(info OracleFailedInfo) {}
		}
	}
	if l.PartitionElided == nil {
		l.PartitionElided = func(info PartitionElidedInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to the
// specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger
	}

	return EventListener{
		PartitionElided: func(info PartitionElidedInfo) {
			logger.Infof("%s", info)
		},
		CorruptionDetected: func(info CorruptionInfo) {
			logger.Errorf("%s", info)
		},
		OracleFailed: func(info OracleFailedInfo) {
			logger.Errorf("%s", info)
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		PartitionElided: func(info PartitionElidedInfo) {
			a.PartitionElided(info)
			b.PartitionElided(info)
		},
		CorruptionDetected: func(info CorruptionInfo) {
			a.CorruptionDetected(info)
			b.CorruptionDetected(info)
		},
		OracleFailed: func(info OracleFailedInfo) {
			a.OracleFailed(info)
			b.OracleFailed(info)
		},
	}
}
