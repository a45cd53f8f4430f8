// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker for errors reporting a mutation stream that
// violates the stream invariants: fragments out of clustering or partition
// order, unbalanced range tombstone changes, nested partitions. Corruption is
// fatal for the stream that produced it.
var ErrCorruption = errors.New("mutcompact: corruption")

// ErrUnsupported is a marker for errors reporting that a source lacks a
// capability that was asked of it.
var ErrUnsupported = errors.New("mutcompact: unsupported capability")

// ErrMisuse is a marker for errors reporting a call made in a state that does
// not allow it. Misuse is a programming error on the caller's side.
var ErrMisuse = errors.New("mutcompact: misuse")

// ErrReentrant is returned when a call is made on a reader while another call
// on the same reader is outstanding. Errors marked with it are also marked
// ErrMisuse.
var ErrReentrant = errors.New("mutcompact: reentrant call")

// ErrClosed is returned by calls on a closed reader.
var ErrClosed = errors.New("mutcompact: closed")

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MisuseErrorf formats according to a format specifier and returns the string
// as an error value that is marked as a misuse error.
func MisuseErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMisuse)
}

// UnsupportedErrorf formats according to a format specifier and returns the
// string as an error value that is marked as an unsupported-capability error.
func UnsupportedErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}

// ReentrantError returns an error reporting that op overlapped another call.
func ReentrantError(op string) error {
	err := errors.Wrapf(ErrReentrant, "%s", errors.Safe(op))
	return errors.Mark(err, ErrMisuse)
}
