// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package testutils

import (
	"testing"

	"github.com/cockroachdb/mutcompact/internal/base"
)

// Logger is a base.Logger that writes to a testing.TB, so that reader logs
// show up next to the output of the test that produced them.
type Logger struct {
	T testing.TB
}

var _ base.Logger = Logger{}

// Infof implements base.Logger.
func (l Logger) Infof(format string, args ...interface{}) {
	l.T.Helper()
	l.T.Logf(format, args...)
}

// Errorf implements base.Logger. Errors are logged, not reported as test
// failures: tests provoking errors on purpose check for them directly.
func (l Logger) Errorf(format string, args ...interface{}) {
	l.T.Helper()
	l.T.Logf("error: "+format, args...)
}

// Fatalf implements base.Logger.
func (l Logger) Fatalf(format string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatalf(format, args...)
}
