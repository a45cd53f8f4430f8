// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants holds checks that only run in builds with the
// "invariants" or "race" build tags.
package invariants

import "fmt"

// CheckOrder panics in invariant builds if c reports that an output fragment
// sorts before its predecessor.
func CheckOrder(c int, format string, args ...interface{}) {
	if Enabled && c > 0 {
		panic(fmt.Sprintf("mutcompact: output out of order: "+format, args...))
	}
}
