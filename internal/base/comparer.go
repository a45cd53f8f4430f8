// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b. Compare orders clustering keys within a partition.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent.
//
// For a given Compare, Equal(a,b)=true iff Compare(a,b)=0; that is, Equal is a
// (potentially faster) specialization of Compare.
type Equal func(a, b []byte) bool

// FormatKey returns a formatter for the key.
type FormatKey func(key []byte) fmt.Formatter

// DefaultFormatter is the default implementation of key formatting: printable
// ASCII keys are written as-is, anything else as escaped hexadecimal.
var DefaultFormatter FormatKey = func(key []byte) fmt.Formatter {
	return FormatBytes(key)
}

// FormatBytes formats a byte slice using hexadecimal escapes for non-ASCII
// data.
type FormatBytes []byte

const lowerhex = "0123456789abcdef"

// Format implements the fmt.Formatter interface.
func (p FormatBytes) Format(s fmt.State, c rune) {
	buf := make([]byte, 0, len(p))
	for _, b := range p {
		if b < utf8.RuneSelf && b > ' ' && b != '\\' {
			buf = append(buf, b)
			continue
		}
		buf = append(buf, `\x`...)
		buf = append(buf, lowerhex[b>>4])
		buf = append(buf, lowerhex[b&0xF])
	}
	s.Write(buf)
}

// Comparer defines the total order over clustering keys. A stream is ordered
// ascending by Compare within each partition; a descending stream is declared
// by supplying a comparer whose Compare is reversed.
type Comparer struct {
	Compare Compare
	Equal   Equal

	// FormatKey defaults to the DefaultFormatter if it is not specified.
	FormatKey FormatKey

	// Name is the name of the comparer. Options round-trip comparers by name.
	Name string
}

// EnsureDefaults ensures that all non-optional fields are set.
//
// If c is nil, returns DefaultComparer.
//
// If any fields need to be set, returns a modified copy of c.
func (c *Comparer) EnsureDefaults() *Comparer {
	if c == nil {
		return DefaultComparer
	}
	if c.Compare == nil {
		panic("mutcompact: Comparer.Compare must be set")
	}
	if c.Equal != nil && c.FormatKey != nil {
		return c
	}
	n := &Comparer{}
	*n = *c
	if n.Equal == nil {
		cmp := n.Compare
		n.Equal = func(a, b []byte) bool {
			return cmp(a, b) == 0
		}
	}
	if n.FormatKey == nil {
		n.FormatKey = DefaultFormatter
	}
	return n
}

// DefaultComparer is the default implementation of the Comparer interface.
// It uses the natural ordering, consistent with bytes.Compare.
var DefaultComparer = &Comparer{
	Compare:   bytes.Compare,
	Equal:     bytes.Equal,
	FormatKey: DefaultFormatter,
	Name:      "mutcompact.BytewiseComparator",
}

// ReverseComparer orders clustering keys descending, for tables declared with
// a descending clustering order.
var ReverseComparer = &Comparer{
	Compare: func(a, b []byte) int {
		return bytes.Compare(b, a)
	},
	Equal:     bytes.Equal,
	FormatKey: DefaultFormatter,
	Name:      "mutcompact.ReverseBytewiseComparator",
}

// Partitioner assigns the token that places a partition key in the ring.
// Partitions are streamed in (token, key) order.
type Partitioner struct {
	Token func(key []byte) uint64
	Name  string
}

// Decorate returns the decorated form of key.
func (p *Partitioner) Decorate(key []byte) DecoratedKey {
	return DecoratedKey{Token: p.Token(key), Key: key}
}

// HashPartitioner spreads partitions over the ring with xxhash64. It is the
// default partitioner.
var HashPartitioner = &Partitioner{
	Token: xxhash.Sum64,
	Name:  "mutcompact.HashPartitioner",
}

// OrderedPartitioner derives the token from the first eight bytes of the key,
// big endian, so that the ring order agrees with bytewise key order.
var OrderedPartitioner = &Partitioner{
	Token: func(key []byte) uint64 {
		if len(key) >= 8 {
			return binary.BigEndian.Uint64(key)
		}
		var v uint64
		for _, b := range key {
			v <<= 8
			v |= uint64(b)
		}
		return v << uint(8*(8-len(key)))
	},
	Name: "mutcompact.OrderedPartitioner",
}
