// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComparePositions(t *testing.T) {
	// Positions in ascending order.
	ordered := []Position{
		MinPosition,
		BeforeKey([]byte("a")),
		AtKey([]byte("a")),
		AfterKey([]byte("a")),
		BeforeKey([]byte("ab")),
		AtKey([]byte("b")),
		AfterKey([]byte("b")),
		MaxPosition,
	}
	cmp := DefaultComparer.Compare
	for i := range ordered {
		for j := range ordered {
			require.Equal(t, cmpInt(i, j), ComparePositions(cmp, ordered[i], ordered[j]),
				"%s vs %s", ordered[i], ordered[j])
		}
	}

	// A reversed comparer flips the key order, but not the weights.
	rcmp := ReverseComparer.Compare
	require.Equal(t, -1, ComparePositions(rcmp, AtKey([]byte("b")), AtKey([]byte("a"))))
	require.Equal(t, -1, ComparePositions(rcmp, BeforeKey([]byte("b")), AtKey([]byte("b"))))
	require.Equal(t, -1, ComparePositions(rcmp, AfterKey([]byte("a")), MaxPosition))
}

func TestPositionRange(t *testing.T) {
	cmp := DefaultComparer.Compare
	r, err := ParsePositionRange("<b->d")
	require.NoError(t, err)
	require.Equal(t, "<b->d", r.String())
	require.False(t, r.Contains(cmp, AtKey([]byte("a"))))
	require.False(t, r.Contains(cmp, AfterKey([]byte("a"))))
	require.True(t, r.Contains(cmp, BeforeKey([]byte("b"))))
	require.True(t, r.Contains(cmp, AtKey([]byte("d"))))
	require.False(t, r.Contains(cmp, AfterKey([]byte("d"))))
	require.False(t, r.Empty(cmp))

	all, err := ParsePositionRange("*-*")
	require.NoError(t, err)
	require.Equal(t, AllPositions, all)
	require.True(t, all.Contains(cmp, AtKey(nil)))
	require.True(t, PositionRange{Start: MinPosition, End: MinPosition}.Empty(cmp))
}

func TestPositionRangeTombstoneBounds(t *testing.T) {
	cmp := DefaultComparer.Compare
	for _, tc := range []struct{ in, out string }{
		{"b-d", "<b-<d"},
		{"b->d", "<b->d"},
		{"<b-d", "<b-<d"},
		{">b-*", ">b-*"},
		{"*-*", "*-*"},
	} {
		in, err := ParsePositionRange(tc.in)
		require.NoError(t, err)
		out := in.TombstoneBounds()
		require.Equal(t, tc.out, out.String())
		// The same rows fall inside the window.
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			pos := AtKey([]byte(k))
			require.Equal(t, in.Contains(cmp, pos), out.Contains(cmp, pos), "%s in %s", k, tc.in)
		}
	}
}

func TestPartitionRange(t *testing.T) {
	p := OrderedPartitioner
	key := func(s string) DecoratedKey { return p.Decorate([]byte(s)) }
	testCases := []struct {
		rng      string
		contains []string
		before   []string
		after    []string
	}{
		{"[b,d)", []string{"b", "c"}, []string{"a"}, []string{"d", "e"}},
		{"(b,d]", []string{"c", "d"}, []string{"a", "b"}, []string{"e"}},
		{"[*,c]", []string{"a", "c"}, nil, []string{"d"}},
		{"(c,*)", []string{"d", "z"}, []string{"c"}, nil},
		{"[*,*]", []string{"a", "z"}, nil, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.rng, func(t *testing.T) {
			r, err := ParsePartitionRange(p, tc.rng)
			require.NoError(t, err)
			require.Equal(t, tc.rng, r.String())
			for _, k := range tc.contains {
				require.True(t, r.Contains(key(k)), k)
			}
			for _, k := range tc.before {
				require.True(t, r.BeforeStart(key(k)), k)
				require.False(t, r.Contains(key(k)), k)
			}
			for _, k := range tc.after {
				require.True(t, r.AfterEnd(key(k)), k)
				require.False(t, r.Contains(key(k)), k)
			}
		})
	}
}

func TestDecoratedKeyOrder(t *testing.T) {
	// Tokens order before key bytes.
	keys := []DecoratedKey{
		{Token: 2, Key: []byte("a")},
		{Token: 1, Key: []byte("z")},
		{Token: 1, Key: []byte("b")},
	}
	slices.SortFunc(keys, DecoratedKey.Compare)
	require.Equal(t, []DecoratedKey{
		{Token: 1, Key: []byte("b")},
		{Token: 1, Key: []byte("z")},
		{Token: 2, Key: []byte("a")},
	}, keys)

	k := keys[0].Clone()
	k.Key[0] = 'x'
	require.Equal(t, "b", keys[0].String())
}
