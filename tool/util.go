// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mutcompact"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var stdout = io.Writer(os.Stdout)
var stderr = io.Writer(os.Stderr)

func errorf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// logger writes reader logs to stderr.
type logger struct{}

var _ mutcompact.Logger = logger{}

func (logger) Infof(format string, args ...interface{}) {
	fmt.Fprintf(stderr, format, args...)
	if !strings.HasSuffix(format, "\n") {
		fmt.Fprintln(stderr)
	}
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.Infof(format, args...)
}

func (l logger) Fatalf(format string, args ...interface{}) {
	l.Infof(format, args...)
	os.Exit(1)
}

// openFixture opens a fixture file. Files named *.sz are read as
// snappy-framed streams and files named *.zst as zstd streams.
func openFixture(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".sz":
		return struct {
			io.Reader
			io.Closer
		}{snappy.NewReader(f), f}, nil
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &zstdFile{Decoder: dec, f: f}, nil
	}
	return f, nil
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// readFixture reads and parses the fragments of a fixture file.
func readFixture(path string, p *mutcompact.Partitioner) ([]*mutcompact.Fragment, error) {
	r, err := openFixture(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	frags, err := mutcompact.ParseFragments(p, string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return frags, nil
}
