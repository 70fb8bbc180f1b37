package cdk

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/ianaindex"
)

// Grammar is the interface for record sources. A Grammar is configuration:
// it knows how to turn one source token (file path, open reader, in-memory
// sequence, broker address) into a RowIterator. Grammars are immutable
// after construction and may be shared; the iterators they return are not.
type Grammar interface {
	Open(ctx context.Context, src interface{}) (RowIterator, error)
}

// RowIterator produces the records of one source, single pass. Next
// returns io.EOF exactly at exhaustion and keeps returning it afterwards;
// any other error is fatal to the source. Locator stays valid after
// exhaustion so trailing errors can still be placed. Close releases the
// underlying stream and must be called on every exit path; calling it
// more than once is safe.
type RowIterator interface {
	Next() (Record, error)
	Locator() string
	Params() Record
	Close() error
}

// NamedReadCloser is a ReadCloser which also reports the name of the
// thing being read (file name, object key).
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource produces a sequence of readers, e.g. the files of a directory
// or the objects under an S3 prefix. NextReader returns io.EOF when there
// are no more.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

// Options carries the source-independent part of a grammar's
// configuration. Concrete grammars embed it and hand it to Wrap, so
// trigger filtering and row generation never need to be reimplemented per
// source kind.
type Options struct {
	// Encoding is an IANA character set name ("ISO-8859-1"); empty means
	// the input is already UTF-8.
	Encoding string
	// TopIgnoredLines skips this many physical lines at the top of each
	// source (honored by line-oriented grammars).
	TopIgnoredLines int
	// Gunzip transparently decompresses the input.
	Gunzip bool
	// IgnoreOn drops (or, with bail set, aborts on) matching records.
	IgnoreOn *IgnoreOn
	// RowGen expands one raw record into several.
	RowGen RowGen
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type namedReader struct {
	io.Reader
	io.Closer
	name string
}

func (n *namedReader) Name() string { return n.name }

// OpenSource turns a source token into a named reader, applying the
// decompression and decoding the Options ask for. Accepted tokens are
// file path strings, NamedReadClosers, and bare io.Readers.
func OpenSource(src interface{}, opts Options) (NamedReadCloser, error) {
	var rc NamedReadCloser
	switch s := src.(type) {
	case string:
		f, err := os.Open(s)
		if err != nil {
			return nil, errors.Wrapf(err, "opening source %s", s)
		}
		rc = &namedReader{Reader: f, Closer: f, name: s}
	case NamedReadCloser:
		rc = s
	case io.ReadCloser:
		rc = &namedReader{Reader: s, Closer: s, name: fmt.Sprintf("%T", s)}
	case io.Reader:
		rc = &namedReader{Reader: s, Closer: nopCloser{}, name: fmt.Sprintf("%T", s)}
	default:
		return nil, errors.Errorf("cannot open source token of type %T", src)
	}
	if opts.Gunzip {
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, errors.Wrapf(err, "gunzipping %s", rc.Name())
		}
		rc = &namedReader{Reader: zr, Closer: rc, name: rc.Name()}
	}
	if opts.Encoding != "" {
		enc, err := ianaindex.IANA.Encoding(opts.Encoding)
		if err != nil || enc == nil {
			rc.Close()
			return nil, errors.Errorf("unknown source encoding %q", opts.Encoding)
		}
		rc = &namedReader{Reader: enc.NewDecoder().Reader(rc), Closer: rc, name: rc.Name()}
	}
	return rc, nil
}
