// Package mem implements a grammar over an in-memory record list, used
// for computed inputs and heavily in tests.
package mem

import (
	"context"
	"fmt"
	"io"

	cdk "github.com/heliodc/cdk"
)

// Grammar yields the Records it holds, in order. DocParams, if set, are
// surfaced as the iterator's document parameters.
type Grammar struct {
	Records   []cdk.Record
	DocParams cdk.Record
	Opts      cdk.Options
}

// Open ignores the source token unless it is itself a []cdk.Record, which
// then replaces the configured list.
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	recs := g.Records
	if s, ok := src.([]cdk.Record); ok {
		recs = s
	}
	return cdk.Wrap(ctx, &iterator{grammar: g, records: recs}, g.Opts), nil
}

type iterator struct {
	grammar *Grammar
	records []cdk.Record
	index   int
}

func (it *iterator) Next() (cdk.Record, error) {
	if it.index >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.index].Clone()
	it.index++
	return rec, nil
}

// Locator names the last delivered record, "list index 0" before any
// delivery.
func (it *iterator) Locator() string {
	idx := it.index - 1
	if idx < 0 {
		idx = 0
	}
	return fmt.Sprintf("list index %d", idx)
}

func (it *iterator) Params() cdk.Record {
	if it.grammar.DocParams == nil {
		return cdk.Record{}
	}
	return it.grammar.DocParams.Clone()
}

func (it *iterator) Close() error { return nil }
