package cdk

import (
	"context"
	"io"
	"log"

	"github.com/pkg/errors"
)

// Putter receives finished, typed rows. Implementations decide where they
// go (embedded store, SQL, test buffer).
type Putter interface {
	Put(table string, row map[string]interface{}) error
	Close() error
}

// IngestResult counts what happened to one source: rows delivered to the
// Putter and rows rejected by the rowmaker.
type IngestResult struct {
	Produced int
	Rejected int
}

// Ingester reads one source through a grammar, maps every record with a
// compiled rowmaker, and hands the rows to a Putter. A single Ingester
// run is strictly sequential; run several Ingesters in parallel for
// independent sources.
type Ingester struct {
	Grammar  Grammar
	Rowmaker *Rowmaker
	Table    string
	Putter   Putter

	// RowLimit stops the run after this many produced rows (0 = no limit),
	// for previewing a source without a full import.
	RowLimit int
	// BailOnError turns row-level validation errors from counted rejects
	// into fatal errors.
	BailOnError bool
}

// NewIngester assembles an ingester over its four collaborators.
func NewIngester(g Grammar, rm *Rowmaker, table string, p Putter) *Ingester {
	return &Ingester{Grammar: g, Rowmaker: rm, Table: table, Putter: p}
}

// Run ingests one source token. The returned counts are valid even when
// err is non-nil; err distinguishes clean exhaustion (nil), structural
// source failure, a pulled bail trigger, and cancellation. The iterator
// is closed on every path.
func (ing *Ingester) Run(ctx context.Context, src interface{}) (IngestResult, error) {
	var res IngestResult
	it, err := ing.Grammar.Open(ctx, src)
	if err != nil {
		return res, errors.Wrap(err, "opening source")
	}
	defer it.Close()

	for {
		rec, err := it.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		row, err := ing.Rowmaker.Run(rec)
		if err != nil {
			if IsValidationError(err) && !ing.BailOnError {
				res.Rejected++
				log.Printf("rejected row at %s: %v", it.Locator(), err)
				continue
			}
			return res, err
		}
		if err := ing.Putter.Put(ing.Table, row); err != nil {
			return res, errors.Wrapf(err, "storing row at %s", it.Locator())
		}
		res.Produced++
		if ing.RowLimit > 0 && res.Produced >= ing.RowLimit {
			return res, nil
		}
	}
}

// RunAll ingests every reader a RawSource hands out, summing the counts.
// The row limit, when set, applies across the whole batch.
func (ing *Ingester) RunAll(ctx context.Context, raw RawSource) (IngestResult, error) {
	var total IngestResult
	remaining := ing.RowLimit
	for {
		rc, err := raw.NextReader()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, errors.Wrap(err, "getting next reader")
		}
		sub := *ing
		sub.RowLimit = remaining
		res, err := sub.Run(ctx, rc)
		total.Produced += res.Produced
		total.Rejected += res.Rejected
		if err != nil {
			return total, errors.Wrapf(err, "ingesting %s", rc.Name())
		}
		if ing.RowLimit > 0 {
			remaining = ing.RowLimit - total.Produced
			if remaining <= 0 {
				return total, nil
			}
		}
	}
}
