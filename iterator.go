package cdk

import (
	"context"
	"io"
	"sync"
)

// Wrap turns a raw iterator (one that only produces records) into the full
// pipeline iterator: it applies the IgnoreOn trigger, expands records
// through the RowGen, checks ctx once per Next, plants IterKey into every
// delivered record, caches the last locator, and makes exhaustion
// idempotent. All grammar variants go through here; none of them
// implements filtering on its own.
func Wrap(ctx context.Context, raw RowIterator, opts Options) RowIterator {
	return &wrapIterator{ctx: ctx, raw: raw, opts: opts}
}

type wrapIterator struct {
	ctx  context.Context
	raw  RowIterator
	opts Options

	pending []Record
	termErr error // io.EOF after clean exhaustion, else the fatal error
	lastLoc string

	closeOnce sync.Once
	closeErr  error
}

func (it *wrapIterator) Next() (Record, error) {
	if it.termErr != nil {
		return nil, it.termErr
	}
	if it.ctx != nil {
		select {
		case <-it.ctx.Done():
			return nil, it.fail(it.ctx.Err())
		default:
		}
	}
	for {
		// The trigger runs at delivery time, not when the batch is
		// filled: records expanded before a bail match are handed out
		// before the source terminates.
		for len(it.pending) > 0 {
			rec := it.pending[0]
			it.pending = it.pending[1:]
			drop, err := it.opts.IgnoreOn.Check(rec, it.lastLoc)
			if err != nil {
				return nil, it.fail(err)
			}
			if drop {
				continue
			}
			rec[IterKey] = it
			return rec, nil
		}
		rec, err := it.raw.Next()
		it.lastLoc = it.raw.Locator()
		if err != nil {
			return nil, it.fail(err)
		}
		batch := []Record{rec}
		if it.opts.RowGen != nil {
			batch, err = it.opts.RowGen(rec)
			if err != nil {
				return nil, it.fail(err)
			}
		}
		it.pending = append(it.pending, batch...)
	}
}

// fail records the terminal condition and releases the source. Subsequent
// Next calls keep returning the same error.
func (it *wrapIterator) fail(err error) error {
	it.termErr = err
	it.pending = nil
	it.Close()
	return err
}

func (it *wrapIterator) Locator() string {
	if it.lastLoc != "" {
		return it.lastLoc
	}
	return it.raw.Locator()
}

func (it *wrapIterator) Params() Record { return it.raw.Params() }

func (it *wrapIterator) Close() error {
	it.closeOnce.Do(func() {
		it.closeErr = it.raw.Close()
	})
	return it.closeErr
}

// Drain pulls the iterator to exhaustion, discarding records. Mostly
// useful in tests and for sources read only for their Params.
func Drain(it RowIterator) error {
	defer it.Close()
	for {
		_, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
