// Package embedded implements a grammar whose records come from a
// registered Go generator function instead of a parsed file. It replaces
// the "source file contains the parser" pattern: generators are compiled
// in, registered under a name, and referenced from configuration.
package embedded

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
)

// Generator produces records for one source token by calling emit once
// per record. Returning a non-nil error fails the source; emit returns an
// error when the consumer has gone away, at which point the generator
// should stop.
type Generator func(src interface{}, emit func(cdk.Record) error) error

var (
	regMu      sync.RWMutex
	generators = map[string]Generator{}
)

// Register makes a generator available under name. Registration happens
// at init time; re-registering a name panics.
func Register(name string, gen Generator) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := generators[name]; dup {
		panic(fmt.Sprintf("embedded: generator %q registered twice", name))
	}
	generators[name] = gen
}

// Grammar runs the named generator in a goroutine and iterates over its
// output.
type Grammar struct {
	Generator string
	Opts      cdk.Options
}

// Open starts the generator for the given source token.
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	regMu.RLock()
	gen, ok := generators[g.Generator]
	regMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no embedded generator %q", g.Generator)
	}
	it := &iterator{
		name:    g.Generator,
		records: make(chan cdk.Record, 64),
		done:    make(chan struct{}),
	}
	go it.run(gen, src)
	return cdk.Wrap(ctx, it, g.Opts), nil
}

type iterator struct {
	name    string
	records chan cdk.Record
	done    chan struct{}
	genErr  error
	count   int

	closeOnce sync.Once
}

var errAbandoned = errors.New("iterator abandoned")

func (it *iterator) run(gen Generator, src interface{}) {
	err := gen(src, func(rec cdk.Record) error {
		select {
		case it.records <- rec:
			return nil
		case <-it.done:
			return errAbandoned
		}
	})
	if err != nil && errors.Cause(err) != errAbandoned {
		it.genErr = err
	}
	close(it.records)
}

func (it *iterator) Next() (cdk.Record, error) {
	rec, ok := <-it.records
	if !ok {
		if it.genErr != nil {
			return nil, errors.Wrapf(it.genErr, "generator %s", it.name)
		}
		return nil, io.EOF
	}
	it.count++
	return rec, nil
}

func (it *iterator) Locator() string {
	return fmt.Sprintf("generator %s, record %d", it.name, it.count)
}

func (it *iterator) Params() cdk.Record { return cdk.Record{} }

func (it *iterator) Close() error {
	it.closeOnce.Do(func() { close(it.done) })
	return nil
}
