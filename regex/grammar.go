// Package regex implements the free-regex grammar: a row production
// pattern cuts the input into records, a parse pattern with named groups
// turns each record into keyed fields. Input is read in fixed-size chunks
// with a carry-over buffer, so sources never need to fit in memory.
package regex

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	cdk "github.com/heliodc/cdk"
)

const defaultChunkSize = 8192

// DefaultRowProduction matches one non-empty line including its newline.
var DefaultRowProduction = regexp.MustCompile(`(?m)^.+\n`)

// Grammar cuts records with RowProduction (anchored at the current
// position) and parses each with ParseRE, whose named groups become the
// record keys.
type Grammar struct {
	RowProduction *regexp.Regexp
	ParseRE       *regexp.Regexp
	StripTokens   bool
	ChunkSize     int
	Opts          cdk.Options
}

// Open starts reading the source token.
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	rc, err := cdk.OpenSource(src, g.Opts)
	if err != nil {
		return nil, err
	}
	it := &iterator{grammar: g, rc: rc, curLine: 1}
	it.rowProd = g.RowProduction
	if it.rowProd == nil {
		it.rowProd = DefaultRowProduction
	}
	it.chunkSize = g.ChunkSize
	if it.chunkSize <= 0 {
		it.chunkSize = defaultChunkSize
	}
	return cdk.Wrap(ctx, it, g.Opts), nil
}

type iterator struct {
	grammar   *Grammar
	rc        cdk.NamedReadCloser
	rowProd   *regexp.Regexp
	chunkSize int

	buf     string
	pos     int
	eof     bool
	curLine int
}

// nextRaw returns the next complete record as matched by the row
// production. A match that touches the end of the buffer is only trusted
// once the input is exhausted, so records crossing chunk boundaries are
// matched whole.
func (it *iterator) nextRaw() (string, error) {
	for {
		rest := it.buf[it.pos:]
		if loc := it.rowProd.FindStringIndex(rest); loc != nil && loc[0] == 0 {
			if it.eof || loc[1] < len(rest) {
				rec := rest[:loc[1]]
				it.pos += loc[1]
				return rec, nil
			}
		}
		if it.eof {
			break
		}
		if err := it.fill(); err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(it.buf[it.pos:]) != "" {
		return "", &cdk.ParseError{
			Msg:      "junk at end of input",
			Location: it.Locator(),
			Offender: it.buf[it.pos:],
		}
	}
	return "", io.EOF
}

func (it *iterator) fill() error {
	it.buf = it.buf[it.pos:]
	it.pos = 0
	chunk := make([]byte, it.chunkSize)
	n, err := it.rc.Read(chunk)
	it.buf += string(chunk[:n])
	if err == io.EOF {
		it.eof = true
		return nil
	}
	return err
}

func (it *iterator) Next() (cdk.Record, error) {
	raw, err := it.nextRaw()
	if err != nil {
		return nil, err
	}
	startLine := it.curLine
	it.curLine += strings.Count(raw, "\n")
	m := it.grammar.ParseRE.FindStringSubmatch(raw)
	if m == nil {
		return nil, &cdk.ParseError{
			Msg:      "malformed input, record does not match parse pattern",
			Location: fmt.Sprintf("%s, line %d", it.rc.Name(), startLine),
			Offender: raw,
		}
	}
	rec := make(cdk.Record)
	for i, name := range it.grammar.ParseRE.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		v := m[i]
		if it.grammar.StripTokens {
			v = strings.TrimSpace(v)
		}
		rec[name] = v
	}
	return rec, nil
}

func (it *iterator) Locator() string {
	return fmt.Sprintf("%s, line %d", it.rc.Name(), it.curLine)
}

func (it *iterator) Params() cdk.Record { return cdk.Record{} }

func (it *iterator) Close() error { return it.rc.Close() }
