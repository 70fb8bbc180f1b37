// Package column implements the fixed-width grammar: each input line is
// split into named character ranges.
package column

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
)

// Range is a character range of a physical line, 1-based and inclusive on
// both sides. A zero Start means "from the beginning of the line", a zero
// End means "to the end of the line".
type Range struct {
	Start, End int
}

// ParseRange parses "5-12", "5", "5-" or "-12".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "-"); i >= 0 {
		var r Range
		var err error
		if lo := strings.TrimSpace(s[:i]); lo != "" {
			if r.Start, err = strconv.Atoi(lo); err != nil {
				return Range{}, errors.Errorf("bad column range %q", s)
			}
		}
		if hi := strings.TrimSpace(s[i+1:]); hi != "" {
			if r.End, err = strconv.Atoi(hi); err != nil {
				return Range{}, errors.Errorf("bad column range %q", s)
			}
		}
		if r.Start < 0 || r.End < 0 || (r.End != 0 && r.Start > r.End) {
			return Range{}, errors.Errorf("bad column range %q", s)
		}
		return r, nil
	}
	col, err := strconv.Atoi(s)
	if err != nil || col < 1 {
		return Range{}, errors.Errorf("bad column range %q", s)
	}
	return Range{Start: col, End: col}, nil
}

// slice cuts the range out of line. Unstripped; typing trims later.
func (r Range) slice(line string) (string, error) {
	lo := r.Start
	if lo == 0 {
		lo = 1
	}
	hi := r.End
	if hi == 0 {
		hi = len(line)
	}
	if lo > len(line) || hi > len(line) {
		return "", errors.Errorf("line too short for columns %d-%d", lo, hi)
	}
	return line[lo-1 : hi], nil
}

// Grammar names character ranges of each line. Fields maps record keys to
// their ranges.
type Grammar struct {
	Fields map[string]Range
	Opts   cdk.Options
}

// Open starts reading the source token (file path or reader).
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	rc, err := cdk.OpenSource(src, g.Opts)
	if err != nil {
		return nil, err
	}
	it := &iterator{
		grammar: g,
		rc:      rc,
		scan:    bufio.NewScanner(rc),
		lineNo:  g.Opts.TopIgnoredLines,
	}
	for i := 0; i < g.Opts.TopIgnoredLines; i++ {
		if !it.scan.Scan() {
			break
		}
	}
	return cdk.Wrap(ctx, it, g.Opts), nil
}

type iterator struct {
	grammar *Grammar
	rc      cdk.NamedReadCloser
	scan    *bufio.Scanner
	lineNo  int
}

func (it *iterator) Next() (cdk.Record, error) {
	if !it.scan.Scan() {
		if err := it.scan.Err(); err != nil {
			return nil, errors.Wrap(err, "reading line")
		}
		return nil, io.EOF
	}
	it.lineNo++
	line := it.scan.Text()
	rec := make(cdk.Record, len(it.grammar.Fields))
	for key, r := range it.grammar.Fields {
		v, err := r.slice(line)
		if err != nil {
			return nil, &cdk.ParseError{
				Msg:      err.Error(),
				Location: it.Locator(),
				Offender: line,
			}
		}
		rec[key] = v
	}
	return rec, nil
}

func (it *iterator) Locator() string {
	return fmt.Sprintf("%s, line %d", it.rc.Name(), it.lineNo)
}

func (it *iterator) Params() cdk.Record { return cdk.Record{} }

func (it *iterator) Close() error { return it.rc.Close() }
