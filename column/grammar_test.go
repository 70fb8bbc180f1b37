package column

import (
	"context"
	"io"
	"strings"
	"testing"

	cdk "github.com/heliodc/cdk"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"5-12", Range{Start: 5, End: 12}},
		{"5", Range{Start: 5, End: 5}},
		{"5-", Range{Start: 5}},
		{"-12", Range{End: 12}},
		{" 1 - 4 ", Range{Start: 1, End: 4}},
	}
	for _, test := range tests {
		got, err := ParseRange(test.in)
		if err != nil {
			t.Fatalf("parsing %q: %v", test.in, err)
		}
		if got != test.want {
			t.Fatalf("parsing %q: got %+v, want %+v", test.in, got, test.want)
		}
	}
	for _, bad := range []string{"", "x", "0", "12-5"} {
		if _, err := ParseRange(bad); err == nil {
			t.Fatalf("parsing %q should fail", bad)
		}
	}
}

func openOn(t *testing.T, g *Grammar, input string) cdk.RowIterator {
	t.Helper()
	it, err := g.Open(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return it
}

func TestGrammarFields(t *testing.T) {
	g := &Grammar{Fields: map[string]Range{
		"a": {Start: 1, End: 4},
		"b": {Start: 6, End: 10},
	}}
	it := openOn(t, g, "12   34567\n")
	defer it.Close()
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Values stay unstripped; trimming happens at typing time.
	if rec["a"] != "12  " || rec["b"] != "34567" {
		t.Fatalf("wrong fields: %#v", rec)
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestGrammarOpenRanges(t *testing.T) {
	g := &Grammar{Fields: map[string]Range{
		"head": {End: 2},
		"tail": {Start: 4},
	}}
	it := openOn(t, g, "abcdef\n")
	defer it.Close()
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["head"] != "ab" || rec["tail"] != "def" {
		t.Fatalf("open ranges wrong: %#v", rec)
	}
}

func TestGrammarShortLine(t *testing.T) {
	g := &Grammar{Fields: map[string]Range{"b": {Start: 6, End: 10}}}
	it := openOn(t, g, "1234567890\nshort\n")
	defer it.Close()
	if _, err := it.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := it.Next()
	if !cdk.IsParseError(err) {
		t.Fatalf("short line should be a ParseError, got %v", err)
	}
	pe := err.(*cdk.ParseError)
	if pe.Offender != "short" {
		t.Fatalf("wrong offender: %q", pe.Offender)
	}
	if !strings.Contains(pe.Location, "line 2") {
		t.Fatalf("wrong location: %q", pe.Location)
	}
	// Structural errors are fatal to the source.
	if _, err2 := it.Next(); err2 != err {
		t.Fatalf("error should be terminal, got %v", err2)
	}
}

func TestGrammarTopIgnoredLines(t *testing.T) {
	g := &Grammar{
		Fields: map[string]Range{"v": {Start: 1, End: 1}},
		Opts:   cdk.Options{TopIgnoredLines: 2},
	}
	it := openOn(t, g, "# header\n# units\n1\n2\n")
	defer it.Close()
	rec, err := it.Next()
	if err != nil || rec["v"] != "1" {
		t.Fatalf("header lines not skipped: %v, %v", rec, err)
	}
	if !strings.Contains(it.Locator(), "line 3") {
		t.Fatalf("locator should count physical lines: %q", it.Locator())
	}
}

func TestGrammarRoundTrip(t *testing.T) {
	// A table written with the declared ranges reads back identically
	// after trimming.
	g := &Grammar{Fields: map[string]Range{
		"name": {Start: 1, End: 8},
		"mag":  {Start: 10, End: 14},
	}}
	it := openOn(t, g, "m31        3.4\nm33        5.7\n")
	defer it.Close()
	var names, mags []string
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, strings.TrimSpace(rec["name"].(string)))
		mags = append(mags, strings.TrimSpace(rec["mag"].(string)))
	}
	if names[0] != "m31" || names[1] != "m33" || mags[0] != "3.4" || mags[1] != "5.7" {
		t.Fatalf("round trip broken: %v %v", names, mags)
	}
}
