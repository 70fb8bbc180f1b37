package keyval

import (
	"context"
	"io"
	"strings"
	"testing"

	cdk "github.com/heliodc/cdk"
)

func openOn(t *testing.T, g *Grammar, input string) cdk.RowIterator {
	t.Helper()
	it, err := g.Open(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return it
}

func TestWholeRecord(t *testing.T) {
	g := &Grammar{}
	it := openOn(t, g, "OBJECT = M31\n# a comment\nEXPTIME: 120\n\n")
	defer it.Close()
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["OBJECT"] != "M31" || rec["EXPTIME"] != "120" {
		t.Fatalf("pairs wrong: %#v", rec)
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("whole-record mode yields exactly one record, got %v", err)
	}
}

func TestParams(t *testing.T) {
	g := &Grammar{}
	it := openOn(t, g, "OBJECT = M31\n")
	defer it.Close()
	if _, err := it.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := it.Params()
	if params["OBJECT"] != "M31" {
		t.Fatalf("document params missing: %#v", params)
	}
	// Params hands out copies.
	params["OBJECT"] = "changed"
	if it.Params()["OBJECT"] != "M31" {
		t.Fatalf("params not insulated from callers")
	}
}

func TestYieldPairs(t *testing.T) {
	g := &Grammar{YieldPairs: true}
	it := openOn(t, g, "a = 1\nb = 2\n")
	defer it.Close()
	var keys, values []string
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		keys = append(keys, rec["key"].(string))
		values = append(values, rec["value"].(string))
	}
	if len(keys) != 2 || keys[0] != "a" || values[1] != "2" {
		t.Fatalf("pair mode wrong: %v %v", keys, values)
	}
}

func TestMapKeys(t *testing.T) {
	g := &Grammar{MapKeys: map[string]string{"OBJECT NAME": "object"}}
	it := openOn(t, g, "OBJECT NAME = M31\n")
	defer it.Close()
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["object"] != "M31" {
		t.Fatalf("key not renamed: %#v", rec)
	}
}

func TestCustomSeparators(t *testing.T) {
	g := &Grammar{KVSeparators: ">", PairSeparators: ";"}
	it := openOn(t, g, "a > 1; b > 2")
	defer it.Close()
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["a"] != "1" || rec["b"] != "2" {
		t.Fatalf("custom separators wrong: %#v", rec)
	}
}

func TestBadPair(t *testing.T) {
	_, err := (&Grammar{}).Open(context.Background(), strings.NewReader("no separator here\n"))
	if !cdk.IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
