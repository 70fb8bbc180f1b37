package cdk

import (
	"testing"
	"time"
)

func TestParsers(t *testing.T) {
	tests := []struct {
		typ   string
		field string
		want  interface{}
	}{
		{"integer", " 42 ", int64(42)},
		{"bigint", "-7", int64(-7)},
		{"real", "12.5", 12.5},
		{"double", " -0.25", -0.25},
		{"text", "  NGC 224  ", "NGC 224"},
		{"boolean", "true", true},
		{"date", "2008-01-30", time.Date(2008, 1, 30, 0, 0, 0, 0, time.UTC)},
		{"timestamp", "2008-01-30T12:30:00", time.Date(2008, 1, 30, 12, 30, 0, 0, time.UTC)},
	}
	for _, test := range tests {
		p, err := ParserForType(test.typ)
		if err != nil {
			t.Fatalf("no parser for %s: %v", test.typ, err)
		}
		got, err := p.Parse(test.field)
		if err != nil {
			t.Fatalf("parsing %q as %s: %v", test.field, test.typ, err)
		}
		if tm, ok := test.want.(time.Time); ok {
			if !got.(time.Time).Equal(tm) {
				t.Fatalf("parsing %q as %s: got %v, want %v", test.field, test.typ, got, tm)
			}
			continue
		}
		if got != test.want {
			t.Fatalf("parsing %q as %s: got %v (%T), want %v (%T)",
				test.field, test.typ, got, got, test.want, test.want)
		}
	}
}

func TestParserErrors(t *testing.T) {
	if _, err := ParserForType("spint"); err == nil {
		t.Fatalf("unknown type should have no parser")
	}
	p, _ := ParserForType("integer")
	if _, err := p.Parse("twelve"); err == nil {
		t.Fatalf("garbage integer should fail")
	}
}
