package cdk

import (
	"context"
	"fmt"
	"io"
	"testing"
)

// sliceIterator is a minimal raw iterator for driving Wrap in tests.
type sliceIterator struct {
	records []Record
	index   int
	closed  int
}

func (it *sliceIterator) Next() (Record, error) {
	if it.index >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.index].Clone()
	it.index++
	return rec, nil
}

func (it *sliceIterator) Locator() string { return fmt.Sprintf("slice index %d", it.index) }
func (it *sliceIterator) Params() Record { return Record{} }

func (it *sliceIterator) Close() error { it.closed++; return nil }

func collect(t *testing.T, it RowIterator) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, rec)
	}
}

func TestWrapDelivery(t *testing.T) {
	raw := &sliceIterator{records: []Record{{"a": "1"}, {"a": "2"}}}
	it := Wrap(context.Background(), raw, Options{})
	recs := collect(t, it)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec["a"] != fmt.Sprintf("%d", i+1) {
			t.Fatalf("records out of order: %v", recs)
		}
		if rec[IterKey] != it {
			t.Fatalf("record %d misses the iterator reference", i)
		}
	}
}

func TestWrapEOFIdempotent(t *testing.T) {
	raw := &sliceIterator{}
	it := Wrap(context.Background(), raw, Options{})
	for i := 0; i < 3; i++ {
		if _, err := it.Next(); err != io.EOF {
			t.Fatalf("call %d: expected io.EOF, got %v", i, err)
		}
	}
	if raw.closed != 1 {
		t.Fatalf("source should be closed exactly once, got %d", raw.closed)
	}
}

func TestWrapFiltering(t *testing.T) {
	raw := &sliceIterator{records: []Record{
		{"a": "1"},
		{"a": "2", "skip": "yes"},
		{"a": "3"},
	}}
	opts := Options{IgnoreOn: &IgnoreOn{Triggers: []Trigger{KeyPresent{Key: "skip"}}}}
	recs := collect(t, Wrap(context.Background(), raw, opts))
	if len(recs) != 2 || recs[0]["a"] != "1" || recs[1]["a"] != "3" {
		t.Fatalf("filtering went wrong: %v", recs)
	}
}

func TestWrapRowGenThenTrigger(t *testing.T) {
	// The trigger must see the expanded records, not the raw one.
	raw := &sliceIterator{records: []Record{{"names": "keep,drop,keep"}}}
	opts := Options{
		RowGen:   ExpandComma("names", "name"),
		IgnoreOn: &IgnoreOn{Triggers: []Trigger{KeyIs{Key: "name", Value: "drop"}}},
	}
	recs := collect(t, Wrap(context.Background(), raw, opts))
	if len(recs) != 2 {
		t.Fatalf("expected 2 surviving records, got %d: %v", len(recs), recs)
	}
	for _, rec := range recs {
		if rec["name"] != "keep" {
			t.Fatalf("dropped record slipped through: %v", rec)
		}
	}
}

func TestWrapBailTerminates(t *testing.T) {
	raw := &sliceIterator{records: []Record{
		{"a": "1"},
		{"a": "2", "bad": "yes"},
		{"a": "3"},
	}}
	opts := Options{IgnoreOn: &IgnoreOn{
		Name:     "badInput",
		Triggers: []Trigger{KeyPresent{Key: "bad"}},
		Bail:     true,
	}}
	it := Wrap(context.Background(), raw, opts)

	rec, err := it.Next()
	if err != nil || rec["a"] != "1" {
		t.Fatalf("first record should come through, got %v, %v", rec, err)
	}
	_, err = it.Next()
	if !IsTriggerPulled(err) {
		t.Fatalf("expected TriggerPulled, got %v", err)
	}
	if raw.closed != 1 {
		t.Fatalf("bail should close the source, closed=%d", raw.closed)
	}
	// The error is terminal.
	if _, err2 := it.Next(); err2 != err {
		t.Fatalf("terminal error should repeat, got %v", err2)
	}
}

func TestWrapBailAfterExpansion(t *testing.T) {
	// Expanded records before the bail match are delivered before the
	// source terminates.
	raw := &sliceIterator{records: []Record{{"names": "good,BAD"}}}
	opts := Options{
		RowGen: ExpandComma("names", "name"),
		IgnoreOn: &IgnoreOn{
			Name:     "badName",
			Triggers: []Trigger{KeyIs{Key: "name", Value: "BAD"}},
			Bail:     true,
		},
	}
	it := Wrap(context.Background(), raw, opts)
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("the record before the bail match must come through, got %v", err)
	}
	if rec["name"] != "good" {
		t.Fatalf("wrong record delivered first: %v", rec)
	}
	_, err = it.Next()
	if !IsTriggerPulled(err) {
		t.Fatalf("expected TriggerPulled, got %v", err)
	}
	if raw.closed != 1 {
		t.Fatalf("bail should close the source, closed=%d", raw.closed)
	}
}

func TestWrapContextCancel(t *testing.T) {
	raw := &sliceIterator{records: []Record{{"a": "1"}, {"a": "2"}}}
	ctx, cancel := context.WithCancel(context.Background())
	it := Wrap(ctx, raw, Options{})
	if _, err := it.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	if _, err := it.Next(); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if raw.closed != 1 {
		t.Fatalf("cancellation should close the source")
	}
}

func TestWrapLocatorCached(t *testing.T) {
	raw := &sliceIterator{records: []Record{{"names": "a,b"}}}
	it := Wrap(context.Background(), raw, Options{RowGen: ExpandComma("names", "n")})
	if _, err := it.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loc1 := it.Locator()
	if _, err := it.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Both expanded records come from the same raw record.
	if loc2 := it.Locator(); loc2 != loc1 {
		t.Fatalf("locator changed within one raw record: %q vs %q", loc1, loc2)
	}
}

func TestDrain(t *testing.T) {
	raw := &sliceIterator{records: []Record{{"a": "1"}}}
	if err := Drain(Wrap(context.Background(), raw, Options{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.closed == 0 {
		t.Fatalf("drain should close the iterator")
	}
}
