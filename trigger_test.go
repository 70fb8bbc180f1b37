package cdk

import "testing"

func TestKeyTriggers(t *testing.T) {
	rec := Record{"flux": "12.5", "flag": "bad", "empty": ""}

	if !(KeyPresent{Key: "flux"}).Fire(rec) {
		t.Fatalf("keyPresent should fire on present key")
	}
	if (KeyPresent{Key: "mag"}).Fire(rec) {
		t.Fatalf("keyPresent should not fire on absent key")
	}
	// Present with empty value is still present.
	if !(KeyPresent{Key: "empty"}).Fire(rec) {
		t.Fatalf("keyPresent should fire on empty value")
	}

	// keyMissing is the exact complement of keyPresent.
	for _, key := range []string{"flux", "mag", "empty"} {
		p := (KeyPresent{Key: key}).Fire(rec)
		m := (KeyMissing{Key: key}).Fire(rec)
		if p == m {
			t.Fatalf("keyPresent and keyMissing agree on %q", key)
		}
	}

	if !(KeyIs{Key: "flag", Value: "bad"}).Fire(rec) {
		t.Fatalf("keyIs should fire on equal value")
	}
	if (KeyIs{Key: "flag", Value: "good"}).Fire(rec) {
		t.Fatalf("keyIs should not fire on different value")
	}
	if (KeyIs{Key: "mag", Value: "bad"}).Fire(rec) {
		t.Fatalf("keyIs should not fire on absent key")
	}
}

func TestTriggerCombinators(t *testing.T) {
	rec := Record{"a": "1"}
	hasA := KeyPresent{Key: "a"}
	hasB := KeyPresent{Key: "b"}

	if (Any{}).Fire(rec) {
		t.Fatalf("empty Any must not fire")
	}
	if !(Any{hasB, hasA}).Fire(rec) {
		t.Fatalf("Any should fire when one child fires")
	}
	if (And{hasA, hasB}).Fire(rec) {
		t.Fatalf("And should not fire when one child fails")
	}
	if !(And{hasA, hasA}).Fire(rec) {
		t.Fatalf("And should fire when all children fire")
	}
	// Bare children of Not are or-ed before negation.
	if (Not{hasB, hasA}).Fire(rec) {
		t.Fatalf("Not should not fire when a child fires")
	}
	if !(Not{hasB}).Fire(rec) {
		t.Fatalf("Not should fire when no child fires")
	}
}

func TestIgnoreOnCheck(t *testing.T) {
	var ig *IgnoreOn
	drop, err := ig.Check(Record{"a": "1"}, "here")
	if drop || err != nil {
		t.Fatalf("nil IgnoreOn must be a no-op, got drop=%v err=%v", drop, err)
	}

	ig = &IgnoreOn{Name: "noPosition", Triggers: []Trigger{KeyMissing{Key: "ra"}, KeyMissing{Key: "dec"}}}
	drop, err = ig.Check(Record{"ra": "1.5"}, "here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drop {
		t.Fatalf("record without dec should be dropped")
	}
	drop, err = ig.Check(Record{"ra": "1.5", "dec": "2.5"}, "here")
	if err != nil || drop {
		t.Fatalf("complete record must pass, got drop=%v err=%v", drop, err)
	}
}

func TestIgnoreOnBail(t *testing.T) {
	ig := &IgnoreOn{Triggers: []Trigger{KeyIs{Key: "flag", Value: "x"}}, Bail: true}
	drop, err := ig.Check(Record{"flag": "x"}, "file, line 3")
	if !drop {
		t.Fatalf("matching record should be dropped")
	}
	if !IsTriggerPulled(err) {
		t.Fatalf("expected TriggerPulled, got %v", err)
	}
	tp := err.(*TriggerPulled)
	if tp.Trigger != "unnamed" {
		t.Fatalf("unnamed trigger should report as %q, got %q", "unnamed", tp.Trigger)
	}
	if tp.Location != "file, line 3" {
		t.Fatalf("wrong location: %q", tp.Location)
	}
}
