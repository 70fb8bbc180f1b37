package cdk

import "testing"

func TestRecordClone(t *testing.T) {
	rec := Record{"a": "1"}
	clone := rec.Clone()
	clone["a"] = "2"
	clone["b"] = "3"
	if rec["a"] != "1" || rec.Has("b") {
		t.Fatalf("clone writes leaked into the original: %v", rec)
	}
}

func TestRecordSanitized(t *testing.T) {
	rec := Record{"a": "1", IterKey: "internal", "tmp_": "internal"}
	clean := rec.Sanitized()
	if len(clean) != 1 || clean["a"] != "1" {
		t.Fatalf("sanitize wrong: %v", clean)
	}
}
