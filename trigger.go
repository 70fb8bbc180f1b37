package cdk

// Trigger is a boolean condition over a record. Triggers are built once
// from configuration, hold no state, and may be shared between goroutines.
type Trigger interface {
	Fire(rec Record) bool
}

// KeyPresent fires if Key exists in the record.
type KeyPresent struct {
	Key string
}

func (t KeyPresent) Fire(rec Record) bool { return rec.Has(t.Key) }

// KeyMissing fires if Key does not exist in the record.
type KeyMissing struct {
	Key string
}

func (t KeyMissing) Fire(rec Record) bool { return !rec.Has(t.Key) }

// KeyIs fires if the record's value for Key is a string equal to Value.
// A missing key never fires.
type KeyIs struct {
	Key   string
	Value string
}

func (t KeyIs) Fire(rec Record) bool {
	v, ok := rec[t.Key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == t.Value
}

// Any fires if any of its children fires. This is the implicit combination
// of bare trigger children in a condition holder. An empty Any never fires.
type Any []Trigger

func (t Any) Fire(rec Record) bool {
	for _, c := range t {
		if c.Fire(rec) {
			return true
		}
	}
	return false
}

// And fires if all of its children fire, short-circuiting on the first
// child that does not.
type And []Trigger

func (t And) Fire(rec Record) bool {
	for _, c := range t {
		if !c.Fire(rec) {
			return false
		}
	}
	return true
}

// Not fires when none of its children fire; as with Any, bare children are
// or-ed before negation.
type Not []Trigger

func (t Not) Fire(rec Record) bool { return !Any(t).Fire(rec) }

// IgnoreOn decides whether a record should be dropped. Bare children are
// or-ed together. With Bail set, a match aborts the source with a
// TriggerPulled error instead of silently dropping the record.
type IgnoreOn struct {
	Name     string
	Triggers []Trigger
	Bail     bool
}

// Check returns (true, nil) if the record should be dropped, and a
// TriggerPulled error if it matched while Bail is set. locator is the
// current iterator position, used to annotate the error.
func (ig *IgnoreOn) Check(rec Record, locator string) (bool, error) {
	if ig == nil {
		return false, nil
	}
	if !Any(ig.Triggers).Fire(rec) {
		return false, nil
	}
	if ig.Bail {
		name := ig.Name
		if name == "" {
			name = "unnamed"
		}
		return true, &TriggerPulled{Trigger: name, Location: locator}
	}
	return true, nil
}
