package cdk

// IterKey is the reserved record key under which the originating
// RowIterator is made available to rule bodies that need provenance
// information (current locator, source token). Keys with a trailing
// underscore are considered internal and are stripped from diagnostic
// record snapshots.
const IterKey = "iter_"

// Record is one logical unit of input data: an ordered-enough mapping from
// string keys to values. Before type conversion values are usually raw
// strings; row generators may introduce typed values (ints, timestamps).
type Record map[string]interface{}

// Clone returns a shallow copy of the record. Row generators and the
// defaults machinery use this so that sibling records never share a map.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether key is present in the record.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Sanitized returns a copy of the record with internal keys (trailing
// underscore) removed. Used when packaging records into error reports.
func (r Record) Sanitized() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if len(k) > 0 && k[len(k)-1] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}
