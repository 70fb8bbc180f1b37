package cdk

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RowGen expands one input record into zero or more records. Generators
// must not mutate the input record, and every output record must be a
// fresh shallow copy so siblings never share a map.
type RowGen func(rec Record) ([]Record, error)

// ExpandOnIndex returns a generator that turns a record carrying an
// integer range (e.g. "star 10 through star 100") into one record per
// integer, with the running index stored under destKey. Records where
// either bound does not parse as an integer are passed through unchanged.
func ExpandOnIndex(startKey, endKey, destKey string) RowGen {
	return func(rec Record) ([]Record, error) {
		lo, err1 := intField(rec, startKey)
		hi, err2 := intField(rec, endKey)
		if err1 != nil || err2 != nil {
			return []Record{rec}, nil
		}
		var out []Record
		for i := lo; i <= hi; i++ {
			r := rec.Clone()
			r[destKey] = i
			out = append(out, r)
		}
		return out, nil
	}
}

// ExpandComma returns a generator that splits the comma separated value
// under srcKey and yields one record per non-empty item, the item stored
// under destKey. Empty or missing source values yield no records.
func ExpandComma(srcKey, destKey string) RowGen {
	return func(rec Record) ([]Record, error) {
		v, ok := rec[srcKey]
		if !ok || v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("expandComma: %s is not a string", srcKey)
		}
		var out []Record
		for _, item := range strings.Split(s, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			r := rec.Clone()
			r[destKey] = item
			out = append(out, r)
		}
		return out, nil
	}
}

// ExpandDateRange returns a generator producing one record per step
// between the dates under startKey and endKey (both "2006-01-02" strings
// or time.Time values, inclusive), the timestamp stored under destKey.
func ExpandDateRange(startKey, endKey, destKey string, step time.Duration) RowGen {
	return func(rec Record) ([]Record, error) {
		lo, err := timeField(rec, startKey)
		if err != nil {
			return nil, err
		}
		hi, err := timeField(rec, endKey)
		if err != nil {
			return nil, err
		}
		if step <= 0 {
			return nil, errors.Errorf("expandDateRange: bad step %v", step)
		}
		var out []Record
		for t := lo; !t.After(hi); t = t.Add(step) {
			r := rec.Clone()
			r[destKey] = t
			out = append(out, r)
		}
		return out, nil
	}
}

// RowGenFor resolves a generator by its configured name, as used in
// ingest descriptors.
func RowGenFor(name string, args map[string]string) (RowGen, error) {
	switch name {
	case "expandOnIndex":
		return ExpandOnIndex(args["start"], args["end"], args["dest"]), nil
	case "expandComma":
		return ExpandComma(args["src"], args["dest"]), nil
	case "expandDateRange":
		step := 24 * time.Hour
		if h := args["hours"]; h != "" {
			f, err := strconv.ParseFloat(h, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "expandDateRange hours %q", h)
			}
			step = time.Duration(f * float64(time.Hour))
		}
		return ExpandDateRange(args["start"], args["end"], args["dest"], step), nil
	}
	return nil, errors.Errorf("unknown row generator %q", name)
}

func intField(rec Record, key string) (int64, error) {
	switch v := rec[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	return 0, errors.Errorf("no integer under %q", key)
}

func timeField(rec Record, key string) (time.Time, error) {
	switch v := rec[key].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(v))
		return t, errors.Wrapf(err, "parsing date under %q", key)
	}
	return time.Time{}, errors.Errorf("no date under %q", key)
}
