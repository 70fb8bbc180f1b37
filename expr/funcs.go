package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultFuncs returns the standard function library available to rule
// bodies. The returned map is fresh per call so callers may extend it
// without affecting anyone else.
func DefaultFuncs() map[string]Func {
	return map[string]Func{
		"parseInt":   fnParseInt,
		"parseFloat": fnParseFloat,
		"int":        fnInt,
		"float":      fnFloat,
		"str":        fnStr,
		"trim":       stringFn("trim", strings.TrimSpace),
		"upper":      stringFn("upper", strings.ToUpper),
		"lower":      stringFn("lower", strings.ToLower),
		"substr":     fnSubstr,
		"length":     fnLength,
		"concat":     fnConcat,
		"coalesce":   fnCoalesce,
		"abs":        fnAbs,
		"round":      fnRound,
		"iif":        fnIif,
	}
}

func one(args []interface{}, name string) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("%s takes one argument, got %d", name, len(args))
	}
	return args[0], nil
}

func fnParseInt(args []interface{}) (interface{}, error) {
	v, err := one(args, "parseInt")
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("parseInt needs a string, got %T", v)
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func fnParseFloat(args []interface{}) (interface{}, error) {
	v, err := one(args, "parseFloat")
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("parseFloat needs a string, got %T", v)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fnInt(args []interface{}) (interface{}, error) {
	v, err := one(args, "int")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, errors.Errorf("cannot make an integer from %T", v)
}

func fnFloat(args []interface{}) (interface{}, error) {
	v, err := one(args, "float")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return nil, errors.Errorf("cannot make a float from %T", v)
}

func fnStr(args []interface{}) (interface{}, error) {
	v, err := one(args, "str")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}

func stringFn(name string, f func(string) string) Func {
	return func(args []interface{}) (interface{}, error) {
		v, err := one(args, name)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("%s needs a string, got %T", name, v)
		}
		return f(s), nil
	}
}

func fnSubstr(args []interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, errors.Errorf("substr takes (string, start, end), got %d args", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, errors.Errorf("substr needs a string, got %T", args[0])
	}
	lo, lok := args[1].(int64)
	hi, hok := args[2].(int64)
	if !lok || !hok {
		return nil, errors.New("substr bounds must be integers")
	}
	if lo < 0 || hi > int64(len(s)) || lo > hi {
		return nil, errors.Errorf("substr bounds %d:%d out of range for %d chars", lo, hi, len(s))
	}
	return s[lo:hi], nil
}

func fnLength(args []interface{}) (interface{}, error) {
	v, err := one(args, "length")
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("length needs a string, got %T", v)
	}
	return int64(len(s)), nil
}

func fnConcat(args []interface{}) (interface{}, error) {
	var b strings.Builder
	for _, a := range args {
		if a == nil {
			continue
		}
		fmt.Fprintf(&b, "%v", a)
	}
	return b.String(), nil
}

func fnCoalesce(args []interface{}) (interface{}, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func fnAbs(args []interface{}) (interface{}, error) {
	v, err := one(args, "abs")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, errors.Errorf("abs needs a number, got %T", v)
}

func fnRound(args []interface{}) (interface{}, error) {
	v, err := one(args, "round")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return math.Round(x), nil
	}
	return nil, errors.Errorf("round needs a number, got %T", v)
}

func fnIif(args []interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, errors.Errorf("iif takes (cond, then, else), got %d args", len(args))
	}
	c, ok := args[0].(bool)
	if !ok {
		return nil, errors.Errorf("iif condition must be boolean, got %T", args[0])
	}
	if c {
		return args[1], nil
	}
	return args[2], nil
}
