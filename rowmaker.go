package cdk

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/heliodc/cdk/expr"
)

// MapRule maps one destination column. The source is either Src, a key of
// the input record whose string value is run through the destination
// type's default parser, or Expr, an expression whose value is stored
// untouched; exactly one of the two must be set. With NullOnError set, a
// missing key or failed parse yields nil instead of rejecting the row.
type MapRule struct {
	Dest        string
	Src         string
	Expr        string
	NullOnError bool
}

// VarDef defines a named intermediate value. Variables land in the input
// namespace and are visible to everything declared after them.
type VarDef struct {
	Name string
	Expr string
}

// Program is the declarative specification of how records become table
// rows: variables, procedure applications and column maps in declaration
// order, default values for missing input keys, and glob patterns naming
// columns that are mapped through unchanged.
type Program struct {
	Name       string
	Vars       []VarDef
	Applies    []Apply
	Maps       []MapRule
	IdMaps     []string
	SimpleMaps map[string]string
	Defaults   map[string]interface{}

	// Expand, when set, is applied to every rule body once, at compile
	// time, before parsing; the enclosing configuration uses it for macro
	// expansion.
	Expand func(string) string
}

// IdentityProgram returns a program that maps every column of the target
// table from the same-named input key.
func IdentityProgram() *Program {
	return &Program{IdMaps: []string{"*"}}
}

type opKind int

const (
	opVar opKind = iota
	opApply
	opMap
)

// operation is one step of a compiled rowmaker: a kind, the name of the
// declarative rule it implements (for error attribution), and the step
// itself.
type operation struct {
	kind  opKind
	label string
	run   func(env *expr.Env) error
}

// Rowmaker is the compiled, executable form of a Program bound to one
// target table. It is immutable and may be shared across goroutines; each
// Run call works on its own namespaces.
type Rowmaker struct {
	name     string
	ops      []operation
	defaults map[string]interface{}
	funcs    map[string]expr.Func
}

// Compile binds the program to a target table. All configuration errors
// (unknown destination, unmatched idmap pattern, unknown column type, bad
// procedure binding, unparseable rule body) surface here; no partial
// Rowmaker is ever returned.
func (p *Program) Compile(td *TableDef, reg *Registry) (*Rowmaker, error) {
	expand := p.Expand
	if expand == nil {
		expand = func(s string) string { return s }
	}
	funcs := expr.DefaultFuncs()

	maps, err := p.resolveMaps(td)
	if err != nil {
		return nil, err
	}

	rm := &Rowmaker{
		name:     p.Name,
		defaults: p.Defaults,
		funcs:    funcs,
	}

	for _, v := range p.Vars {
		if !isName(v.Name) {
			return nil, errors.Errorf("bad variable name %q", v.Name)
		}
		node, err := expr.Parse(expand(v.Expr))
		if err != nil {
			return nil, errors.Wrapf(err, "variable %s", v.Name)
		}
		name := v.Name
		rm.ops = append(rm.ops, operation{
			kind:  opVar,
			label: name,
			run: func(env *expr.Env) error {
				v, err := node.Eval(env)
				if err != nil {
					return err
				}
				env.Rec[name] = v
				return nil
			},
		})
	}

	for i := range p.Applies {
		a := &p.Applies[i]
		if a.Name == "" {
			return nil, errors.Errorf("apply #%d has no name", i)
		}
		run, err := a.compile(reg, funcs, expand)
		if err != nil {
			return nil, err
		}
		rm.ops = append(rm.ops, operation{kind: opApply, label: a.Name, run: run})
	}

	for _, m := range maps {
		op, err := m.compile(td, funcs, expand)
		if err != nil {
			return nil, err
		}
		rm.ops = append(rm.ops, op)
	}
	return rm, nil
}

// resolveMaps expands the simple-map shorthand and the idmaps patterns
// into explicit map rules and validates every destination against the
// table.
func (p *Program) resolveMaps(td *TableDef) ([]MapRule, error) {
	maps := make([]MapRule, 0, len(p.Maps)+len(p.SimpleMaps))
	maps = append(maps, p.Maps...)
	for dest, src := range p.SimpleMaps {
		r := MapRule{Dest: dest, Src: src}
		if strings.HasPrefix(src, "@") {
			r.Src, r.NullOnError = src[1:], true
		}
		maps = append(maps, r)
	}

	mapped := make(map[string]bool, len(maps))
	for _, m := range maps {
		mapped[m.Dest] = true
	}
	names := td.ColumnNames()
	for _, pattern := range p.IdMaps {
		hit := false
		for _, name := range names {
			ok, err := path.Match(pattern, name)
			if err != nil {
				return nil, errors.Wrapf(err, "bad idmaps pattern %q", pattern)
			}
			if !ok {
				continue
			}
			hit = true
			if !mapped[name] {
				maps = append(maps, MapRule{Dest: name, Src: name})
				mapped[name] = true
			}
		}
		if !hit {
			return nil, errors.Errorf("idmaps pattern %q matches no column of %s", pattern, td.Name)
		}
	}

	for _, m := range maps {
		if _, ok := td.Column(m.Dest); !ok {
			return nil, errors.Errorf("cannot map to %q: no such column in %s", m.Dest, td.Name)
		}
	}
	return maps, nil
}

func (m MapRule) compile(td *TableDef, funcs map[string]expr.Func, expand func(string) string) (operation, error) {
	if (m.Src == "") == (m.Expr == "") {
		return operation{}, errors.Errorf("map %s must have exactly one of src or expr", m.Dest)
	}
	dest := m.Dest
	if m.Expr != "" {
		node, err := expr.Parse(expand(m.Expr))
		if err != nil {
			return operation{}, errors.Wrapf(err, "map %s", dest)
		}
		nullOnError := m.NullOnError
		return operation{kind: opMap, label: dest, run: func(env *expr.Env) error {
			v, err := node.Eval(env)
			if err != nil {
				if nullOnError {
					env.Result[dest] = nil
					return nil
				}
				return err
			}
			env.Result[dest] = v
			return nil
		}}, nil
	}

	col, _ := td.Column(dest)
	parser, err := ParserForType(col.Type)
	if err != nil {
		return operation{}, errors.Wrapf(err, "map %s", dest)
	}
	src, nullLit, nullOnError := m.Src, col.NullLiteral, m.NullOnError
	return operation{kind: opMap, label: dest, run: func(env *expr.Env) error {
		raw, ok := env.Rec[src]
		if !ok {
			if nullOnError {
				env.Result[dest] = nil
				return nil
			}
			return errors.Errorf("key %q not found; the grammar did not yield the required field", src)
		}
		s, isStr := raw.(string)
		if !isStr {
			// Typed values from row generators or variables pass through.
			env.Result[dest] = raw
			return nil
		}
		if nullLit != "" && s == nullLit {
			env.Result[dest] = nil
			return nil
		}
		v, err := parser.Parse(s)
		if err != nil {
			if nullOnError {
				env.Result[dest] = nil
				return nil
			}
			return err
		}
		env.Result[dest] = v
		return nil
	}}, nil
}

// Run maps one record to one output row. Defaults are filled in for
// missing keys, then the operations run in declaration order; the first
// failing operation rejects the row with a ValidationError naming that
// operation's rule, never a neighboring one.
func (rm *Rowmaker) Run(rec Record) (map[string]interface{}, error) {
	vars := rec.Clone()
	for k, v := range rm.defaults {
		if !vars.Has(k) {
			vars[k] = cloneDefault(v)
		}
	}
	env := &expr.Env{
		Rec:    vars,
		Result: make(map[string]interface{}),
		Funcs:  rm.funcs,
	}
	for _, op := range rm.ops {
		if err := op.run(env); err != nil {
			return nil, &ValidationError{
				Label:  op.label,
				Err:    err,
				Record: vars.Sanitized(),
			}
		}
	}
	return env.Result, nil
}

// cloneDefault shallow-copies map and slice typed defaults so no two Run
// calls ever share a mutable value. Descriptor-decoded defaults arrive as
// plain maps, not Records.
func cloneDefault(v interface{}) interface{} {
	switch x := v.(type) {
	case Record:
		return x.Clone()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		copy(out, x)
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	}
	return v
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
