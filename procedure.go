package cdk

import (
	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"

	"github.com/heliodc/cdk/expr"
)

// Param is one parameter of a procedure definition. Default is an
// expression source; an empty Default means the caller must bind the
// parameter. Late parameters are evaluated per row, inside the mapping
// step, so their expressions may reference the current record and
// variables; the others are evaluated once at compile time.
type Param struct {
	Key     string
	Default string
	Late    bool
}

// ProcFunc is the native form of a procedure body.
type ProcFunc func(env *expr.Env, args map[string]interface{}) error

// ProcDef is a named, reusable transform unit. Its body is either Code, a
// script in the embedded language, or Run, a native Go function; exactly
// one of the two (an inheriting definition may leave both empty and take
// the base's body). ProcDefs are immutable once registered.
type ProcDef struct {
	Name    string
	Params  []Param
	Code    string
	Run     ProcFunc
	BasedOn string
}

// MergeParams layers override parameters over base ones: a duplicate key
// replaces the base default (and late flag) but keeps the base position,
// new keys are appended in their own order.
func MergeParams(base, override []Param) []Param {
	out := make([]Param, len(base))
	copy(out, base)
	for _, p := range override {
		replaced := false
		for i := range out {
			if out[i].Key == p.Key {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// Registry is an immutable name-to-definition map. BasedOn references are
// resolved once, at construction; the registry is never mutated afterwards
// and is safe for concurrent readers.
type Registry struct {
	defs map[string]*ProcDef
}

// NewRegistry builds a registry from defs, resolving inheritance. It
// fails on duplicate names, dangling BasedOn references, and inheritance
// cycles.
func NewRegistry(defs ...*ProcDef) (*Registry, error) {
	byName := make(map[string]*ProcDef, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("procedure definition without a name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, errors.Errorf("duplicate procedure %q", d.Name)
		}
		byName[d.Name] = d
	}
	r := &Registry{defs: make(map[string]*ProcDef, len(defs))}
	for _, d := range defs {
		resolved, err := resolveDef(d, byName, map[string]bool{})
		if err != nil {
			return nil, err
		}
		r.defs[d.Name] = resolved
	}
	return r, nil
}

func resolveDef(d *ProcDef, byName map[string]*ProcDef, seen map[string]bool) (*ProcDef, error) {
	if d.BasedOn == "" {
		return d, nil
	}
	if seen[d.Name] {
		return nil, errors.Errorf("procedure inheritance cycle through %q", d.Name)
	}
	seen[d.Name] = true
	base, ok := byName[d.BasedOn]
	if !ok {
		return nil, errors.Errorf("procedure %q based on unknown %q", d.Name, d.BasedOn)
	}
	base, err := resolveDef(base, byName, seen)
	if err != nil {
		return nil, err
	}
	out := &ProcDef{
		Name:   d.Name,
		Params: MergeParams(base.Params, d.Params),
		Code:   d.Code,
		Run:    d.Run,
	}
	if out.Code == "" && out.Run == nil {
		out.Code, out.Run = base.Code, base.Run
	}
	return out, nil
}

// Lookup returns the resolved definition registered under name.
func (r *Registry) Lookup(name string) (*ProcDef, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.defs[name]
	return d, ok
}

// Apply is one concrete use of a procedure: a name for error attribution,
// a reference into the registry (or an inline definition), and bindings
// for the definition's parameters.
type Apply struct {
	Name     string
	Proc     string
	Def      *ProcDef
	Bindings map[string]string
}

// compiledParam is one merged parameter after binding resolution.
type compiledParam struct {
	key   string
	value interface{} // early: the constant
	late  expr.Node   // late: re-evaluated per row
}

// compile resolves the apply against the registry and returns the per-row
// closure. Binding errors (unbound required parameter, binding to an
// unknown parameter) surface here, at compile time.
func (a *Apply) compile(reg *Registry, funcs map[string]expr.Func, expand func(string) string) (func(env *expr.Env) error, error) {
	def := a.Def
	if def == nil {
		d, ok := reg.Lookup(a.Proc)
		if !ok {
			return nil, errors.Errorf("apply %s references unknown procedure %q", a.Name, a.Proc)
		}
		def = d
	}

	known := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		known[p.Key] = true
	}
	for k := range a.Bindings {
		if !known[k] {
			return nil, errors.Errorf("apply %s binds unknown parameter %q of %q", a.Name, k, def.Name)
		}
	}

	earlyEnv := &expr.Env{Funcs: funcs}
	params := make([]compiledParam, 0, len(def.Params))
	for _, p := range def.Params {
		src, bound := a.Bindings[p.Key]
		if !bound {
			if p.Default == "" {
				return nil, errors.Errorf("apply %s leaves required parameter %q of %q unbound",
					a.Name, p.Key, def.Name)
			}
			src = p.Default
		}
		node, err := expr.Parse(expand(src))
		if err != nil {
			return nil, errors.Wrapf(err, "apply %s, parameter %q", a.Name, p.Key)
		}
		if p.Late {
			params = append(params, compiledParam{key: p.Key, late: node})
			continue
		}
		v, err := node.Eval(earlyEnv)
		if err != nil {
			return nil, errors.Wrapf(err, "apply %s, early parameter %q", a.Name, p.Key)
		}
		params = append(params, compiledParam{key: p.Key, value: v})
	}

	var body []expr.Stmt
	if def.Run == nil {
		stmts, err := expr.ParseProgram(expand(def.Code))
		if err != nil {
			return nil, errors.Wrapf(err, "apply %s, body of %q", a.Name, def.Name)
		}
		body = stmts
	}
	run := def.Run

	return func(env *expr.Env) error {
		args := make(map[string]interface{}, len(params))
		env.Locals = args
		defer func() { env.Locals = nil }()
		for _, p := range params {
			if p.late == nil {
				args[p.key] = p.value
				continue
			}
			v, err := p.late.Eval(env)
			if err != nil {
				return errors.Wrapf(err, "late parameter %q", p.key)
			}
			args[p.key] = v
		}
		if run != nil {
			return run(env, args)
		}
		return expr.Run(body, env)
	}, nil
}

// PredefinedProcs returns the definitions every registry starts from.
func PredefinedProcs() []*ProcDef {
	return []*ProcDef{
		{
			Name: "geohashCell",
			Params: []Param{
				{Key: "lat", Late: true},
				{Key: "lon", Late: true},
				{Key: "dest", Default: `"geohash"`},
				{Key: "chars", Default: "12"},
			},
			Run: procGeohashCell,
		},
	}
}

// procGeohashCell stores the geohash cell of a lat/lon pair into the
// result row, for coarse spatial bucketing of catalog positions.
func procGeohashCell(env *expr.Env, args map[string]interface{}) error {
	lat, err := floatArg(args, "lat")
	if err != nil {
		return err
	}
	lon, err := floatArg(args, "lon")
	if err != nil {
		return err
	}
	dest, _ := args["dest"].(string)
	if dest == "" {
		return errors.New("geohashCell: dest must be a string")
	}
	chars, ok := args["chars"].(int64)
	if !ok || chars < 1 || chars > 12 {
		return errors.Errorf("geohashCell: chars must be 1..12, got %v", args["chars"])
	}
	env.Result[dest] = geohash.EncodeWithPrecision(lat, lon, uint(chars))
	return nil
}

func floatArg(args map[string]interface{}, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, errors.Errorf("geohashCell: %s must be numeric, got %T", key, args[key])
}
