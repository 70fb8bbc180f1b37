// Package expr implements the small expression language used in rule
// bodies: variable definitions, explicit map sources, procedure parameter
// defaults and bindings. Expressions are parsed once into an AST and
// evaluated per row against an Env; there is no code generation.
package expr

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Func is a builtin function callable from expressions.
type Func func(args []interface{}) (interface{}, error)

// Env is the namespace an expression is evaluated in. Rec holds the input
// record plus any variables defined so far; Result is the in-progress
// output row, readable as result.<name>; Locals holds procedure arguments
// and shadows Rec.
type Env struct {
	Rec    map[string]interface{}
	Result map[string]interface{}
	Locals map[string]interface{}
	Funcs  map[string]Func
}

// Lookup resolves a bare name, Locals first.
func (e *Env) Lookup(name string) (interface{}, error) {
	if e.Locals != nil {
		if v, ok := e.Locals[name]; ok {
			return v, nil
		}
	}
	if e.Rec != nil {
		if v, ok := e.Rec[name]; ok {
			return v, nil
		}
	}
	return nil, errors.Errorf("name %q not defined", name)
}

// Node is one tagged AST node.
type Node interface {
	Eval(env *Env) (interface{}, error)
}

// Lit is a literal value (number, string, bool, nil).
type Lit struct {
	Val interface{}
}

func (n *Lit) Eval(env *Env) (interface{}, error) { return n.Val, nil }

// Ref reads a bare name from the environment.
type Ref struct {
	Name string
}

func (n *Ref) Eval(env *Env) (interface{}, error) { return env.Lookup(n.Name) }

// ResultRef reads a field of the in-progress result row.
type ResultRef struct {
	Name string
}

func (n *ResultRef) Eval(env *Env) (interface{}, error) {
	if env.Result == nil {
		return nil, errors.Errorf("no result row to read %q from", n.Name)
	}
	v, ok := env.Result[n.Name]
	if !ok {
		return nil, errors.Errorf("result field %q not set", n.Name)
	}
	return v, nil
}

// Call applies a builtin function.
type Call struct {
	Name string
	Args []Node
}

func (n *Call) Eval(env *Env) (interface{}, error) {
	fn, ok := env.Funcs[n.Name]
	if !ok {
		return nil, errors.Errorf("unknown function %q", n.Name)
	}
	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := fn(args)
	return v, errors.Wrapf(err, "in %s()", n.Name)
}

// Unary is - or ! applied to one operand.
type Unary struct {
	Op string
	X  Node
}

func (n *Unary) Eval(env *Env) (interface{}, error) {
	v, err := n.X.Eval(env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "-":
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, errors.Errorf("cannot negate %T", v)
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("! needs a boolean, got %T", v)
		}
		return !b, nil
	}
	return nil, errors.Errorf("unknown unary operator %q", n.Op)
}

// Binary is an infix operation. && and || short-circuit.
type Binary struct {
	Op   string
	L, R Node
}

func (n *Binary) Eval(env *Env) (interface{}, error) {
	if n.Op == "&&" || n.Op == "||" {
		return n.evalLogic(env)
	}
	l, err := n.L.Eval(env)
	if err != nil {
		return nil, err
	}
	r, err := n.R.Eval(env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "+", "-", "*", "/", "%":
		return evalArith(n.Op, l, r)
	case "==", "!=", "<", "<=", ">", ">=":
		return evalCompare(n.Op, l, r)
	}
	return nil, errors.Errorf("unknown operator %q", n.Op)
}

func (n *Binary) evalLogic(env *Env) (interface{}, error) {
	l, err := n.L.Eval(env)
	if err != nil {
		return nil, err
	}
	lb, ok := l.(bool)
	if !ok {
		return nil, errors.Errorf("%s needs booleans, got %T", n.Op, l)
	}
	if n.Op == "&&" && !lb {
		return false, nil
	}
	if n.Op == "||" && lb {
		return true, nil
	}
	r, err := n.R.Eval(env)
	if err != nil {
		return nil, err
	}
	rb, ok := r.(bool)
	if !ok {
		return nil, errors.Errorf("%s needs booleans, got %T", n.Op, r)
	}
	return rb, nil
}

func evalArith(op string, l, r interface{}) (interface{}, error) {
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok && op == "+" {
			return ls + rs, nil
		}
	}
	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, errors.New("division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, errors.New("division by zero")
			}
			return li % ri, nil
		}
	}
	lf, err := toFloat(l)
	if err != nil {
		return nil, errors.Wrapf(err, "left operand of %s", op)
	}
	rf, err := toFloat(r)
	if err != nil {
		return nil, errors.Wrapf(err, "right operand of %s", op)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errors.New("division by zero")
		}
		return lf / rf, nil
	case "%":
		return math.Mod(lf, rf), nil
	}
	return nil, errors.Errorf("unknown operator %q", op)
}

func evalCompare(op string, l, r interface{}) (interface{}, error) {
	if ls, lok := l.(string); lok {
		if rs, rok := r.(string); rok {
			switch op {
			case "==":
				return ls == rs, nil
			case "!=":
				return ls != rs, nil
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
	}
	if l == nil || r == nil {
		switch op {
		case "==":
			return l == r, nil
		case "!=":
			return l != r, nil
		}
		return nil, errors.Errorf("cannot order nil with %s", op)
	}
	lf, err := toFloat(l)
	if err != nil {
		return nil, errors.Wrapf(err, "left operand of %s", op)
	}
	rf, err := toFloat(r)
	if err != nil {
		return nil, errors.Wrapf(err, "right operand of %s", op)
	}
	switch op {
	case "==":
		return lf == rf, nil
	case "!=":
		return lf != rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, errors.Errorf("unknown operator %q", op)
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, errors.Errorf("not a number: %v (%T)", v, v)
}

// Stmt is one statement of a procedure body: an assignment either into
// the variable namespace (x = ...) or into the result row (result.x = ...).
type Stmt struct {
	Target     string
	IntoResult bool
	X          Node
}

// Run executes a parsed statement sequence against env.
func Run(stmts []Stmt, env *Env) error {
	for _, s := range stmts {
		v, err := s.X.Eval(env)
		if err != nil {
			return err
		}
		if s.IntoResult {
			env.Result[s.Target] = v
		} else {
			env.Rec[s.Target] = v
		}
	}
	return nil
}

func (s Stmt) String() string {
	if s.IntoResult {
		return fmt.Sprintf("result.%s = ...", s.Target)
	}
	return fmt.Sprintf("%s = ...", s.Target)
}
