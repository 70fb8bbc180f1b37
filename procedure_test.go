package cdk

import (
	"strings"
	"testing"

	"github.com/heliodc/cdk/expr"
)

func TestMergeParams(t *testing.T) {
	base := []Param{{Key: "a", Default: "1"}, {Key: "b", Default: "2"}}
	override := []Param{{Key: "c", Default: "3"}, {Key: "a", Default: "9", Late: true}}
	merged := MergeParams(base, override)
	if len(merged) != 3 {
		t.Fatalf("expected 3 params, got %d", len(merged))
	}
	// Overridden keys keep the base position.
	if merged[0].Key != "a" || merged[0].Default != "9" || !merged[0].Late {
		t.Fatalf("override not applied in place: %+v", merged[0])
	}
	if merged[1].Key != "b" || merged[2].Key != "c" {
		t.Fatalf("param order wrong: %+v", merged)
	}
	// The inputs stay untouched.
	if base[0].Default != "1" {
		t.Fatalf("base params were mutated")
	}
}

func TestRegistryInheritance(t *testing.T) {
	reg, err := NewRegistry(
		&ProcDef{
			Name:   "scale",
			Params: []Param{{Key: "factor", Default: "1"}, {Key: "src", Late: true}},
			Code:   "result.scaled = src * factor",
		},
		&ProcDef{
			Name:    "double",
			BasedOn: "scale",
			Params:  []Param{{Key: "factor", Default: "2"}},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := reg.Lookup("double")
	if !ok {
		t.Fatalf("double not registered")
	}
	if len(d.Params) != 2 || d.Params[0].Default != "2" {
		t.Fatalf("inherited params wrong: %+v", d.Params)
	}
	if d.Code != "result.scaled = src * factor" {
		t.Fatalf("body not inherited: %q", d.Code)
	}
}

func TestRegistryCycle(t *testing.T) {
	_, err := NewRegistry(
		&ProcDef{Name: "a", BasedOn: "b"},
		&ProcDef{Name: "b", BasedOn: "a"},
	)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
	_, err = NewRegistry(&ProcDef{Name: "a", BasedOn: "ghost"})
	if err == nil {
		t.Fatalf("dangling basedOn should fail")
	}
}

func applyOver(t *testing.T, a Apply, reg *Registry, rec Record) map[string]interface{} {
	t.Helper()
	run, err := a.compile(reg, expr.DefaultFuncs(), func(s string) string { return s })
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	env := &expr.Env{Rec: rec, Result: map[string]interface{}{}, Funcs: expr.DefaultFuncs()}
	if err := run(env); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return env.Result
}

func TestApplyLateVsEarly(t *testing.T) {
	reg, err := NewRegistry(&ProcDef{
		Name: "probe",
		Params: []Param{
			{Key: "fixed", Default: "1"},
			{Key: "cur", Default: "0", Late: true},
		},
		Run: func(env *expr.Env, args map[string]interface{}) error {
			env.Result["fixed"] = args["fixed"]
			env.Result["cur"] = args["cur"]
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := Apply{Name: "probe1", Proc: "probe", Bindings: map[string]string{"cur": "mag"}}
	run, err := a.compile(reg, expr.DefaultFuncs(), func(s string) string { return s })
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	// The late binding re-evaluates per row; the early one is a constant.
	for _, want := range []string{"12.5", "9.1"} {
		env := &expr.Env{Rec: Record{"mag": want}, Result: map[string]interface{}{}, Funcs: expr.DefaultFuncs()}
		if err := run(env); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if env.Result["cur"] != want {
			t.Fatalf("late parameter stale: got %v, want %v", env.Result["cur"], want)
		}
		if env.Result["fixed"] != int64(1) {
			t.Fatalf("early parameter wrong: %v", env.Result["fixed"])
		}
	}
}

func TestApplyBindingErrors(t *testing.T) {
	reg, err := NewRegistry(&ProcDef{
		Name:   "needs",
		Params: []Param{{Key: "must"}},
		Code:   "result.x = must",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expand := func(s string) string { return s }

	a := Apply{Name: "bad", Proc: "needs", Bindings: map[string]string{"typo": "1"}}
	if _, err := a.compile(reg, expr.DefaultFuncs(), expand); err == nil {
		t.Fatalf("binding an unknown parameter should fail at compile time")
	}

	a = Apply{Name: "unbound", Proc: "needs"}
	if _, err := a.compile(reg, expr.DefaultFuncs(), expand); err == nil {
		t.Fatalf("leaving a required parameter unbound should fail at compile time")
	}

	a = Apply{Name: "ghost", Proc: "doesNotExist"}
	if _, err := a.compile(reg, expr.DefaultFuncs(), expand); err == nil {
		t.Fatalf("unknown procedure should fail at compile time")
	}
}

func TestApplyScriptBody(t *testing.T) {
	reg, err := NewRegistry(&ProcDef{
		Name: "magToFlux",
		Params: []Param{
			{Key: "mag", Late: true},
			{Key: "zero", Default: "0.0"},
		},
		Code: "result.flux = zero - mag",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := applyOver(t, Apply{
		Name:     "flux",
		Proc:     "magToFlux",
		Bindings: map[string]string{"mag": "parseFloat(rawmag)"},
	}, reg, Record{"rawmag": " 4.5 "})
	if res["flux"] != -4.5 {
		t.Fatalf("script body result wrong: %v", res["flux"])
	}
}

func TestGeohashCell(t *testing.T) {
	reg, err := NewRegistry(PredefinedProcs()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := applyOver(t, Apply{
		Name: "cell",
		Proc: "geohashCell",
		Bindings: map[string]string{
			"lat":   "parseFloat(dec)",
			"lon":   "parseFloat(ra)",
			"chars": "5",
		},
	}, reg, Record{"dec": "48.669", "ra": "-4.329"})
	cell, ok := res["geohash"].(string)
	if !ok || len(cell) != 5 {
		t.Fatalf("expected a 5 char geohash, got %v", res["geohash"])
	}
	if cell != "gbsuv" {
		t.Fatalf("wrong cell for Brest: %q", cell)
	}
}
