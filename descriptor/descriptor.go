// Package descriptor loads ingest descriptors: the persisted
// configuration shape declaring a target table, a grammar, and a
// rowmaker. Descriptors are TOML or YAML files read with viper and turned
// into the library objects the ingester runs on.
package descriptor

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	cdk "github.com/heliodc/cdk"
	"github.com/heliodc/cdk/column"
	"github.com/heliodc/cdk/embedded"
	"github.com/heliodc/cdk/kafka"
	"github.com/heliodc/cdk/keyval"
	"github.com/heliodc/cdk/mem"
	"github.com/heliodc/cdk/regex"
)

// Descriptor is one parsed ingest descriptor file.
type Descriptor struct {
	Table    TableSpec
	Grammar  GrammarSpec
	Rowmaker RowmakerSpec
	Procs    []ProcSpec
}

// TableSpec declares the target table.
type TableSpec struct {
	Name      string
	KeyColumn string `mapstructure:"keyColumn"`
	Columns   []ColumnSpec
}

// ColumnSpec declares one column.
type ColumnSpec struct {
	Name        string
	Type        string
	NullLiteral string `mapstructure:"nullLiteral"`
}

// GrammarSpec declares the record source: a kind plus the kind-specific
// options.
type GrammarSpec struct {
	Kind string

	Encoding        string
	TopIgnoredLines int `mapstructure:"topIgnoredLines"`
	Gunzip          bool

	// column kind
	Fields map[string]string

	// regex kind
	RowProduction string `mapstructure:"rowProduction"`
	ParseRE       string `mapstructure:"parseRE"`
	StripTokens   bool   `mapstructure:"stripTokens"`

	// keyval kind
	KVSeparators   string            `mapstructure:"kvSeparators"`
	PairSeparators string            `mapstructure:"pairSeparators"`
	YieldPairs     bool              `mapstructure:"yieldPairs"`
	MapKeys        map[string]string `mapstructure:"mapKeys"`

	// embedded kind
	Generator string

	// kafka kind
	Hosts      []string
	Topics     []string
	Group      string
	MaxRecords int `mapstructure:"maxRecords"`

	IgnoreOn *IgnoreSpec `mapstructure:"ignoreOn"`
	RowGen   *RowGenSpec `mapstructure:"rowgen"`
}

// IgnoreSpec is the flat trigger rendition: the listed conditions are
// or-ed, allOf children are and-ed, noneOf children are or-ed and negated.
type IgnoreSpec struct {
	Name       string
	Bail       bool
	KeyMissing []string          `mapstructure:"keyMissing"`
	KeyPresent []string          `mapstructure:"keyPresent"`
	KeyIs      map[string]string `mapstructure:"keyIs"`
	AllOf      *IgnoreSpec       `mapstructure:"allOf"`
	NoneOf     *IgnoreSpec       `mapstructure:"noneOf"`
}

// RowGenSpec names a registered row generator and its arguments.
type RowGenSpec struct {
	Name string
	Args map[string]string
}

// RowmakerSpec declares the mapping program.
type RowmakerSpec struct {
	Vars []struct {
		Name string
		Expr string
	}
	Maps []struct {
		Dest        string
		Src         string
		Expr        string
		NullOnError bool `mapstructure:"nullOnError"`
	}
	Applies []struct {
		Name string
		Proc string
		Bind map[string]string
	}
	IdMaps     []string          `mapstructure:"idmaps"`
	SimpleMaps map[string]string `mapstructure:"simplemaps"`
	Defaults   map[string]interface{}
}

// ProcSpec declares a local procedure definition.
type ProcSpec struct {
	Name    string
	BasedOn string `mapstructure:"basedOn"`
	Code    string
	Params  []struct {
		Key     string
		Default string
		Late    bool
	}
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Descriptor, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading descriptor %s", path)
	}
	var d Descriptor
	if err := v.Unmarshal(&d); err != nil {
		return nil, errors.Wrapf(err, "decoding descriptor %s", path)
	}
	if d.Table.Name == "" {
		return nil, errors.Errorf("descriptor %s declares no table name", path)
	}
	return &d, nil
}

// TableDef builds the schema object.
func (d *Descriptor) TableDef() *cdk.TableDef {
	td := &cdk.TableDef{Name: d.Table.Name}
	for _, c := range d.Table.Columns {
		td.Columns = append(td.Columns, cdk.Column{
			Name:        c.Name,
			Type:        c.Type,
			NullLiteral: c.NullLiteral,
		})
	}
	return td
}

// Registry builds the procedure registry: the predefined procedures plus
// the descriptor's local definitions.
func (d *Descriptor) Registry() (*cdk.Registry, error) {
	defs := cdk.PredefinedProcs()
	for _, p := range d.Procs {
		def := &cdk.ProcDef{Name: p.Name, BasedOn: p.BasedOn, Code: p.Code}
		for _, par := range p.Params {
			def.Params = append(def.Params, cdk.Param{
				Key:     par.Key,
				Default: par.Default,
				Late:    par.Late,
			})
		}
		defs = append(defs, def)
	}
	return cdk.NewRegistry(defs...)
}

// Program builds the mapping program.
func (d *Descriptor) Program() *cdk.Program {
	p := &cdk.Program{
		Name:       d.Table.Name,
		IdMaps:     d.Rowmaker.IdMaps,
		SimpleMaps: d.Rowmaker.SimpleMaps,
		Defaults:   d.Rowmaker.Defaults,
	}
	for _, v := range d.Rowmaker.Vars {
		p.Vars = append(p.Vars, cdk.VarDef{Name: v.Name, Expr: v.Expr})
	}
	for _, a := range d.Rowmaker.Applies {
		p.Applies = append(p.Applies, cdk.Apply{Name: a.Name, Proc: a.Proc, Bindings: a.Bind})
	}
	for _, m := range d.Rowmaker.Maps {
		p.Maps = append(p.Maps, cdk.MapRule{
			Dest:        m.Dest,
			Src:         m.Src,
			Expr:        m.Expr,
			NullOnError: m.NullOnError,
		})
	}
	return p
}

// BuildGrammar constructs the configured grammar variant.
func (d *Descriptor) BuildGrammar() (cdk.Grammar, error) {
	g := d.Grammar
	opts := cdk.Options{
		Encoding:        g.Encoding,
		TopIgnoredLines: g.TopIgnoredLines,
		Gunzip:          g.Gunzip,
	}
	if g.IgnoreOn != nil {
		ig, err := g.IgnoreOn.build()
		if err != nil {
			return nil, err
		}
		opts.IgnoreOn = ig
	}
	if g.RowGen != nil {
		rg, err := cdk.RowGenFor(g.RowGen.Name, g.RowGen.Args)
		if err != nil {
			return nil, err
		}
		opts.RowGen = rg
	}

	switch g.Kind {
	case "column":
		fields := make(map[string]column.Range, len(g.Fields))
		for key, spec := range g.Fields {
			r, err := column.ParseRange(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", key)
			}
			fields[key] = r
		}
		return &column.Grammar{Fields: fields, Opts: opts}, nil
	case "regex":
		parseRE, err := regexp.Compile(g.ParseRE)
		if err != nil {
			return nil, errors.Wrap(err, "bad parseRE")
		}
		gr := &regex.Grammar{ParseRE: parseRE, StripTokens: g.StripTokens, Opts: opts}
		if g.RowProduction != "" {
			if gr.RowProduction, err = regexp.Compile(g.RowProduction); err != nil {
				return nil, errors.Wrap(err, "bad rowProduction")
			}
		}
		return gr, nil
	case "keyval":
		return &keyval.Grammar{
			KVSeparators:   g.KVSeparators,
			PairSeparators: g.PairSeparators,
			YieldPairs:     g.YieldPairs,
			MapKeys:        g.MapKeys,
			Opts:           opts,
		}, nil
	case "mem":
		return &mem.Grammar{Opts: opts}, nil
	case "embedded":
		return &embedded.Grammar{Generator: g.Generator, Opts: opts}, nil
	case "kafka":
		kg := kafka.NewGrammar()
		if len(g.Hosts) > 0 {
			kg.Hosts = g.Hosts
		}
		if len(g.Topics) > 0 {
			kg.Topics = g.Topics
		}
		if g.Group != "" {
			kg.Group = g.Group
		}
		kg.MaxRecords = g.MaxRecords
		kg.Opts = opts
		return kg, nil
	}
	return nil, errors.Errorf("unknown grammar kind %q", g.Kind)
}

func (s *IgnoreSpec) build() (*cdk.IgnoreOn, error) {
	triggers, err := s.triggers()
	if err != nil {
		return nil, err
	}
	return &cdk.IgnoreOn{Name: s.Name, Bail: s.Bail, Triggers: triggers}, nil
}

func (s *IgnoreSpec) triggers() ([]cdk.Trigger, error) {
	var out []cdk.Trigger
	for _, k := range s.KeyMissing {
		out = append(out, cdk.KeyMissing{Key: k})
	}
	for _, k := range s.KeyPresent {
		out = append(out, cdk.KeyPresent{Key: k})
	}
	for k, v := range s.KeyIs {
		out = append(out, cdk.KeyIs{Key: k, Value: v})
	}
	if s.AllOf != nil {
		children, err := s.AllOf.triggers()
		if err != nil {
			return nil, err
		}
		out = append(out, cdk.And(children))
	}
	if s.NoneOf != nil {
		children, err := s.NoneOf.triggers()
		if err != nil {
			return nil, err
		}
		out = append(out, cdk.Not(children))
	}
	if len(out) == 0 {
		return nil, errors.New("ignoreOn declares no conditions")
	}
	return out, nil
}

// Compile builds everything an ingest run needs from the descriptor.
func (d *Descriptor) Compile() (cdk.Grammar, *cdk.Rowmaker, *cdk.TableDef, error) {
	reg, err := d.Registry()
	if err != nil {
		return nil, nil, nil, err
	}
	grammar, err := d.BuildGrammar()
	if err != nil {
		return nil, nil, nil, err
	}
	td := d.TableDef()
	rm, err := d.Program().Compile(td, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return grammar, rm, td, nil
}
