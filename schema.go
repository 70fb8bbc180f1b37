package cdk

// Column is one column of a target table: a name and a declared type. The
// declared type selects the default value parser used by maps without an
// explicit expression. NullLiteral, when non-empty, is an input string
// that maps to nil instead of being parsed.
type Column struct {
	Name        string
	Type        string
	NullLiteral string
}

// TableDef is the schema collaborator the mapping compiler works against.
type TableDef struct {
	Name    string
	Columns []Column
}

// Column returns the named column.
func (td *TableDef) Column(name string) (Column, bool) {
	for _, c := range td.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (td *TableDef) ColumnNames() []string {
	names := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		names[i] = c.Name
	}
	return names
}
