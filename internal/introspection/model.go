package introspection

import (
	"context"
	"database/sql"
)

// Column represents a database column.
type Column struct {
	Name         string
	Type         TypeDescriptor
	IsPrimaryKey bool
	IsNullable   bool
	HasDefault   bool
}

// ForeignKey represents a single-column foreign key constraint. FKs hold
// table names rather than handles so cyclic references stay representable;
// consumers resolve names against the model's table map.
type ForeignKey struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
}

// Table represents a database table or view.
type Table struct {
	Name        string
	IsView      bool
	Columns     []Column
	ForeignKeys []ForeignKey
}

// EnumType is a custom enum type with its ordered labels.
type EnumType struct {
	Schema string
	Name   string
	Values []string
}

// CompositeAttribute is one typed attribute of a composite type.
type CompositeAttribute struct {
	Name     string
	Type     TypeDescriptor
	Order    int
	Nullable bool
}

// CompositeType is a custom composite (record) type.
type CompositeType struct {
	Schema     string
	Name       string
	Attributes []CompositeAttribute
}

// Model is the full introspected description of one database schema.
type Model struct {
	SchemaName string
	Tables     []Table
	Enums      map[string]EnumType
	Composites map[string]CompositeType
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Table returns the table with the given name, if present.
func (m *Model) Table(name string) (*Table, bool) {
	for i := range m.Tables {
		if m.Tables[i].Name == name {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

// Column returns the column with the given name, if present.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKeyColumns returns the table's primary key columns in declaration
// order. Views never have any.
func (t *Table) PrimaryKeyColumns() []Column {
	var pks []Column
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// ColumnNames returns the ordered list of column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// ReverseForeignKeys returns the FKs of other tables that reference t.
func (m *Model) ReverseForeignKeys(t *Table) map[string][]ForeignKey {
	out := make(map[string][]ForeignKey)
	for _, other := range m.Tables {
		if other.Name == t.Name {
			continue
		}
		for _, fk := range other.ForeignKeys {
			if fk.ReferencedTable == t.Name {
				out[other.Name] = append(out[other.Name], fk)
			}
		}
	}
	return out
}
