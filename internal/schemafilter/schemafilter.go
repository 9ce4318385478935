// Package schemafilter derives role-scoped database models. The golden model
// is reflected once with a privileged connection; this package intersects it
// with a role's privileges to produce the model the generator may expose.
package schemafilter

import (
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/privileges"
)

// ColumnCapabilities are the per-column operations the role may perform.
type ColumnCapabilities struct {
	CanSelect bool
	CanInsert bool
	CanUpdate bool
}

// TableCapabilities are the per-table operations the role may perform. The
// generator consults these to decide which root fields and mutations to emit.
type TableCapabilities struct {
	CanQuery  bool
	CanCreate bool
	CanUpdate bool
	CanDelete bool
	HasRls    bool
	Columns   map[string]ColumnCapabilities
}

// Capabilities maps table name to its capabilities in the filtered model.
type Capabilities map[string]TableCapabilities

// Filter is a pure function from the golden model and a role's privileges to
// the model visible to that role. Tables without any privilege are dropped,
// columns are kept when the role may select them, and foreign keys survive
// only when both endpoints do.
func Filter(model *introspection.Model, privs *privileges.RolePrivileges) (*introspection.Model, Capabilities) {
	filtered := &introspection.Model{
		SchemaName: model.SchemaName,
		Enums:      model.Enums,
		Composites: model.Composites,
	}
	caps := make(Capabilities)

	keptColumns := make(map[string]map[string]bool)

	for _, table := range model.Tables {
		if !privs.HasAnyPrivilege(table.Name) {
			continue
		}

		columnCaps := make(map[string]ColumnCapabilities, len(table.Columns))
		var columns []introspection.Column
		kept := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			cc := ColumnCapabilities{
				CanSelect: privs.HasColumn(table.Name, col.Name, privileges.OpSelect),
				CanInsert: privs.HasColumn(table.Name, col.Name, privileges.OpInsert),
				CanUpdate: privs.HasColumn(table.Name, col.Name, privileges.OpUpdate),
			}
			if !cc.CanSelect {
				continue
			}
			columns = append(columns, col)
			columnCaps[col.Name] = cc
			kept[col.Name] = true
		}
		if len(columns) == 0 {
			continue
		}
		keptColumns[table.Name] = kept

		filtered.Tables = append(filtered.Tables, introspection.Table{
			Name:        table.Name,
			IsView:      table.IsView,
			Columns:     columns,
			ForeignKeys: table.ForeignKeys,
		})
		caps[table.Name] = TableCapabilities{
			CanQuery:  tableAllows(privs, table.Name, privileges.OpSelect),
			CanCreate: !table.IsView && tableAllows(privs, table.Name, privileges.OpInsert),
			CanUpdate: !table.IsView && tableAllows(privs, table.Name, privileges.OpUpdate),
			CanDelete: !table.IsView && privs.HasTable(table.Name, privileges.OpDelete),
			HasRls:    privs.TableHasRls(table.Name),
			Columns:   columnCaps,
		}
	}

	for i := range filtered.Tables {
		table := &filtered.Tables[i]
		var fks []introspection.ForeignKey
		for _, fk := range table.ForeignKeys {
			if keptColumns[table.Name][fk.ColumnName] && keptColumns[fk.ReferencedTable][fk.ReferencedColumn] {
				fks = append(fks, fk)
			}
		}
		table.ForeignKeys = fks
	}

	return filtered, caps
}

// tableAllows reports whether op is available at table level or on at least
// one column.
func tableAllows(privs *privileges.RolePrivileges, table string, op privileges.Operation) bool {
	if privs.HasTable(table, op) {
		return true
	}
	grant, ok := privs.Tables[table]
	if !ok {
		return false
	}
	return len(grant.Columns[op]) > 0
}
