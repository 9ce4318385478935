package schemafilter

import (
	"testing"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/privileges"
)

func testModel() *introspection.Model {
	return &introspection.Model{
		SchemaName: "public",
		Tables: []introspection.Table{
			{
				Name: "address",
				Columns: []introspection.Column{
					{Name: "address_id", IsPrimaryKey: true},
					{Name: "city"},
				},
			},
			{
				Name: "customer",
				Columns: []introspection.Column{
					{Name: "customer_id", IsPrimaryKey: true},
					{Name: "first_name"},
					{Name: "email", IsNullable: true},
					{Name: "address_id", IsNullable: true},
				},
				ForeignKeys: []introspection.ForeignKey{
					{ColumnName: "address_id", ReferencedTable: "address", ReferencedColumn: "address_id"},
				},
			},
			{
				Name:    "secret_audit",
				Columns: []introspection.Column{{Name: "entry"}},
			},
		},
	}
}

func grants(tables map[string][]privileges.Operation) *privileges.RolePrivileges {
	privs := &privileges.RolePrivileges{
		Role:   "test",
		Tables: make(map[string]privileges.TableGrant),
	}
	for table, ops := range tables {
		grant := privileges.TableGrant{
			Operations: make(map[privileges.Operation]bool),
			Columns:    make(map[privileges.Operation]map[string]bool),
		}
		for _, op := range ops {
			grant.Operations[op] = true
		}
		privs.Tables[table] = grant
	}
	return privs
}

func TestFilterDropsUnprivilegedTables(t *testing.T) {
	privs := grants(map[string][]privileges.Operation{
		"customer": {privileges.OpSelect},
		"address":  {privileges.OpSelect},
	})

	filtered, caps := Filter(testModel(), privs)

	if _, ok := filtered.Table("secret_audit"); ok {
		t.Fatal("unprivileged table must be dropped")
	}
	if _, ok := filtered.Table("customer"); !ok {
		t.Fatal("granted table must survive")
	}
	if !caps["customer"].CanQuery || caps["customer"].CanCreate {
		t.Fatalf("unexpected capabilities: %+v", caps["customer"])
	}
}

func TestFilterKeepsFkOnlyWhenBothEndpointsSurvive(t *testing.T) {
	both := grants(map[string][]privileges.Operation{
		"customer": {privileges.OpSelect},
		"address":  {privileges.OpSelect},
	})
	filtered, _ := Filter(testModel(), both)
	customer, _ := filtered.Table("customer")
	if len(customer.ForeignKeys) != 1 {
		t.Fatalf("expected FK kept, got %v", customer.ForeignKeys)
	}

	onlyCustomer := grants(map[string][]privileges.Operation{
		"customer": {privileges.OpSelect},
	})
	filtered, _ = Filter(testModel(), onlyCustomer)
	customer, _ = filtered.Table("customer")
	if len(customer.ForeignKeys) != 0 {
		t.Fatalf("expected FK dropped when address is invisible, got %v", customer.ForeignKeys)
	}
}

func TestFilterColumnLevelGrants(t *testing.T) {
	privs := grants(nil)
	privs.Tables["customer"] = privileges.TableGrant{
		Operations: map[privileges.Operation]bool{},
		Columns: map[privileges.Operation]map[string]bool{
			privileges.OpSelect: {"customer_id": true, "first_name": true},
			privileges.OpInsert: {"first_name": true},
		},
	}

	filtered, caps := Filter(testModel(), privs)
	customer, ok := filtered.Table("customer")
	if !ok {
		t.Fatal("column-granted table must survive")
	}
	if len(customer.Columns) != 2 {
		t.Fatalf("expected only granted columns, got %v", customer.ColumnNames())
	}
	if _, ok := customer.Column("email"); ok {
		t.Fatal("ungranted column must be dropped")
	}
	cc := caps["customer"].Columns["first_name"]
	if !cc.CanSelect || !cc.CanInsert || cc.CanUpdate {
		t.Fatalf("unexpected column capabilities: %+v", cc)
	}
	if !caps["customer"].CanCreate {
		t.Fatal("column-level INSERT should enable create capability")
	}
}

func TestFilterSuperuserSeesEverything(t *testing.T) {
	privs := &privileges.RolePrivileges{Role: "postgres", IsSuperuser: true}
	filtered, caps := Filter(testModel(), privs)

	if len(filtered.Tables) != 3 {
		t.Fatalf("superuser should see all tables, got %d", len(filtered.Tables))
	}
	if !caps["secret_audit"].CanQuery || !caps["customer"].CanDelete {
		t.Fatalf("superuser capabilities incomplete: %+v", caps)
	}
}

func TestFilterViewNeverGetsMutations(t *testing.T) {
	model := &introspection.Model{Tables: []introspection.Table{
		{Name: "report", IsView: true, Columns: []introspection.Column{{Name: "total"}}},
	}}
	privs := grants(map[string][]privileges.Operation{
		"report": {privileges.OpSelect, privileges.OpInsert, privileges.OpUpdate, privileges.OpDelete},
	})

	_, caps := Filter(model, privs)
	c := caps["report"]
	if !c.CanQuery || c.CanCreate || c.CanUpdate || c.CanDelete {
		t.Fatalf("views must be query-only: %+v", c)
	}
}

// Growing the privilege set never shrinks the filtered model.
func TestFilterMonotonicity(t *testing.T) {
	smaller := grants(map[string][]privileges.Operation{
		"customer": {privileges.OpSelect},
	})
	larger := grants(map[string][]privileges.Operation{
		"customer": {privileges.OpSelect, privileges.OpUpdate},
		"address":  {privileges.OpSelect},
	})

	fs, _ := Filter(testModel(), smaller)
	fl, _ := Filter(testModel(), larger)

	for _, table := range fs.Tables {
		bigger, ok := fl.Table(table.Name)
		if !ok {
			t.Fatalf("table %s lost under larger privileges", table.Name)
		}
		for _, col := range table.Columns {
			if _, ok := bigger.Column(col.Name); !ok {
				t.Fatalf("column %s.%s lost under larger privileges", table.Name, col.Name)
			}
		}
	}
}
