package planner

import (
	"strings"
	"testing"
)

func TestSelectQueryRendersDollarPlaceholders(t *testing.T) {
	table := customerTable()
	where, err := BuildWhereClause(table, map[string]interface{}{
		"last_name": map[string]interface{}{"eq": "SMITH"},
	})
	if err != nil {
		t.Fatalf("BuildWhereClause() error: %v", err)
	}
	order := []OrderField{{Column: "customer_id"}}
	seek, err := BuildSeekCondition(order, []interface{}{42}, true)
	if err != nil {
		t.Fatalf("BuildSeekCondition() error: %v", err)
	}

	sql, args, err := SelectQuery{
		SchemaName: "public",
		Table:      table,
		Columns:    []string{"customer_id", "last_name"},
		Where:      where,
		Seek:       seek,
		Order:      order,
		Limit:      11,
	}.ToSql()
	if err != nil {
		t.Fatalf("ToSql() error: %v", err)
	}

	if !strings.HasPrefix(sql, `SELECT "customer_id", "last_name" FROM "public"."customer"`) {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if !strings.Contains(sql, "$1") || !strings.Contains(sql, "$2") {
		t.Fatalf("expected $N placeholders: %s", sql)
	}
	if strings.Contains(sql, "?") {
		t.Fatalf("unconverted placeholder in SQL: %s", sql)
	}
	if !strings.Contains(sql, `ORDER BY "customer_id" ASC`) {
		t.Fatalf("missing order by: %s", sql)
	}
	if !strings.Contains(sql, "LIMIT 11") {
		t.Fatalf("missing limit: %s", sql)
	}
	if len(args) != 2 || args[0] != "SMITH" || args[1] != 42 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestSelectQueryOffset(t *testing.T) {
	sql, _, err := SelectQuery{
		SchemaName: "public",
		Table:      customerTable(),
		Limit:      10,
		Offset:     30,
	}.ToSql()
	if err != nil {
		t.Fatalf("ToSql() error: %v", err)
	}
	if !strings.Contains(sql, "LIMIT 10") || !strings.Contains(sql, "OFFSET 30") {
		t.Fatalf("unexpected SQL: %s", sql)
	}
}

func TestColumnList(t *testing.T) {
	table := customerTable()

	all := ColumnList(table, nil)
	if len(all) != len(table.Columns) {
		t.Fatalf("empty request should expand to every column, got %v", all)
	}

	subset := ColumnList(table, []string{"email", "bogus", "customer_id"})
	if len(subset) != 2 || subset[0] != `"email"` || subset[1] != `"customer_id"` {
		t.Fatalf("unexpected subset: %v", subset)
	}

	// Nothing surviving the filter falls back to every column.
	fallback := ColumnList(table, []string{"bogus"})
	if len(fallback) != len(table.Columns) {
		t.Fatalf("unexpected fallback: %v", fallback)
	}
}

func TestCountQuery(t *testing.T) {
	table := customerTable()
	where, err := BuildWhereClause(table, map[string]interface{}{
		"last_name": map[string]interface{}{"eq": "SMITH"},
	})
	if err != nil {
		t.Fatalf("BuildWhereClause() error: %v", err)
	}
	sql, args, err := CountQuery("public", table, where, nil)
	if err != nil {
		t.Fatalf("CountQuery() error: %v", err)
	}
	if !strings.HasPrefix(sql, `SELECT COUNT(*) FROM "public"."customer"`) {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 1 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestInQuery(t *testing.T) {
	sql, args, err := InQuery("public", customerTable(), "customer_id", []interface{}{1, 2, 3})
	if err != nil {
		t.Fatalf("InQuery() error: %v", err)
	}
	if !strings.Contains(sql, `"customer_id" IN ($1,$2,$3)`) {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestPlanLimits(t *testing.T) {
	limits := DefaultLimits()
	if err := limits.Validate(10, 1000); err != nil {
		t.Fatalf("at-budget query must pass: %v", err)
	}
	if err := limits.Validate(11, 1); err == nil {
		t.Fatal("expected depth error")
	}
	if err := limits.Validate(1, 1001); err == nil {
		t.Fatal("expected complexity error")
	}

	var zero PlanLimits
	if err := zero.Validate(10, 1000); err != nil {
		t.Fatalf("zero-value limits must fall back to defaults: %v", err)
	}
}

func TestLimitArgCost(t *testing.T) {
	cases := []struct {
		limit, want int
	}{
		{0, 0},
		{9, 0},
		{10, 1},
		{100, 10},
		{200, 20},
		{5000, 20},
		{-5, 0},
	}
	for _, tc := range cases {
		if got := LimitArgCost(tc.limit); got != tc.want {
			t.Errorf("LimitArgCost(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}
