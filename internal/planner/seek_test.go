package planner

import (
	"errors"
	"strings"
	"testing"

	"pg-graphql/internal/introspection"
)

func TestSeekRowComparison(t *testing.T) {
	order := []OrderField{{Column: "last_name"}, {Column: "customer_id"}}
	cond, err := BuildSeekCondition(order, []interface{}{"SMITH", 42}, true)
	if err != nil {
		t.Fatalf("BuildSeekCondition() error: %v", err)
	}
	sql, args := renderWhere(t, cond)
	if sql != `("last_name", "customer_id") > (?, ?)` {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 2 || args[0] != "SMITH" || args[1] != 42 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestSeekDirectionFlips(t *testing.T) {
	order := []OrderField{{Column: "customer_id", Descending: true}}

	cond, err := BuildSeekCondition(order, []interface{}{42}, true)
	if err != nil {
		t.Fatalf("BuildSeekCondition() error: %v", err)
	}
	sql, _ := renderWhere(t, cond)
	if !strings.Contains(sql, "<") {
		t.Fatalf("forward over DESC should seek below boundary: %s", sql)
	}

	cond, err = BuildSeekCondition(order, []interface{}{42}, false)
	if err != nil {
		t.Fatalf("BuildSeekCondition() error: %v", err)
	}
	sql, _ = renderWhere(t, cond)
	if !strings.Contains(sql, ">") {
		t.Fatalf("backward over DESC should seek above boundary: %s", sql)
	}
}

func TestSeekMixedDirections(t *testing.T) {
	order := []OrderField{
		{Column: "last_name", Descending: true},
		{Column: "customer_id"},
	}
	cond, err := BuildSeekCondition(order, []interface{}{"SMITH", 42}, true)
	if err != nil {
		t.Fatalf("BuildSeekCondition() error: %v", err)
	}
	sql, args := renderWhere(t, cond)
	if !strings.Contains(sql, `"last_name" < ?`) {
		t.Fatalf("missing first branch: %s", sql)
	}
	if !strings.Contains(sql, `"last_name" = ?`) || !strings.Contains(sql, `"customer_id" > ?`) {
		t.Fatalf("missing tie-break branch: %s", sql)
	}
	if !strings.Contains(sql, " OR ") {
		t.Fatalf("branches must join with OR: %s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestSeekRejectsValueMismatch(t *testing.T) {
	order := []OrderField{{Column: "customer_id"}}
	if _, err := BuildSeekCondition(order, []interface{}{1, 2}, true); err == nil {
		t.Fatal("expected error for value/field count mismatch")
	}
	if _, err := BuildSeekCondition(nil, nil, true); !errors.Is(err, ErrOrderRequired) {
		t.Fatalf("expected ErrOrderRequired, got %v", err)
	}
}

func TestBuildOrderBy(t *testing.T) {
	fields, err := BuildOrderBy(customerTable(), map[string]interface{}{
		"last_name":   "DESC",
		"customer_id": "ASC",
	})
	if err != nil {
		t.Fatalf("BuildOrderBy() error: %v", err)
	}
	// Map keys sort alphabetically for deterministic output.
	if len(fields) != 2 || fields[0].Column != "customer_id" || fields[1].Column != "last_name" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields[0].Descending || !fields[1].Descending {
		t.Fatalf("unexpected directions: %v", fields)
	}

	if _, err := BuildOrderBy(customerTable(), map[string]interface{}{"last_name": "SIDEWAYS"}); err == nil {
		t.Fatal("expected error for invalid direction")
	}
	if _, err := BuildOrderBy(customerTable(), map[string]interface{}{"no_such": "ASC"}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestDefaultCursorOrder(t *testing.T) {
	fields, err := DefaultCursorOrder(customerTable())
	if err != nil {
		t.Fatalf("DefaultCursorOrder() error: %v", err)
	}
	if len(fields) != 1 || fields[0].Column != "customer_id" || fields[0].Descending {
		t.Fatalf("expected primary key ascending, got %v", fields)
	}

	withID := introspection.Table{
		Name:    "event_log",
		Columns: []introspection.Column{scalarCol("id", introspection.ScalarInt64)},
	}
	fields, err = DefaultCursorOrder(withID)
	if err != nil {
		t.Fatalf("DefaultCursorOrder() error: %v", err)
	}
	if len(fields) != 1 || fields[0].Column != "id" {
		t.Fatalf("expected id fallback, got %v", fields)
	}

	bare := introspection.Table{
		Name:    "notes",
		Columns: []introspection.Column{scalarCol("body", introspection.ScalarText)},
	}
	if _, err := DefaultCursorOrder(bare); !errors.Is(err, ErrOrderRequired) {
		t.Fatalf("expected ErrOrderRequired, got %v", err)
	}
}

func TestReverse(t *testing.T) {
	order := []OrderField{{Column: "a"}, {Column: "b", Descending: true}}
	reversed := Reverse(order)
	if !reversed[0].Descending || reversed[1].Descending {
		t.Fatalf("unexpected reversal: %v", reversed)
	}
	if order[0].Descending {
		t.Fatal("Reverse must not mutate its input")
	}
}
