package planner

import (
	"fmt"
	"sort"
	"strings"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqlutil"
)

// OrderField is one ORDER BY entry.
type OrderField struct {
	Column     string
	Descending bool
}

// BuildOrderBy parses a GraphQL orderBy input into an ordered field list.
// GraphQL object arguments arrive as maps, so fields are sorted by column
// name to keep the emitted SQL deterministic.
func BuildOrderBy(table introspection.Table, orderByInput map[string]interface{}) ([]OrderField, error) {
	if len(orderByInput) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(orderByInput))
	for key := range orderByInput {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]OrderField, 0, len(keys))
	for _, key := range keys {
		if _, ok := table.Column(key); !ok {
			return nil, fmt.Errorf("unknown order by column: %s", key)
		}
		direction, ok := orderByInput[key].(string)
		if !ok {
			return nil, fmt.Errorf("order by direction for %s must be ASC or DESC", key)
		}
		switch strings.ToUpper(direction) {
		case "ASC":
			fields = append(fields, OrderField{Column: key})
		case "DESC":
			fields = append(fields, OrderField{Column: key, Descending: true})
		default:
			return nil, fmt.Errorf("order by direction for %s must be ASC or DESC", key)
		}
	}
	return fields, nil
}

// DefaultCursorOrder returns the implicit ordering for cursor pagination:
// all primary key columns ascending, then an id column if the table has no
// key, otherwise ErrOrderRequired.
func DefaultCursorOrder(table introspection.Table) ([]OrderField, error) {
	pks := table.PrimaryKeyColumns()
	if len(pks) > 0 {
		fields := make([]OrderField, 0, len(pks))
		for _, pk := range pks {
			fields = append(fields, OrderField{Column: pk.Name})
		}
		return fields, nil
	}
	if _, ok := table.Column("id"); ok {
		return []OrderField{{Column: "id"}}, nil
	}
	return nil, fmt.Errorf("%w: table %s has no primary key and no id column", ErrOrderRequired, table.Name)
}

// Reverse flips every direction, used for backward (last/before) pagination.
func Reverse(order []OrderField) []OrderField {
	out := make([]OrderField, len(order))
	for i, f := range order {
		out[i] = OrderField{Column: f.Column, Descending: !f.Descending}
	}
	return out
}

// OrderColumns returns the ordered column names.
func OrderColumns(order []OrderField) []string {
	cols := make([]string, len(order))
	for i, f := range order {
		cols[i] = f.Column
	}
	return cols
}

// OrderExpressions renders the ORDER BY expressions with quoted identifiers.
func OrderExpressions(order []OrderField) []string {
	exprs := make([]string, len(order))
	for i, f := range order {
		direction := "ASC"
		if f.Descending {
			direction = "DESC"
		}
		exprs[i] = sqlutil.QuoteIdentifier(f.Column) + " " + direction
	}
	return exprs
}
