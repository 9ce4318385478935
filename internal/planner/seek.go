package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/sqlutil"
)

// BuildSeekCondition builds the boundary predicate for cursor pagination.
// values are the boundary row's order-field values, positionally matching
// order. With forward=true the predicate selects rows strictly after the
// boundary in the given ordering; forward=false mirrors it.
func BuildSeekCondition(order []OrderField, values []interface{}, forward bool) (sq.Sqlizer, error) {
	if len(order) == 0 {
		return nil, ErrOrderRequired
	}
	if len(values) != len(order) {
		return nil, fmt.Errorf("seek boundary has %d values for %d order fields", len(values), len(order))
	}

	if uniform, descending := uniformDirection(order); uniform {
		return rowComparison(order, values, seekOperator(descending, forward)), nil
	}
	return mixedComparison(order, values, forward), nil
}

// uniformDirection reports whether every field sorts the same way.
func uniformDirection(order []OrderField) (bool, bool) {
	for _, f := range order[1:] {
		if f.Descending != order[0].Descending {
			return false, false
		}
	}
	return true, order[0].Descending
}

func seekOperator(descending, forward bool) string {
	if descending == forward {
		return "<"
	}
	return ">"
}

// rowComparison renders the row-wise form (c1, c2) > (?, ?).
func rowComparison(order []OrderField, values []interface{}, op string) sq.Sqlizer {
	columns := make([]string, len(order))
	placeholders := make([]string, len(order))
	for i, f := range order {
		columns[i] = sqlutil.QuoteIdentifier(f.Column)
		placeholders[i] = "?"
	}
	expr := fmt.Sprintf("(%s) %s (%s)",
		strings.Join(columns, ", "), op, strings.Join(placeholders, ", "))
	return sq.Expr(expr, values...)
}

// mixedComparison expands mixed directions to the lexicographic OR/AND form:
// (c1 op1 v1) OR (c1 = v1 AND c2 op2 v2) OR ...
func mixedComparison(order []OrderField, values []interface{}, forward bool) sq.Sqlizer {
	branches := make([]sq.Sqlizer, 0, len(order))
	for i, f := range order {
		var parts []sq.Sqlizer
		for j := 0; j < i; j++ {
			parts = append(parts, sq.Eq{sqlutil.QuoteIdentifier(order[j].Column): values[j]})
		}
		quoted := sqlutil.QuoteIdentifier(f.Column)
		if seekOperator(f.Descending, forward) == "<" {
			parts = append(parts, sq.Lt{quoted: values[i]})
		} else {
			parts = append(parts, sq.Gt{quoted: values[i]})
		}
		if len(parts) == 1 {
			branches = append(branches, parts[0])
		} else {
			branches = append(branches, sq.And(parts))
		}
	}
	if len(branches) == 1 {
		return branches[0]
	}
	return sq.Or(branches)
}
