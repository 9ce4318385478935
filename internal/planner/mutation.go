package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqlutil"
)

// DefaultExpr renders the DEFAULT keyword in a VALUES position, used when a
// bulk insert row omits a column that has a database default.
func DefaultExpr() sq.Sqlizer {
	return sq.Expr("DEFAULT")
}

// InsertQuery renders a multi-row INSERT ... RETURNING *. Every row must
// supply one value per column; a value may be a squirrel expression such as
// DefaultExpr.
func InsertQuery(schemaName string, table introspection.Table, columns []string, rows [][]interface{}) (string, []interface{}, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s requires at least one column", table.Name)
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("insert into %s requires at least one row", table.Name)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}

	builder := psql.
		Insert(sqlutil.QuoteQualified(schemaName, table.Name)).
		Columns(quoted...)
	for _, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert row has %d values for %d columns", len(row), len(columns))
		}
		builder = builder.Values(row...)
	}
	return builder.Suffix("RETURNING *").ToSql()
}

// UpdateQuery renders UPDATE ... SET ... WHERE key columns ... RETURNING *.
// Set and key pairs are positional so the emitted SQL is deterministic.
func UpdateQuery(schemaName string, table introspection.Table, setColumns []string, setValues []interface{}, keyColumns []string, keyValues []interface{}) (string, []interface{}, error) {
	if len(setColumns) == 0 {
		return "", nil, fmt.Errorf("update of %s requires at least one set column", table.Name)
	}
	if len(setColumns) != len(setValues) || len(keyColumns) != len(keyValues) {
		return "", nil, fmt.Errorf("update of %s has mismatched column/value counts", table.Name)
	}
	if len(keyColumns) == 0 {
		return "", nil, fmt.Errorf("update of %s requires a key condition", table.Name)
	}

	builder := psql.Update(sqlutil.QuoteQualified(schemaName, table.Name))
	for i := range setColumns {
		builder = builder.Set(sqlutil.QuoteIdentifier(setColumns[i]), setValues[i])
	}

	condition := make(sq.And, 0, len(keyColumns))
	for i := range keyColumns {
		condition = append(condition, sq.Eq{sqlutil.QuoteIdentifier(keyColumns[i]): keyValues[i]})
	}
	return builder.Where(condition).Suffix("RETURNING *").ToSql()
}

// DeleteQuery renders DELETE ... WHERE key = value.
func DeleteQuery(schemaName string, table introspection.Table, keyColumn string, value interface{}) (string, []interface{}, error) {
	return psql.
		Delete(sqlutil.QuoteQualified(schemaName, table.Name)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(keyColumn): value}).
		ToSql()
}
