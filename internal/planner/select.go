package planner

import (
	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqlutil"
)

// DefaultListLimit applies when a query supplies no limit of its own.
const DefaultListLimit = 10

// psql builds statements with $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ColumnList returns the quoted column list for a selection. An empty
// requested set expands to every column the table is known to have, in
// declaration order.
func ColumnList(table introspection.Table, requested []string) []string {
	if len(requested) == 0 {
		requested = table.ColumnNames()
	}
	quoted := make([]string, 0, len(requested))
	for _, col := range requested {
		if _, ok := table.Column(col); !ok {
			continue
		}
		quoted = append(quoted, sqlutil.QuoteIdentifier(col))
	}
	if len(quoted) == 0 {
		for _, name := range table.ColumnNames() {
			quoted = append(quoted, sqlutil.QuoteIdentifier(name))
		}
	}
	return quoted
}

// SelectQuery describes one SELECT against a table.
type SelectQuery struct {
	SchemaName string
	Table      introspection.Table
	Columns    []string
	Where      *WhereClause
	Seek       sq.Sqlizer
	Order      []OrderField
	Limit      uint64
	Offset     uint64
}

// ToSql renders the query with $N placeholders.
func (q SelectQuery) ToSql() (string, []interface{}, error) {
	builder := psql.
		Select(ColumnList(q.Table, q.Columns)...).
		From(sqlutil.QuoteQualified(q.SchemaName, q.Table.Name))

	if q.Where != nil && q.Where.Condition != nil {
		builder = builder.Where(q.Where.Condition)
	}
	if q.Seek != nil {
		builder = builder.Where(q.Seek)
	}
	if len(q.Order) > 0 {
		builder = builder.OrderBy(OrderExpressions(q.Order)...)
	}
	if q.Limit > 0 {
		builder = builder.Limit(q.Limit)
	}
	if q.Offset > 0 {
		builder = builder.Offset(q.Offset)
	}
	return builder.ToSql()
}

// CountQuery renders an exact COUNT(*) over the same filtered set, with an
// optional extra boundary condition for hasNext/hasPrevious checks.
func CountQuery(schemaName string, table introspection.Table, where *WhereClause, boundary sq.Sqlizer) (string, []interface{}, error) {
	builder := psql.
		Select("COUNT(*)").
		From(sqlutil.QuoteQualified(schemaName, table.Name))

	if where != nil && where.Condition != nil {
		builder = builder.Where(where.Condition)
	}
	if boundary != nil {
		builder = builder.Where(boundary)
	}
	return builder.ToSql()
}

// InQuery renders the bulk relationship preload SELECT ... WHERE key IN (...).
func InQuery(schemaName string, table introspection.Table, keyColumn string, values []interface{}) (string, []interface{}, error) {
	return psql.
		Select(ColumnList(table, nil)...).
		From(sqlutil.QuoteQualified(schemaName, table.Name)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(keyColumn): values}).
		ToSql()
}
