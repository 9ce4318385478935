package resolver

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"pg-graphql/internal/batch"
	"pg-graphql/internal/cursor"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/sqlutil"
)

func (r *Resolver) makeListResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.query_list",
			attribute.String("db.table", table.Name))
		defer span.End()

		where, err := r.whereFromArgs(table, p.Args)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		order, err := planner.BuildOrderBy(table, mapArg(p.Args, "orderBy"))
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}

		query := planner.SelectQuery{
			SchemaName: r.model.SchemaName,
			Table:      table,
			Where:      where,
			Order:      order,
			Limit:      uint64(intArg(p.Args, "limit", r.defaultLimit)),
			Offset:     uint64(intArg(p.Args, "offset", 0)),
		}
		records, err := r.fetch(ctx, table, query)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}

		r.preloadRelationships(ctx, table, records)
		return records, nil
	}
}

func (r *Resolver) makeConnectionResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.query_connection",
			attribute.String("db.table", table.Name))
		defer span.End()

		where, err := r.whereFromArgs(table, p.Args)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		order, err := planner.BuildOrderBy(table, mapArg(p.Args, "orderBy"))
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}

		_, hasFirst := optionalIntArg(p.Args, "first")
		_, hasLast := optionalIntArg(p.Args, "last")
		_, hasAfter := stringArg(p.Args, "after")
		_, hasBefore := stringArg(p.Args, "before")

		var result map[string]interface{}
		if hasFirst || hasLast || hasAfter || hasBefore {
			result, err = r.resolveCursorPage(ctx, table, where, order, p.Args)
		} else {
			result, err = r.resolveOffsetPage(ctx, table, where, order, p.Args)
		}
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return result, nil
	}
}

// resolveCursorPage pages with an opaque boundary cursor. Backward requests
// (last/before) run against the reversed ordering and flip the rows back
// before returning.
func (r *Resolver) resolveCursorPage(
	ctx context.Context,
	table introspection.Table,
	where *planner.WhereClause,
	order []planner.OrderField,
	args map[string]interface{},
) (map[string]interface{}, error) {
	if len(order) == 0 {
		implicit, err := planner.DefaultCursorOrder(table)
		if err != nil {
			return nil, err
		}
		order = implicit
	}

	first, hasFirst := optionalIntArg(args, "first")
	last, hasLast := optionalIntArg(args, "last")
	backward := hasLast || hasArg(args, "before")

	limit := r.defaultLimit
	if hasFirst {
		limit = first
	} else if hasLast {
		limit = last
	}

	boundaryArg := "after"
	if backward {
		boundaryArg = "before"
	}

	var seek sq.Sqlizer
	var boundaryValues []interface{}
	if encoded, ok := stringArg(args, boundaryArg); ok {
		pairs, err := cursor.Validate(encoded, planner.OrderColumns(order))
		if err != nil {
			return nil, err
		}
		boundaryValues = pairValues(pairs)
		seek, err = planner.BuildSeekCondition(order, boundaryValues, !backward)
		if err != nil {
			return nil, err
		}
	}

	effectiveOrder := order
	if backward {
		effectiveOrder = planner.Reverse(order)
	}

	query := planner.SelectQuery{
		SchemaName: r.model.SchemaName,
		Table:      table,
		Where:      where,
		Seek:       seek,
		Order:      effectiveOrder,
		Limit:      uint64(limit + 1),
	}
	records, err := r.fetch(ctx, table, query)
	if err != nil {
		return nil, err
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	if backward {
		reverseRecords(records)
	}

	hasNext, hasPrev := hasMore, false
	if backward {
		hasNext, hasPrev = false, hasMore
	}
	if boundaryValues != nil {
		// The page on the other side of the boundary still needs a scoped
		// count: the boundary row itself (if it survived) counts.
		populated, err := r.boundaryHasRows(ctx, table, where, order, boundaryValues, backward)
		if err != nil {
			return nil, err
		}
		if backward {
			hasNext = populated
		} else {
			hasPrev = populated
		}
	}

	r.preloadRelationships(ctx, table, records)
	return r.buildConnectionResult(ctx, table, records, order, where, hasNext, hasPrev)
}

// resolveOffsetPage serves connection queries without cursor arguments.
// One extra row decides hasNextPage; hasPreviousPage is implied by offset.
func (r *Resolver) resolveOffsetPage(
	ctx context.Context,
	table introspection.Table,
	where *planner.WhereClause,
	order []planner.OrderField,
	args map[string]interface{},
) (map[string]interface{}, error) {
	if len(order) == 0 {
		if implicit, err := planner.DefaultCursorOrder(table); err == nil {
			order = implicit
		}
	}

	limit := r.defaultLimit
	offset := intArg(args, "offset", 0)

	query := planner.SelectQuery{
		SchemaName: r.model.SchemaName,
		Table:      table,
		Where:      where,
		Order:      order,
		Limit:      uint64(limit + 1),
		Offset:     uint64(offset),
	}
	records, err := r.fetch(ctx, table, query)
	if err != nil {
		return nil, err
	}

	hasNext := len(records) > limit
	if hasNext {
		records = records[:limit]
	}

	r.preloadRelationships(ctx, table, records)
	return r.buildConnectionResult(ctx, table, records, order, where, hasNext, offset > 0)
}

// boundaryHasRows counts the rows on the boundary's other side, including
// the boundary row itself.
func (r *Resolver) boundaryHasRows(
	ctx context.Context,
	table introspection.Table,
	where *planner.WhereClause,
	order []planner.OrderField,
	boundaryValues []interface{},
	backward bool,
) (bool, error) {
	strict, err := planner.BuildSeekCondition(order, boundaryValues, backward)
	if err != nil {
		return false, err
	}
	boundaryEq := make(sq.And, 0, len(order))
	for i, field := range order {
		boundaryEq = append(boundaryEq, sq.Eq{sqlutil.QuoteIdentifier(field.Column): boundaryValues[i]})
	}

	countSQL, countArgs, err := planner.CountQuery(r.model.SchemaName, table, where, sq.Or{strict, boundaryEq})
	if err != nil {
		return false, err
	}

	rows, err := r.executor.QueryContext(ctx, countSQL, countArgs...)
	if err != nil {
		return false, normalizeQueryError(err)
	}
	defer func() { _ = rows.Close() }()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return false, err
		}
	}
	return count > 0, rows.Err()
}

// makeForwardResolver resolves the single row a foreign key points at,
// preferring the request's batch loader over a per-row query.
func (r *Resolver) makeForwardResolver(table introspection.Table, fk introspection.ForeignKey) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		key := source[fk.ColumnName]
		if key == nil {
			return nil, nil
		}

		related, err := r.findTable(fk.ReferencedTable)
		if err != nil {
			return nil, err
		}

		if loader, ok := batch.LoaderFromContext(p.Context); ok {
			records, err := r.loadBatch(p.Context, loader, related, fk.ReferencedColumn, key)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return nil, nil
			}
			return records[0], nil
		}

		records, err := r.fetchByColumn(p.Context, related, fk.ReferencedColumn, key, 1, 0, nil)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0], nil
	}
}

// makeReverseResolver resolves the list of rows referencing the source row.
// The batched preload serves the default shape; explicit ordering or offsets
// fall back to a direct query.
func (r *Resolver) makeReverseResolver(table, related introspection.Table, fk introspection.ForeignKey) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(map[string]interface{})
		if !ok {
			return []map[string]interface{}{}, nil
		}
		key := source[fk.ReferencedColumn]
		if key == nil {
			return []map[string]interface{}{}, nil
		}

		limit := intArg(p.Args, "limit", r.defaultLimit)
		offset := intArg(p.Args, "offset", 0)
		orderByArg := mapArg(p.Args, "orderBy")

		loader, hasLoader := batch.LoaderFromContext(p.Context)
		if hasLoader && offset == 0 && len(orderByArg) == 0 {
			records, err := r.loadBatch(p.Context, loader, related, fk.ColumnName, key)
			if err != nil {
				return nil, err
			}
			if len(records) > limit {
				records = records[:limit]
			}
			r.preloadRelationships(p.Context, related, records)
			return records, nil
		}

		order, err := planner.BuildOrderBy(related, orderByArg)
		if err != nil {
			return nil, err
		}
		records, err := r.fetchByColumn(p.Context, related, fk.ColumnName, key, limit, offset, order)
		if err != nil {
			return nil, err
		}
		r.preloadRelationships(p.Context, related, records)
		return records, nil
	}
}

// loadBatch drains every key queued for (table, keyColumn) into a single
// IN query, caches the rows, and returns the ones matching value.
func (r *Resolver) loadBatch(
	ctx context.Context,
	loader *batch.Loader,
	table introspection.Table,
	keyColumn string,
	value interface{},
) ([]batch.Record, error) {
	loader.Queue(table.Name, keyColumn, value)

	if pending := loader.DrainPending(table.Name, keyColumn); len(pending) > 0 {
		values := make([]interface{}, len(pending))
		for i, v := range pending {
			values[i] = v
		}
		sqlText, sqlArgs, err := planner.InQuery(r.model.SchemaName, table, keyColumn, values)
		if err != nil {
			return nil, err
		}
		records, err := r.query(ctx, table, sqlText, sqlArgs)
		if err != nil {
			return nil, err
		}
		loader.Cache(table.Name, keyColumn, records)
	}

	records, _ := loader.Lookup(table.Name, keyColumn, value)
	return records, nil
}

// preloadRelationships queues every foreign key value of the fetched rows so
// the first relationship resolver to run drains them in one bulk query.
func (r *Resolver) preloadRelationships(ctx context.Context, table introspection.Table, records []map[string]interface{}) {
	if len(records) == 0 {
		return
	}
	loader, ok := batch.LoaderFromContext(ctx)
	if !ok {
		return
	}

	for _, fk := range table.ForeignKeys {
		values := make([]interface{}, 0, len(records))
		for _, record := range records {
			values = append(values, record[fk.ColumnName])
		}
		loader.QueueMany(fk.ReferencedTable, fk.ReferencedColumn, values)
	}

	reverse := r.model.ReverseForeignKeys(&table)
	for referencing, fks := range reverse {
		for _, fk := range fks {
			values := make([]interface{}, 0, len(records))
			for _, record := range records {
				values = append(values, record[fk.ReferencedColumn])
			}
			loader.QueueMany(referencing, fk.ColumnName, values)
		}
	}
}

func (r *Resolver) whereFromArgs(table introspection.Table, args map[string]interface{}) (*planner.WhereClause, error) {
	whereMap := mapArg(args, "where")
	if whereMap == nil {
		return nil, nil
	}
	where, err := planner.BuildWhereClause(table, whereMap)
	if err != nil {
		return nil, fmt.Errorf("invalid where argument: %w", err)
	}
	return where, nil
}

func (r *Resolver) fetch(ctx context.Context, table introspection.Table, query planner.SelectQuery) ([]map[string]interface{}, error) {
	sqlText, sqlArgs, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return r.query(ctx, table, sqlText, sqlArgs)
}

func (r *Resolver) fetchByColumn(
	ctx context.Context,
	table introspection.Table,
	column string,
	value interface{},
	limit, offset int,
	order []planner.OrderField,
) ([]map[string]interface{}, error) {
	query := planner.SelectQuery{
		SchemaName: r.model.SchemaName,
		Table:      table,
		Where: &planner.WhereClause{
			Condition:   sq.Eq{sqlutil.QuoteIdentifier(column): value},
			UsedColumns: []string{column},
		},
		Order:  order,
		Limit:  uint64(limit),
		Offset: uint64(offset),
	}
	return r.fetch(ctx, table, query)
}

func (r *Resolver) query(ctx context.Context, table introspection.Table, sqlText string, sqlArgs []interface{}) ([]map[string]interface{}, error) {
	rows, err := r.executor.QueryContext(ctx, sqlText, sqlArgs...)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanRecords(rows, table)
}

// scanRecords converts raw rows into records keyed by column name, running
// every value through the type converter.
func (r *Resolver) scanRecords(rows dbexec.Rows, table introspection.Table) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			col, ok := table.Column(name)
			if !ok {
				record[name] = values[i]
				continue
			}
			converted, err := r.converter.FromDB(values[i], col.Type)
			if err != nil {
				return nil, fmt.Errorf("failed to convert column %s: %w", name, err)
			}
			record[name] = converted
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func pairValues(pairs []cursor.Pair) []interface{} {
	values := make([]interface{}, len(pairs))
	for i, pair := range pairs {
		values[i] = pair.Value
	}
	return values
}

func reverseRecords(records []map[string]interface{}) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func hasArg(args map[string]interface{}, key string) bool {
	if args == nil {
		return false
	}
	value, ok := args[key]
	return ok && value != nil
}
