package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
)

// sqlRunner is what mutation statements need: the executor outside a
// transaction, or a wrapped sql.Tx inside one.
type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (dbexec.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txRunner struct {
	tx *sql.Tx
}

func (t txRunner) QueryContext(ctx context.Context, query string, args ...any) (dbexec.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t txRunner) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// addTableMutations emits create/update/delete fields for a mutable table.
// Views never get mutations.
func (r *Resolver) addTableMutations(fields graphql.Fields, table introspection.Table) {
	if table.IsView {
		return
	}
	caps := r.tableCaps(table.Name)
	typeName := introspection.TypeName(table.Name)
	tableType := r.objectType(table)

	if caps.CanCreate {
		if createInput := r.createInput(table); createInput != nil {
			fields["create"+typeName] = &graphql.Field{
				Type: graphql.NewNonNull(tableType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(createInput)},
				},
				Resolve: r.makeCreateResolver(table),
			}
			fields["createMany"+introspection.Pluralize(typeName)] = &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(tableType))),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(createInput))),
					},
				},
				Resolve: r.makeBulkCreateResolver(table),
			}
		}
		if relationsInput := r.relationsInput(table); relationsInput != nil && tableHasRelations(r.model, table) {
			fields["create"+typeName+"WithRelations"] = &graphql.Field{
				Type: graphql.NewNonNull(tableType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(relationsInput)},
				},
				Resolve: r.makeCreateWithRelationsResolver(table),
			}
		}
	}

	if caps.CanUpdate {
		if updateInput := r.updateInput(table); updateInput != nil && len(table.PrimaryKeyColumns()) > 0 {
			fields["update"+typeName] = &graphql.Field{
				Type: graphql.NewNonNull(tableType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(updateInput)},
				},
				Resolve: r.makeUpdateResolver(table),
			}
		}
	}

	if caps.CanDelete {
		if pks := table.PrimaryKeyColumns(); len(pks) == 1 {
			pk := pks[0]
			fields["delete"+typeName] = &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					pk.Name: &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(r.mapColumnInputType(pk.Type)),
					},
				},
				Resolve: r.makeDeleteResolver(table, pk),
			}
		}
	}
}

func tableHasRelations(model *introspection.Model, table introspection.Table) bool {
	if len(table.ForeignKeys) > 0 {
		return true
	}
	return len(model.ReverseForeignKeys(&table)) > 0
}

func (r *Resolver) makeCreateResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.mutation_create",
			attribute.String("db.table", table.Name))
		defer span.End()

		input := mapArg(p.Args, "input")
		if input == nil {
			return nil, fmt.Errorf("input is required")
		}

		record, err := r.insertRow(ctx, r.executor, table, input)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return record, nil
	}
}

func (r *Resolver) makeBulkCreateResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.mutation_bulk_create",
			attribute.String("db.table", table.Name))
		defer span.End()

		rawList, _ := p.Args["input"].([]interface{})
		if len(rawList) == 0 {
			return nil, fmt.Errorf("input requires at least one row")
		}
		inputs := make([]map[string]interface{}, 0, len(rawList))
		for _, item := range rawList {
			row, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("input rows must be objects")
			}
			inputs = append(inputs, row)
		}

		records, err := r.insertRows(ctx, r.executor, table, inputs)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return records, nil
	}
}

func (r *Resolver) makeUpdateResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.mutation_update",
			attribute.String("db.table", table.Name))
		defer span.End()

		input := mapArg(p.Args, "input")
		if input == nil {
			return nil, fmt.Errorf("input is required")
		}

		record, err := r.updateRow(ctx, r.executor, table, input)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return record, nil
	}
}

func (r *Resolver) makeDeleteResolver(table introspection.Table, pk introspection.Column) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.mutation_delete",
			attribute.String("db.table", table.Name))
		defer span.End()

		value, ok := p.Args[pk.Name]
		if !ok || value == nil {
			return nil, fmt.Errorf("%s is required", pk.Name)
		}
		converted, err := r.converter.ToDB(value, pk.Type)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}

		sqlText, sqlArgs, err := planner.DeleteQuery(r.model.SchemaName, table, pk.Name, converted)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		result, err := r.executor.ExecContext(ctx, sqlText, sqlArgs...)
		if err != nil {
			err = mutationError(err)
			recordSpanError(span, err)
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return affected > 0, nil
	}
}

func (r *Resolver) makeCreateWithRelationsResolver(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx, span := startSpan(p.Context, "resolver.mutation_create_with_relations",
			attribute.String("db.table", table.Name))
		defer span.End()

		input := mapArg(p.Args, "input")
		if input == nil {
			return nil, fmt.Errorf("input is required")
		}

		txer, ok := r.executor.(dbexec.TxExecutor)
		if !ok {
			return nil, fmt.Errorf("executor does not support transactions")
		}
		tx, err := txer.BeginTx(ctx)
		if err != nil {
			err = mutationError(err)
			recordSpanError(span, err)
			return nil, err
		}

		record, err := r.createWithRelations(ctx, txRunner{tx: tx}, table, input)
		if err != nil {
			_ = tx.Rollback()
			recordSpanError(span, err)
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			err = mutationError(err)
			recordSpanError(span, err)
			return nil, err
		}
		return record, nil
	}
}

// createWithRelations resolves foreign keys first, by connecting to existing
// parents or inserting nested ones, then inserts the row itself, then nested
// children carrying the new key. Runs inside one transaction; the caller
// rolls back on any error.
func (r *Resolver) createWithRelations(ctx context.Context, run sqlRunner, table introspection.Table, input map[string]interface{}) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(input))
	for _, col := range table.Columns {
		if value, ok := input[col.Name]; ok {
			row[col.Name] = value
		}
	}

	for _, fk := range table.ForeignKeys {
		relation := introspection.ForwardRelationName(fk.ReferencedTable)
		connect, hasConnect := input[relation+"_connect"].(map[string]interface{})
		nested, hasCreate := input[relation+"_create"].(map[string]interface{})
		if hasConnect && hasCreate {
			return nil, fmt.Errorf("%s_connect and %s_create are mutually exclusive", relation, relation)
		}
		if hasConnect {
			// The key is trusted as given; the foreign key constraint
			// rejects a missing parent when the row is inserted.
			value, ok := connect[fk.ReferencedColumn]
			if !ok || value == nil {
				return nil, fmt.Errorf("%s_connect requires %s", relation, fk.ReferencedColumn)
			}
			row[fk.ColumnName] = value
			continue
		}
		if !hasCreate {
			continue
		}
		parent, err := r.findTable(fk.ReferencedTable)
		if err != nil {
			return nil, err
		}
		parentRecord, err := r.insertRow(ctx, run, parent, nested)
		if err != nil {
			return nil, err
		}
		row[fk.ColumnName] = parentRecord[fk.ReferencedColumn]
	}

	record, err := r.insertRow(ctx, run, table, row)
	if err != nil {
		return nil, err
	}

	reverse := r.model.ReverseForeignKeys(&table)
	for _, referencing := range sortedKeys(reverse) {
		for _, fk := range reverse[referencing] {
			fieldName := introspection.ReverseRelationName(referencing) + "_createMany"
			children, ok := input[fieldName].([]interface{})
			if !ok {
				continue
			}
			child, err := r.findTable(referencing)
			if err != nil {
				return nil, err
			}
			for _, item := range children {
				childInput, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("%s entries must be objects", fieldName)
				}
				childRow := make(map[string]interface{}, len(childInput)+1)
				for key, value := range childInput {
					childRow[key] = value
				}
				childRow[fk.ColumnName] = record[fk.ReferencedColumn]
				if _, err := r.insertRow(ctx, run, child, childRow); err != nil {
					return nil, err
				}
			}
		}
	}

	return record, nil
}

// insertRow inserts one row and returns the stored record from RETURNING *.
func (r *Resolver) insertRow(ctx context.Context, run sqlRunner, table introspection.Table, input map[string]interface{}) (map[string]interface{}, error) {
	columns, values, err := r.buildInsertRow(table, input, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	sqlText, sqlArgs, err := planner.InsertQuery(r.model.SchemaName, table, columns, [][]interface{}{values})
	if err != nil {
		return nil, err
	}
	records, err := r.runReturning(ctx, run, table, sqlText, sqlArgs)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: insert into %s returned no row", ErrMutationFailed, table.Name)
	}
	return records[0], nil
}

// insertRows performs the bulk insert as a single statement over the union
// of the provided field sets. Row order is preserved by RETURNING *.
func (r *Resolver) insertRows(ctx context.Context, run sqlRunner, table introspection.Table, inputs []map[string]interface{}) ([]map[string]interface{}, error) {
	now := time.Now().UTC()

	provided := make(map[string]bool)
	for _, input := range inputs {
		for key := range input {
			provided[key] = true
		}
	}

	// Union columns in declaration order, including timestamp columns the
	// mutator fills when any row omits them.
	var columns []introspection.Column
	for _, col := range table.Columns {
		if provided[col.Name] || (autoFillable(col) && !col.IsNullable && !col.HasDefault) {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("input rows carry no insertable columns")
	}

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}

	rows := make([][]interface{}, 0, len(inputs))
	for _, input := range inputs {
		row := make([]interface{}, 0, len(columns))
		for _, col := range columns {
			value, ok := input[col.Name]
			switch {
			case ok:
				converted, err := r.converter.ToDB(value, col.Type)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", col.Name, err)
				}
				row = append(row, converted)
			case autoFillable(col) && !col.IsNullable && !col.HasDefault:
				row = append(row, now)
			case col.HasDefault:
				row = append(row, planner.DefaultExpr())
			case col.IsNullable:
				row = append(row, nil)
			default:
				return nil, fmt.Errorf("column %s is required but missing from a row", col.Name)
			}
		}
		rows = append(rows, row)
	}

	sqlText, sqlArgs, err := planner.InsertQuery(r.model.SchemaName, table, names, rows)
	if err != nil {
		return nil, err
	}
	return r.runReturning(ctx, run, table, sqlText, sqlArgs)
}

// buildInsertRow collects one row's columns and bindings in declaration
// order. Non-nullable timestamp columns without a value or default are
// filled with now.
func (r *Resolver) buildInsertRow(table introspection.Table, input map[string]interface{}, now time.Time) ([]string, []interface{}, error) {
	var columns []string
	var values []interface{}

	for _, col := range table.Columns {
		value, ok := input[col.Name]
		switch {
		case ok:
			converted, err := r.converter.ToDB(value, col.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			columns = append(columns, col.Name)
			values = append(values, converted)
		case autoFillable(col) && !col.IsNullable && !col.HasDefault:
			columns = append(columns, col.Name)
			values = append(values, now)
		}
	}
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("input carries no insertable columns")
	}
	return columns, values, nil
}

// updateRow updates by full primary key and returns the stored record.
func (r *Resolver) updateRow(ctx context.Context, run sqlRunner, table introspection.Table, input map[string]interface{}) (map[string]interface{}, error) {
	pks := table.PrimaryKeyColumns()
	if len(pks) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", table.Name)
	}

	keyColumns := make([]string, 0, len(pks))
	keyValues := make([]interface{}, 0, len(pks))
	pkNames := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkNames[pk.Name] = true
		value, ok := input[pk.Name]
		if !ok || value == nil {
			return nil, fmt.Errorf("primary key column %s is required", pk.Name)
		}
		converted, err := r.converter.ToDB(value, pk.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", pk.Name, err)
		}
		keyColumns = append(keyColumns, pk.Name)
		keyValues = append(keyValues, converted)
	}

	var setColumns []string
	var setValues []interface{}
	for _, col := range table.Columns {
		if pkNames[col.Name] {
			continue
		}
		value, ok := input[col.Name]
		if !ok {
			continue
		}
		converted, err := r.converter.ToDB(value, col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		setColumns = append(setColumns, col.Name)
		setValues = append(setValues, converted)
	}
	if len(setColumns) == 0 {
		return nil, fmt.Errorf("input carries no updatable columns")
	}

	sqlText, sqlArgs, err := planner.UpdateQuery(r.model.SchemaName, table, setColumns, setValues, keyColumns, keyValues)
	if err != nil {
		return nil, err
	}
	records, err := r.runReturning(ctx, run, table, sqlText, sqlArgs)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no %s row matches the given key", ErrNotFound, table.Name)
	}
	return records[0], nil
}

func (r *Resolver) runReturning(ctx context.Context, run sqlRunner, table introspection.Table, sqlText string, sqlArgs []interface{}) ([]map[string]interface{}, error) {
	rows, err := run.QueryContext(ctx, sqlText, sqlArgs...)
	if err != nil {
		return nil, mutationError(err)
	}
	defer func() { _ = rows.Close() }()

	records, err := r.scanRecords(rows, table)
	if err != nil {
		return nil, mutationError(err)
	}
	return records, nil
}
