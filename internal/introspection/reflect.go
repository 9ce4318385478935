// Package introspection discovers database schema metadata from the
// PostgreSQL catalogs. It extracts tables, views, columns, primary keys,
// foreign keys, and custom enum/composite types for GraphQL schema
// generation.
package introspection

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/cache"
)

// Reflector introspects database schemas and caches the resulting models
// keyed by schema name.
type Reflector struct {
	models *cache.Cache[string, *Model]
}

// NewReflector returns a reflector whose cached models expire after ttl.
func NewReflector(ttl time.Duration) *Reflector {
	return &Reflector{models: cache.New[string, *Model](ttl)}
}

// Reflect returns the model for schemaName, reflecting it through q when the
// cache is cold. Concurrent callers for the same schema share one reflection.
func (r *Reflector) Reflect(ctx context.Context, q Queryer, schemaName string) (*Model, error) {
	return r.models.GetOrCompute(schemaName, func() (*Model, error) {
		return ReflectSchema(ctx, q, schemaName)
	})
}

// Invalidate drops the cached model for schemaName.
func (r *Reflector) Invalidate(schemaName string) {
	r.models.Remove(schemaName)
}

// Clear drops every cached model.
func (r *Reflector) Clear() {
	r.models.Clear()
}

// ReflectSchema reads the full model of one schema in six bulk catalog
// queries. Every identifier in a predicate is bound as a parameter.
func ReflectSchema(ctx context.Context, q Queryer, schemaName string) (*Model, error) {
	ctx, span := startSpan(ctx, "introspection.reflect_schema",
		attribute.String("db.schema", schemaName),
	)
	defer span.End()

	enums, err := getEnumTypes(ctx, q, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get enum types: %w", err)
	}

	composites, err := getCompositeTypes(ctx, q, schemaName, enums)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get composite types: %w", err)
	}

	resolver := typeResolver{enums: enums, composites: composites}

	tables, err := getTables(ctx, q, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	columnsByTable, err := getColumns(ctx, q, schemaName, resolver)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	primaryKeysByTable, err := getPrimaryKeys(ctx, q, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}

	foreignKeysByTable, err := getForeignKeys(ctx, q, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	model := &Model{
		SchemaName: schemaName,
		Tables:     make([]Table, 0, len(tables)),
		Enums:      enums,
		Composites: composites,
	}

	for _, t := range tables {
		columns := columnsByTable[t.Name]
		if !t.IsView {
			for _, pk := range primaryKeysByTable[t.Name] {
				for i := range columns {
					if columns[i].Name == pk {
						columns[i].IsPrimaryKey = true
						// A primary key column is never nullable regardless
						// of what the columns view reported.
						columns[i].IsNullable = false
						break
					}
				}
			}
			t.ForeignKeys = foreignKeysByTable[t.Name]
		}
		t.Columns = columns
		model.Tables = append(model.Tables, t)
	}

	span.SetAttributes(attribute.Int("schema.tables", len(model.Tables)))
	return model, nil
}

func getTables(ctx context.Context, q Queryer, schemaName string) ([]Table, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables")
	defer span.End()

	query := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
			AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, Table{
			Name:   name,
			IsView: tableType == "VIEW",
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, q Queryer, schemaName string, resolver typeResolver) (map[string][]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns")
	defer span.End()

	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default IS NOT NULL
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]Column)
	for rows.Next() {
		var tableName, columnName, dataType, udtName, isNullable string
		var hasDefault bool
		if err := rows.Scan(&tableName, &columnName, &dataType, &udtName, &isNullable, &hasDefault); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		result[tableName] = append(result[tableName], Column{
			Name:       columnName,
			Type:       resolver.resolveColumnType(dataType, udtName),
			IsNullable: isNullable == "YES",
			HasDefault: hasDefault,
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

func getPrimaryKeys(ctx context.Context, q Queryer, schemaName string) (map[string][]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys")
	defer span.End()

	query := `
		SELECT c.relname, a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1
			AND i.indisprimary
		ORDER BY c.relname, array_position(i.indkey, a.attnum)
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		result[tableName] = append(result[tableName], columnName)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

func getForeignKeys(ctx context.Context, q Queryer, schemaName string) (map[string][]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys")
	defer span.End()

	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]ForeignKey)
	for rows.Next() {
		var tableName, constraintName, columnName, refTable, refColumn string
		if err := rows.Scan(&tableName, &constraintName, &columnName, &refTable, &refColumn); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		result[tableName] = append(result[tableName], ForeignKey{
			ColumnName:       columnName,
			ReferencedTable:  refTable,
			ReferencedColumn: refColumn,
			ConstraintName:   constraintName,
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

func getEnumTypes(ctx context.Context, q Queryer, schemaName string) (map[string]EnumType, error) {
	ctx, span := startSpan(ctx, "introspection.get_enum_types")
	defer span.End()

	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]EnumType)
	for rows.Next() {
		var typeName, label string
		if err := rows.Scan(&typeName, &label); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		enum, ok := result[typeName]
		if !ok {
			enum = EnumType{Schema: schemaName, Name: typeName}
		}
		enum.Values = append(enum.Values, label)
		result[typeName] = enum
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

func getCompositeTypes(ctx context.Context, q Queryer, schemaName string, enums map[string]EnumType) (map[string]CompositeType, error) {
	ctx, span := startSpan(ctx, "introspection.get_composite_types")
	defer span.End()

	query := `
		SELECT t.typname, a.attname, a.attnum, NOT a.attnotnull, bt.typname
		FROM pg_type t
		JOIN pg_class c ON c.oid = t.typrelid AND c.relkind = 'c'
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
		JOIN pg_type bt ON bt.oid = a.atttypid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, a.attnum
	`
	rows, err := q.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	// Attribute types can reference enums of the same schema but not
	// composites, which keeps resolution single-pass.
	resolver := typeResolver{enums: enums, composites: map[string]CompositeType{}}

	result := make(map[string]CompositeType)
	for rows.Next() {
		var typeName, attrName, attrType string
		var order int
		var nullable bool
		if err := rows.Scan(&typeName, &attrName, &order, &nullable, &attrType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		composite, ok := result[typeName]
		if !ok {
			composite = CompositeType{Schema: schemaName, Name: typeName}
		}
		composite.Attributes = append(composite.Attributes, CompositeAttribute{
			Name:     attrName,
			Type:     resolver.resolveNamedType(attrType),
			Order:    order,
			Nullable: nullable,
		})
		result[typeName] = composite
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("pg-graphql/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
