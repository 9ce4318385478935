package resolver

import (
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/introspection"
)

// objectType returns the GraphQL object type for a table, creating it on
// first use. Fields are built through a thunk so tables that reference each
// other (directly or through a cycle) resolve cleanly.
func (r *Resolver) objectType(table introspection.Table) *graphql.Object {
	typeName := introspection.TypeName(table.Name)

	r.mu.RLock()
	cached, ok := r.typeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.buildFieldsForTable(table)
		}),
	})

	// Cache before the thunk runs so cyclic references find the instance.
	r.mu.Lock()
	if cached, ok := r.typeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.typeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

func (r *Resolver) buildFieldsForTable(table introspection.Table) graphql.Fields {
	fields := graphql.Fields{}

	for _, col := range table.Columns {
		fieldType := r.mapColumnType(col.Type)
		if !col.IsNullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		field := &graphql.Field{Type: fieldType}
		if col.Type.IsScalar(introspection.ScalarInt64) {
			field.Description = "64-bit integer (bigint); values may exceed the 32-bit range."
		}
		fields[col.Name] = field
	}

	// Forward relationships: one field per foreign key, resolving the single
	// referenced row.
	for _, fk := range table.ForeignKeys {
		related, err := r.findTable(fk.ReferencedTable)
		if err != nil {
			// The filtered model dropped the endpoint; skip the field.
			continue
		}
		fieldName := introspection.ForwardRelationName(fk.ReferencedTable)
		if _, taken := fields[fieldName]; taken {
			fieldName = fieldName + "_ref"
		}
		fields[fieldName] = &graphql.Field{
			Type:    r.objectType(related),
			Resolve: r.makeForwardResolver(table, fk),
		}
	}

	// Reverse relationships: one list field per table referencing this one.
	reverse := r.model.ReverseForeignKeys(&table)
	for _, referencing := range sortedKeys(reverse) {
		related, err := r.findTable(referencing)
		if err != nil {
			continue
		}
		for _, fk := range reverse[referencing] {
			fieldName := introspection.ReverseRelationName(referencing)
			if _, taken := fields[fieldName]; taken {
				fieldName = fieldName + "_by_" + fk.ColumnName
			}
			listField := &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(r.objectType(related))),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{
						Type:         r.nonNegativeInt,
						DefaultValue: r.defaultLimit,
					},
					"offset": &graphql.ArgumentConfig{
						Type:         r.nonNegativeInt,
						DefaultValue: 0,
					},
				},
				Resolve: r.makeReverseResolver(table, related, fk),
			}
			if orderBy := r.orderByInput(related); orderBy != nil {
				listField.Args["orderBy"] = &graphql.ArgumentConfig{Type: orderBy}
			}
			fields[fieldName] = listField
		}
	}

	return fields
}

// mapColumnType maps a column type descriptor to its GraphQL output type
// per the fixed mapping: integers (including bigint) to Int, floating and
// arbitrary precision to Float, uuid to ID, json/jsonb to the JSON scalar,
// temporal and remaining textual kinds to String.
func (r *Resolver) mapColumnType(desc introspection.TypeDescriptor) graphql.Output {
	resolved := desc.Resolve()

	switch resolved.Variant {
	case introspection.VariantArray:
		if resolved.Elem == nil {
			return graphql.NewList(graphql.String)
		}
		return graphql.NewList(r.mapColumnType(*resolved.Elem))
	case introspection.VariantEnum:
		if enum, ok := r.model.Enums[resolved.TypeName]; ok {
			return r.enumType(enum)
		}
		return graphql.String
	case introspection.VariantComposite:
		if composite := r.compositeType(resolved.TypeName); composite != nil {
			return composite
		}
		return r.jsonType
	case introspection.VariantScalar:
		switch resolved.Scalar {
		case introspection.ScalarInt32, introspection.ScalarInt64, introspection.ScalarSmallInt:
			return graphql.Int
		case introspection.ScalarFloat32, introspection.ScalarFloat64, introspection.ScalarNumeric:
			return graphql.Float
		case introspection.ScalarBool:
			return graphql.Boolean
		case introspection.ScalarUUID:
			return graphql.ID
		case introspection.ScalarJSON, introspection.ScalarJSONB:
			return r.jsonType
		default:
			return graphql.String
		}
	default:
		return graphql.String
	}
}

// mapColumnInputType is the input-position counterpart of mapColumnType.
// Composites swap to their generated input object.
func (r *Resolver) mapColumnInputType(desc introspection.TypeDescriptor) graphql.Input {
	resolved := desc.Resolve()

	switch resolved.Variant {
	case introspection.VariantArray:
		if resolved.Elem == nil {
			return graphql.NewList(graphql.String)
		}
		return graphql.NewList(r.mapColumnInputType(*resolved.Elem))
	case introspection.VariantComposite:
		if input := r.compositeInputType(resolved.TypeName); input != nil {
			return input
		}
		return r.jsonType
	default:
		// Scalars and enums serve both positions.
		if output, ok := r.mapColumnType(desc).(graphql.Input); ok {
			return output
		}
		return graphql.String
	}
}

func (r *Resolver) enumType(enum introspection.EnumType) *graphql.Enum {
	typeName := introspection.PascalCase(enum.Name)

	r.mu.RLock()
	cached, ok := r.enumCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	values := graphql.EnumValueConfigMap{}
	for _, label := range enum.Values {
		values[label] = &graphql.EnumValueConfig{Value: label}
	}
	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name:   typeName,
		Values: values,
	})

	r.mu.Lock()
	if cached, ok := r.enumCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.enumCache[typeName] = enumValue
	r.mu.Unlock()

	return enumValue
}

func (r *Resolver) compositeType(name string) *graphql.Object {
	composite, ok := r.model.Composites[name]
	if !ok {
		return nil
	}
	typeName := introspection.TypeName(name)

	r.mu.RLock()
	cached, ok := r.compositeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, attr := range composite.Attributes {
				fields[attr.Name] = &graphql.Field{Type: r.mapColumnType(attr.Type)}
			}
			return fields
		}),
	})

	r.mu.Lock()
	if cached, ok := r.compositeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.compositeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

func (r *Resolver) compositeInputType(name string) *graphql.InputObject {
	composite, ok := r.model.Composites[name]
	if !ok {
		return nil
	}
	typeName := introspection.TypeName(name) + "Input"

	r.mu.RLock()
	cached, ok := r.compositeInputs[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: typeName,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, attr := range composite.Attributes {
				fields[attr.Name] = &graphql.InputObjectFieldConfig{
					Type: r.mapColumnInputType(attr.Type),
				}
			}
			return fields
		}),
	})

	r.mu.Lock()
	if cached, ok := r.compositeInputs[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.compositeInputs[typeName] = input
	r.mu.Unlock()

	return input
}

func (r *Resolver) pageInfo() *graphql.Object {
	r.mu.RLock()
	cached := r.pageInfoType
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	pageInfo := graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})

	r.mu.Lock()
	if r.pageInfoType == nil {
		r.pageInfoType = pageInfo
	}
	cached = r.pageInfoType
	r.mu.Unlock()

	return cached
}

func (r *Resolver) edgeType(table introspection.Table) *graphql.Object {
	typeName := introspection.TypeName(table.Name) + "Edge"

	r.mu.RLock()
	cached, ok := r.edgeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: graphql.NewNonNull(r.objectType(table))},
		},
	})

	r.mu.Lock()
	if cached, ok := r.edgeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.edgeCache[typeName] = edge
	r.mu.Unlock()

	return edge
}

func (r *Resolver) connectionType(table introspection.Table) *graphql.Object {
	typeName := introspection.TypeName(table.Name) + "Connection"

	r.mu.RLock()
	cached, ok := r.connectionCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	connection := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			"edges": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.edgeType(table)))),
			},
			"nodes": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.objectType(table)))),
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(r.pageInfo()),
			},
			"totalCount": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Int),
				Resolve: resolveTotalCount,
			},
		},
	})

	r.mu.Lock()
	if cached, ok := r.connectionCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.connectionCache[typeName] = connection
	r.mu.Unlock()

	return connection
}
