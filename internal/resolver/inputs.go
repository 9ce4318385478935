package resolver

import (
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/introspection"
)

func (r *Resolver) orderDirectionEnum() *graphql.Enum {
	r.mu.RLock()
	cached := r.orderDirection
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC"},
		},
	})

	r.mu.Lock()
	if r.orderDirection == nil {
		r.orderDirection = enumValue
	}
	cached = r.orderDirection
	r.mu.Unlock()

	return cached
}

func (r *Resolver) orderByInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "OrderBy"

	r.mu.RLock()
	cached, ok := r.orderByCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		fields[col.Name] = &graphql.InputObjectFieldConfig{
			Type: r.orderDirectionEnum(),
		}
	}
	if len(fields) == 0 {
		return nil
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.orderByCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.orderByCache[typeName] = input
	r.mu.Unlock()

	return input
}

// whereInput builds the per-table filter input: one field per filterable
// column plus an `or` branch list referencing the input itself.
func (r *Resolver) whereInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "Filter"

	r.mu.RLock()
	cached, ok := r.whereCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		if filterType := r.filterInputFor(col.Type); filterType != nil {
			fields[col.Name] = &graphql.InputObjectFieldConfig{Type: filterType}
		}
	}
	if len(fields) == 0 {
		return nil
	}

	var inputObj *graphql.InputObject
	inputObj = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: typeName,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields["or"] = &graphql.InputObjectFieldConfig{
				Type: graphql.NewList(graphql.NewNonNull(inputObj)),
			}
			return fields
		}),
	})

	r.mu.Lock()
	if cached, ok := r.whereCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.whereCache[typeName] = inputObj
	r.mu.Unlock()

	return inputObj
}

// filterInputFor picks the shared filter input for a column type. Composite
// and unknown columns are not filterable.
func (r *Resolver) filterInputFor(desc introspection.TypeDescriptor) *graphql.InputObject {
	resolved := desc.Resolve()

	switch resolved.Variant {
	case introspection.VariantArray:
		return r.arrayFilterInput(resolved)
	case introspection.VariantEnum:
		if enum, ok := r.model.Enums[resolved.TypeName]; ok {
			return r.enumFilterInput(enum)
		}
		return nil
	case introspection.VariantScalar:
		switch resolved.Scalar {
		case introspection.ScalarInt32, introspection.ScalarInt64, introspection.ScalarSmallInt:
			return r.comparableFilterInput("IntFilter", graphql.Int)
		case introspection.ScalarFloat32, introspection.ScalarFloat64, introspection.ScalarNumeric:
			return r.comparableFilterInput("FloatFilter", graphql.Float)
		case introspection.ScalarBool:
			return r.booleanFilterInput()
		case introspection.ScalarUUID:
			return r.comparableFilterInput("IDFilter", graphql.ID)
		case introspection.ScalarJSON, introspection.ScalarJSONB:
			return r.jsonFilterInput()
		case introspection.ScalarDate, introspection.ScalarTimestamp, introspection.ScalarTimestampTZ,
			introspection.ScalarTime, introspection.ScalarTimeTZ, introspection.ScalarInterval:
			return r.comparableFilterInput("DateTimeFilter", graphql.String)
		case introspection.ScalarBytea:
			return nil
		default:
			return r.stringFilterInput()
		}
	default:
		return nil
	}
}

func (r *Resolver) cachedFilterInput(name string, build func() *graphql.InputObject) *graphql.InputObject {
	r.mu.RLock()
	cached, ok := r.filterCache[name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	input := build()

	r.mu.Lock()
	if cached, ok := r.filterCache[name]; ok {
		r.mu.Unlock()
		return cached
	}
	r.filterCache[name] = input
	r.mu.Unlock()

	return input
}

func nullabilityFields(fields graphql.InputObjectConfigFieldMap) graphql.InputObjectConfigFieldMap {
	fields["isNull"] = &graphql.InputObjectFieldConfig{Type: graphql.Boolean}
	fields["isNotNull"] = &graphql.InputObjectFieldConfig{Type: graphql.Boolean}
	return fields
}

// comparableFilterInput covers the ordered scalar categories: equality,
// range comparison, and membership.
func (r *Resolver) comparableFilterInput(name string, scalar graphql.Input) *graphql.InputObject {
	return r.cachedFilterInput(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"eq":    &graphql.InputObjectFieldConfig{Type: scalar},
				"neq":   &graphql.InputObjectFieldConfig{Type: scalar},
				"lt":    &graphql.InputObjectFieldConfig{Type: scalar},
				"lte":   &graphql.InputObjectFieldConfig{Type: scalar},
				"gt":    &graphql.InputObjectFieldConfig{Type: scalar},
				"gte":   &graphql.InputObjectFieldConfig{Type: scalar},
				"in":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(scalar)},
				"notIn": &graphql.InputObjectFieldConfig{Type: graphql.NewList(scalar)},
			}),
		})
	})
}

func (r *Resolver) stringFilterInput() *graphql.InputObject {
	return r.cachedFilterInput("StringFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "StringFilter",
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"eq":         &graphql.InputObjectFieldConfig{Type: graphql.String},
				"neq":        &graphql.InputObjectFieldConfig{Type: graphql.String},
				"lt":         &graphql.InputObjectFieldConfig{Type: graphql.String},
				"lte":        &graphql.InputObjectFieldConfig{Type: graphql.String},
				"gt":         &graphql.InputObjectFieldConfig{Type: graphql.String},
				"gte":        &graphql.InputObjectFieldConfig{Type: graphql.String},
				"in":         &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.String)},
				"notIn":      &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.String)},
				"contains":   &graphql.InputObjectFieldConfig{Type: graphql.String},
				"startsWith": &graphql.InputObjectFieldConfig{Type: graphql.String},
				"endsWith":   &graphql.InputObjectFieldConfig{Type: graphql.String},
				"like":       &graphql.InputObjectFieldConfig{Type: graphql.String},
				"ilike":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			}),
		})
	})
}

func (r *Resolver) booleanFilterInput() *graphql.InputObject {
	return r.cachedFilterInput("BooleanFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "BooleanFilter",
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"eq":  &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
				"neq": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
			}),
		})
	})
}

func (r *Resolver) jsonFilterInput() *graphql.InputObject {
	return r.cachedFilterInput("JSONFilter", func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "JSONFilter",
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"contains": &graphql.InputObjectFieldConfig{Type: r.jsonType},
				"hasKey":   &graphql.InputObjectFieldConfig{Type: graphql.String},
				"path":     &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
			}),
		})
	})
}

func (r *Resolver) enumFilterInput(enum introspection.EnumType) *graphql.InputObject {
	enumType := r.enumType(enum)
	name := introspection.PascalCase(enum.Name) + "Filter"
	return r.cachedFilterInput(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"eq":    &graphql.InputObjectFieldConfig{Type: enumType},
				"neq":   &graphql.InputObjectFieldConfig{Type: enumType},
				"in":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(enumType)},
				"notIn": &graphql.InputObjectFieldConfig{Type: graphql.NewList(enumType)},
			}),
		})
	})
}

func (r *Resolver) arrayFilterInput(resolved introspection.TypeDescriptor) *graphql.InputObject {
	if resolved.Elem == nil {
		return nil
	}
	elemType := r.mapColumnInputType(*resolved.Elem)
	named, ok := elemType.(graphql.Type)
	if !ok || named.Name() == "" {
		return nil
	}
	name := named.Name() + "ArrayFilter"
	return r.cachedFilterInput(name, func() *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: nullabilityFields(graphql.InputObjectConfigFieldMap{
				"contains": &graphql.InputObjectFieldConfig{Type: elemType},
				"hasAny":   &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(elemType))},
				"length":   &graphql.InputObjectFieldConfig{Type: graphql.Int},
			}),
		})
	})
}

// createInput builds the insert input for a table. Columns the role may not
// insert are omitted; required means not nullable, no default, and not a
// timestamp the mutator fills automatically.
func (r *Resolver) createInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "CreateInput"

	r.mu.RLock()
	cached, ok := r.createInputCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		if !r.columnWritable(table.Name, col.Name, false) {
			continue
		}
		fieldType := r.mapColumnInputType(col.Type)
		if !col.IsNullable && !col.HasDefault && !autoFillable(col) {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}
	if len(fields) == 0 {
		return nil
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.createInputCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.createInputCache[typeName] = input
	r.mu.Unlock()

	return input
}

// updateInput requires the full primary key and accepts any updatable column.
func (r *Resolver) updateInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "UpdateInput"

	r.mu.RLock()
	cached, ok := r.updateInputCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	hasUpdatable := false
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			fields[col.Name] = &graphql.InputObjectFieldConfig{
				Type: graphql.NewNonNull(r.mapColumnInputType(col.Type)),
			}
			continue
		}
		if !r.columnWritable(table.Name, col.Name, true) {
			continue
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: r.mapColumnInputType(col.Type)}
		hasUpdatable = true
	}
	if !hasUpdatable {
		return nil
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.updateInputCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.updateInputCache[typeName] = input
	r.mu.Unlock()

	return input
}

// connectInput identifies an existing row of a referenced table by its full
// primary key.
func (r *Resolver) connectInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "ConnectInput"

	r.mu.RLock()
	cached, ok := r.connectInputs[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.PrimaryKeyColumns() {
		fields[col.Name] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewNonNull(r.mapColumnInputType(col.Type)),
		}
	}
	if len(fields) == 0 {
		return nil
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.connectInputs[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.connectInputs[typeName] = input
	r.mu.Unlock()

	return input
}

// relationsInput extends the create input with nested relationship handling:
// per foreign key an optional parent create or a connect to an existing row,
// and per reverse foreign key an optional child list. Foreign key columns
// turn optional because the nested parent can supply them.
func (r *Resolver) relationsInput(table introspection.Table) *graphql.InputObject {
	typeName := introspection.TypeName(table.Name) + "CreateWithRelationsInput"

	r.mu.RLock()
	cached, ok := r.relationsInputs[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fkColumns := make(map[string]bool, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		fkColumns[fk.ColumnName] = true
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		if !r.columnWritable(table.Name, col.Name, false) {
			continue
		}
		fieldType := r.mapColumnInputType(col.Type)
		if !col.IsNullable && !col.HasDefault && !autoFillable(col) && !fkColumns[col.Name] {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}

	for _, fk := range table.ForeignKeys {
		parent, err := r.findTable(fk.ReferencedTable)
		if err != nil {
			continue
		}
		relation := introspection.ForwardRelationName(fk.ReferencedTable)
		if parentInput := r.createInput(parent); parentInput != nil {
			fields[relation+"_create"] = &graphql.InputObjectFieldConfig{Type: parentInput}
		}
		if connectInput := r.connectInput(parent); connectInput != nil {
			fields[relation+"_connect"] = &graphql.InputObjectFieldConfig{Type: connectInput}
		}
	}

	reverse := r.model.ReverseForeignKeys(&table)
	for _, referencing := range sortedKeys(reverse) {
		child, err := r.findTable(referencing)
		if err != nil {
			continue
		}
		childInput := r.createInput(child)
		if childInput == nil {
			continue
		}
		fieldName := introspection.ReverseRelationName(referencing) + "_createMany"
		fields[fieldName] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewList(graphql.NewNonNull(childInput)),
		}
	}

	if len(fields) == 0 {
		return nil
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.relationsInputs[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.relationsInputs[typeName] = input
	r.mu.Unlock()

	return input
}

// autoFillable reports whether the mutator fills the column when the input
// omits it: non-nullable timestamp columns default to the current time.
func autoFillable(col introspection.Column) bool {
	switch col.Type.Resolve().Scalar {
	case introspection.ScalarTimestamp, introspection.ScalarTimestampTZ, introspection.ScalarDate:
		return col.Type.Resolve().Variant == introspection.VariantScalar
	}
	return false
}
