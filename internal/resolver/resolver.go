// Package resolver turns an introspected database model into an executable
// GraphQL schema. It generates object types, filter and order-by inputs,
// relay-style connections, mutations, and subscription fields, and executes
// the resulting operations through a query executor with batched
// relationship loading.
package resolver

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/convert"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/scalars"
	"pg-graphql/internal/schemafilter"
	"pg-graphql/internal/subscription"
)

// Config wires a resolver to its model and execution dependencies.
type Config struct {
	Executor     dbexec.QueryExecutor
	Model        *introspection.Model
	Capabilities schemafilter.Capabilities
	Converter    *convert.Converter
	Changes      subscription.Source
	Limits       *planner.PlanLimits
	DefaultLimit int
	Logger       *slog.Logger
}

// Resolver builds and executes GraphQL schemas for one database model.
// Type construction is lazy and cached; a Resolver is safe for concurrent
// use once BuildSchema has returned.
type Resolver struct {
	executor     dbexec.QueryExecutor
	model        *introspection.Model
	caps         schemafilter.Capabilities
	converter    *convert.Converter
	changes      subscription.Source
	limits       *planner.PlanLimits
	defaultLimit int
	logger       *slog.Logger

	mu               sync.RWMutex
	typeCache        map[string]*graphql.Object
	edgeCache        map[string]*graphql.Object
	connectionCache  map[string]*graphql.Object
	compositeCache   map[string]*graphql.Object
	compositeInputs  map[string]*graphql.InputObject
	enumCache        map[string]*graphql.Enum
	whereCache       map[string]*graphql.InputObject
	filterCache      map[string]*graphql.InputObject
	orderByCache     map[string]*graphql.InputObject
	createInputCache map[string]*graphql.InputObject
	updateInputCache map[string]*graphql.InputObject
	connectInputs    map[string]*graphql.InputObject
	relationsInputs  map[string]*graphql.InputObject
	changeEventCache map[string]*graphql.Object
	changeDataCache  map[string]*graphql.Object
	pageInfoType     *graphql.Object
	orderDirection   *graphql.Enum
	changeOperation  *graphql.Enum

	jsonType       *graphql.Scalar
	nonNegativeInt *graphql.Scalar
}

// New creates a resolver for the given model. Capabilities may be nil, in
// which case every operation the model supports is exposed (the golden
// schema).
func New(cfg Config) *Resolver {
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = planner.DefaultListLimit
	}
	converter := cfg.Converter
	if converter == nil {
		converter = convert.New(cfg.Model)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		executor:     cfg.Executor,
		model:        cfg.Model,
		caps:         cfg.Capabilities,
		converter:    converter,
		changes:      cfg.Changes,
		limits:       cfg.Limits,
		defaultLimit: defaultLimit,
		logger:       logger,

		typeCache:        make(map[string]*graphql.Object),
		edgeCache:        make(map[string]*graphql.Object),
		connectionCache:  make(map[string]*graphql.Object),
		compositeCache:   make(map[string]*graphql.Object),
		compositeInputs:  make(map[string]*graphql.InputObject),
		enumCache:        make(map[string]*graphql.Enum),
		whereCache:       make(map[string]*graphql.InputObject),
		filterCache:      make(map[string]*graphql.InputObject),
		orderByCache:     make(map[string]*graphql.InputObject),
		createInputCache: make(map[string]*graphql.InputObject),
		updateInputCache: make(map[string]*graphql.InputObject),
		connectInputs:    make(map[string]*graphql.InputObject),
		relationsInputs:  make(map[string]*graphql.InputObject),
		changeEventCache: make(map[string]*graphql.Object),
		changeDataCache:  make(map[string]*graphql.Object),

		jsonType:       scalars.JSON(),
		nonNegativeInt: scalars.NonNegativeInt(),
	}
}

// BuildSchema constructs the executable schema. Construction is ordered so
// two builds over the same model produce identical schemas: shared scalars
// and enums first, then custom types, object types, inputs, and finally the
// root operation types.
func (r *Resolver) BuildSchema() (graphql.Schema, error) {
	r.orderDirectionEnum()
	for _, name := range sortedKeys(r.model.Enums) {
		r.enumType(r.model.Enums[name])
	}
	for _, name := range sortedKeys(r.model.Composites) {
		r.compositeType(name)
	}

	queryFields := graphql.Fields{}
	for _, table := range r.model.Tables {
		if !r.tableCaps(table.Name).CanQuery {
			continue
		}
		r.addTableQueries(queryFields, table)
	}
	if len(queryFields) == 0 {
		queryFields["health"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Placeholder field when the schema exposes no tables.",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "ok", nil
			},
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	}

	mutationFields := graphql.Fields{}
	for _, table := range r.model.Tables {
		r.addTableMutations(mutationFields, table)
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	subscriptionFields := r.buildSubscriptionFields()
	if len(subscriptionFields) > 0 {
		schemaConfig.Subscription = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: subscriptionFields,
		})
	}

	return graphql.NewSchema(schemaConfig)
}

// addTableQueries emits the two root fields for a queryable table: the plain
// list field and the cursor-capable connection field.
func (r *Resolver) addTableQueries(fields graphql.Fields, table introspection.Table) {
	tableType := r.objectType(table)
	fieldName := introspection.RootFieldName(table.Name)

	listField := &graphql.Field{
		Type: graphql.NewList(graphql.NewNonNull(tableType)),
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
		Resolve: r.makeListResolver(table),
	}
	if orderBy := r.orderByInput(table); orderBy != nil {
		listField.Args["orderBy"] = &graphql.ArgumentConfig{Type: orderBy}
	}
	if where := r.whereInput(table); where != nil {
		listField.Args["where"] = &graphql.ArgumentConfig{Type: where}
	}
	fields[fieldName] = listField

	fields[fieldName+"Connection"] = &graphql.Field{
		Type:    graphql.NewNonNull(r.connectionType(table)),
		Args:    r.connectionFieldArgs(table),
		Resolve: r.makeConnectionResolver(table),
	}
}

// connectionFieldArgs builds the argument set for connection fields. Cursor
// arguments (first/after/last/before) and offset are both accepted; the
// resolver picks the pagination mode from which ones are present.
func (r *Resolver) connectionFieldArgs(table introspection.Table) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"first":  &graphql.ArgumentConfig{Type: r.nonNegativeInt},
		"after":  &graphql.ArgumentConfig{Type: graphql.String},
		"last":   &graphql.ArgumentConfig{Type: r.nonNegativeInt},
		"before": &graphql.ArgumentConfig{Type: graphql.String},
		"offset": &graphql.ArgumentConfig{Type: r.nonNegativeInt},
	}
	if orderBy := r.orderByInput(table); orderBy != nil {
		args["orderBy"] = &graphql.ArgumentConfig{Type: orderBy}
	}
	if where := r.whereInput(table); where != nil {
		args["where"] = &graphql.ArgumentConfig{Type: where}
	}
	return args
}

// tableCaps returns the capabilities for a table. A nil capability map means
// the resolver serves the unfiltered golden model.
func (r *Resolver) tableCaps(name string) schemafilter.TableCapabilities {
	if r.caps == nil {
		return schemafilter.TableCapabilities{
			CanQuery:  true,
			CanCreate: true,
			CanUpdate: true,
			CanDelete: true,
		}
	}
	return r.caps[name]
}

// columnWritable reports whether the role may supply a value for the column
// in the given mutation kind.
func (r *Resolver) columnWritable(table, column string, forUpdate bool) bool {
	if r.caps == nil {
		return true
	}
	cc, ok := r.caps[table].Columns[column]
	if !ok {
		return false
	}
	if forUpdate {
		return cc.CanUpdate
	}
	return cc.CanInsert
}

func (r *Resolver) findTable(name string) (introspection.Table, error) {
	if table, ok := r.model.Table(name); ok {
		return *table, nil
	}
	return introspection.Table{}, fmt.Errorf("table not found: %s", name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	parsed, ok := value.(int)
	if !ok || parsed < 0 {
		return fallback
	}
	return parsed
}

func optionalIntArg(args map[string]interface{}, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	value, ok := args[key]
	if !ok || value == nil {
		return 0, false
	}
	parsed, ok := value.(int)
	if !ok || parsed < 0 {
		return 0, false
	}
	return parsed, true
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func mapArg(args map[string]interface{}, key string) map[string]interface{} {
	if args == nil {
		return nil
	}
	value, _ := args[key].(map[string]interface{})
	return value
}
