package resolver

import (
	"fmt"
	"time"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/subscription"
)

// buildSubscriptionFields emits a change feed field for every generated
// table type. The health placeholder only appears when the model exposes no
// tables, so the subscription root is never empty.
func (r *Resolver) buildSubscriptionFields() graphql.Fields {
	fields := graphql.Fields{}
	for _, table := range r.model.Tables {
		fieldName := introspection.RootFieldName(table.Name) + "_changes"
		fields[fieldName] = &graphql.Field{
			Type:      graphql.NewNonNull(r.changeEventType(table)),
			Resolve:   resolveChangeEvent,
			Subscribe: r.makeChangeSubscriber(table),
		}
	}
	if len(fields) == 0 {
		fields["health"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Emits a single \"ok\" and completes.",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if value, ok := p.Source.(string); ok {
					return value, nil
				}
				return "ok", nil
			},
			Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
				ch := make(chan interface{}, 1)
				ch <- "ok"
				close(ch)
				return ch, nil
			},
		}
	}
	return fields
}

// changeOperationEnum is the shared operation enum for change events.
// ERROR covers payloads the change source could not classify.
func (r *Resolver) changeOperationEnum() *graphql.Enum {
	r.mu.RLock()
	cached := r.changeOperation
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name: "ChangeOperation",
		Values: graphql.EnumValueConfigMap{
			"INSERT": &graphql.EnumValueConfig{Value: "INSERT"},
			"UPDATE": &graphql.EnumValueConfig{Value: "UPDATE"},
			"DELETE": &graphql.EnumValueConfig{Value: "DELETE"},
			"ERROR":  &graphql.EnumValueConfig{Value: "ERROR"},
		},
	})

	r.mu.Lock()
	if r.changeOperation == nil {
		r.changeOperation = enumValue
	}
	cached = r.changeOperation
	r.mu.Unlock()

	return cached
}

// subscriptionDataType mirrors the table with every field nullable, since a
// notifying trigger may include any subset of the row image. The old and new
// fields carry the before and after images on updates.
func (r *Resolver) subscriptionDataType(table introspection.Table) *graphql.Object {
	name := introspection.TypeName(table.Name) + "SubscriptionData"

	r.mu.RLock()
	cached, ok := r.changeDataCache[name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.changeDataCache[name]; ok {
		return cached
	}

	var dataType *graphql.Object
	dataType = graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, col := range table.Columns {
				fields[col.Name] = &graphql.Field{
					Type:    r.mapColumnType(col.Type),
					Resolve: resolveDataField(col.Name),
				}
			}
			fields["old"] = &graphql.Field{Type: dataType, Resolve: resolveDataField("old")}
			fields["new"] = &graphql.Field{Type: dataType, Resolve: resolveDataField("new")}
			return fields
		}),
	})
	r.changeDataCache[name] = dataType
	return dataType
}

func resolveDataField(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		data, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		return data[key], nil
	}
}

// changeEventType builds the payload type for a table's change feed.
func (r *Resolver) changeEventType(table introspection.Table) *graphql.Object {
	name := introspection.TypeName(table.Name) + "ChangeEvent"

	r.mu.RLock()
	cached, ok := r.changeEventCache[name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	// Built outside the cache lock; both take it themselves.
	operationEnum := r.changeOperationEnum()
	dataType := r.subscriptionDataType(table)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.changeEventCache[name]; ok {
		return cached
	}

	eventType := graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"operation": &graphql.Field{
				Type: graphql.NewNonNull(operationEnum),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					event, ok := p.Source.(subscription.Event)
					if !ok {
						return "ERROR", nil
					}
					switch event.Operation {
					case "INSERT", "UPDATE", "DELETE":
						return event.Operation, nil
					default:
						// Unclassified payloads surface as ERROR events.
						return "ERROR", nil
					}
				},
			},
			"table": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					event, ok := p.Source.(subscription.Event)
					if !ok {
						return nil, nil
					}
					return event.Table, nil
				},
			},
			"timestamp": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					event, ok := p.Source.(subscription.Event)
					if !ok {
						return nil, nil
					}
					return event.Timestamp.Format(time.RFC3339Nano), nil
				},
			},
			"data": &graphql.Field{
				Type: dataType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					event, ok := p.Source.(subscription.Event)
					if !ok {
						return nil, nil
					}
					if event.Data == nil {
						return nil, nil
					}
					return event.Data, nil
				},
			},
		},
	})
	r.changeEventCache[name] = eventType
	return eventType
}

func resolveChangeEvent(p graphql.ResolveParams) (interface{}, error) {
	return p.Source, nil
}

// makeChangeSubscriber bridges the change source's event channel into the
// interface channel graphql-go consumes. The bridge goroutine exits when the
// source closes the feed or the operation context ends.
func (r *Resolver) makeChangeSubscriber(table introspection.Table) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if r.changes == nil {
			return nil, fmt.Errorf("subscriptions are not enabled")
		}

		events, err := r.changes.Subscribe(p.Context, table.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s changes: %w", table.Name, err)
		}

		out := make(chan interface{})
		go func() {
			defer close(out)
			for {
				select {
				case event, ok := <-events:
					if !ok {
						return
					}
					select {
					case out <- event:
					case <-p.Context.Done():
						return
					}
				case <-p.Context.Done():
					return
				}
			}
		}()
		return out, nil
	}
}
