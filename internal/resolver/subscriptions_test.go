package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/subscription"
)

type stubSource struct {
	events chan subscription.Event
	table  string
}

func (s *stubSource) Subscribe(ctx context.Context, table string) (<-chan subscription.Event, error) {
	s.table = table
	return s.events, nil
}

func TestChangeSubscriberForwardsEvents(t *testing.T) {
	source := &stubSource{events: make(chan subscription.Event, 1)}
	r := New(Config{Model: testModel(), Changes: source})
	users, err := r.findTable("users")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribe := r.makeChangeSubscriber(users)
	result, err := subscribe(graphql.ResolveParams{Context: ctx})
	require.NoError(t, err)
	assert.Equal(t, "users", source.table)

	out, ok := result.(chan interface{})
	require.True(t, ok)

	sent := subscription.Event{
		Operation: "INSERT",
		Table:     "users",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:      map[string]interface{}{"id": float64(1)},
	}
	source.events <- sent

	select {
	case received := <-out:
		event, ok := received.(subscription.Event)
		require.True(t, ok)
		assert.Equal(t, "INSERT", event.Operation)
		assert.Equal(t, "users", event.Table)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Canceling the operation closes the bridge channel.
	cancel()
	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestChangeSubscriberWithoutSource(t *testing.T) {
	r := New(Config{Model: testModel()})
	users, err := r.findTable("users")
	require.NoError(t, err)

	subscribe := r.makeChangeSubscriber(users)
	_, err = subscribe(graphql.ResolveParams{Context: context.Background()})
	require.Error(t, err)
}

func TestChangeEventTypeFields(t *testing.T) {
	r := New(Config{Model: testModel(), Changes: &stubSource{}})
	users, err := r.findTable("users")
	require.NoError(t, err)

	eventType := r.changeEventType(users)
	assert.Equal(t, "UsersChangeEvent", eventType.Name())

	fields := eventType.Fields()
	for _, name := range []string{"operation", "table", "timestamp", "data"} {
		assert.Contains(t, fields, name)
	}

	event := subscription.Event{
		Operation: "UPDATE",
		Table:     "users",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	value, err := fields["timestamp"].Resolve(graphql.ResolveParams{Source: event})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", value)

	value, err = fields["operation"].Resolve(graphql.ResolveParams{Source: event})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", value)
}

func TestChangeOperationNormalizesUnknownValues(t *testing.T) {
	r := New(Config{Model: testModel(), Changes: &stubSource{}})
	users, err := r.findTable("users")
	require.NoError(t, err)

	fields := r.changeEventType(users).Fields()
	event := subscription.Event{Operation: "UNKNOWN", Table: "users"}
	value, err := fields["operation"].Resolve(graphql.ResolveParams{Source: event})
	require.NoError(t, err)
	assert.Equal(t, "ERROR", value)
}

func TestSubscriptionDataMirrorsTableColumns(t *testing.T) {
	r := New(Config{Model: testModel(), Changes: &stubSource{}})
	users, err := r.findTable("users")
	require.NoError(t, err)

	dataType := r.subscriptionDataType(users)
	assert.Equal(t, "UsersSubscriptionData", dataType.Name())

	fields := dataType.Fields()
	for _, name := range []string{"id", "email", "created_at", "old", "new"} {
		assert.Contains(t, fields, name)
	}

	// Every column mirror is nullable; old and new reference the type itself.
	for _, name := range []string{"id", "email", "created_at"} {
		_, nonNull := fields[name].Type.(*graphql.NonNull)
		assert.False(t, nonNull, "field %s must be nullable", name)
	}
	assert.Equal(t, dataType, fields["old"].Type)
	assert.Equal(t, dataType, fields["new"].Type)

	data := map[string]interface{}{
		"email": "alice@example.com",
		"old":   map[string]interface{}{"email": "old@example.com"},
	}
	value, err := fields["email"].Resolve(graphql.ResolveParams{Source: data})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", value)

	oldImage, err := fields["old"].Resolve(graphql.ResolveParams{Source: data})
	require.NoError(t, err)
	require.IsType(t, map[string]interface{}{}, oldImage)
	value, err = fields["email"].Resolve(graphql.ResolveParams{Source: oldImage})
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", value)
}

func TestHealthSubscriptionOnlyOnEmptyModel(t *testing.T) {
	r := New(Config{Model: testModel()})
	fields := r.buildSubscriptionFields()
	assert.NotContains(t, fields, "health")
	assert.Contains(t, fields, "users_changes")

	empty := &introspection.Model{
		SchemaName: "public",
		Enums:      map[string]introspection.EnumType{},
		Composites: map[string]introspection.CompositeType{},
	}
	r = New(Config{Model: empty})
	fields = r.buildSubscriptionFields()

	health, ok := fields["health"]
	require.True(t, ok)
	require.Len(t, fields, 1)

	result, err := health.Subscribe(graphql.ResolveParams{Context: context.Background()})
	require.NoError(t, err)

	ch, ok := result.(chan interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", <-ch)
	_, open := <-ch
	assert.False(t, open)
}
