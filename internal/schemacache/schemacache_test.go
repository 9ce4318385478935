package schemacache

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/dbexec"
)

func expectCatalogQueries(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM pg_type t").WillReturnRows(
		sqlmock.NewRows([]string{"typname", "enumlabel"}))

	mock.ExpectQuery("relkind = 'c'").WillReturnRows(
		sqlmock.NewRows([]string{"typname", "attname", "attnum", "nullable", "atttype"}))

	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "table_type"}).
			AddRow("address", "BASE TABLE").
			AddRow("customer", "BASE TABLE"))

	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "has_default"}).
			AddRow("address", "address_id", "integer", "int4", "NO", true).
			AddRow("address", "city", "character varying", "varchar", "NO", false).
			AddRow("customer", "customer_id", "integer", "int4", "NO", true).
			AddRow("customer", "email", "character varying", "varchar", "YES", false))

	mock.ExpectQuery("indisprimary").WillReturnRows(
		sqlmock.NewRows([]string{"relname", "attname"}).
			AddRow("address", "address_id").
			AddRow("customer", "customer_id"))

	mock.ExpectQuery("FOREIGN KEY").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "referenced_table", "referenced_column"}))
}

func newService(t *testing.T, roleBased bool) (sqlmock.Sqlmock, *Service) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := New(Config{
		Privileged:      db,
		Executor:        dbexec.NewStandardExecutor(db),
		SchemaName:      "public",
		RoleBasedSchema: roleBased,
		TTL:             time.Minute,
	})
	return mock, svc
}

func TestGoldenSchemaCompilesOnce(t *testing.T) {
	mock, svc := newService(t, true)
	expectCatalogQueries(mock)

	compiled, err := svc.Golden(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	queryFields := compiled.Schema.QueryType().Fields()
	assert.Contains(t, queryFields, "customer")
	assert.Contains(t, queryFields, "address")
	assert.Nil(t, compiled.Capabilities)

	// The second call must not hit the catalogs again.
	again, err := svc.Golden(context.Background())
	require.NoError(t, err)
	assert.Same(t, compiled, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForRoleSharesGoldenWhenDisabled(t *testing.T) {
	mock, svc := newService(t, false)
	expectCatalogQueries(mock)

	compiled, err := svc.ForRole(context.Background(), "app_reader")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	golden, err := svc.Golden(context.Background())
	require.NoError(t, err)
	assert.Same(t, golden, compiled)
}

func TestForRoleFiltersByPrivileges(t *testing.T) {
	mock, svc := newService(t, true)

	// One reflection for the golden model, then the privilege reads.
	expectCatalogQueries(mock)
	mock.ExpectQuery("FROM pg_roles").
		WithArgs("app_reader").
		WillReturnRows(sqlmock.NewRows([]string{"rolsuper"}).AddRow(false))
	mock.ExpectQuery("role_table_grants").
		WithArgs("public", "app_reader").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "privilege_type"}).
			AddRow("customer", "SELECT"))
	mock.ExpectQuery("role_column_grants").
		WithArgs("public", "app_reader").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "privilege_type"}))
	mock.ExpectQuery("pg_policies").
		WithArgs("public", "app_reader").
		WillReturnRows(sqlmock.NewRows([]string{
			"policyname", "tablename", "schemaname", "permissive", "roles", "cmd", "qual", "with_check",
		}))

	compiled, err := svc.ForRole(context.Background(), "app_reader")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	queryFields := compiled.Schema.QueryType().Fields()
	assert.Contains(t, queryFields, "customer")
	assert.NotContains(t, queryFields, "address")

	// SELECT only: no mutation root at all.
	assert.Nil(t, compiled.Schema.MutationType())

	caps := compiled.Capabilities["customer"]
	assert.True(t, caps.CanQuery)
	assert.False(t, caps.CanCreate)
}

func TestInvalidateForcesRecompile(t *testing.T) {
	mock, svc := newService(t, true)
	expectCatalogQueries(mock)

	first, err := svc.Golden(context.Background())
	require.NoError(t, err)

	svc.Invalidate()

	expectCatalogQueries(mock)
	second, err := svc.Golden(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	require.NoError(t, mock.ExpectationsWereMet())
}
