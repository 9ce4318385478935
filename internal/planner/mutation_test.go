package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/introspection"
)

func TestInsertQuerySingleRow(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	sql, args, err := InsertQuery("public", table, []string{"name", "size"}, [][]interface{}{{"bolt", 3}})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."widgets" ("name","size") VALUES ($1,$2) RETURNING *`, sql)
	assert.Equal(t, []interface{}{"bolt", 3}, args)
}

func TestInsertQueryMultiRowWithDefaultExpr(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	sql, args, err := InsertQuery("public", table, []string{"name", "size"}, [][]interface{}{
		{"bolt", 3},
		{"nut", DefaultExpr()},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."widgets" ("name","size") VALUES ($1,$2),($3,DEFAULT) RETURNING *`, sql)
	assert.Equal(t, []interface{}{"bolt", 3, "nut"}, args)
}

func TestInsertQueryRejectsRaggedRows(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	_, _, err := InsertQuery("public", table, []string{"name", "size"}, [][]interface{}{{"bolt"}})
	require.Error(t, err)

	_, _, err = InsertQuery("public", table, nil, [][]interface{}{{"bolt"}})
	require.Error(t, err)

	_, _, err = InsertQuery("public", table, []string{"name"}, nil)
	require.Error(t, err)
}

func TestUpdateQueryIsDeterministic(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	sql, args, err := UpdateQuery("public", table,
		[]string{"name", "size"}, []interface{}{"bolt", 4},
		[]string{"tenant_id", "id"}, []interface{}{9, 1})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "public"."widgets" SET "name" = $1, "size" = $2 WHERE ("tenant_id" = $3 AND "id" = $4) RETURNING *`, sql)
	assert.Equal(t, []interface{}{"bolt", 4, 9, 1}, args)
}

func TestUpdateQueryValidation(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	_, _, err := UpdateQuery("public", table, nil, nil, []string{"id"}, []interface{}{1})
	require.Error(t, err)

	_, _, err = UpdateQuery("public", table, []string{"name"}, []interface{}{"bolt"}, nil, nil)
	require.Error(t, err)

	_, _, err = UpdateQuery("public", table, []string{"name"}, []interface{}{}, []string{"id"}, []interface{}{1})
	require.Error(t, err)
}

func TestDeleteQuery(t *testing.T) {
	table := introspection.Table{Name: "widgets"}

	sql, args, err := DeleteQuery("public", table, "id", 5)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "public"."widgets" WHERE "id" = $1`, sql)
	assert.Equal(t, []interface{}{5}, args)
}
