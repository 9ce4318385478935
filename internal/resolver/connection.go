package resolver

import (
	"context"
	"sync"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/cursor"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
)

// connectionResultKey stores the lazy count state inside the connection map
// the field resolvers read from.
const connectionResultKey = "__connectionResult"

// connectionResult defers the exact COUNT(*) until a query actually selects
// totalCount.
type connectionResult struct {
	executor  dbexec.QueryExecutor
	countCtx  context.Context
	countSQL  string
	countArgs []interface{}

	mu    sync.Mutex
	total *int
}

func (cr *connectionResult) totalCount() (int, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.total != nil {
		return *cr.total, nil
	}
	if cr.executor == nil || cr.countSQL == "" {
		zero := 0
		cr.total = &zero
		return 0, nil
	}

	rows, err := cr.executor.QueryContext(cr.countCtx, cr.countSQL, cr.countArgs...)
	if err != nil {
		return 0, normalizeQueryError(err)
	}
	defer func() { _ = rows.Close() }()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	cr.total = &count
	return count, nil
}

func resolveTotalCount(p graphql.ResolveParams) (interface{}, error) {
	conn, ok := p.Source.(map[string]interface{})
	if !ok {
		return 0, nil
	}
	cr, ok := conn[connectionResultKey].(*connectionResult)
	if !ok {
		return 0, nil
	}
	return cr.totalCount()
}

// buildConnectionResult assembles the edges/nodes/pageInfo map. Cursors are
// minted from the page's ordering; an empty ordering yields empty cursors.
func (r *Resolver) buildConnectionResult(
	ctx context.Context,
	table introspection.Table,
	records []map[string]interface{},
	order []planner.OrderField,
	where *planner.WhereClause,
	hasNext, hasPrev bool,
) (map[string]interface{}, error) {
	if records == nil {
		records = []map[string]interface{}{}
	}

	orderColumns := planner.OrderColumns(order)
	edges := make([]map[string]interface{}, len(records))
	for i, record := range records {
		edgeCursor := ""
		if len(orderColumns) > 0 {
			encoded, err := cursor.Encode(orderColumns, record)
			if err != nil {
				return nil, err
			}
			edgeCursor = encoded
		}
		edges[i] = map[string]interface{}{
			"cursor": edgeCursor,
			"node":   record,
		}
	}

	var startCursor, endCursor interface{}
	if len(edges) > 0 {
		startCursor = edges[0]["cursor"]
		endCursor = edges[len(edges)-1]["cursor"]
	}

	countSQL, countArgs, err := planner.CountQuery(r.model.SchemaName, table, where, nil)
	if err != nil {
		return nil, err
	}

	// totalCount is lazy; it must not fail just because the request context
	// was canceled after the rows were materialized.
	countCtx := ctx
	if countCtx == nil {
		countCtx = context.Background()
	}
	countCtx = context.WithoutCancel(countCtx)

	return map[string]interface{}{
		"edges": edges,
		"nodes": records,
		"pageInfo": map[string]interface{}{
			"hasNextPage":     hasNext,
			"hasPreviousPage": hasPrev,
			"startCursor":     startCursor,
			"endCursor":       endCursor,
		},
		connectionResultKey: &connectionResult{
			executor:  r.executor,
			countCtx:  countCtx,
			countSQL:  countSQL,
			countArgs: countArgs,
		},
	}, nil
}
