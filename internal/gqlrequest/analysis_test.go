package gqlrequest

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"pg-graphql/internal/planner"
)

func analyze(t *testing.T, query string, variables map[string]interface{}) *Analysis {
	t.Helper()
	analysis := AnalyzeEnvelope(Envelope{Query: query, Variables: variables})
	if analysis.ParseError != nil {
		t.Fatalf("parse error: %v", analysis.ParseError)
	}
	if analysis.SelectionError != nil {
		t.Fatalf("selection error: %v", analysis.SelectionError)
	}
	return analysis
}

func TestAnalyzeDepthAndFields(t *testing.T) {
	analysis := analyze(t, `
		query {
			customer {
				customer_id
				address {
					city
				}
			}
		}
	`, nil)

	if analysis.OperationType != "query" {
		t.Fatalf("unexpected operation type: %s", analysis.OperationType)
	}
	if analysis.SelectionDepth != 3 {
		t.Fatalf("unexpected depth: %d", analysis.SelectionDepth)
	}
	if analysis.FieldCount != 4 {
		t.Fatalf("unexpected field count: %d", analysis.FieldCount)
	}
}

func TestAnalyzeComplexity(t *testing.T) {
	// customer costs 3 (selection set), customer_id 1, address 3, city 1.
	analysis := analyze(t, `
		query {
			customer {
				customer_id
				address { city }
			}
		}
	`, nil)
	if analysis.Complexity != 8 {
		t.Fatalf("unexpected complexity: %d", analysis.Complexity)
	}
}

func TestAnalyzeLimitArgumentCost(t *testing.T) {
	// Literal limit 200 caps at +20.
	analysis := analyze(t, `query { customer(limit: 200) { customer_id } }`, nil)
	if analysis.Complexity != 3+20+1 {
		t.Fatalf("unexpected complexity: %d", analysis.Complexity)
	}

	// Variable-bound first.
	analysis = analyze(t,
		`query Q($n: Int) { customerConnection(first: $n) { totalCount } }`,
		map[string]interface{}{"n": float64(50)},
	)
	if analysis.Complexity != 3+5+1 {
		t.Fatalf("unexpected complexity: %d", analysis.Complexity)
	}
}

func TestAnalyzeFragments(t *testing.T) {
	analysis := analyze(t, `
		query {
			customer {
				...customerFields
			}
		}
		fragment customerFields on Customer {
			customer_id
			email
		}
	`, nil)
	if analysis.FieldCount != 3 {
		t.Fatalf("unexpected field count: %d", analysis.FieldCount)
	}
	if analysis.SelectionDepth != 2 {
		t.Fatalf("unexpected depth: %d", analysis.SelectionDepth)
	}
}

func TestAnalyzeCyclicFragmentsTerminate(t *testing.T) {
	analysis := AnalyzeEnvelope(Envelope{Query: `
		query { customer { ...a } }
		fragment a on Customer { ...b }
		fragment b on Customer { ...a customer_id }
	`})
	if analysis.ParseError != nil {
		t.Fatalf("parse error: %v", analysis.ParseError)
	}
	if analysis.FieldCount < 1 {
		t.Fatalf("expected fields counted despite the cycle, got %d", analysis.FieldCount)
	}
}

func TestValidateAgainstBudget(t *testing.T) {
	analysis := analyze(t, `query { customer(limit: 200) { customer_id } }`, nil)

	if err := analysis.Validate(planner.DefaultLimits()); err != nil {
		t.Fatalf("within budget but rejected: %v", err)
	}
	if err := analysis.Validate(&planner.PlanLimits{MaxDepth: 1, MaxComplexity: 1000}); err == nil {
		t.Fatal("expected depth rejection")
	}
	if err := analysis.Validate(&planner.PlanLimits{MaxDepth: 10, MaxComplexity: 5}); err == nil {
		t.Fatal("expected complexity rejection")
	}
}

func TestSelectOperationByName(t *testing.T) {
	query := `
		query A { customer { customer_id } }
		query B { staff { staff_id } }
	`
	analysis := AnalyzeEnvelope(Envelope{Query: query, OperationName: "B"})
	if analysis.SelectionError != nil {
		t.Fatalf("selection error: %v", analysis.SelectionError)
	}
	if analysis.OperationName != "B" {
		t.Fatalf("unexpected operation: %s", analysis.OperationName)
	}

	ambiguous := AnalyzeEnvelope(Envelope{Query: query})
	if ambiguous.SelectionError == nil {
		t.Fatal("expected error without operationName on a multi-operation document")
	}
}

func TestDecodeEnvelopeJSON(t *testing.T) {
	body := []byte(`{"query":"query { customer { customer_id } }","variables":{"n":5}}`)
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	env, err := DecodeEnvelope(req)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error: %v", err)
	}
	if env.Query == "" || env.Variables["n"] != float64(5) {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	// Body must be readable again downstream.
	buf := make([]byte, len(body))
	if _, err := req.Body.Read(buf); err != nil && err.Error() != "EOF" {
		t.Fatalf("body not rewound: %v", err)
	}
	if !bytes.Equal(buf, body) {
		t.Fatal("body content changed after decode")
	}
}

func TestDecodeEnvelopeGraphQLMediaType(t *testing.T) {
	body := []byte(`query { customer { customer_id } }`)
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/graphql")

	env, err := DecodeEnvelope(req)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error: %v", err)
	}
	if env.Query != string(body) {
		t.Fatalf("unexpected query: %s", env.Query)
	}
}
