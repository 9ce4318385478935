package gqlrequest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	"pg-graphql/internal/planner"
)

// Analysis stores parsed and derived GraphQL request metadata.
type Analysis struct {
	Envelope               Envelope
	RequestedOperationName string

	Document  *ast.Document
	Fragments map[string]*ast.FragmentDefinition
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string

	FieldCount     int
	SelectionDepth int
	Complexity     int
	VariableCount  int

	DecodeError    error
	ParseError     error
	SelectionError error
}

// AnalyzeRequest decodes and analyzes a GraphQL request payload.
func AnalyzeRequest(r *http.Request) *Analysis {
	envelope, err := DecodeEnvelope(r)
	analysis := AnalyzeEnvelope(envelope)
	if err != nil {
		analysis.DecodeError = err
	}
	return analysis
}

// AnalyzeEnvelope parses and analyzes a normalized request envelope.
func AnalyzeEnvelope(env Envelope) *Analysis {
	analysis := &Analysis{
		Envelope:               env,
		RequestedOperationName: env.OperationName,
		Fragments:              map[string]*ast.FragmentDefinition{},
	}

	if strings.TrimSpace(env.Query) == "" {
		return analysis
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(env.Query),
			Name: "graphql",
		}),
	})
	if err != nil {
		analysis.ParseError = err
		return analysis
	}

	analysis.Document = doc
	analysis.Fragments = buildFragmentMap(doc)

	op, selectionErr := selectOperation(doc, env.OperationName)
	if selectionErr != nil {
		analysis.SelectionError = selectionErr
		return analysis
	}
	if op == nil {
		analysis.SelectionError = fmt.Errorf("no operation selected")
		return analysis
	}

	analysis.Operation = op
	analysis.OperationName = effectiveOperationName(op)
	analysis.OperationType = string(op.Operation)
	analysis.VariableCount = len(op.VariableDefinitions)

	walker := &selectionWalker{
		fragments: analysis.Fragments,
		variables: env.Variables,
	}
	fields, depth, complexity := walker.walk(op.SelectionSet, 1, map[string]bool{}, map[string]bool{})
	analysis.FieldCount = fields
	analysis.SelectionDepth = depth
	analysis.Complexity = complexity

	return analysis
}

// Validate checks the measured depth and complexity against the budget.
func (a *Analysis) Validate(limits *planner.PlanLimits) error {
	if a.DecodeError != nil {
		return a.DecodeError
	}
	if a.ParseError != nil {
		return a.ParseError
	}
	if a.SelectionError != nil {
		return a.SelectionError
	}
	if limits == nil {
		return nil
	}
	return limits.Validate(a.SelectionDepth, a.Complexity)
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op.Name != nil {
		return op.Name.Value
	}
	return ""
}

func buildFragmentMap(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := map[string]*ast.FragmentDefinition{}
	if doc == nil {
		return fragments
	}
	for _, def := range doc.Definitions {
		fragment, ok := def.(*ast.FragmentDefinition)
		if !ok || fragment == nil || fragment.Name == nil || fragment.Name.Value == "" {
			continue
		}
		fragments[fragment.Name.Value] = fragment
	}
	return fragments
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	operations := make([]*ast.OperationDefinition, 0)
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if ok && op != nil {
			operations = append(operations, op)
		}
	}

	if operationName != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}

	if len(operations) == 1 {
		return operations[0], nil
	}
	if len(operations) == 0 {
		return nil, fmt.Errorf("request does not include an operation")
	}
	return nil, fmt.Errorf("operationName is required when request has multiple operations")
}

// selectionWalker measures field count, depth, and complexity in one pass.
// Leaf fields cost 1, fields carrying a selection set cost 3, and each
// limit-like argument adds min(limit/10, 20).
type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	variables map[string]interface{}
}

func (w *selectionWalker) walk(selectionSet *ast.SelectionSet, currentDepth int, visited, inFlight map[string]bool) (fields, maxDepth, complexity int) {
	if selectionSet == nil {
		return 0, currentDepth - 1, 0
	}

	maxDepth = currentDepth
	for _, selection := range selectionSet.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			complexity += w.fieldCost(sel)
			if sel.SelectionSet != nil {
				nestedFields, nestedDepth, nestedComplexity := w.walk(sel.SelectionSet, currentDepth+1, visited, inFlight)
				fields += nestedFields
				complexity += nestedComplexity
				if nestedDepth > maxDepth {
					maxDepth = nestedDepth
				}
			}
		case *ast.InlineFragment:
			nestedFields, nestedDepth, nestedComplexity := w.walk(sel.SelectionSet, currentDepth, visited, inFlight)
			fields += nestedFields
			complexity += nestedComplexity
			if nestedDepth > maxDepth {
				maxDepth = nestedDepth
			}
		case *ast.FragmentSpread:
			name := ""
			if sel.Name != nil {
				name = sel.Name.Value
			}
			if name == "" || inFlight[name] || visited[name] {
				continue
			}
			inFlight[name] = true
			visited[name] = true
			if fragment, ok := w.fragments[name]; ok && fragment != nil {
				nestedFields, nestedDepth, nestedComplexity := w.walk(fragment.SelectionSet, currentDepth, visited, inFlight)
				fields += nestedFields
				complexity += nestedComplexity
				if nestedDepth > maxDepth {
					maxDepth = nestedDepth
				}
			}
			delete(inFlight, name)
		}
	}

	return fields, maxDepth, complexity
}

func (w *selectionWalker) fieldCost(field *ast.Field) int {
	cost := 1
	if field.SelectionSet != nil {
		cost = 3
	}
	for _, arg := range field.Arguments {
		if arg.Name == nil {
			continue
		}
		switch arg.Name.Value {
		case "limit", "first", "last":
			if limit, ok := w.intArgValue(arg.Value); ok {
				cost += planner.LimitArgCost(limit)
			}
		}
	}
	return cost
}

// intArgValue resolves an integer argument from a literal or a variable.
func (w *selectionWalker) intArgValue(value ast.Value) (int, bool) {
	switch v := value.(type) {
	case *ast.IntValue:
		parsed, err := strconv.Atoi(v.Value)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case *ast.Variable:
		if v.Name == nil || w.variables == nil {
			return 0, false
		}
		switch raw := w.variables[v.Name.Value].(type) {
		case float64:
			return int(raw), true
		case int:
			return raw, true
		case string:
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return 0, false
			}
			return parsed, true
		}
	}
	return 0, false
}
