package planner

import "fmt"

// Default query budget values.
const (
	DefaultMaxDepth      = 10
	DefaultMaxComplexity = 1000
)

// PlanLimits is the per-query execution budget.
type PlanLimits struct {
	MaxDepth      int
	MaxComplexity int
}

// DefaultLimits returns the standard budget.
func DefaultLimits() *PlanLimits {
	return &PlanLimits{
		MaxDepth:      DefaultMaxDepth,
		MaxComplexity: DefaultMaxComplexity,
	}
}

// Validate rejects a query whose measured depth or complexity exceeds the
// budget.
func (l *PlanLimits) Validate(depth, complexity int) error {
	maxDepth := l.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxComplexity := l.MaxComplexity
	if maxComplexity <= 0 {
		maxComplexity = DefaultMaxComplexity
	}

	if depth > maxDepth {
		return fmt.Errorf("query depth %d exceeds maximum allowed depth %d", depth, maxDepth)
	}
	if complexity > maxComplexity {
		return fmt.Errorf("query complexity %d exceeds maximum allowed complexity %d", complexity, maxComplexity)
	}
	return nil
}

// LimitArgCost is the extra complexity a limit-like argument contributes:
// min(limit/10, 20).
func LimitArgCost(limit int) int {
	cost := limit / 10
	if cost > 20 {
		return 20
	}
	if cost < 0 {
		return 0
	}
	return cost
}
