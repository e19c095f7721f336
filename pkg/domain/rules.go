package domain

import "context"

// RuleView provides the read-only registry access a Rule needs to evaluate
// a batch of changes: branch state, lock state and release status.
// internal/core supplies the concrete implementation; pkg/domain
// depends only on this interface.
type RuleView interface {
	IsAppLocked(appID ApplicationID, username string) bool
	BranchExists(appID ApplicationID) bool
	IsReleased(appID ApplicationID) bool
}

// Rule is one gate evaluated against a proposed batch of changes before they
// commit, e.g. "the app is not locked by another user" or "cannot mutate a
// RELEASE cube".
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs every registered Rule against a batch of changes and
// aggregates their results.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate runs every registered rule against changes and merges their
// results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
