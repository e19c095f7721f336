package domain_test

import (
	"context"
	"testing"

	"ncube/pkg/domain"
)

type stubRuleView struct {
	locked   map[string]bool
	released map[string]bool
}

func (s stubRuleView) IsAppLocked(appID domain.ApplicationID, username string) bool {
	return s.locked[appID.CacheKey()]
}
func (s stubRuleView) BranchExists(appID domain.ApplicationID) bool { return true }
func (s stubRuleView) IsReleased(appID domain.ApplicationID) bool   { return s.released[appID.CacheKey()] }

type blockingRule struct{ name string }

func (r blockingRule) Name() string { return r.name }
func (r blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: r.name, Severity: domain.SeverityBlock, Cube: ch.Cube})
	}
	return res, nil
}

type warningRule struct{}

func (warningRule) Name() string { return "warn-only" }
func (warningRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "warn-only", Severity: domain.SeverityWarn, Cube: ch.Cube})
	}
	return res, nil
}

func TestRulesEngineMergesAcrossRegisteredRules(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{name: "r1"})
	engine.Register(warningRule{})

	changes := []domain.Change{{Cube: "widgets.catalog"}}
	result, err := engine.Evaluate(context.Background(), stubRuleView{}, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Violations) != 2 {
		t.Fatalf("expected violations from both rules, got %d", len(result.Violations))
	}
	if !result.HasBlocking() {
		t.Fatalf("expected the blocking rule's violation to be reported")
	}
}

func TestResultHasBlockingFalseForWarningsOnly(t *testing.T) {
	var res domain.Result
	res.Merge(domain.Result{Violations: []domain.Violation{{Severity: domain.SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("expected a warn-only result to not be blocking")
	}
}
