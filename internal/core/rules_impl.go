package core

import (
	"context"

	"ncube/pkg/domain"
)

// lockRule blocks any change against an app whose advisory lock is held by
// someone other than the change's acting user, per §4.5's "take the lock
// assertion path."
type lockRule struct{}

func (lockRule) Name() string { return "app-lock" }

func (lockRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		if view.IsAppLocked(ch.AppID, ch.Username) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "app-lock",
				Severity: domain.SeverityBlock,
				Message:  "app " + ch.AppID.String() + " is locked by another user",
				Cube:     ch.Cube,
			})
		}
	}
	return res, nil
}

// releaseRule blocks mutations against a RELEASE coordinate: released cubes
// are immutable per §4.5/the Lifecycle note in §3. The release transition
// itself targets the still-SNAPSHOT appId, so it is never blocked by its
// own rule evaluation.
type releaseRule struct{}

func (releaseRule) Name() string { return "release-immutable" }

func (releaseRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		if view.IsReleased(ch.AppID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release-immutable",
				Severity: domain.SeverityBlock,
				Message:  "app " + ch.AppID.String() + " is RELEASE and cannot be mutated",
				Cube:     ch.Cube,
			})
		}
	}
	return res, nil
}

// bootstrapGuardRule warns (without blocking) when a change targets one of
// the reserved sys.* cube names outside the bootstrap app coordinate, a
// configuration mistake that is worth surfacing but not worth failing the
// whole request over.
type bootstrapGuardRule struct{}

func (bootstrapGuardRule) Name() string { return "bootstrap-guard" }

func (bootstrapGuardRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		if len(ch.Cube) >= 4 && ch.Cube[:4] == "sys." && !ch.AppID.IsBootstrap() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "bootstrap-guard",
				Severity: domain.SeverityWarn,
				Message:  "cube " + ch.Cube + " uses the reserved sys. prefix outside the bootstrap app",
				Cube:     ch.Cube,
			})
		}
	}
	return res, nil
}

// registerBuiltinRules wires the standard branch/release/lock gates onto
// engine. Called once by NewRegistry.
func registerBuiltinRules(engine *domain.RulesEngine) {
	engine.Register(lockRule{})
	engine.Register(releaseRule{})
	engine.Register(bootstrapGuardRule{})
}
