package core

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"ncube/pkg/domain"
)

// Action identifies the kind of access a permission check is guarding.
// Distinct from domain.Action (which labels a rule-evaluated Change) since a
// single Change can require several permission checks against different
// resources.
type Action string

const (
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
)

func (a Action) mutating() bool { return a != ActionRead }

const (
	sysUsergroupsCube        = "sys.usergroups"
	sysPermissionsCube       = "sys.permissions"
	sysBranchPermissionsCube = "sys.branch.permissions"
	roleAdmin                = "ADMIN"
	roleUser                 = "USER"
)

// bootstrapAppID returns the 0.0.0/SNAPSHOT/HEAD coordinate that holds
// appID's tenant/app system configuration cubes (sys.usergroups,
// sys.permissions, sys.branch.permissions, sys.lock). Scoped per tenant/app
// rather than globally: the spec names a single bootstrap slot without
// saying which tenant/app it belongs to, and per-tenant/app bootstrap is the
// only reading under which "an app has no persisted cubes" (the admin
// bootstrap trigger) makes sense per application rather than once globally.
func bootstrapAppID(appID domain.ApplicationID) domain.ApplicationID {
	id, _ := domain.NewApplicationID(appID.Tenant, appID.App, domain.BootstrapVersion, domain.StatusSnapshot, domain.HeadBranch)
	return id
}

type permissionDecision struct {
	allowed bool
}

// checkPermission implements §4.6's checkPermissions(appId, resource,
// action): cache lookup, the always-allowed sys.lock READ shortcut,
// bootstrap-mode permit-all, and the role/branch-permission/wildcard scan.
func (r *Registry) checkPermission(ctx context.Context, appID domain.ApplicationID, resource string, action Action, user string) error {
	if strings.EqualFold(resource, sysLockCube) && action == ActionRead {
		return nil
	}

	key := permissionCacheKey(user, appID, resource, action)
	if d, ok := r.permCache.get(key); ok {
		if d.allowed {
			return nil
		}
		return domain.SecurityError{User: user, Action: string(action), Message: "denied for " + resource}
	}

	allowed, err := r.evaluatePermission(ctx, appID, resource, action, user)
	if err != nil {
		return err
	}
	r.permCache.put(key, permissionDecision{allowed: allowed})
	if !allowed {
		return domain.SecurityError{User: user, Action: string(action), Message: "denied for " + resource}
	}
	return nil
}

func permissionCacheKey(user string, appID domain.ApplicationID, resource string, action Action) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", user, appID.String(), resource, action)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Registry) evaluatePermission(ctx context.Context, appID domain.ApplicationID, resource string, action Action, user string) (bool, error) {
	boot := bootstrapAppID(appID)

	bootstrapMode, err := r.inBootstrapMode(ctx, boot)
	if err != nil {
		return false, err
	}
	if bootstrapMode {
		if action.mutating() {
			if err := r.seedBootstrap(ctx, boot, user); err != nil {
				r.logger.Warn("bootstrap seeding failed", "app", boot.String(), "user", user, "error", err.Error())
			}
		}
		return true, nil
	}

	roles, err := r.rolesFor(ctx, boot, user)
	if err != nil {
		return false, err
	}
	isAdmin := containsFold(roles, roleAdmin)

	if !isAdmin && action.mutating() {
		ok, err := r.branchPermitted(ctx, boot, resource, user)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return r.scanPermissions(ctx, boot, roles, resource, action)
}

// inBootstrapMode reports whether boot's sys.permissions cube has not yet
// been seeded, per §4.6 step 4 ("permission cubes are not yet present").
func (r *Registry) inBootstrapMode(ctx context.Context, boot domain.ApplicationID) (bool, error) {
	_, err := r.resolveCube(ctx, boot, sysPermissionsCube)
	if _, ok := err.(domain.ErrNotFound); ok {
		return true, nil
	}
	return err != nil, err
}

// rolesFor returns the roles sys.usergroups marks true for user.
func (r *Registry) rolesFor(ctx context.Context, boot domain.ApplicationID, user string) ([]string, error) {
	cube, err := r.resolveCube(ctx, boot, sysUsergroupsCube)
	if _, ok := err.(domain.ErrNotFound); ok {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roleAxis, ok := cube.GetAxis("role")
	if !ok {
		return nil, nil
	}
	var roles []string
	for _, col := range roleAxis.Columns() {
		role := col.Value.String()
		value, _, err := cube.Lookup(map[string]any{"user": user, "role": role}, r.evaluator, "")
		if err != nil {
			continue
		}
		if b, ok := value.(bool); ok && b {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// branchPermitted checks sys.branch.permissions' (resource, user) overlay,
// treating an unbound coordinate as a deny rather than an error.
func (r *Registry) branchPermitted(ctx context.Context, boot domain.ApplicationID, resource, user string) (bool, error) {
	cube, err := r.resolveCube(ctx, boot, sysBranchPermissionsCube)
	if _, ok := err.(domain.ErrNotFound); ok {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	value, _, err := cube.Lookup(map[string]any{"resource": resource, "user": user}, r.evaluator, "")
	if err != nil {
		if _, ok := err.(domain.CoordinateNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	b, _ := value.(bool)
	return b, nil
}

// scanPermissions implements §4.6 step 6: for every role the caller holds,
// scan sys.permissions for a resource pattern (and optional axis segment)
// matching resource, an action pattern matching action, whose cell is true.
func (r *Registry) scanPermissions(ctx context.Context, boot domain.ApplicationID, roles []string, resource string, action Action) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	cube, err := r.resolveCube(ctx, boot, sysPermissionsCube)
	if _, ok := err.(domain.ErrNotFound); ok {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	resourceAxis, ok1 := cube.GetAxis("resource")
	roleAxis, ok2 := cube.GetAxis("role")
	actionAxis, ok3 := cube.GetAxis("action")
	if !ok1 || !ok2 || !ok3 {
		return false, nil
	}

	for _, rc := range resourceAxis.Columns() {
		pattern := rc.Value.String()
		if !matchResource(pattern, resource) {
			continue
		}
		for _, ac := range actionAxis.Columns() {
			actionPattern := ac.Value.String()
			if !matchWildcard(actionPattern, string(action)) {
				continue
			}
			for _, role := range roles {
				roleLit, ok := findFold(roleAxis, role)
				if !ok {
					continue
				}
				value, _, err := cube.Lookup(map[string]any{"resource": pattern, "role": roleLit, "action": actionPattern}, r.evaluator, "")
				if err != nil {
					continue
				}
				if b, ok := value.(bool); ok && b {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func findFold(axis *domain.Axis, want string) (string, bool) {
	for _, col := range axis.Columns() {
		if strings.EqualFold(col.Value.String(), want) {
			return col.Value.String(), true
		}
	}
	return "", false
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

// seedBootstrap plants the app-level system cubes sys.usergroups and
// sys.permissions plus the branch-level sys.branch.permissions overlay the
// first time an app is touched, making user both ADMIN and USER. sys.lock is
// not seeded here; lockCube builds it on first use. It is idempotent: a
// second call on an already-seeded boot app is a no-op.
func (r *Registry) seedBootstrap(ctx context.Context, boot domain.ApplicationID, user string) error {
	if mode, err := r.inBootstrapMode(ctx, boot); err != nil || !mode {
		return err
	}
	// SetCell binds only values that already have a column, so each seeded
	// cell first adds a column for every value in its coordinate.
	seedCell := func(cube *domain.Cube, coord map[string]any) error {
		for axisName, v := range coord {
			if axis, ok := cube.GetAxis(axisName); ok {
				_, _ = axis.AddColumn(v, nil) // an overlap means the column already exists
			}
		}
		return cube.SetCell(coord, true)
	}

	usergroups := domain.NewCube(sysUsergroupsCube, boot)
	if _, err := usergroups.AddAxis("user", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	if _, err := usergroups.AddAxis("role", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	for _, role := range []string{roleAdmin, roleUser} {
		if err := seedCell(usergroups, map[string]any{"user": user, "role": role}); err != nil {
			return err
		}
	}

	permissions := domain.NewCube(sysPermissionsCube, boot)
	if _, err := permissions.AddAxis("resource", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	if _, err := permissions.AddAxis("role", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	if _, err := permissions.AddAxis("action", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	// Two wildcard rows so ADMIN matches both plain resources and
	// axis-qualified ones ("cube/axis"); matchResource treats the presence
	// of a "/" segment in the pattern as significant.
	for _, wildcard := range []string{"*", "*/*"} {
		if err := seedCell(permissions, map[string]any{"resource": wildcard, "role": roleAdmin, "action": "*"}); err != nil {
			return err
		}
	}

	branchPerms := domain.NewCube(sysBranchPermissionsCube, boot)
	if _, err := branchPerms.AddAxis("resource", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}
	if _, err := branchPerms.AddAxis("user", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		return err
	}

	for _, cube := range []*domain.Cube{usergroups, permissions, branchPerms} {
		if _, err := r.persister.UpdateCube(ctx, cube, user); err != nil {
			return err
		}
	}
	r.ClearCache(boot)
	r.logger.Info("bootstrap permission cubes seeded", "app", boot.String(), "user", user)
	return nil
}

// --- wildcard resource matching (§4.6: "wildcard-to-regex conversion") ---

var wildcardRegexCache sync.Map // pattern string -> *regexp.Regexp

func compileWildcard(pattern string) *regexp.Regexp {
	if cached, ok := wildcardRegexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	var b strings.Builder
	b.WriteByte('^')
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	re := regexp.MustCompile("(?i)" + b.String())
	wildcardRegexCache.Store(pattern, re)
	return re
}

func matchWildcard(pattern, value string) bool {
	return compileWildcard(pattern).MatchString(value)
}

// splitResource divides a resource (or resource pattern) on its first "/"
// into the cube-name part and the optional axis-name part.
func splitResource(resource string) (cubePart, axisPart string, hasAxis bool) {
	if i := strings.Index(resource, "/"); i >= 0 {
		return resource[:i], resource[i+1:], true
	}
	return resource, "", false
}

// matchResource implements §4.6's resource-pattern matching: a pattern
// without an axis segment matches only resources without one.
func matchResource(pattern, resource string) bool {
	patCube, patAxis, patHasAxis := splitResource(pattern)
	resCube, resAxis, resHasAxis := splitResource(resource)
	if patHasAxis != resHasAxis {
		return false
	}
	if !matchWildcard(patCube, resCube) {
		return false
	}
	if patHasAxis && !matchWildcard(patAxis, resAxis) {
		return false
	}
	return true
}
