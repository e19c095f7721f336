package core

import (
	"context"

	"ncube/pkg/domain"
)

// sysLockCube is each app's advisory lock cube, stored in its bootstrap
// slot: a single DISCRETE axis "system" with one cell holding the current
// holder's user id.
const sysLockCube = "sys.lock"

func (r *Registry) lockCube(ctx context.Context, appID domain.ApplicationID) (*domain.Cube, error) {
	boot := bootstrapAppID(appID)
	cube, err := r.resolveCube(ctx, boot, sysLockCube)
	if _, ok := err.(domain.ErrNotFound); ok {
		cube = domain.NewCube(sysLockCube, boot)
		if _, aerr := cube.AddAxis("system", domain.Discrete, domain.ValueString, domain.Display, true); aerr != nil {
			return nil, aerr
		}
		return cube, nil
	}
	if err != nil {
		return nil, err
	}
	return cube, nil
}

func (r *Registry) lockHolder(ctx context.Context, appID domain.ApplicationID) (string, error) {
	cube, err := r.lockCube(ctx, appID)
	if err != nil {
		return "", err
	}
	value, _, err := cube.Lookup(map[string]any{"system": "lock"}, r.evaluator, "")
	if err != nil {
		if _, ok := err.(domain.CoordinateNotFoundError); ok {
			return "", nil
		}
		return "", err
	}
	holder, _ := value.(string)
	return holder, nil
}

// LockApp writes username into appID's sys.lock sole cell iff it is
// currently empty. Returns true if this call newly acquired the lock, false
// if username already held it, and a SecurityError if another user holds
// it.
func (r *Registry) LockApp(ctx context.Context, appID domain.ApplicationID, username string) (bool, error) {
	holder, err := r.lockHolder(ctx, appID)
	if err != nil {
		return false, err
	}
	if holder == username {
		return false, nil
	}
	if holder != "" {
		return false, domain.SecurityError{User: username, Action: "lockApp", Message: "app lock is held by " + holder}
	}
	cube, err := r.lockCube(ctx, appID)
	if err != nil {
		return false, err
	}
	if err := cube.SetCell(map[string]any{"system": "lock"}, username); err != nil {
		return false, err
	}
	if _, err := r.persister.UpdateCube(ctx, cube, username); err != nil {
		return false, err
	}
	r.ClearCache(bootstrapAppID(appID))
	r.logger.Info("app lock acquired", "app", appID.String(), "user", username)
	return true, nil
}

// UnlockApp releases appID's app lock. It refuses (SecurityError) unless
// username currently holds it. Per §7, a crash during release leaves the
// lock set by design, requiring administrative intervention rather than a
// best-effort auto-release.
func (r *Registry) UnlockApp(ctx context.Context, appID domain.ApplicationID, username string) error {
	holder, err := r.lockHolder(ctx, appID)
	if err != nil {
		return err
	}
	if holder == "" {
		return domain.SecurityError{User: username, Action: "unlockApp", Message: "app lock is not held"}
	}
	if holder != username {
		return domain.SecurityError{User: username, Action: "unlockApp", Message: "app lock is held by " + holder}
	}
	cube, err := r.lockCube(ctx, appID)
	if err != nil {
		return err
	}
	if err := cube.SetCell(map[string]any{"system": "lock"}, ""); err != nil {
		return err
	}
	if _, err := r.persister.UpdateCube(ctx, cube, username); err != nil {
		return err
	}
	r.ClearCache(bootstrapAppID(appID))
	r.logger.Info("app lock released", "app", appID.String(), "user", username)
	return nil
}

// AssertNotLockBlocked passes when appID's lock is free or held by username,
// and fails with SecurityError otherwise. Mutating operations call this
// before proceeding.
func (r *Registry) AssertNotLockBlocked(ctx context.Context, appID domain.ApplicationID, username string) error {
	holder, err := r.lockHolder(ctx, appID)
	if err != nil {
		return err
	}
	if holder == "" || holder == username {
		return nil
	}
	return domain.SecurityError{User: username, Action: "mutate", Message: "app lock is held by " + holder}
}

// AssertLockedByMe passes only when appID's lock is currently held by
// username.
func (r *Registry) AssertLockedByMe(ctx context.Context, appID domain.ApplicationID, username string) error {
	holder, err := r.lockHolder(ctx, appID)
	if err != nil {
		return err
	}
	if holder != username {
		return domain.SecurityError{User: username, Action: "release", Message: "app lock is not held by " + username}
	}
	return nil
}

// IsAppLocked implements domain.RuleView: reports whether appID's lock is
// held by someone other than username.
func (r *Registry) IsAppLocked(appID domain.ApplicationID, username string) bool {
	holder, err := r.lockHolder(context.Background(), appID)
	if err != nil {
		return false
	}
	return holder != "" && holder != username
}
