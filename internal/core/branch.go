package core

import (
	"context"
	"time"

	"ncube/pkg/domain"
)

// BranchExists implements domain.RuleView: reports whether appID's branch
// has at least one persisted cube (active or not). CopyBranch and
// CopyBranchWithHistory use it to reject a destination that already holds
// cubes.
func (r *Registry) BranchExists(appID domain.ApplicationID) bool {
	results, err := r.persister.Search(context.Background(), appID, domain.SearchOptions{})
	if err != nil {
		return false
	}
	return len(results) > 0
}

// IsReleased implements domain.RuleView: reports whether appID addresses a
// RELEASE coordinate, which is immutable per §4.5/§4.6's "reject RELEASE
// targets" rule.
func (r *Registry) IsReleased(appID domain.ApplicationID) bool {
	return appID.Status == domain.StatusRelease
}

// CopyBranch copies src's active cubes into dst. Per §4.5, dst must not be a
// RELEASE coordinate and must not already hold cubes; when dst's app has no
// bootstrap cubes yet, copying seeds them (a brand new app's first branch).
func (r *Registry) CopyBranch(ctx context.Context, src, dst domain.ApplicationID, username string) (int, error) {
	if err := r.checkPermission(ctx, dst, "*", ActionUpdate, username); err != nil {
		return 0, err
	}
	if dst.Status == domain.StatusRelease {
		return 0, domain.IllegalStateError{Message: "copyBranch: destination " + dst.String() + " is RELEASE"}
	}
	if r.BranchExists(dst) {
		return 0, domain.IllegalStateError{Message: "copyBranch: destination " + dst.String() + " already has cubes"}
	}

	// checkPermission above already ran seedBootstrap for dst's bootstrap
	// slot if this is a brand new app (bootstrap mode + mutating action).
	change := domain.Change{AppID: dst, Cube: "*", Action: domain.ActionCopyBranch, Username: username}
	var n int
	err := r.mutate(ctx, "copy_branch", dst, username, []domain.Change{change}, func() error {
		var e error
		n, e = r.persister.CopyBranch(ctx, src, dst, username)
		return e
	})
	return n, err
}

// CopyBranchWithHistory is CopyBranch, preserving each cube's revision
// history rather than collapsing it to a single initial revision.
func (r *Registry) CopyBranchWithHistory(ctx context.Context, src, dst domain.ApplicationID, username string) (int, error) {
	if err := r.checkPermission(ctx, dst, "*", ActionUpdate, username); err != nil {
		return 0, err
	}
	if dst.Status == domain.StatusRelease {
		return 0, domain.IllegalStateError{Message: "copyBranchWithHistory: destination " + dst.String() + " is RELEASE"}
	}
	if r.BranchExists(dst) {
		return 0, domain.IllegalStateError{Message: "copyBranchWithHistory: destination " + dst.String() + " already has cubes"}
	}

	change := domain.Change{AppID: dst, Cube: "*", Action: domain.ActionCopyBranch, Username: username}
	var n int
	err := r.mutate(ctx, "copy_branch_with_history", dst, username, []domain.Change{change}, func() error {
		var e error
		n, e = r.persister.CopyBranchWithHistory(ctx, src, dst, username)
		return e
	})
	return n, err
}

// MoveBranch moves every cube in appID's branch to newVersion. The caller
// must hold appID's app lock, and 0.0.0 is rejected as source or target
// (moving the bootstrap slot would orphan the permission engine).
func (r *Registry) MoveBranch(ctx context.Context, appID domain.ApplicationID, newVersion, username string) (int, error) {
	if appID.Version == domain.BootstrapVersion || newVersion == domain.BootstrapVersion {
		return 0, domain.IllegalArgumentError{Message: "moveBranch: 0.0.0 is not a valid source or target version"}
	}
	if err := r.checkPermission(ctx, appID, "*", ActionUpdate, username); err != nil {
		return 0, err
	}
	if err := r.AssertLockedByMe(ctx, appID, username); err != nil {
		return 0, err
	}

	change := domain.Change{AppID: appID, Cube: "*", Action: domain.ActionMoveBranch, Username: username}
	var n int
	err := r.mutate(ctx, "move_branch", appID, username, []domain.Change{change}, func() error {
		var e error
		n, e = r.persister.MoveBranch(ctx, appID, newVersion, username)
		return e
	})
	return n, err
}

// DeleteBranch removes every cube in appID's branch.
func (r *Registry) DeleteBranch(ctx context.Context, appID domain.ApplicationID, username string) error {
	if err := r.checkPermission(ctx, appID, "*", ActionUpdate, username); err != nil {
		return err
	}
	change := domain.Change{AppID: appID, Cube: "*", Action: domain.ActionDeleteBranch, Username: username}
	return r.mutate(ctx, "delete_branch", appID, username, []domain.Change{change}, func() error {
		return r.persister.DeleteBranch(ctx, appID, username)
	})
}

// ReleaseCubes performs the SNAPSHOT->RELEASE transition described in §4.5:
// acquire the app lock, move every non-HEAD branch to newVersion, flip
// appID to RELEASE, copy the new RELEASE content into a fresh HEAD SNAPSHOT
// at newVersion, then release the lock regardless of outcome.
func (r *Registry) ReleaseCubes(ctx context.Context, appID domain.ApplicationID, newVersion, username string) (int, error) {
	if err := r.checkPermission(ctx, appID, "*", ActionUpdate, username); err != nil {
		return 0, err
	}
	if appID.Status == domain.StatusRelease {
		return 0, domain.IllegalStateError{Message: "releaseCubes: " + appID.String() + " is already RELEASE"}
	}

	acquired, err := r.LockApp(ctx, appID, username)
	if err != nil {
		return 0, err
	}
	if acquired {
		defer func() {
			if uerr := r.UnlockApp(ctx, appID, username); uerr != nil {
				r.logger.Error("releaseCubes: failed to release app lock", "app", appID.String(), "error", uerr.Error())
			}
		}()
	}

	branches, err := r.persister.GetBranches(ctx, appID)
	if err != nil {
		return 0, err
	}
	for _, branch := range branches {
		if branch == domain.HeadBranch {
			continue
		}
		src := appID.WithBranch(branch)
		if _, err := r.persister.MoveBranch(ctx, src, newVersion, username); err != nil {
			return 0, err
		}
	}

	// Persister.ReleaseCubes performs both halves of the transition in one
	// call: it copies appID's active cubes (with history) into the RELEASE
	// coordinate, then moves appID's own SNAPSHOT/HEAD branch to newVersion,
	// leaving the new HEAD SNAPSHOT holding exactly the content that was
	// just released.
	released := appID.AsRelease()
	change := domain.Change{AppID: appID, Cube: "*", Action: domain.ActionReleaseCubes, Username: username}
	var n int
	err = r.mutate(ctx, "release_cubes", appID, username, []domain.Change{change}, func() error {
		var e error
		n, e = r.persister.ReleaseCubes(ctx, appID, newVersion, username)
		return e
	})
	if err != nil {
		return 0, err
	}

	newHead := appID.WithVersion(newVersion)
	r.ClearCache(appID)
	r.ClearCache(released)
	r.ClearCache(newHead)
	r.logger.Info("app released", "app", appID.String(), "new_version", newVersion, "at", time.Now().UTC())
	return n, nil
}
