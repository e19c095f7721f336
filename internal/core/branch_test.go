package core_test

import (
	"context"
	"testing"

	"ncube/internal/core"
	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

func TestCopyBranchRejectsNonEmptyDestination(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	src := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, "feature")
	dst := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	cube := domain.NewCube("widgets.catalog", dst)
	if _, err := reg.UpdateCube(ctx, cube, "alice"); err != nil {
		t.Fatalf("seed dst: %v", err)
	}

	if _, err := reg.CopyBranch(ctx, src, dst, "alice"); err == nil {
		t.Fatalf("expected copyBranch to reject an already non-empty destination")
	}
}

func TestCopyBranchRejectsReleaseDestination(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	src := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	dst := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusRelease, domain.HeadBranch)

	if _, err := reg.CopyBranch(ctx, src, dst, "alice"); err == nil {
		t.Fatalf("expected copyBranch to reject a RELEASE destination")
	}
}

func TestMoveBranchRejectsBootstrapVersionAndRequiresLock(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	appID := testAppID(t, "acme", "widgets", domain.BootstrapVersion, domain.StatusSnapshot, domain.HeadBranch)

	if _, err := reg.MoveBranch(ctx, appID, "2.0.0", "alice"); err == nil {
		t.Fatalf("expected moveBranch to reject the bootstrap version as source")
	}

	appID = testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	if _, err := reg.MoveBranch(ctx, appID, domain.BootstrapVersion, "alice"); err == nil {
		t.Fatalf("expected moveBranch to reject the bootstrap version as target")
	}

	if _, err := reg.MoveBranch(ctx, appID, "2.0.0", "alice"); err == nil {
		t.Fatalf("expected moveBranch to require the caller hold the app lock")
	}
}

func TestReleaseCubesTransitionsStatus(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	cube := domain.NewCube("widgets.catalog", appID)
	if _, err := reg.UpdateCube(ctx, cube, "alice"); err != nil {
		t.Fatalf("seed app: %v", err)
	}

	if _, err := reg.ReleaseCubes(ctx, appID, "2.0.0", "alice"); err != nil {
		t.Fatalf("releaseCubes: %v", err)
	}

	if !reg.BranchExists(appID.AsRelease()) {
		t.Fatalf("expected %s to hold the released cubes after release", appID.AsRelease())
	}

	newHead := appID.WithVersion("2.0.0")
	if !reg.BranchExists(newHead) {
		t.Fatalf("expected a new HEAD SNAPSHOT at 2.0.0 to exist after release")
	}
}
