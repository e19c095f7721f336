package core_test

import (
	"context"
	"testing"

	"ncube/internal/core"
	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

func TestLockRuleBlocksChangesAgainstALockedApp(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	seed := domain.NewCube("widgets.catalog", appID)
	if _, err := reg.UpdateCube(ctx, seed, "alice"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := reg.LockApp(ctx, appID, "alice"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	cube := domain.NewCube("widgets.other", appID)
	if _, err := reg.UpdateCube(ctx, cube, "bob"); err == nil {
		t.Fatalf("expected a locked app to block bob's mutation")
	}
	if _, err := reg.UpdateCube(ctx, cube, "alice"); err != nil {
		t.Fatalf("expected the lock holder to still be able to mutate: %v", err)
	}
}

func TestReleaseRuleBlocksMutationOfReleasedApp(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	ctx := context.Background()
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	seed := domain.NewCube("widgets.catalog", appID)
	if _, err := reg.UpdateCube(ctx, seed, "alice"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := reg.ReleaseCubes(ctx, appID, "2.0.0", "alice"); err != nil {
		t.Fatalf("release: %v", err)
	}

	released := appID.AsRelease()
	cube := domain.NewCube("widgets.catalog", released)
	if _, err := reg.UpdateCube(ctx, cube, "alice"); err == nil {
		t.Fatalf("expected a RELEASE coordinate to reject mutation")
	}
}
