package core_test

import (
	"context"
	"testing"

	"ncube/internal/core"
	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

func testAppID(t *testing.T, tenant, app, version string, status domain.Status, branch string) domain.ApplicationID {
	t.Helper()
	id, err := domain.NewApplicationID(tenant, app, version, status, branch)
	if err != nil {
		t.Fatalf("build application id: %v", err)
	}
	return id
}

func TestCheckPermissionBootstrapModePermitsAll(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	cube := domain.NewCube("widgets.catalog", appID)
	if _, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, true); err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := reg.UpdateCube(context.Background(), cube, "alice"); err != nil {
		t.Fatalf("update cube in bootstrap mode should be permitted: %v", err)
	}
}

func TestCheckPermissionDeniesNonAdminAfterBootstrap(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	first := domain.NewCube("widgets.catalog", appID)
	if _, err := reg.UpdateCube(context.Background(), first, "alice"); err != nil {
		t.Fatalf("seeding update should succeed: %v", err)
	}

	second := domain.NewCube("widgets.other", appID)
	if _, err := reg.UpdateCube(context.Background(), second, "mallory"); err == nil {
		t.Fatalf("expected non-admin, non-seeded user to be denied")
	} else if _, ok := err.(domain.SecurityError); !ok {
		t.Fatalf("expected SecurityError, got %T: %v", err, err)
	}
}

func TestCheckPermissionAdminRetainsAccessAfterBootstrap(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)

	first := domain.NewCube("widgets.catalog", appID)
	if _, err := reg.UpdateCube(context.Background(), first, "alice"); err != nil {
		t.Fatalf("seeding update should succeed: %v", err)
	}

	second := domain.NewCube("widgets.other", appID)
	if _, err := reg.UpdateCube(context.Background(), second, "alice"); err != nil {
		t.Fatalf("seeding user (ADMIN) should retain access: %v", err)
	}
}

