package core_test

import (
	"context"
	"testing"

	"ncube/internal/core"
	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

func TestLockAppAcquireAndBlockOtherUser(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	ctx := context.Background()

	acquired, err := reg.LockApp(ctx, appID, "alice")
	if err != nil || !acquired {
		t.Fatalf("expected alice to acquire the lock, got acquired=%v err=%v", acquired, err)
	}

	acquiredAgain, err := reg.LockApp(ctx, appID, "alice")
	if err != nil {
		t.Fatalf("re-locking by the holder should not error: %v", err)
	}
	if acquiredAgain {
		t.Fatalf("expected re-lock by the same holder to report false (already held)")
	}

	if _, err := reg.LockApp(ctx, appID, "bob"); err == nil {
		t.Fatalf("expected bob to be denied the lock while alice holds it")
	} else if _, ok := err.(domain.SecurityError); !ok {
		t.Fatalf("expected SecurityError, got %T: %v", err, err)
	}

	if err := reg.AssertNotLockBlocked(ctx, appID, "bob"); err == nil {
		t.Fatalf("expected bob to be blocked by alice's lock")
	}
	if err := reg.AssertNotLockBlocked(ctx, appID, "alice"); err != nil {
		t.Fatalf("holder should never be blocked by their own lock: %v", err)
	}

	if err := reg.UnlockApp(ctx, appID, "bob"); err == nil {
		t.Fatalf("expected bob to be refused unlocking alice's lock")
	}
	if err := reg.UnlockApp(ctx, appID, "alice"); err != nil {
		t.Fatalf("holder should be able to unlock: %v", err)
	}

	acquired, err = reg.LockApp(ctx, appID, "bob")
	if err != nil || !acquired {
		t.Fatalf("expected bob to acquire the now-free lock, got acquired=%v err=%v", acquired, err)
	}
}

func TestAssertLockedByMe(t *testing.T) {
	reg := core.NewRegistry(memory.NewStore())
	appID := testAppID(t, "acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	ctx := context.Background()

	if err := reg.AssertLockedByMe(ctx, appID, "alice"); err == nil {
		t.Fatalf("expected an unheld lock to fail AssertLockedByMe")
	}

	if _, err := reg.LockApp(ctx, appID, "alice"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := reg.AssertLockedByMe(ctx, appID, "bob"); err == nil {
		t.Fatalf("expected non-holder to fail AssertLockedByMe")
	}
	if err := reg.AssertLockedByMe(ctx, appID, "alice"); err != nil {
		t.Fatalf("expected holder to pass AssertLockedByMe: %v", err)
	}
}
