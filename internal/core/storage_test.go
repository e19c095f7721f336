package core_test

import (
	"testing"

	"ncube/internal/core"
)

func TestOpenPersistentStoreSelectsMemoryDriver(t *testing.T) {
	t.Setenv("NCUBE_STORAGE_DRIVER", "memory")

	store, err := core.OpenPersistentStore()
	if err != nil {
		t.Fatalf("open persistent store: %v", err)
	}
	if store == nil {
		t.Fatalf("expected a non-nil persister for the memory driver")
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv("NCUBE_STORAGE_DRIVER", "does-not-exist")

	if _, err := core.OpenPersistentStore(); err == nil {
		t.Fatalf("expected an unknown storage driver to error")
	}
}
