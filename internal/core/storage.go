package core

import (
	"fmt"
	"os"

	"ncube/internal/infra/persistence/memory"
	"ncube/internal/infra/persistence/postgres"
	"ncube/internal/infra/persistence/sqlite"
	"ncube/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	NCUBE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	NCUBE_SQLITE_PATH: path to sqlite file (default ./ncube.db)
//	NCUBE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (domain.Persister, error) {
	driver := os.Getenv("NCUBE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("NCUBE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("NCUBE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
