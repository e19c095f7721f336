// Package blob selects and opens a concrete blob.Store driver for the
// RULE-axis URL cache (internal/core/urlresolve.go): fetched expression
// bodies are cached here so a repeated lookup does not re-fetch the source.
package blob

import (
	"context"
	"fmt"
	"os"

	"ncube/internal/infra/blob/core"
	"ncube/internal/infra/blob/fs"
	"ncube/internal/infra/blob/memory"
	"ncube/internal/infra/blob/s3"
)

// Store is the blob storage port consumed by the URL resolver.
type Store = core.Store

// PutOptions re-exports core.PutOptions so callers do not need the core import.
type PutOptions = core.PutOptions

// Driver re-exports core.Driver so callers do not need the core import.
type Driver = core.Driver

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Open selects a Store implementation using environment variables.
//
//	NCUBE_URLCACHE_DRIVER: fs|s3|memory (default fs)
//	NCUBE_URLCACHE_FS_ROOT: directory root when driver=fs (default ./urlcache)
//	(s3-specific variables documented in internal/infra/blob/s3/store.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("NCUBE_URLCACHE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("NCUBE_URLCACHE_FS_ROOT")
		if root == "" {
			root = "./urlcache"
		}
		return fs.New(root)
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown url cache driver %s", driver)
	}
}
